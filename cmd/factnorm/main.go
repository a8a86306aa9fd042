// Command factnorm normalizes dates and durations in text, realigns tagged
// token streams around them and serializes classified sentences into
// QuickStatements.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

// app carries the state shared by subcommands once the root command has
// loaded the configuration.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string
	rulesDir  string

	cfg    config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "factnorm:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "factnorm",
		Short:         "Date and duration normalization for fact extraction",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "factnorm.yaml", "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format override (text, json)")
	root.PersistentFlags().StringVar(&a.rulesDir, "rules-dir", "", "rules directory override")

	root.AddCommand(
		newServeCmd(a),
		newNormalizeCmd(a),
		newRealignCmd(a),
		newSerializeCmd(a),
		newCompileCmd(a),
		newSourcesCmd(a),
		newCallCmd(a),
	)

	return root
}

func (a *app) init(stderr io.Writer) error {
	boot := newLogger(stderr, "info", "text")
	cfg, err := loadConfig(a.cfgPath, boot)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.rulesDir != "" {
		cfg.RulesDir = a.rulesDir
	}
	a.cfg = cfg
	a.logger = newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(a.logger)
	return nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
