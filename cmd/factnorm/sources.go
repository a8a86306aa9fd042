package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/factnorm/pkg/rulesource"
)

func newSourcesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage where rule documents are fetched from",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List rule sources and their last fetch and check",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withSources(func(db *rulesource.DB) error {
					list, err := db.List()
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "LANG\tURL\tSHA256\tFETCHED\tSTATUS")
					for _, s := range list {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
							s.Language, s.SourceURL, short(s.SHA256), when(s.LastFetch), status(s))
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "set-url <lang> <url>",
			Short: "Set the document URL of a language",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.withSources(func(db *rulesource.DB) error {
					return db.SetURL(args[0], args[1])
				})
			},
		},
		newSourcesFetchCmd(a),
		&cobra.Command{
			Use:   "check",
			Short: "Check once that every source URL answers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withSources(func(db *rulesource.DB) error {
					ok, failed := rulesource.NewChecker(db, a.logger, time.Hour).CheckAll(cmd.Context())
					fmt.Fprintf(cmd.OutOrStdout(), "%d reachable, %d failed\n", ok, failed)
					if failed > 0 {
						return fmt.Errorf("%d sources unreachable", failed)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newSourcesFetchCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "fetch [lang...]",
		Short: "Download, validate and install rule documents",
		Long: "Download the document of each language (all known sources by default). A document\n" +
			"that does not parse and compile is rejected and the installed one is kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return a.withSources(func(db *rulesource.DB) error {
				langs := args
				if len(langs) == 0 {
					list, err := db.List()
					if err != nil {
						return err
					}
					for _, s := range list {
						langs = append(langs, s.Language)
					}
				}
				if err := os.MkdirAll(a.cfg.RulesDir, 0o755); err != nil {
					return err
				}

				f := rulesource.NewFetcher()
				failed := 0
				for _, lang := range langs {
					url, err := db.GetURL(lang)
					if err == nil {
						var sum string
						if sum, err = f.Fetch(ctx, url, a.cfg.RulesDir, lang); err == nil {
							a.logger.Info("rules installed", "lang", lang, "url", url, "sha256", sum)
							err = db.RecordFetch(lang, sum)
						}
					}
					if err != nil {
						failed++
						a.logger.Error("fetch failed", "lang", lang, "error", err)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d fetches failed", failed, len(langs))
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall fetch timeout")
	return cmd
}

// withSources opens the source catalogue, seeds it from the config and
// runs fn.
func (a *app) withSources(fn func(*rulesource.DB) error) error {
	if err := os.MkdirAll(a.cfg.RulesDir, 0o755); err != nil {
		return err
	}
	db, err := rulesource.Open(a.cfg.sourcesDB())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Seed(a.cfg.Sources.URLs); err != nil {
		return err
	}
	return fn(db)
}

func short(sha *string) string {
	if sha == nil {
		return "-"
	}
	if len(*sha) > 12 {
		return (*sha)[:12]
	}
	return *sha
}

func when(ts *int64) string {
	if ts == nil {
		return "never"
	}
	return time.Unix(*ts, 0).UTC().Format(time.RFC3339)
}

func status(s rulesource.Source) string {
	switch {
	case s.LastStatus == nil:
		return "unchecked"
	case s.LastError != nil && *s.LastError != "":
		return fmt.Sprintf("%d %s", *s.LastStatus, *s.LastError)
	default:
		return fmt.Sprint(*s.LastStatus)
	}
}
