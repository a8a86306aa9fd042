package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	Addr            string `yaml:"addr"`
	RulesDir        string `yaml:"rules_dir"`
	DefaultLanguage string `yaml:"default_language"`
	Watch           bool   `yaml:"watch"`
	MCP             bool   `yaml:"mcp"`

	TLS struct {
		Cert string `yaml:"cert"`
		Key  string `yaml:"key"`
	} `yaml:"tls"`

	Sources struct {
		DB            string            `yaml:"db"` // defaults to <rules_dir>/sources.db
		CheckInterval time.Duration     `yaml:"check_interval"`
		URLs          map[string]string `yaml:"urls"` // language -> document URL, seeded once
	} `yaml:"sources"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func defaultConfig() config {
	cfg := config{
		Addr:            ":8430",
		RulesDir:        "rules",
		DefaultLanguage: "en",
		Watch:           true,
		MCP:             true,
	}
	cfg.Sources.CheckInterval = 24 * time.Hour
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string, logger *slog.Logger) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("no config file, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Sources.CheckInterval <= 0 {
		return cfg, fmt.Errorf("config %s: sources.check_interval must be positive", path)
	}
	return cfg, nil
}

func (c config) sourcesDB() string {
	if c.Sources.DB != "" {
		return c.Sources.DB
	}
	return filepath.Join(c.RulesDir, "sources.db")
}
