package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/factnorm/pkg/api"
	"github.com/hazyhaar/factnorm/pkg/chassis"
	"github.com/hazyhaar/factnorm/pkg/normalize"
	"github.com/hazyhaar/factnorm/pkg/rulesource"
)

func newServeCmd(a *app) *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP, HTTP/3 and MCP APIs",
		Long: "Serve the normalization API over HTTP/1.1+2 (TCP) and HTTP/3 + MCP (QUIC) on the same port.\n" +
			"SIGHUP reloads every rule document; edits in the rules directory are picked up automatically.\n" +
			"With --stdio only the MCP tools are served, over stdin/stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if stdio {
				return a.serveStdio()
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve MCP over stdin/stdout instead of the network")
	return cmd
}

func (a *app) loadRegistry() (*normalize.Registry, error) {
	reg := normalize.NewRegistry(a.cfg.RulesDir, a.logger)
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	a.logger.Info("rules loaded", "dir", a.cfg.RulesDir, "languages", reg.Languages(), "rules", reg.RuleCount())
	return reg, nil
}

func (a *app) newMCPServer(svc *api.Service) *server.MCPServer {
	srv := server.NewMCPServer("factnorm", version, server.WithToolCapabilities(false))
	api.RegisterMCPTools(srv, svc)
	return srv
}

func (a *app) serveStdio() error {
	reg, err := a.loadRegistry()
	if err != nil {
		return err
	}
	svc := api.NewService(reg, api.Options{DefaultLanguage: a.cfg.DefaultLanguage, Logger: a.logger})
	return server.ServeStdio(a.newMCPServer(svc))
}

func (a *app) serve(parent context.Context) error {
	reg, err := a.loadRegistry()
	if err != nil {
		return err
	}

	svc := api.NewService(reg, api.Options{
		DefaultLanguage: a.cfg.DefaultLanguage,
		Metrics:         api.NewMetrics(),
		Logger:          a.logger,
	})

	var mcpSrv *server.MCPServer
	if a.cfg.MCP {
		mcpSrv = a.newMCPServer(svc)
	}

	srv, err := chassis.New(chassis.Config{
		Addr:      a.cfg.Addr,
		CertFile:  a.cfg.TLS.Cert,
		KeyFile:   a.cfg.TLS.Key,
		Handler:   api.NewRouter(svc),
		MCPServer: mcpSrv,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	// SIGHUP: reload every language.
	// SIGINT/SIGTERM: graceful shutdown.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sighup:
				a.logger.Info("SIGHUP received, reloading rules")
				if err := reg.Reload(); err != nil {
					a.logger.Error("reload failed, keeping previous rules", "error", err)
				} else {
					a.logger.Info("rules reloaded", "languages", reg.Languages(), "rules", reg.RuleCount())
				}
			}
		}
	}()

	if a.cfg.Watch {
		go func() {
			if err := reg.Watch(ctx, nil); err != nil {
				a.logger.Error("rules watcher stopped", "error", err)
			}
		}()
	}

	sources, err := rulesource.Open(a.cfg.sourcesDB())
	if err != nil {
		a.logger.Warn("rule sources unavailable, checker disabled", "error", err)
	} else {
		defer sources.Close()
		if err := sources.Seed(a.cfg.Sources.URLs); err != nil {
			a.logger.Warn("seed rule sources", "error", err)
		}
		go rulesource.NewChecker(sources, a.logger, a.cfg.Sources.CheckInterval).Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, srv.Stop(shutdownCtx))
}
