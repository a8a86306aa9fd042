package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/factnorm/pkg/mcpquic"
)

func newCallCmd(a *app) *cobra.Command {
	var (
		addr     string
		insecure bool
		list     bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <tool> [key=value...]",
		Short: "Call an MCP tool of a running server over QUIC",
		Example: "  factnorm call --addr localhost:8430 normalize_many text='from 1900 to 1910'\n" +
			"  factnorm call --list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !list && len(args) == 0 {
				return fmt.Errorf("missing tool name")
			}
			if addr == "" {
				addr = dialAddr(a.cfg.Addr)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c := mcpquic.NewClient(addr, mcpquic.ClientTLSConfig(insecure), version)
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			if list {
				tools, err := c.ListTools(ctx)
				if err != nil {
					return err
				}
				for _, t := range tools.Tools {
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", t.Name, t.Description)
				}
				return nil
			}

			toolArgs, err := parseToolArgs(args[1:])
			if err != nil {
				return err
			}
			res, err := c.CallTool(ctx, args[0], toolArgs)
			if err != nil {
				return err
			}
			for _, content := range res.Content {
				if text, ok := content.(mcp.TextContent); ok {
					fmt.Fprintln(cmd.OutOrStdout(), text.Text)
				}
			}
			if res.IsError {
				return fmt.Errorf("tool %s failed", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default from config)")
	cmd.Flags().BoolVar(&insecure, "insecure", true, "skip server certificate verification")
	cmd.Flags().BoolVar(&list, "list", false, "list the server tools")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "call timeout")
	return cmd
}

// parseToolArgs turns key=value pairs into tool arguments.
func parseToolArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		args[k] = v
	}
	return args, nil
}

// dialAddr turns a listen address such as ":8430" into a dialable one.
func dialAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}
