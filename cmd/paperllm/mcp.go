package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/paperllm/internal/api"
	"github.com/kalambet/paperllm/internal/storage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the run journal and document previews over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		applyServiceFlags(cmd, &c)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		store, err := storage.Open(c.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer store.Close()

		deps := api.MCPDeps{Store: store, Version: version}
		// Previews need both services; the journal tools work without them.
		if svc, err := connect(ctx, c); err != nil {
			slog.Warn("document previews disabled", "error", err)
		} else {
			deps.Previewer = svc.orchestrator(c, false, nil)
		}

		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		slog.Info("MCP server listening on stdio")
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	addServiceFlags(mcpCmd)
}
