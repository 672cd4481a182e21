package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notescout/notescout/internal/config"
	"github.com/notescout/notescout/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the MCP server, exposing search_notes and index_status tools
to MCP hosts over stdio.

The protocol owns stdout, so all logging goes to the log file. Point
your MCP host at this command:

  notescout serve --vault ~/notes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cleanup, err := setupLogging(cfg, false)
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			defer cleanup()
			return runServe(cmd.Context(), cfg)
		},
	}
}

// runServe wires the pipeline and serves MCP until interrupted.
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildVault(ctx, cfg, vaultDir)
	if err != nil {
		return err
	}

	manager := openManager(cfg, vaultDir)
	pipeline, _, err := buildPipeline(ctx, cfg, store, manager)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(pipeline, manager, cfg, store.Root(), cfg.Embeddings.Model)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	slog.Info("serve_starting",
		slog.String("vault", store.Root()),
		slog.String("transport", cfg.Server.Transport))
	return server.Serve(ctx, cfg.Server.Transport)
}
