// Package cmd provides the CLI commands for notescout.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/notescout/notescout/internal/config"
	"github.com/notescout/notescout/internal/logging"
	"github.com/notescout/notescout/internal/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	vaultDir string
	logLevel string
)

// NewRootCmd creates the root command for the notescout CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notescout",
		Short: "Hybrid retrieval MCP server for markdown vaults",
		Long: `Notescout serves hybrid search over a markdown note vault to MCP
hosts like Claude Code and Claude Desktop.

It combines grep scanning, link-graph expansion, full-text ranking and
semantic reranking, fused with reciprocal rank fusion. Everything runs
locally; embeddings and query expansion go through Ollama.

Run 'notescout' inside a vault to index it and start the MCP server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("notescout version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&vaultDir, "vault", ".", "Vault directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	mcp.Version = Version
	return NewRootCmd().Execute()
}

// runSmartDefault indexes the vault when no index exists, then starts
// the stdio MCP server. The MCP protocol owns stdout, so nothing is
// printed; status goes to the log file.
func runSmartDefault(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cleanup, err := setupLogging(cfg, false)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	manager := openManager(cfg, vaultDir)
	stats, err := manager.Stats()
	if err != nil {
		return fmt.Errorf("read index stats: %w", err)
	}

	if stats.Records == 0 {
		slog.Info("index_missing_building", slog.String("vault", vaultDir))
		store, err := buildVault(ctx, cfg, vaultDir)
		if err != nil {
			return err
		}
		embedder, err := buildEmbedder(cfg)
		if err != nil {
			return err
		}
		rebuilder := chunkRebuilder(manager, store, embedder)
		if err := rebuilder.Rebuild(ctx, nil); err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		slog.Info("index_built")
	}

	return runServe(ctx, cfg)
}

// setupLogging configures the default slog logger. stderr output is
// suppressed for MCP modes where the host owns the process streams.
func setupLogging(cfg *config.Config, stderr bool) (func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = stderr
	logCfg.Level = cfg.Server.LogLevel
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	return logging.SetupDefault(logCfg)
}
