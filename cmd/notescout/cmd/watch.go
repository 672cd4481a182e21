package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notescout/notescout/internal/chunkindex"
)

func newWatchCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the chunk index current as notes change",
		Long: `Watch the vault for note changes and patch the chunk index
incrementally. An edit rewrites only the partitions holding that note's
chunks, never the whole index.

Runs until interrupted. Use --rebuild to refresh the full index before
watching.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, rebuild)
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild the index before watching")

	return cmd
}

func runWatch(ctx context.Context, rebuild bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg, true)
	if err == nil {
		defer cleanup()
	}

	store, err := buildVault(ctx, cfg, vaultDir)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	manager := openManager(cfg, vaultDir)
	rebuilder := chunkRebuilder(manager, store, embedder)

	if rebuild {
		slog.Info("watch_initial_rebuild", slog.String("vault", store.Root()))
		if err := rebuilder.Rebuild(ctx, nil); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	}

	debounce, err := cfg.WatchDebounce()
	if err != nil {
		return err
	}
	watcher, err := chunkindex.NewWatcher(rebuilder, chunkindex.WatchOptions{
		DebounceWindow: debounce,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	slog.Info("watch_started",
		slog.String("vault", store.Root()),
		slog.Duration("debounce", debounce))
	err = watcher.Run(ctx, store.Root())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
