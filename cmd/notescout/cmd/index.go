package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/notescout/notescout/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI bool
		clear bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the persistent chunk index for the vault",
		Long: `Chunk every note in the vault, embed the chunks via Ollama and write
them to the partitioned chunk index under the vault's index directory.

Unchanged notes reuse their stored embeddings, so re-running after an
edit only embeds what changed.

Use --clear to discard the existing index and rebuild from scratch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, noTUI, clear)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&clear, "clear", false, "Discard the existing index before rebuilding")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, noTUI, clear bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg, false)
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

	if clear {
		if err := manager.Clear(); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		slog.Info("index_cleared", slog.String("vault", store.Root()))
	}

	files, err := store.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("list vault files: %w", err)
	}

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: noTUI,
		NoColor:    ui.DetectNoColor(),
		VaultDir:   store.Root(),
	})
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("start renderer: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Total:   len(files),
		Message: fmt.Sprintf("%d notes", len(files)),
	})

	start := time.Now()
	rebuilder := chunkRebuilder(manager, store, embedder)
	err = rebuilder.Rebuild(ctx, func(done, total int) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: done,
			Total:   total,
		})
	})
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		return fmt.Errorf("rebuild index: %w", err)
	}

	stats, err := manager.Stats()
	if err != nil {
		return fmt.Errorf("read index stats: %w", err)
	}
	renderer.Complete(ui.CompletionStats{
		Files:    len(files),
		Records:  stats.Records,
		Duration: time.Since(start),
	})
	slog.Info("index_complete",
		slog.Int("files", len(files)),
		slog.Int("records", stats.Records),
		slog.Int("partitions", stats.Partitions))
	return nil
}
