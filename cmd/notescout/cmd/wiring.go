package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/notescout/notescout/internal/chunkindex"
	"github.com/notescout/notescout/internal/config"
	"github.com/notescout/notescout/internal/embed"
	"github.com/notescout/notescout/internal/expand"
	"github.com/notescout/notescout/internal/filter"
	"github.com/notescout/notescout/internal/graph"
	"github.com/notescout/notescout/internal/llm"
	"github.com/notescout/notescout/internal/scan"
	"github.com/notescout/notescout/internal/search"
	"github.com/notescout/notescout/internal/vault"
)

// loadConfig loads the layered configuration for the selected vault.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(vaultDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildVault opens the filesystem vault and loads its link graph.
func buildVault(ctx context.Context, cfg *config.Config, dir string) (*vault.FS, error) {
	store, err := vault.NewFS(dir, vault.FSConfig{
		Include: cfg.Paths.Include,
		Exclude: cfg.Paths.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load vault: %w", err)
	}
	return store, nil
}

// buildEmbedder creates the Ollama embedder behind an LRU cache.
func buildEmbedder(cfg *config.Config) (embed.Embedder, error) {
	inner := embed.NewOllamaEmbedder(embed.OllamaConfig{
		Host:       cfg.Embeddings.OllamaHost,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
	cached, err := embed.NewCached(inner, cfg.Embeddings.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return cached, nil
}

// buildExpander creates the query expander. When expansion is disabled
// the expander falls back to local term extraction.
func buildExpander(cfg *config.Config) (*expand.Expander, error) {
	var model llm.Model
	if cfg.Expansion.Enabled {
		model = llm.NewOllama(llm.OllamaConfig{
			Host:  cfg.Expansion.OllamaHost,
			Model: cfg.Expansion.Model,
		})
	}
	exp, err := expand.New(model, expand.Config{
		MaxVariants: cfg.Expansion.MaxVariants,
		CacheSize:   cfg.Expansion.CacheSize,
		Timeout:     cfg.Expansion.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create expander: %w", err)
	}
	return exp, nil
}

// openManager opens the partitioned chunk index for the vault.
func openManager(cfg *config.Config, dir string) *chunkindex.Manager {
	return chunkindex.NewManager(cfg.IndexBase(dir), chunkindex.Config{
		PartitionMaxBytes: cfg.Index.PartitionMaxBytes,
	})
}

// chunkRebuilder wires a rebuilder over the manager, vault and embedder.
func chunkRebuilder(manager *chunkindex.Manager, store vault.Store, embedder embed.Embedder) *chunkindex.Rebuilder {
	return chunkindex.NewRebuilder(manager, store, embedder)
}

// loadVectors builds an in-memory vector index from the persisted chunk
// records. A missing or empty index yields nil, which the pipeline
// treats as "no persisted vectors".
func loadVectors(ctx context.Context, manager *chunkindex.Manager, dims int) search.VectorSource {
	records, err := manager.ReadRecords(ctx)
	if err != nil {
		slog.Warn("chunk_index_unreadable", slog.String("error", err.Error()))
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	vectors, err := chunkindex.NewVectorIndex(records, dims)
	if err != nil {
		slog.Warn("vector_index_skipped", slog.String("error", err.Error()))
		return nil
	}
	return vectors
}

// buildPipeline assembles the retrieval pipeline from configuration.
func buildPipeline(ctx context.Context, cfg *config.Config, store vault.Store, manager *chunkindex.Manager) (*search.Pipeline, embed.Embedder, error) {
	expander, err := buildExpander(cfg)
	if err != nil {
		return nil, nil, err
	}

	var embedder embed.Embedder
	var vectors search.VectorSource
	if cfg.Search.EnableSemantic {
		embedder, err = buildEmbedder(cfg)
		if err != nil {
			return nil, nil, err
		}
		if manager != nil {
			vectors = loadVectors(ctx, manager, embedder.Dimensions())
		}
	}

	pipeline, err := search.NewPipeline(search.Deps{
		Store:    store,
		Expander: expander,
		Scanner:  scan.New(store, scan.Config{}),
		Graph: graph.New(store, graph.Config{
			CoCitationThreshold: cfg.Search.CoCitationThreshold,
		}),
		Filter: filter.New(store, filter.Config{
			DailyNoteFormat: cfg.Filter.DailyNoteFormat,
			MaxDailyNotes:   cfg.Filter.MaxDailyNotes,
			MaxK:            cfg.Filter.MaxK,
		}),
		Embedder: embedder,
		Vectors:  vectors,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("assemble pipeline: %w", err)
	}
	return pipeline, embedder, nil
}

// searchOptionsFromConfig maps the search config onto pipeline options.
func searchOptionsFromConfig(cfg *config.Config) search.Options {
	return search.Options{
		MaxResults:     cfg.Search.MaxResults,
		EnableSemantic: cfg.Search.EnableSemantic,
		SemanticWeight: cfg.Search.SemanticWeight,
		CandidateLimit: cfg.Search.CandidateLimit,
		GraphHops:      cfg.Search.GraphHops,
		RRFK:           cfg.Search.RRFConstant,
	}
}
