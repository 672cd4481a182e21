package search

import (
	"context"
	"log/slog"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/notescout/notescout/internal/embed"
	"github.com/notescout/notescout/internal/vault"
)

const (
	// snippetChars bounds how much of a note is embedded for reranking.
	snippetChars = 2000

	// rerankConcurrency caps in-flight snippet embeddings.
	rerankConcurrency = 8
)

// Reranker scores candidates by embedding similarity to the query.
type Reranker struct {
	store    vault.DocumentStore
	embedder embed.Embedder
}

// NewReranker wires a reranker to a document store and an embedder.
func NewReranker(store vault.DocumentStore, embedder embed.Embedder) *Reranker {
	return &Reranker{store: store, embedder: embedder}
}

// ReRankBySimilarity embeds a bounded prefix of each candidate and
// scores it by its best cosine similarity against any query-variant
// embedding. Read or embed failures score 0 for that candidate only.
// Results come back sorted by descending score, ties broken by path.
func (r *Reranker) ReRankBySimilarity(ctx context.Context, candidates []string, queryEmbeddings [][]float32) []NoteIDRank {
	if len(candidates) == 0 || len(queryEmbeddings) == 0 {
		return nil
	}

	ranks := make([]NoteIDRank, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rerankConcurrency)

	for i, path := range candidates {
		g.Go(func() error {
			ranks[i] = NoteIDRank{
				ID:     path,
				Score:  r.score(gctx, path, queryEmbeddings),
				Engine: EngineSemantic,
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return ranks[i].ID < ranks[j].ID
	})
	return ranks
}

func (r *Reranker) score(ctx context.Context, path string, queryEmbeddings [][]float32) float64 {
	content, err := r.store.ReadFile(ctx, path)
	if err != nil {
		slog.Debug("rerank_read_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return 0
	}

	vec, err := r.embedder.EmbedQuery(ctx, snippet(content))
	if err != nil {
		slog.Debug("rerank_embed_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return 0
	}

	best := 0.0
	for _, q := range queryEmbeddings {
		if sim := embed.CosineSimilarity(q, vec); sim > best {
			best = sim
		}
	}
	return best
}

// snippet takes the leading prefix of content, backing off to a rune
// boundary so a multibyte character is never cut.
func snippet(content string) string {
	if len(content) <= snippetChars {
		return content
	}
	cut := snippetChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
