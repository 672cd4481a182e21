// Package fulltext provides the ephemeral per-query full-text engine.
// An Engine is built in memory from the expanded candidate set, queried
// once, and torn down; nothing persists between retrieval calls.
package fulltext

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/notescout/notescout/internal/vault"
)

// Field boosts: title hits matter more than body hits, path hits sit
// between.
const (
	titleBoost   = 3.0
	pathBoost    = 2.0
	tagBoost     = 2.0
	contentBoost = 1.0
)

// indexedNote is the bleve document shape.
type indexedNote struct {
	Title   string   `json:"title"`
	Path    string   `json:"path"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Hit is one ranked result from the ephemeral index.
type Hit struct {
	ID    string
	Score float64
}

// Engine is a memory-only bleve index over one query's candidate set.
type Engine struct {
	mu     sync.Mutex
	index  bleve.Index
	count  int
	closed bool
}

// Build creates the in-memory index and loads the candidate documents.
// The caller owns the engine and must Close it after the query.
func Build(ctx context.Context, docs []vault.NoteDocument) (*Engine, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create ephemeral index: %w", err)
	}

	batch := idx.NewBatch()
	for _, d := range docs {
		if ctx.Err() != nil {
			_ = idx.Close()
			return nil, ctx.Err()
		}
		note := indexedNote{
			Title:   d.Title,
			Path:    d.Path,
			Content: d.Content,
			Tags:    d.Tags,
		}
		if err := batch.Index(d.ID, note); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index note %s: %w", d.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("apply index batch: %w", err)
	}

	return &Engine{index: idx, count: len(docs)}, nil
}

// Count returns the number of indexed documents.
func (e *Engine) Count() int { return e.count }

// Search runs every query variant as a field-boosted disjunction and
// returns ids ranked by best score across variants.
func (e *Engine) Search(ctx context.Context, queries []string, limit int) ([]Hit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("ephemeral index already closed")
	}
	if limit <= 0 || len(queries) == 0 {
		return nil, nil
	}

	best := make(map[string]float64)
	var order []string

	for _, q := range queries {
		if q == "" {
			continue
		}
		req := bleve.NewSearchRequestOptions(variantQuery(q), limit, 0, false)
		res, err := e.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("ephemeral search: %w", err)
		}
		for _, hit := range res.Hits {
			if prev, ok := best[hit.ID]; !ok {
				best[hit.ID] = hit.Score
				order = append(order, hit.ID)
			} else if hit.Score > prev {
				best[hit.ID] = hit.Score
			}
		}
	}

	hits := make([]Hit, 0, len(order))
	for _, id := range order {
		hits = append(hits, Hit{ID: id, Score: best[id]})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Close tears the index down. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.index.Close()
}

// variantQuery builds the per-variant disjunction across fields.
func variantQuery(q string) *query.DisjunctionQuery {
	title := bleve.NewMatchQuery(q)
	title.SetField("title")
	title.SetBoost(titleBoost)

	path := bleve.NewMatchQuery(q)
	path.SetField("path")
	path.SetBoost(pathBoost)

	tags := bleve.NewMatchQuery(q)
	tags.SetField("tags")
	tags.SetBoost(tagBoost)

	content := bleve.NewMatchQuery(q)
	content.SetField("content")
	content.SetBoost(contentBoost)

	return bleve.NewDisjunctionQuery(title, path, tags, content)
}

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = false
	text.IncludeInAll = false

	note := bleve.NewDocumentMapping()
	note.AddFieldMappingsAt("title", text)
	note.AddFieldMappingsAt("path", text)
	note.AddFieldMappingsAt("content", text)
	note.AddFieldMappingsAt("tags", text)

	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = standard.Name
	m.DefaultMapping = note
	return m
}

// sortHits orders deterministically: score desc, then id asc.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
