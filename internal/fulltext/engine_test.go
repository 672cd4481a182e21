package fulltext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notescout/notescout/internal/vault"
)

func buildEngine(t *testing.T, docs ...vault.NoteDocument) *Engine {
	t.Helper()
	e, err := Build(context.Background(), docs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func TestSearchRanksTitleAboveContent(t *testing.T) {
	e := buildEngine(t,
		vault.NoteDocument{ID: "title.md", Path: "title.md", Title: "deployment checklist", Content: "unrelated body"},
		vault.NoteDocument{ID: "body.md", Path: "body.md", Title: "scratch", Content: "the deployment checklist lives elsewhere"},
	)

	hits, err := e.Search(context.Background(), []string{"deployment checklist"}, 10)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "title.md", hits[0].ID)
}

func TestSearchBestScoreAcrossVariants(t *testing.T) {
	e := buildEngine(t,
		vault.NoteDocument{ID: "a.md", Path: "a.md", Title: "kubernetes", Content: "cluster ops"},
		vault.NoteDocument{ID: "b.md", Path: "b.md", Title: "gardening", Content: "tomato cluster"},
	)

	hits, err := e.Search(context.Background(), []string{"kubernetes upgrade", "cluster operations"}, 10)
	require.NoError(t, err)

	require.NotEmpty(t, hits)
	assert.Equal(t, "a.md", hits[0].ID, "a matches both variants and keeps its best score")
}

func TestSearchLimit(t *testing.T) {
	docs := make([]vault.NoteDocument, 0, 10)
	for i := 0; i < 10; i++ {
		docs = append(docs, vault.NoteDocument{
			ID:      string(rune('a'+i)) + ".md",
			Path:    string(rune('a'+i)) + ".md",
			Title:   "note",
			Content: "shared keyword body",
		})
	}
	e := buildEngine(t, docs...)

	hits, err := e.Search(context.Background(), []string{"keyword"}, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestSearchTagField(t *testing.T) {
	e := buildEngine(t,
		vault.NoteDocument{ID: "tagged.md", Path: "tagged.md", Title: "misc", Content: "nothing", Tags: []string{"retrospective"}},
		vault.NoteDocument{ID: "plain.md", Path: "plain.md", Title: "misc", Content: "nothing"},
	)

	hits, err := e.Search(context.Background(), []string{"retrospective"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"tagged.md"}, hitIDs(hits))
}

func TestSearchAfterCloseFails(t *testing.T) {
	e := buildEngine(t, vault.NoteDocument{ID: "x.md", Path: "x.md", Title: "x", Content: "x"})
	require.NoError(t, e.Close())

	_, err := e.Search(context.Background(), []string{"x"}, 5)
	assert.Error(t, err)

	assert.NoError(t, e.Close(), "double close is safe")
}

func TestBuildEmptyCandidates(t *testing.T) {
	e := buildEngine(t)
	assert.Zero(t, e.Count())

	hits, err := e.Search(context.Background(), []string{"anything"}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
