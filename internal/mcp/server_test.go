package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notescout/notescout/internal/chunkindex"
	"github.com/notescout/notescout/internal/config"
	"github.com/notescout/notescout/internal/filter"
	"github.com/notescout/notescout/internal/graph"
	"github.com/notescout/notescout/internal/scan"
	"github.com/notescout/notescout/internal/search"
	"github.com/notescout/notescout/internal/vault"
)

func testServer(t *testing.T, notes ...vault.MemNote) *Server {
	t.Helper()
	store := vault.NewMem(notes...)
	pipeline, err := search.NewPipeline(search.Deps{
		Store:   store,
		Scanner: scan.New(store, scan.Config{}),
		Graph:   graph.New(store, graph.Config{}),
		Filter:  filter.New(store, filter.Config{}),
	})
	require.NoError(t, err)

	index := chunkindex.NewManager(filepath.Join(t.TempDir(), "chunks"), chunkindex.Config{})
	srv, err := NewServer(pipeline, index, config.NewConfig(), "/vault", "")
	require.NoError(t, err)
	return srv
}

func TestSearchNotesHandler(t *testing.T) {
	srv := testServer(t,
		vault.MemNote{Path: "travel.md", Content: "itinerary for the lisbon trip", MTime: time.Now()},
		vault.MemNote{Path: "other.md", Content: "unrelated", MTime: time.Now()},
	)

	_, out, err := srv.searchNotesHandler(context.Background(), nil, SearchNotesInput{Query: "lisbon"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "travel.md", out.Results[0].Path)
	assert.NotEmpty(t, out.Results[0].ModifiedAt)
}

func TestSearchNotesRequiresQueryOrRange(t *testing.T) {
	srv := testServer(t)
	_, _, err := srv.searchNotesHandler(context.Background(), nil, SearchNotesInput{})
	assert.Error(t, err)
}

func TestSearchNotesRejectsBadDate(t *testing.T) {
	srv := testServer(t)
	_, _, err := srv.searchNotesHandler(context.Background(), nil, SearchNotesInput{
		Query:     "anything",
		StartDate: "yesterday",
	})
	assert.Error(t, err)
}

func TestSearchNotesTimeRangeOnly(t *testing.T) {
	now := time.Now()
	srv := testServer(t,
		vault.MemNote{Path: "recent.md", Content: "fresh", MTime: now.Add(-time.Hour)},
		vault.MemNote{Path: "stale.md", Content: "old", MTime: now.Add(-60 * 24 * time.Hour)},
	)

	_, out, err := srv.searchNotesHandler(context.Background(), nil, SearchNotesInput{
		StartDate: now.Add(-48 * time.Hour).Format("2006-01-02"),
	})
	require.NoError(t, err)
	paths := make([]string, 0, len(out.Results))
	for _, r := range out.Results {
		paths = append(paths, r.Path)
	}
	assert.Contains(t, paths, "recent.md")
	assert.NotContains(t, paths, "stale.md")
}

func TestSearchNotesLimitOverride(t *testing.T) {
	var notes []vault.MemNote
	for _, n := range []string{"a", "b", "c", "d"} {
		notes = append(notes, vault.MemNote{Path: n + ".md", Content: "shared keyword everywhere", MTime: time.Now()})
	}
	srv := testServer(t, notes...)

	_, out, err := srv.searchNotesHandler(context.Background(), nil, SearchNotesInput{
		Query: "keyword",
		Limit: 2,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.Results), 2)
}

func TestIndexStatusHandlerEmptyIndex(t *testing.T) {
	srv := testServer(t)
	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.Equal(t, "/vault", out.VaultPath)
	assert.Zero(t, out.Partitions)
	assert.Zero(t, out.Records)
}

func TestParseTimeRange(t *testing.T) {
	rng, err := parseTimeRange("", "")
	require.NoError(t, err)
	assert.Nil(t, rng)

	rng, err = parseTimeRange("2024-03-01", "2024-03-02")
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.True(t, rng.Contains(time.Date(2024, 3, 2, 23, 0, 0, 0, time.UTC)))
	assert.False(t, rng.Contains(time.Date(2024, 3, 3, 1, 0, 0, 0, time.UTC)))

	_, err = parseTimeRange("not-a-date", "")
	assert.Error(t, err)
}
