package expand

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel counts invocations and returns a canned reply.
type fakeModel struct {
	reply string
	err   error
	calls int
	delay time.Duration
}

func (f *fakeModel) Invoke(ctx context.Context, _ string) (string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func newExpander(t *testing.T, model *fakeModel, cfg Config) *Expander {
	t.Helper()
	var m *fakeModel
	if model != nil {
		m = model
	}
	if m == nil {
		e, err := New(nil, cfg)
		require.NoError(t, err)
		return e
	}
	e, err := New(m, cfg)
	require.NoError(t, err)
	return e
}

func TestExpandEmptyQuery(t *testing.T) {
	model := &fakeModel{reply: "<query>should not be called</query>"}
	e := newExpander(t, model, Config{})

	for _, q := range []string{"", "   ", "\t\n"} {
		result, err := e.Expand(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, result.Queries)
		assert.Empty(t, result.SalientTerms)
	}
	assert.Zero(t, model.calls, "empty queries must not reach the model")
	assert.Zero(t, e.CacheLen(), "empty queries must not be cached")
}

func TestExpandTaggedFormat(t *testing.T) {
	model := &fakeModel{reply: "<query>meeting notes from standup</query>\n<query>daily sync summary</query>\n<term>standup</term>\n<term>sync, scrum</term>"}
	e := newExpander(t, model, Config{})

	result, err := e.Expand(context.Background(), "standup meeting notes")
	require.NoError(t, err)

	assert.Equal(t, "standup meeting notes", result.OriginalQuery)
	require.Len(t, result.Queries, 3)
	assert.Equal(t, "standup meeting notes", result.Queries[0])
	assert.Contains(t, result.Queries, "daily sync summary")
	assert.Equal(t, []string{"standup", "sync", "scrum"}, result.ExpandedTerms)
}

func TestExpandLegacyFormat(t *testing.T) {
	model := &fakeModel{reply: "1. project planning docs\n- roadmap overview\nTerms: roadmap, milestone"}
	e := newExpander(t, model, Config{})

	result, err := e.Expand(context.Background(), "project plans")
	require.NoError(t, err)

	assert.Contains(t, result.Queries, "project planning docs")
	assert.Contains(t, result.Queries, "roadmap overview")
	assert.Equal(t, []string{"roadmap", "milestone"}, result.ExpandedTerms)
}

func TestExpandSalientTermsFromOriginalOnly(t *testing.T) {
	model := &fakeModel{reply: "<query>kubernetes deployment guide</query>\n<term>kubernetes</term>\n<term>helm</term>"}
	e := newExpander(t, model, Config{})

	result, err := e.Expand(context.Background(), "container orchestration notes")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"container", "orchestration", "notes"}, result.SalientTerms)
	assert.NotContains(t, result.SalientTerms, "kubernetes")
	assert.NotContains(t, result.SalientTerms, "helm")
	assert.Contains(t, result.ExpandedTerms, "kubernetes")
}

func TestExpandModelErrorDegradesToLocal(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused")}
	e := newExpander(t, model, Config{})

	result, err := e.Expand(context.Background(), "release checklist")
	require.NoError(t, err, "model failure must not surface")

	assert.Equal(t, []string{"release checklist"}, result.Queries)
	assert.ElementsMatch(t, []string{"release", "checklist"}, result.SalientTerms)
	assert.Empty(t, result.ExpandedTerms)
}

func TestExpandModelTimeoutDegradesToLocal(t *testing.T) {
	model := &fakeModel{reply: "<query>late</query>", delay: 200 * time.Millisecond}
	e := newExpander(t, model, Config{Timeout: 10 * time.Millisecond})

	start := time.Now()
	result, err := e.Expand(context.Background(), "slow query")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, []string{"slow query"}, result.Queries)
}

func TestExpandGarbageReplyDegradesToLocal(t *testing.T) {
	model := &fakeModel{reply: "I cannot help with that."}
	e := newExpander(t, model, Config{})

	result, err := e.Expand(context.Background(), "vault backup")
	require.NoError(t, err)
	assert.Equal(t, []string{"vault backup"}, result.Queries)
	assert.Empty(t, result.ExpandedTerms)
}

func TestExpandVariantCap(t *testing.T) {
	var reply string
	for i := 0; i < 10; i++ {
		reply += fmt.Sprintf("<query>variant %d</query>\n", i)
	}
	e := newExpander(t, &fakeModel{reply: reply}, Config{MaxVariants: 2})

	result, err := e.Expand(context.Background(), "crowded")
	require.NoError(t, err)
	assert.Len(t, result.Queries, 3, "original plus MaxVariants alternatives")
	assert.Equal(t, "crowded", result.Queries[0])
}

func TestExpandCachesAndEvictsLRU(t *testing.T) {
	model := &fakeModel{reply: "<query>cached variant</query>"}
	e := newExpander(t, model, Config{CacheSize: 2})

	_, err := e.Expand(context.Background(), "first")
	require.NoError(t, err)
	_, err = e.Expand(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls, "second identical expand must hit the cache")

	_, err = e.Expand(context.Background(), "second")
	require.NoError(t, err)

	// Touch "first" so "second" becomes least recently used.
	_, err = e.Expand(context.Background(), "first")
	require.NoError(t, err)

	_, err = e.Expand(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheLen())

	calls := model.calls
	_, err = e.Expand(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, calls, model.calls, "first must survive eviction")

	_, err = e.Expand(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, calls+1, model.calls, "second was evicted as LRU")
}

// flakyModel fails its first n invocations, then answers normally.
type flakyModel struct {
	fails int
	reply string
	calls int
}

func (f *flakyModel) Invoke(context.Context, string) (string, error) {
	f.calls++
	if f.calls <= f.fails {
		return "", errors.New("connection refused")
	}
	return f.reply, nil
}

func TestExpandDegradedResultNotCached(t *testing.T) {
	model := &flakyModel{fails: 1, reply: "<query>ship the release</query>"}
	e, err := New(model, Config{})
	require.NoError(t, err)

	result, err := e.Expand(context.Background(), "release checklist")
	require.NoError(t, err)
	assert.Equal(t, []string{"release checklist"}, result.Queries)
	assert.Zero(t, e.CacheLen(), "degraded expansion must not be cached")

	// The provider is back; the same query reaches the model again.
	result, err = e.Expand(context.Background(), "release checklist")
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
	assert.Contains(t, result.Queries, "ship the release")
	assert.Equal(t, 1, e.CacheLen())
}

func TestExpandDeduplicatesModelVariants(t *testing.T) {
	model := &fakeModel{reply: "<query>Weekly Review</query>\n<query>weekly review</query>\n<query>WEEKLY REVIEW</query>\n<query>retro notes</query>"}
	e := newExpander(t, model, Config{})

	result, err := e.Expand(context.Background(), "weekly retro")
	require.NoError(t, err)
	assert.Equal(t, []string{"weekly retro", "Weekly Review", "retro notes"}, result.Queries)
}

func TestExpandNilModelLocalOnly(t *testing.T) {
	e := newExpander(t, nil, Config{})

	result, err := e.Expand(context.Background(), "plain local query")
	require.NoError(t, err)
	assert.Equal(t, []string{"plain local query"}, result.Queries)
	assert.ElementsMatch(t, []string{"plain", "local", "query"}, result.SalientTerms)
}

func TestExtractTermsShapes(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"simple words", "release checklist", []string{"release", "checklist"}},
		{"punctuation split", "api/design, review!", []string{"api", "design", "review"}},
		{"hyphen whole and split", "dry-run results", []string{"dry-run", "dry", "run", "results"}},
		{"tag kept verbatim", "notes #project/alpha today", []string{"notes", "#project/alpha", "today"}},
		{"tag does not pollute words", "#api", []string{"#api"}},
		{"bare and tag both kept", "api #api", []string{"api", "#api"}},
		{"short terms dropped", "a go x", []string{"go"}},
		{"underscores allowed", "snake_case term", []string{"snake_case", "term"}},
		{"dedup case insensitive", "Notes notes NOTES", []string{"Notes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}
