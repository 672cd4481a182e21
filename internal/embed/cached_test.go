package embed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder produces a deterministic vector per text and counts
// provider calls.
type countingEmbedder struct {
	queryCalls int
	docCalls   int
	docTexts   int
}

func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.queryCalls++
	return fakeVec(text), nil
}

func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	c.docCalls++
	c.docTexts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = fakeVec(t)
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int   { return 4 }
func (c *countingEmbedder) ModelName() string { return "counting" }

func fakeVec(text string) []float32 {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r)
	}
	return v
}

func TestCachedEmbedQuery(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 10)
	require.NoError(t, err)

	v1, err := c.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := c.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.queryCalls)
}

func TestCachedEmbedDocumentsPartialHits(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 10)
	require.NoError(t, err)

	_, err = c.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	vecs, err := c.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	assert.Equal(t, fakeVec("c"), vecs[2])
	assert.Equal(t, 3, inner.docTexts, "only the miss goes to the provider")
}

func TestCachedEviction(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 2)
	require.NoError(t, err)

	for _, text := range []string{"a", "b", "c"} {
		_, err = c.EmbedQuery(context.Background(), text)
		require.NoError(t, err)
	}
	// "a" was evicted; embedding it again hits the provider.
	_, err = c.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.queryCalls)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0.0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0.0},
		{"empty", nil, nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCachedKeyIncludesModel(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 10)
	require.NoError(t, err)

	key1 := c.cacheKey("text")
	key2 := c.cacheKey(fmt.Sprintf("te%s", "xt"))
	assert.Equal(t, key1, key2, "same text, same key")
}
