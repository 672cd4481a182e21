package chunkindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecRecord(path string, embedding []float32) ChunkRecord {
	return ChunkRecord{
		ID:        ChunkID(path, path),
		Path:      path,
		Title:     path,
		Embedding: embedding,
	}
}

func TestVectorIndexNearestFirst(t *testing.T) {
	records := []ChunkRecord{
		vecRecord("notes/x.md", []float32{1, 0, 0}),
		vecRecord("notes/y.md", []float32{0, 1, 0}),
		vecRecord("notes/close.md", []float32{0.9, 0.1, 0}),
	}
	idx, err := NewVectorIndex(records, 3)
	require.NoError(t, err)
	require.Equal(t, 3, idx.Len())

	hits, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "notes/x.md", hits[0].Record.Path)
	assert.Equal(t, "notes/close.md", hits[1].Record.Path)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
}

func TestVectorIndexSkipsMismatchedDimensions(t *testing.T) {
	records := []ChunkRecord{
		vecRecord("notes/good.md", []float32{1, 0, 0}),
		vecRecord("notes/bad.md", []float32{1, 0}),
		vecRecord("notes/empty.md", nil),
	}
	idx, err := NewVectorIndex(records, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestVectorIndexQueryDimensionMismatch(t *testing.T) {
	idx, err := NewVectorIndex([]ChunkRecord{vecRecord("notes/a.md", []float32{1, 0, 0})}, 3)
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestVectorIndexEmpty(t *testing.T) {
	idx, err := NewVectorIndex(nil, 3)
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndexInvalidDimensions(t *testing.T) {
	_, err := NewVectorIndex(nil, 0)
	assert.Error(t, err)
}
