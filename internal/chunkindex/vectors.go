package chunkindex

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// VectorHit is one nearest-neighbor match from the chunk index.
type VectorHit struct {
	Record ChunkRecord
	Score  float32
}

// VectorIndex answers nearest-neighbor queries over the stored chunk
// embeddings. It is built in memory from loaded records; persistence
// stays in the JSONL partitions, so the graph is rebuilt on load.
type VectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int]
	records []ChunkRecord
	dims    int
}

// NewVectorIndex builds a searchable graph over the given records.
// Records with empty or mismatched embeddings are skipped.
func NewVectorIndex(records []ChunkRecord, dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector index dimensions must be positive, got %d", dims)
	}

	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	idx := &VectorIndex{
		graph: graph,
		dims:  dims,
	}
	for _, rec := range records {
		if len(rec.Embedding) != dims {
			continue
		}
		vec := make([]float32, dims)
		copy(vec, rec.Embedding)
		normalizeVector(vec)
		graph.Add(hnsw.MakeNode(len(idx.records), vec))
		idx.records = append(idx.records, rec)
	}
	return idx, nil
}

// Len reports the number of indexed chunks.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// Search returns the k nearest chunks to the query embedding, scored by
// cosine similarity mapped to [0, 1].
func (v *VectorIndex) Search(query []float32, k int) ([]VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.dims {
		return nil, fmt.Errorf("query dimensions mismatch: expected %d, got %d", v.dims, len(query))
	}
	if len(v.records) == 0 || k <= 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVector(normalized)

	nodes := v.graph.Search(normalized, k)
	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		if node.Key < 0 || node.Key >= len(v.records) {
			continue
		}
		distance := v.graph.Distance(normalized, node.Value)
		hits = append(hits, VectorHit{
			Record: v.records[node.Key],
			Score:  1.0 - distance/2.0,
		})
	}
	return hits, nil
}

func normalizeVector(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
