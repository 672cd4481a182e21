// Package embed defines the embedding-provider contract used by the
// semantic reranker and the persistent chunk index, an Ollama-backed
// implementation, and an LRU-cached wrapper.
package embed

import (
	"context"
	"math"
)

// Common embedding defaults.
const (
	// DefaultDimensions matches nomic-embed-text, the default model.
	DefaultDimensions = 768

	// DefaultBatchSize bounds one embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize prevents memory exhaustion on oversized batches.
	MaxBatchSize = 256
)

// Embedder converts text to fixed-length vectors.
type Embedder interface {
	// EmbedQuery embeds one query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of document texts, preserving order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length this embedder produces.
	Dimensions() int

	// ModelName identifies the underlying model, used in cache keys.
	ModelName() string
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors yield 0; there is no division by
// zero on degenerate input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
