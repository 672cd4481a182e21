// Package search sequences the retrieval pipeline: query expansion,
// grep scanning, graph expansion, ephemeral full-text indexing, semantic
// reranking, and weighted rank fusion, with guaranteed-inclusion matches
// merged in past the truncation cap.
package search

import "time"

// Engine labels the ranking stage that produced a score.
type EngineKind string

const (
	EngineGrep     EngineKind = "grep"
	EngineLexical  EngineKind = "lexical"
	EngineSemantic EngineKind = "semantic"
)

// NoteIDRank is a scored reference to one note, produced by a ranking
// stage and consumed by rank fusion.
type NoteIDRank struct {
	ID     string
	Score  float64
	Engine EngineKind
}

// RetrievedNote is one entry of the final ranked result set.
type RetrievedNote struct {
	Title   string
	Content string
	Path    string
	Score   float64
	Source  string
	MTime   time.Time

	// IncludeInContext marks guaranteed-inclusion matches that bypass
	// score-based truncation.
	IncludeInContext bool
}
