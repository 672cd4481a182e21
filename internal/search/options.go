package search

// Defaults applied by Options.withDefaults.
const (
	DefaultMaxResults     = 10
	DefaultCandidateLimit = 50
	DefaultGraphHops      = 1
	DefaultRRFK           = 60
	DefaultSemanticWeight = 1.0

	// grepPriorWeight is the fusion weight of the raw grep ordering. It
	// is a weak prior next to the lexical and semantic lists.
	grepPriorWeight = 0.5

	// lowRecallThreshold triggers the one-step progressive re-expansion
	// when fusion yields fewer ranked results.
	lowRecallThreshold = 3
)

// Options is the per-call pipeline configuration.
type Options struct {
	// MaxResults truncates the ranked result set; guaranteed-inclusion
	// matches are exempt.
	MaxResults int

	// EnableSemantic turns on the embedding reranker when an embedder
	// is wired.
	EnableSemantic bool

	// SemanticWeight is the fusion weight of the semantic list.
	SemanticWeight float64

	// CandidateLimit caps the candidate set before the expensive
	// stages (full-text indexing, embedding).
	CandidateLimit int

	// GraphHops bounds link-graph expansion.
	GraphHops int

	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int
}

func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = DefaultCandidateLimit
	}
	if o.GraphHops <= 0 {
		o.GraphHops = DefaultGraphHops
	}
	if o.RRFK <= 0 {
		o.RRFK = DefaultRRFK
	}
	if o.SemanticWeight <= 0 {
		o.SemanticWeight = DefaultSemanticWeight
	}
	return o
}
