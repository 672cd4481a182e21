package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notescout/notescout/internal/chunkindex"
	"github.com/notescout/notescout/internal/embed"
	"github.com/notescout/notescout/internal/expand"
	"github.com/notescout/notescout/internal/filter"
	"github.com/notescout/notescout/internal/fulltext"
	"github.com/notescout/notescout/internal/graph"
	"github.com/notescout/notescout/internal/scan"
	"github.com/notescout/notescout/internal/vault"
)

// VectorSource answers nearest-neighbor queries from the persisted
// chunk index. It is optional; a nil source skips the persisted signal.
type VectorSource interface {
	Search(query []float32, k int) ([]chunkindex.VectorHit, error)
}

// Request is one retrieval call.
type Request struct {
	Query string

	// SalientTerms are host-supplied scoring terms merged with the ones
	// extracted from the query text.
	SalientTerms []string

	// TimeRange switches the guaranteed-inclusion retriever into
	// time-range mode.
	TimeRange *vault.TimeRange

	// ReturnAll lifts the time-range result cap.
	ReturnAll bool
}

// Pipeline is the tiered retrieval orchestrator.
type Pipeline struct {
	store    vault.Store
	expander *expand.Expander
	scanner  *scan.Grep
	graph    *graph.Expander
	filter   *filter.Retriever
	embedder embed.Embedder
	reranker *Reranker
	vectors  VectorSource
}

// Deps carries the pipeline's collaborators. Store, Scanner, Graph and
// Filter are required; Expander, Embedder and Vectors are optional and
// degrade their stage when absent.
type Deps struct {
	Store    vault.Store
	Expander *expand.Expander
	Scanner  *scan.Grep
	Graph    *graph.Expander
	Filter   *filter.Retriever
	Embedder embed.Embedder
	Vectors  VectorSource
}

// NewPipeline assembles the orchestrator.
func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Store == nil || deps.Scanner == nil || deps.Graph == nil || deps.Filter == nil {
		return nil, fmt.Errorf("pipeline requires store, scanner, graph and filter")
	}
	p := &Pipeline{
		store:    deps.Store,
		expander: deps.Expander,
		scanner:  deps.Scanner,
		graph:    deps.Graph,
		filter:   deps.Filter,
		embedder: deps.Embedder,
		vectors:  deps.Vectors,
	}
	if deps.Embedder != nil {
		p.reranker = NewReranker(deps.Store, deps.Embedder)
	}
	return p, nil
}

// Search runs the full pipeline and returns the fused, truncated result
// set with guaranteed-inclusion matches merged in front.
func (p *Pipeline) Search(ctx context.Context, req Request, opts Options) ([]RetrievedNote, error) {
	opts = opts.withDefaults()
	trace := uuid.NewString()
	start := time.Now()

	exp := p.expandQuery(ctx, req.Query)
	salient := mergeTerms(exp.SalientTerms, req.SalientTerms)

	slog.Debug("search_started",
		slog.String("trace", trace),
		slog.String("query", req.Query),
		slog.Int("variants", len(exp.Queries)),
		slog.Int("salient_terms", len(salient)))

	ranked, err := p.runTier(ctx, exp, salient, opts, opts.GraphHops, opts.CandidateLimit)
	if err == nil && len(ranked) < lowRecallThreshold {
		// One-step progressive re-expansion: widen the net once, never
		// loop.
		wider, werr := p.runTier(ctx, exp, salient, opts, opts.GraphHops+1, opts.CandidateLimit*2)
		if werr == nil && len(wider) > len(ranked) {
			slog.Debug("search_reexpanded",
				slog.String("trace", trace),
				slog.Int("before", len(ranked)),
				slog.Int("after", len(wider)))
			ranked = wider
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("search_pipeline_degraded",
			slog.String("trace", trace),
			slog.String("error", err.Error()))
		ranked = p.grepOnly(ctx, exp, salient, opts)
	}

	guaranteed := p.guaranteedMatches(ctx, req, trace)
	results := p.assemble(ctx, guaranteed, ranked, opts.MaxResults)

	slog.Debug("search_finished",
		slog.String("trace", trace),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

// expandQuery runs model-backed expansion when wired, local term
// extraction otherwise.
func (p *Pipeline) expandQuery(ctx context.Context, query string) expand.ExpandedQuery {
	if p.expander != nil {
		exp, err := p.expander.Expand(ctx, query)
		if err == nil {
			return exp
		}
		slog.Debug("search_expansion_failed", slog.String("error", err.Error()))
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return expand.ExpandedQuery{}
	}
	return expand.ExpandedQuery{
		OriginalQuery: trimmed,
		Queries:       []string{trimmed},
		SalientTerms:  expand.ExtractTerms(trimmed),
	}
}

// runTier executes one pass of the candidate pipeline: scan, graph
// expansion, persisted vector candidates, ephemeral full-text scoring,
// semantic reranking, and fusion.
func (p *Pipeline) runTier(ctx context.Context, exp expand.ExpandedQuery, salient []string, opts Options, hops, candidateLimit int) ([]NoteIDRank, error) {
	scanQueries := mergeTerms(exp.Queries, exp.ExpandedTerms, salient)
	grepHits, err := p.scanner.Scan(ctx, scanQueries, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("grep scan: %w", err)
	}

	active, _ := p.store.ActiveFile()
	candidates := p.graph.ExpandCandidates(grepHits, active, hops)

	var queryEmbeddings [][]float32
	var persisted []NoteIDRank
	semantic := opts.EnableSemantic && p.embedder != nil
	if semantic {
		queryEmbeddings = p.embedVariants(ctx, exp)
		semantic = len(queryEmbeddings) > 0
	}
	if semantic && p.vectors != nil {
		persisted, candidates = p.vectorCandidates(queryEmbeddings, candidates, candidateLimit)
	}

	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	lexical, err := p.lexicalRanks(ctx, exp, salient, candidates, candidateLimit)
	if err != nil {
		return nil, err
	}

	lists := []RankedList{
		{Engine: EngineLexical, Weight: 1.0, IDs: lexical},
		{Engine: EngineGrep, Weight: grepPriorWeight, IDs: grepHits},
	}
	if semantic {
		reranked := p.reranker.ReRankBySimilarity(ctx, candidates, queryEmbeddings)
		lists = append(lists, RankedList{
			Engine: EngineSemantic,
			Weight: opts.SemanticWeight,
			IDs:    semanticIDs(reranked, persisted),
		})
	}

	return Fuse(lists, opts.RRFK), nil
}

// lexicalRanks builds the ephemeral full-text index over the candidate
// documents and scores them. The index never survives the call.
func (p *Pipeline) lexicalRanks(ctx context.Context, exp expand.ExpandedQuery, salient []string, candidates []string, limit int) ([]string, error) {
	docs := make([]vault.NoteDocument, 0, len(candidates))
	for _, path := range candidates {
		if p.store.Excluded(path) {
			continue
		}
		doc, err := vault.Document(ctx, p.store, path)
		if err != nil {
			slog.Debug("search_candidate_unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	engine, err := fulltext.Build(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("build ephemeral index: %w", err)
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			slog.Warn("ephemeral_index_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	queries := exp.Queries
	if len(salient) > 0 {
		queries = append(append([]string{}, queries...), strings.Join(salient, " "))
	}
	hits, err := engine.Search(ctx, queries, limit)
	if err != nil {
		return nil, fmt.Errorf("ephemeral index search: %w", err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// embedVariants embeds each query phrasing; individual failures drop
// that variant.
func (p *Pipeline) embedVariants(ctx context.Context, exp expand.ExpandedQuery) [][]float32 {
	var out [][]float32
	for _, q := range exp.Queries {
		vec, err := p.embedder.EmbedQuery(ctx, q)
		if err != nil {
			slog.Debug("search_query_embed_failed",
				slog.String("variant", q),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, vec)
	}
	return out
}

// vectorCandidates consults the persisted chunk index with every query
// variant, keeping each note's best similarity, and folds the hit paths
// into the candidate set.
func (p *Pipeline) vectorCandidates(queryVecs [][]float32, candidates []string, limit int) ([]NoteIDRank, []string) {
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c] = true
	}
	byPath := make(map[string]float64)
	for _, vec := range queryVecs {
		hits, err := p.vectors.Search(vec, limit)
		if err != nil {
			slog.Debug("search_vector_index_failed", slog.String("error", err.Error()))
			continue
		}
		for _, h := range hits {
			path := h.Record.Path
			if float64(h.Score) > byPath[path] {
				byPath[path] = float64(h.Score)
			}
			if !seen[path] && !p.store.Excluded(path) {
				seen[path] = true
				candidates = append(candidates, path)
			}
		}
	}

	var ranks []NoteIDRank
	for path, score := range byPath {
		ranks = append(ranks, NoteIDRank{ID: path, Score: score, Engine: EngineSemantic})
	}
	sortRanks(ranks)
	return ranks, candidates
}

// grepOnly is the last-resort result set when the primary pipeline
// fails outright.
func (p *Pipeline) grepOnly(ctx context.Context, exp expand.ExpandedQuery, salient []string, opts Options) []NoteIDRank {
	hits, err := p.scanner.Scan(ctx, mergeTerms(exp.Queries, salient), opts.MaxResults)
	if err != nil {
		return nil
	}
	ranks := make([]NoteIDRank, len(hits))
	for i, path := range hits {
		ranks[i] = NoteIDRank{
			ID:     path,
			Score:  1.0 / float64(i+1),
			Engine: EngineGrep,
		}
	}
	return ranks
}

// guaranteedMatches resolves filter-retriever matches; failures degrade
// to none rather than failing the query.
func (p *Pipeline) guaranteedMatches(ctx context.Context, req Request, trace string) []filter.Match {
	matches, err := p.filter.GetRelevantDocuments(ctx, filter.Request{
		Query:     req.Query,
		TimeRange: req.TimeRange,
		ReturnAll: req.ReturnAll,
	})
	if err != nil {
		slog.Warn("search_filter_degraded",
			slog.String("trace", trace),
			slog.String("error", err.Error()))
		return nil
	}
	return matches
}

// assemble merges guaranteed matches with the fused ranking. Guaranteed
// matches are exempt from the cap; ranked entries fill up to maxResults.
func (p *Pipeline) assemble(ctx context.Context, guaranteed []filter.Match, ranked []NoteIDRank, maxResults int) []RetrievedNote {
	results := make([]RetrievedNote, 0, len(guaranteed)+maxResults)
	seen := make(map[string]bool, len(guaranteed))

	for _, m := range guaranteed {
		if seen[m.Doc.Path] {
			continue
		}
		seen[m.Doc.Path] = true
		results = append(results, RetrievedNote{
			Title:            m.Doc.Title,
			Content:          m.Doc.Content,
			Path:             m.Doc.Path,
			Score:            m.Score,
			Source:           m.Source,
			MTime:            m.Doc.MTime,
			IncludeInContext: true,
		})
	}

	added := 0
	for _, r := range ranked {
		if added >= maxResults {
			break
		}
		if seen[r.ID] {
			continue
		}
		doc, err := vault.Document(ctx, p.store, r.ID)
		if err != nil {
			slog.Debug("search_result_unreadable",
				slog.String("path", r.ID),
				slog.String("error", err.Error()))
			continue
		}
		seen[r.ID] = true
		results = append(results, RetrievedNote{
			Title:   doc.Title,
			Content: doc.Content,
			Path:    doc.Path,
			Score:   r.Score,
			Source:  string(r.Engine),
			MTime:   doc.MTime,
		})
		added++
	}
	return results
}

// semanticIDs merges the reranker output with the persisted-index hits
// into one ranked id list, best score first.
func semanticIDs(reranked, persisted []NoteIDRank) []string {
	best := make(map[string]float64, len(reranked)+len(persisted))
	for _, r := range reranked {
		if r.Score > best[r.ID] {
			best[r.ID] = r.Score
		}
	}
	for _, r := range persisted {
		if r.Score > best[r.ID] {
			best[r.ID] = r.Score
		}
	}
	merged := make([]NoteIDRank, 0, len(best))
	for id, score := range best {
		merged = append(merged, NoteIDRank{ID: id, Score: score, Engine: EngineSemantic})
	}
	sortRanks(merged)
	ids := make([]string, len(merged))
	for i, r := range merged {
		ids[i] = r.ID
	}
	return ids
}

func sortRanks(ranks []NoteIDRank) {
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return ranks[i].ID < ranks[j].ID
	})
}

// mergeTerms unions term slices preserving first-seen order.
func mergeTerms(groups ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, t := range group {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, t)
		}
	}
	return out
}
