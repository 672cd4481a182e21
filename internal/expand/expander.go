// Package expand turns one query into several phrasings plus salient and
// expanded term sets. The model call is optional and bounded: timeouts,
// parse failures, and missing models all degrade to local term
// extraction without surfacing an error.
package expand

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/notescout/notescout/internal/llm"
)

// Defaults for the expander.
const (
	DefaultMaxVariants = 3
	DefaultCacheSize   = 128
	DefaultTimeout     = 8 * time.Second
)

// ExpandedQuery is the result of query expansion.
//
// SalientTerms are sourced only from the original query text and are the
// only terms relevance scoring may use. ExpandedTerms come from the
// model and broaden recall only; keeping them out of scoring prevents a
// hallucinated term from inflating relevance.
type ExpandedQuery struct {
	OriginalQuery string
	Queries       []string // at most MaxVariants alternatives plus the original
	SalientTerms  []string
	ExpandedTerms []string
}

// Config configures the expander.
type Config struct {
	MaxVariants int
	CacheSize   int
	Timeout     time.Duration
}

// Expander expands queries via the language model with an LRU cache and
// a local fallback.
type Expander struct {
	model  llm.Model // nil means local-only expansion
	config Config
	cache  *lru.Cache[string, ExpandedQuery]
}

// New creates an expander. A nil model is allowed; expansion then always
// uses local term extraction.
func New(model llm.Model, cfg Config) (*Expander, error) {
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = DefaultMaxVariants
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cache, err := lru.New[string, ExpandedQuery](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create expansion cache: %w", err)
	}
	return &Expander{model: model, config: cfg, cache: cache}, nil
}

// Expand returns query variants and term sets for the given query.
// An empty or whitespace query returns the zero value immediately with
// no cache entry and no model call.
func (e *Expander) Expand(ctx context.Context, query string) (ExpandedQuery, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ExpandedQuery{}, nil
	}

	if cached, ok := e.cache.Get(query); ok {
		return cached, nil
	}

	result := ExpandedQuery{
		OriginalQuery: query,
		Queries:       []string{query},
		SalientTerms:  ExtractTerms(query),
	}

	variants, terms, degraded := e.invokeModel(ctx, query)
	seen := map[string]bool{strings.ToLower(query): true}
	for _, v := range variants {
		if len(result.Queries) > e.config.MaxVariants {
			break
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		result.Queries = append(result.Queries, v)
	}
	result.ExpandedTerms = terms

	// A degraded expansion (model error or timeout) is not cached, so
	// the model is consulted again once the provider recovers.
	if !degraded {
		e.cache.Add(query, result)
	}
	return result, nil
}

// CacheLen returns the number of cached expansions.
func (e *Expander) CacheLen() int { return e.cache.Len() }

// invokeModel calls the model with a bounded timeout and parses its
// reply. A model failure returns empty slices with degraded set; the
// caller already holds the local expansion. Local-only expansion (no
// model wired) is not degraded.
func (e *Expander) invokeModel(ctx context.Context, query string) (variants, terms []string, degraded bool) {
	if e.model == nil {
		return nil, nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	reply, err := e.model.Invoke(callCtx, expansionPrompt(query))
	if err != nil {
		slog.Debug("query_expansion_degraded",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil, nil, true
	}

	variants, terms = parseTagged(reply)
	if len(variants) == 0 && len(terms) == 0 {
		variants, terms = parseLegacy(reply)
	}
	return variants, terms, false
}

// expansionPrompt builds the fixed expansion prompt.
func expansionPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Rewrite the search query below as up to 3 alternative phrasings, ")
	b.WriteString("and list related single terms that could appear in matching notes.\n")
	b.WriteString("Reply with one <query>...</query> line per phrasing and one <term>...</term> line per term. No other text.\n\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	return b.String()
}

var (
	taggedQueryPattern = regexp.MustCompile(`(?i)<query>\s*(.*?)\s*</query>`)
	taggedTermPattern  = regexp.MustCompile(`(?i)<term>\s*(.*?)\s*</term>`)
	legacyBullet       = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+(.+)$`)
)

// parseTagged extracts the primary <query>/<term> tagged format.
func parseTagged(reply string) (variants, terms []string) {
	for _, m := range taggedQueryPattern.FindAllStringSubmatch(reply, -1) {
		if v := strings.TrimSpace(m[1]); v != "" {
			variants = append(variants, v)
		}
	}
	for _, m := range taggedTermPattern.FindAllStringSubmatch(reply, -1) {
		for _, t := range splitTermList(m[1]) {
			terms = append(terms, t)
		}
	}
	return variants, terms
}

// parseLegacy handles the older line-oriented reply format: bulleted or
// numbered lines are query variants, and a "terms:" line carries a
// comma-separated term list.
func parseLegacy(reply string) (variants, terms []string) {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := cutPrefixFold(line, "terms:"); ok {
			terms = append(terms, splitTermList(rest)...)
			continue
		}
		if m := legacyBullet.FindStringSubmatch(line); m != nil {
			variants = append(variants, strings.TrimSpace(m[1]))
		}
	}
	return variants, terms
}

// splitTermList splits a comma-separated term list, validating each term
// the same way local extraction does.
func splitTermList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "#") {
			if validTagBody(part[1:]) {
				out = append(out, part)
			}
			continue
		}
		if validTerm(part) {
			out = append(out, part)
		}
	}
	return out
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):]), true
	}
	return "", false
}
