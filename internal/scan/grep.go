// Package scan implements the fast substring pre-filter that seeds the
// retrieval pipeline with candidate notes before any indexing happens.
package scan

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/notescout/notescout/internal/vault"
)

// Defaults for the scanner.
const (
	// DefaultBatchSize is how many note bodies are read per batch in
	// the content pass.
	DefaultBatchSize = 10

	// DefaultYieldEvery is the number of files between cooperative
	// cancellation checks during long scans.
	DefaultYieldEvery = 100

	// minASCIITermLength filters noise terms for latin-script matching.
	minASCIITermLength = 3

	// minCJKTermLength is lower because CJK scripts carry more meaning
	// per character.
	minCJKTermLength = 2
)

// Config configures the grep scanner.
type Config struct {
	BatchSize  int
	YieldEvery int
}

// Grep scans the vault for substring matches in two passes: paths first
// (no content I/O), then file contents until the limit fills.
type Grep struct {
	store  vault.Store
	config Config
}

// New creates a grep scanner over the given store.
func New(store vault.Store, cfg Config) *Grep {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.YieldEvery <= 0 {
		cfg.YieldEvery = DefaultYieldEvery
	}
	return &Grep{store: store, config: cfg}
}

// Scan returns up to limit candidate paths matching any grep-worthy term
// from the queries. Path matches come first, ordered by descending match
// count; content matches fill the remaining slots. Unreadable files are
// skipped.
func (g *Grep) Scan(ctx context.Context, queries []string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	terms := grepWorthyTerms(queries)
	if len(terms) == 0 {
		return nil, nil
	}

	files, err := g.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	// Pass 1: path and filename matching, no content reads.
	type pathHit struct {
		path  string
		count int
	}
	var hits []pathHit
	matched := make(map[string]bool)
	for _, f := range files {
		if g.store.Excluded(f.Path) {
			continue
		}
		lower := strings.ToLower(f.Path)
		count := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, pathHit{path: f.Path, count: count})
			matched[f.Path] = true
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].path < hits[j].path
	})

	results := make([]string, 0, limit)
	for _, h := range hits {
		if len(results) >= limit {
			return results, nil
		}
		results = append(results, h.path)
	}

	// Pass 2: content matching in bounded batches, first hit wins.
	scanned := 0
	for start := 0; start < len(files) && len(results) < limit; start += g.config.BatchSize {
		end := start + g.config.BatchSize
		if end > len(files) {
			end = len(files)
		}
		for _, f := range files[start:end] {
			if len(results) >= limit {
				break
			}
			scanned++
			if scanned%g.config.YieldEvery == 0 {
				if err := ctx.Err(); err != nil {
					return results, err
				}
			}
			if matched[f.Path] || g.store.Excluded(f.Path) {
				continue
			}
			content, readErr := g.store.ReadFile(ctx, f.Path)
			if readErr != nil {
				slog.Debug("grep_read_skipped",
					slog.String("path", f.Path),
					slog.String("error", readErr.Error()))
				continue
			}
			lower := strings.ToLower(content)
			for _, term := range terms {
				if strings.Contains(lower, term) {
					results = append(results, f.Path)
					break
				}
			}
		}
	}

	return results, nil
}

// grepWorthyTerms extracts lowercase substring-search terms from query
// strings. Short terms produce too many false positives to be worth a
// full-corpus substring pass.
func grepWorthyTerms(queries []string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, q := range queries {
		for _, field := range strings.Fields(q) {
			term := strings.ToLower(strings.Trim(field, `.,;:!?"'()[]{}#`))
			if term == "" || seen[term] {
				continue
			}
			if !grepWorthy(term) {
				continue
			}
			seen[term] = true
			terms = append(terms, term)
		}
	}
	return terms
}

// grepWorthy applies the script-aware minimum length.
func grepWorthy(term string) bool {
	runes := []rune(term)
	if containsCJK(runes) {
		return len(runes) >= minCJKTermLength
	}
	return len(runes) >= minASCIITermLength
}

func containsCJK(runes []rune) bool {
	for _, r := range runes {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}
