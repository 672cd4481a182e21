// Package graph expands candidate sets by following the note link graph:
// bounded breadth-first traversal over outgoing links and backlinks, plus
// co-citation discovery through shared link targets.
package graph

import (
	"sort"

	"github.com/notescout/notescout/internal/vault"
)

// DefaultCoCitationThreshold is the grep-hit count above which
// co-citation expansion is skipped. Its cost scales with input size
// while its marginal recall value drops as the candidate set grows.
const DefaultCoCitationThreshold = 20

// Config configures graph expansion.
type Config struct {
	// CoCitationThreshold disables co-citation expansion when the grep
	// hit count exceeds it. Zero means DefaultCoCitationThreshold.
	CoCitationThreshold int
}

// Expander walks the link graph of a vault.
type Expander struct {
	links  vault.LinkGraph
	config Config
}

// New creates a graph expander.
func New(links vault.LinkGraph, cfg Config) *Expander {
	if cfg.CoCitationThreshold <= 0 {
		cfg.CoCitationThreshold = DefaultCoCitationThreshold
	}
	return &Expander{links: links, config: cfg}
}

// ExpandFromNotes BFS-expands the seed paths by the given number of
// hops. Each hop unions outgoing links and backlinks of every node found
// in the prior hop; nodes are visited at most once and traversal stops
// early once a hop adds nothing new. Seeds are included in the result.
func (e *Expander) ExpandFromNotes(paths []string, hops int) []string {
	visited := make(map[string]bool, len(paths))
	var order []string
	frontier := make([]string, 0, len(paths))
	for _, p := range paths {
		if visited[p] {
			continue
		}
		visited[p] = true
		order = append(order, p)
		frontier = append(frontier, p)
	}

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		var next []string
		for _, p := range frontier {
			for _, neighbor := range e.neighbors(p) {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				order = append(order, neighbor)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return order
}

// CoCitations returns notes that share a link target with any input
// note: for each outgoing target of an input, every other note linking
// to that target. Inputs themselves are excluded.
func (e *Expander) CoCitations(paths []string) []string {
	input := make(map[string]bool, len(paths))
	for _, p := range paths {
		input[p] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		for _, target := range e.links.OutgoingLinks(p) {
			for _, citing := range e.links.Backlinks(target) {
				if input[citing] || seen[citing] {
					continue
				}
				seen[citing] = true
				out = append(out, citing)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ExpandCandidates composes the full expansion used by the orchestrator:
// BFS over the grep hits, BFS over the active note (if any), and
// co-citations of the grep hits when the hit count is below the
// threshold.
func (e *Expander) ExpandCandidates(grepHits []string, activeNote string, hops int) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(paths []string) {
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}

	add(e.ExpandFromNotes(grepHits, hops))
	if activeNote != "" {
		add(e.ExpandFromNotes([]string{activeNote}, hops))
	}
	if len(grepHits) > 0 && len(grepHits) <= e.config.CoCitationThreshold {
		add(e.CoCitations(grepHits))
	}
	return out
}

// neighbors unions outgoing links and backlinks of one node.
func (e *Expander) neighbors(path string) []string {
	out := e.links.OutgoingLinks(path)
	back := e.links.Backlinks(path)
	if len(back) == 0 {
		return out
	}
	seen := make(map[string]bool, len(out))
	for _, p := range out {
		seen[p] = true
	}
	merged := append([]string(nil), out...)
	for _, p := range back {
		if !seen[p] {
			merged = append(merged, p)
		}
	}
	return merged
}
