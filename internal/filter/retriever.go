// Package filter resolves deterministic "guaranteed inclusion" matches:
// notes explicitly wiki-referenced in the query, tag mentions with
// hierarchical prefix matching, and time-range membership over a
// synthetic daily-note calendar. Its results bypass score-based
// truncation downstream.
package filter

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/notescout/notescout/internal/vault"
)

// Defaults for the retriever.
const (
	// DefaultMaxDailyNotes caps how many daily-note titles a time range
	// may synthesize. Ranges longer than this are clamped to the most
	// recent days.
	DefaultMaxDailyNotes = 365

	// DefaultMaxK bounds time-range mtime matches when the caller did
	// not ask for everything.
	DefaultMaxK = 30

	// ReturnAllCap is the floor applied when "return all" is requested:
	// max(maxK, ReturnAllCap).
	ReturnAllCap = 200

	// DefaultDailyNoteFormat is the title layout of daily notes.
	DefaultDailyNoteFormat = "2006-01-02"

	// recencyWindowDays is the linear decay window for mtime scoring.
	recencyWindowDays = 30.0

	// recencyFloor is the minimum score of an in-range mtime match.
	recencyFloor = 0.3
)

// Match source labels.
const (
	SourceTitle = "title"
	SourceTag   = "tag"
	SourceDaily = "daily"
	SourceMTime = "mtime"
)

// queryWikilink finds explicit [[Note Title]] references in query text.
var queryWikilink = regexp.MustCompile(`\[\[([^\[\]|#]+)(?:#[^\[\]|]*)?(?:\|[^\[\]]*)?\]\]`)

// Config configures the retriever.
type Config struct {
	DailyNoteFormat string
	MaxDailyNotes   int
	MaxK            int
	// Now overrides the clock for recency scoring; zero means time.Now.
	Now func() time.Time
}

// Request is one guaranteed-inclusion lookup.
type Request struct {
	Query     string
	TimeRange *vault.TimeRange
	// ReturnAll lifts the mtime cap to max(MaxK, ReturnAllCap).
	ReturnAll bool
}

// Match is a guaranteed-include document with its deterministic score.
type Match struct {
	Doc    vault.NoteDocument
	Score  float64
	Source string
}

// Retriever resolves guaranteed-inclusion matches against a vault.
type Retriever struct {
	store  vault.Store
	config Config
}

// New creates a filter retriever.
func New(store vault.Store, cfg Config) *Retriever {
	if cfg.DailyNoteFormat == "" {
		cfg.DailyNoteFormat = DefaultDailyNoteFormat
	}
	if cfg.MaxDailyNotes <= 0 {
		cfg.MaxDailyNotes = DefaultMaxDailyNotes
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = DefaultMaxK
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Retriever{store: store, config: cfg}
}

// GetRelevantDocuments returns guaranteed-include matches for the
// request. With a time range configured it runs in time-range mode;
// otherwise it unions explicit title references and tag matches.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, req Request) ([]Match, error) {
	if req.TimeRange != nil {
		return r.timeRangeMatches(ctx, req)
	}
	return r.termMatches(ctx, req.Query)
}

// termMatches unions wiki-title references and hierarchical tag matches,
// each scored 1.0. Title matches win path ties.
func (r *Retriever) termMatches(ctx context.Context, query string) ([]Match, error) {
	byPath := make(map[string]Match)
	var order []string

	add := func(path, source string) {
		if existing, ok := byPath[path]; ok {
			// Title outranks tag on the same path.
			if existing.Source == SourceTag && source == SourceTitle {
				existing.Source = SourceTitle
				byPath[path] = existing
			}
			return
		}
		if r.store.Excluded(path) {
			return
		}
		doc, err := vault.Document(ctx, r.store, path)
		if err != nil {
			slog.Warn("filter_read_skipped",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return
		}
		byPath[path] = Match{Doc: doc, Score: 1.0, Source: source}
		order = append(order, path)
	}

	for _, m := range queryWikilink.FindAllStringSubmatch(query, -1) {
		if path, ok := r.store.ResolveTitle(m[1]); ok {
			add(path, SourceTitle)
		}
	}

	searchTags := queryTags(query)
	if len(searchTags) > 0 {
		files, err := r.store.ListFiles(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if tagsMatch(searchTags, r.store.Tags(f.Path)) {
				add(f.Path, SourceTag)
			}
		}
	}

	matches := make([]Match, 0, len(order))
	for _, p := range order {
		matches = append(matches, byPath[p])
	}
	return matches, nil
}

// timeRangeMatches returns daily notes spanning the range plus all other
// notes modified within it.
func (r *Retriever) timeRangeMatches(ctx context.Context, req Request) ([]Match, error) {
	rng := *req.TimeRange
	covered := make(map[string]bool)
	var matches []Match

	for _, title := range r.dailyTitles(rng) {
		path, ok := r.store.ResolveTitle(title)
		if !ok || covered[path] || r.store.Excluded(path) {
			continue
		}
		doc, err := vault.Document(ctx, r.store, path)
		if err != nil {
			slog.Warn("filter_read_skipped",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		covered[path] = true
		matches = append(matches, Match{Doc: doc, Score: 1.0, Source: SourceDaily})
	}

	files, err := r.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	limit := r.config.MaxK
	if req.ReturnAll && limit < ReturnAllCap {
		limit = ReturnAllCap
	}

	var mtimeMatches []Match
	now := r.config.Now()
	for _, f := range files {
		if covered[f.Path] || r.store.Excluded(f.Path) || !rng.Contains(f.MTime) {
			continue
		}
		doc, err := vault.Document(ctx, r.store, f.Path)
		if err != nil {
			slog.Warn("filter_read_skipped",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		mtimeMatches = append(mtimeMatches, Match{
			Doc:    doc,
			Score:  recencyScore(now, f.MTime),
			Source: SourceMTime,
		})
	}
	sort.SliceStable(mtimeMatches, func(i, j int) bool {
		if mtimeMatches[i].Score != mtimeMatches[j].Score {
			return mtimeMatches[i].Score > mtimeMatches[j].Score
		}
		return mtimeMatches[i].Doc.Path < mtimeMatches[j].Doc.Path
	})
	if len(mtimeMatches) > limit {
		mtimeMatches = mtimeMatches[:limit]
	}
	matches = append(matches, mtimeMatches...)

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Doc.Path < matches[j].Doc.Path
	})
	return matches, nil
}

// dailyTitles synthesizes daily-note titles across the range, clamped to
// the most recent MaxDailyNotes days when the range is longer.
func (r *Retriever) dailyTitles(rng vault.TimeRange) []string {
	start := rng.Start.Truncate(24 * time.Hour)
	end := rng.End.Truncate(24 * time.Hour)
	if end.Before(start) {
		return nil
	}

	days := int(end.Sub(start).Hours()/24) + 1
	if days > r.config.MaxDailyNotes {
		start = end.AddDate(0, 0, -(r.config.MaxDailyNotes - 1))
		days = r.config.MaxDailyNotes
	}

	titles := make([]string, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		titles = append(titles, d.Format(r.config.DailyNoteFormat))
	}
	return titles
}

// recencyScore decays linearly over the window with a fixed floor.
func recencyScore(now, mtime time.Time) float64 {
	days := now.Sub(mtime).Hours() / 24
	score := 1.0 - days/recencyWindowDays
	if score > 1.0 {
		score = 1.0
	}
	if score < recencyFloor {
		score = recencyFloor
	}
	return score
}

// queryTags extracts #-prefixed tags from query text, hash stripped.
func queryTags(query string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, field := range strings.Fields(query) {
		if !strings.HasPrefix(field, "#") {
			continue
		}
		tag := strings.ToLower(strings.Trim(field[1:], `.,;:!?"')]}`))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// tagsMatch reports whether any search tag matches any note tag exactly
// or as a hierarchical prefix ("project" matches "project/alpha" but not
// "projectx").
func tagsMatch(searchTags, noteTags []string) bool {
	for _, s := range searchTags {
		for _, n := range noteTags {
			n = strings.ToLower(n)
			if n == s || strings.HasPrefix(n, s+"/") {
				return true
			}
		}
	}
	return false
}
