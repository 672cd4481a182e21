package mcp

import (
	"time"

	"github.com/notescout/notescout/internal/search"
	"github.com/notescout/notescout/internal/vault"
)

// SearchNotesInput is the search_notes tool request.
type SearchNotesInput struct {
	Query        string   `json:"query" jsonschema:"the note search query; may contain [[Note Title]] references and #tags"`
	SalientTerms []string `json:"salient_terms,omitempty" jsonschema:"extra scoring terms drawn from the user's request"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of ranked results, default 10"`
	StartDate    string   `json:"start_date,omitempty" jsonschema:"RFC 3339 date bounding a time-range search"`
	EndDate      string   `json:"end_date,omitempty" jsonschema:"RFC 3339 date bounding a time-range search"`
	ReturnAll    bool     `json:"return_all,omitempty" jsonschema:"lift the time-range result cap"`
}

// NoteOutput is one note in the search_notes response.
type NoteOutput struct {
	Title            string  `json:"title"`
	Path             string  `json:"path"`
	Content          string  `json:"content"`
	Score            float64 `json:"score"`
	Source           string  `json:"source"`
	ModifiedAt       string  `json:"modified_at,omitempty"`
	IncludeInContext bool    `json:"include_in_context"`
}

// SearchNotesOutput is the search_notes tool response.
type SearchNotesOutput struct {
	Results []NoteOutput `json:"results"`
}

// IndexStatusInput is the index_status tool request.
type IndexStatusInput struct{}

// IndexStatusOutput reports the persistent chunk index state.
type IndexStatusOutput struct {
	VaultPath  string `json:"vault_path"`
	Partitions int    `json:"partitions"`
	Records    int    `json:"records"`
	SizeBytes  int64  `json:"size_bytes"`
	Legacy     bool   `json:"legacy"`
	Embedder   string `json:"embedder,omitempty"`
}

// toNoteOutput converts one pipeline result for the wire.
func toNoteOutput(r search.RetrievedNote) NoteOutput {
	out := NoteOutput{
		Title:            r.Title,
		Path:             r.Path,
		Content:          r.Content,
		Score:            r.Score,
		Source:           r.Source,
		IncludeInContext: r.IncludeInContext,
	}
	if !r.MTime.IsZero() {
		out.ModifiedAt = r.MTime.Format(time.RFC3339)
	}
	return out
}

// parseTimeRange builds the optional time range from tool input dates.
func parseTimeRange(start, end string) (*vault.TimeRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	rng := &vault.TimeRange{}
	if start != "" {
		t, err := parseDate(start)
		if err != nil {
			return nil, err
		}
		rng.Start = t
	}
	if end != "" {
		t, err := parseDate(end)
		if err != nil {
			return nil, err
		}
		// A bare date bound means the end of that day.
		if _, perr := time.Parse("2006-01-02", end); perr == nil {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		rng.End = t
	} else {
		rng.End = time.Now()
	}
	return rng, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
