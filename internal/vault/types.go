// Package vault defines the narrow contracts notescout consumes from the
// host note store, plus a filesystem implementation for plain markdown
// vaults. The retrieval pipeline never touches the filesystem directly;
// everything goes through DocumentStore, LinkGraph, and MetadataReader so
// other hosts can be adapted at the boundary.
package vault

import (
	"context"
	"time"
)

// NoteDocument is an ephemeral view of one note, constructed per query.
// It is never mutated after creation; stages that enrich metadata copy.
type NoteDocument struct {
	ID      string
	Path    string
	Title   string
	Content string
	MTime   time.Time
	CTime   time.Time
	Tags    []string
}

// FileInfo describes one file in the store.
type FileInfo struct {
	Path      string
	Basename  string // filename without extension
	Extension string
	Size      int64
	MTime     time.Time
	CTime     time.Time
}

// TimeRange is a closed interval of note timestamps.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range (inclusive).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// DocumentStore enumerates and reads notes.
type DocumentStore interface {
	// ListFiles returns every markdown file in the vault, after
	// inclusion/exclusion filtering.
	ListFiles(ctx context.Context) ([]FileInfo, error)

	// ReadFile returns the text content of one note.
	ReadFile(ctx context.Context, path string) (string, error)

	// Stat returns file metadata without reading content.
	Stat(path string) (FileInfo, error)

	// ActiveFile returns the path of the currently focused note, if the
	// host has one. The filesystem vault never does.
	ActiveFile() (string, bool)
}

// LinkGraph exposes the note link structure.
type LinkGraph interface {
	// OutgoingLinks returns resolved paths the note links to.
	OutgoingLinks(path string) []string

	// Backlinks returns paths of notes linking to the given note.
	Backlinks(path string) []string

	// ResolveTitle maps a note title (as written in a wikilink) to a
	// vault path.
	ResolveTitle(title string) (string, bool)
}

// MetadataReader exposes per-note tag and frontmatter metadata.
type MetadataReader interface {
	// Tags returns the note's tags with the leading '#' stripped,
	// frontmatter and inline combined, deduplicated.
	Tags(path string) []string

	// Excluded reports whether the note opted out of retrieval.
	Excluded(path string) bool
}

// Store bundles the three read contracts; the filesystem vault and any
// host adapter satisfy all of them.
type Store interface {
	DocumentStore
	LinkGraph
	MetadataReader
}

// Document builds a NoteDocument for a path, reading content and metadata
// from the store. Read errors propagate so callers can skip-and-log.
func Document(ctx context.Context, s Store, path string) (NoteDocument, error) {
	info, err := s.Stat(path)
	if err != nil {
		return NoteDocument{}, err
	}
	content, err := s.ReadFile(ctx, path)
	if err != nil {
		return NoteDocument{}, err
	}
	return NoteDocument{
		ID:      path,
		Path:    path,
		Title:   info.Basename,
		Content: content,
		MTime:   info.MTime,
		CTime:   info.CTime,
		Tags:    s.Tags(path),
	}, nil
}
