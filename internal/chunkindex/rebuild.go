package chunkindex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/notescout/notescout/internal/embed"
	"github.com/notescout/notescout/internal/vault"
)

// Progress reports rebuild progress after each file is processed.
type Progress func(done, total int)

// Rebuilder regenerates the persistent chunk index from vault content.
type Rebuilder struct {
	manager  *Manager
	store    vault.Store
	embedder embed.Embedder
}

// NewRebuilder wires an index manager to a vault and an embedder.
func NewRebuilder(manager *Manager, store vault.Store, embedder embed.Embedder) *Rebuilder {
	return &Rebuilder{manager: manager, store: store, embedder: embedder}
}

// Rebuild reindexes every non-excluded note, then replaces the on-disk
// index in one full rewrite. Records whose stored mtime still matches
// the file are reused so unchanged notes are not re-embedded. Notes
// that fail to read or embed are skipped with a warning; the rebuild
// keeps going.
func (r *Rebuilder) Rebuild(ctx context.Context, progress Progress) error {
	files, err := r.store.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("list vault files: %w", err)
	}

	existing, err := r.manager.ReadRecords(ctx)
	if err != nil {
		slog.Warn("chunk_index_unreadable", slog.String("error", err.Error()))
		existing = nil
	}
	byPath := make(map[string][]ChunkRecord)
	for _, rec := range existing {
		byPath[rec.Path] = append(byPath[rec.Path], rec)
	}

	var out []ChunkRecord
	total := len(files)
	for done, info := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := info.Path
		if r.store.Excluded(path) {
			if progress != nil {
				progress(done+1, total)
			}
			continue
		}

		recs, err := r.fileRecords(ctx, path, byPath[path])
		if err != nil {
			slog.Warn("chunk_index_skip_file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else {
			out = append(out, recs...)
		}
		if progress != nil {
			progress(done+1, total)
		}
	}

	if err := r.manager.WriteRecords(ctx, out); err != nil {
		return fmt.Errorf("write chunk index: %w", err)
	}
	return nil
}

// UpdateNote reindexes a single note in place, touching only the index
// partitions that contain records for it.
func (r *Rebuilder) UpdateNote(ctx context.Context, path string) error {
	if r.store.Excluded(path) {
		return r.manager.RemoveFile(ctx, path)
	}
	if _, err := r.store.Stat(path); err != nil {
		// Treat a vanished file as a removal.
		return r.manager.RemoveFile(ctx, path)
	}
	recs, err := r.fileRecords(ctx, path, nil)
	if err != nil {
		return err
	}
	return r.manager.UpdateFile(ctx, path, recs)
}

// RemoveNote drops a deleted note's records from the index.
func (r *Rebuilder) RemoveNote(ctx context.Context, path string) error {
	return r.manager.RemoveFile(ctx, path)
}

// fileRecords chunks and embeds one note. When cached records carry the
// note's current mtime they are returned as-is.
func (r *Rebuilder) fileRecords(ctx context.Context, path string, cached []ChunkRecord) ([]ChunkRecord, error) {
	doc, err := vault.Document(ctx, r.store, path)
	if err != nil {
		return nil, fmt.Errorf("read note: %w", err)
	}

	if len(cached) > 0 && cached[0].MTime == Millis(doc.MTime) {
		return cached, nil
	}

	chunks := ChunkNote(doc, DefaultMaxChunkChars)
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed note chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	recs := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		rec := c.Record
		rec.Embedding = vectors[i]
		recs[i] = rec
	}
	return recs, nil
}
