// Package chunkindex maintains the persistent, partitioned JSON-Lines
// embedding index: one record per note chunk, stored across capped
// partition files that can be rebuilt in full or patched for a single
// note without loading the whole index.
package chunkindex

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ChunkRecord is one persisted chunk embedding. IDs are content
// addressed (path plus chunk text) so they stay stable across rebuilds
// and partial updates can target one file's records by path.
type ChunkRecord struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	MTime     int64     `json:"mtime"` // unix milliseconds
	CTime     int64     `json:"ctime"` // unix milliseconds
	Embedding []float32 `json:"embedding"`
}

// ChunkID derives the stable record id for a chunk of a note.
func ChunkID(path, text string) string {
	sum := sha256.Sum256([]byte(path + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Millis converts a time to the persisted unix-millisecond form.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
