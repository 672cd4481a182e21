package chunkindex

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Storage defaults.
const (
	// DefaultPartitionMaxBytes caps one partition file. A partition is
	// closed once its byte total reaches the cap, so every partition
	// except the last sits at or just above it after a full rewrite.
	DefaultPartitionMaxBytes = 150 << 20

	// maxLineBytes bounds a single JSONL line when reading. Embeddings
	// are a few tens of kilobytes; this leaves generous headroom.
	maxLineBytes = 8 << 20
)

// Config configures the index manager.
type Config struct {
	PartitionMaxBytes int64
}

// Stats summarizes the on-disk index.
type Stats struct {
	Partitions int
	Records    int
	Bytes      int64
	Legacy     bool
}

// Manager owns the partitioned chunk-embedding index rooted at a base
// path: partitions are "<base>-NNN.jsonl", with a legacy "<base>.jsonl"
// read for backward compatibility but never written. Reads may run
// concurrently; writes are serialized by an in-process mutex plus a file
// lock so at most one writer is in flight per index.
type Manager struct {
	base   string
	config Config

	mu   sync.Mutex
	lock *flock.Flock
}

// NewManager creates a manager for the index at base (path without
// extension, e.g. "<vault>/.notescout/chunks").
func NewManager(base string, cfg Config) *Manager {
	if cfg.PartitionMaxBytes <= 0 {
		cfg.PartitionMaxBytes = DefaultPartitionMaxBytes
	}
	return &Manager{
		base:   base,
		config: cfg,
		lock:   flock.New(base + ".lock"),
	}
}

func (m *Manager) partitionPath(i int) string {
	return fmt.Sprintf("%s-%03d.jsonl", m.base, i)
}

func (m *Manager) legacyPath() string {
	return m.base + ".jsonl"
}

// partitionCount probes sequential indices until one is missing.
func (m *Manager) partitionCount() int {
	n := 0
	for {
		if _, err := os.Stat(m.partitionPath(n)); err != nil {
			return n
		}
		n++
	}
}

// ReadRecords loads the full index: the ordered concatenation of all
// partitions, or the legacy single file when no partitions exist. A
// missing index yields an empty slice, not an error.
func (m *Manager) ReadRecords(ctx context.Context) ([]ChunkRecord, error) {
	paths := m.sourcePaths()
	var records []ChunkRecord
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := readPartition(p, func(rec ChunkRecord) {
			records = append(records, rec)
		}); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// sourcePaths returns the partition files in index order, or the legacy
// file when the index predates partitioning.
func (m *Manager) sourcePaths() []string {
	n := m.partitionCount()
	if n == 0 {
		if _, err := os.Stat(m.legacyPath()); err == nil {
			return []string{m.legacyPath()}
		}
		return nil
	}
	paths := make([]string, n)
	for i := range paths {
		paths[i] = m.partitionPath(i)
	}
	return paths
}

// WriteRecords performs a full rewrite: records stream into partitions
// in order, the legacy file is deleted, and stale partitions beyond the
// new last index are removed.
func (m *Manager) WriteRecords(ctx context.Context, records []ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.lock.Lock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	if err := os.MkdirAll(filepath.Dir(m.base), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	w := newPartitionWriter(m.base, m.config.PartitionMaxBytes, 0)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			w.abort()
			return err
		}
		if err := w.writeRecord(rec); err != nil {
			w.abort()
			return err
		}
	}
	lastWritten, err := w.finish()
	if err != nil {
		return err
	}

	// Legacy single-file form is read-only compatibility; a full
	// rewrite retires it.
	if err := removeIfExists(m.legacyPath()); err != nil {
		return err
	}

	return m.removePartitionsFrom(lastWritten + 1)
}

// UpdateFile replaces all records belonging to one note path with the
// given replacements, without loading the index into memory. Partitions
// that do not mention the path are left untouched; replacements are
// appended at the tail.
func (m *Manager) UpdateFile(ctx context.Context, notePath string, records []ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.lock.Lock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	n := m.partitionCount()

	// Legacy-only index: migrate to partitions while filtering.
	if n == 0 {
		if _, err := os.Stat(m.legacyPath()); err == nil {
			return m.migrateLegacy(ctx, notePath, records)
		}
		// No index at all: treat the update as the first write.
		w := newPartitionWriter(m.base, m.config.PartitionMaxBytes, 0)
		for _, rec := range records {
			if err := w.writeRecord(rec); err != nil {
				w.abort()
				return err
			}
		}
		_, err := w.finish()
		return err
	}

	// Drop the note's existing records, rewriting only partitions that
	// contain them.
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := filterPartition(m.partitionPath(i), notePath); err != nil {
			return err
		}
	}

	if len(records) == 0 {
		return nil
	}
	return m.appendRecords(n-1, records)
}

// RemoveFile drops all records belonging to one note path.
func (m *Manager) RemoveFile(ctx context.Context, notePath string) error {
	return m.UpdateFile(ctx, notePath, nil)
}

// Clear removes every partition, the legacy file, and the lock file.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.partitionCount()
	for i := 0; i < n; i++ {
		if err := removeIfExists(m.partitionPath(i)); err != nil {
			return err
		}
	}
	if err := removeIfExists(m.legacyPath()); err != nil {
		return err
	}
	return removeIfExists(m.base + ".lock")
}

// Stats scans the index files and reports sizes without parsing records.
func (m *Manager) Stats() (Stats, error) {
	paths := m.sourcePaths()
	stats := Stats{}
	if len(paths) == 1 && paths[0] == m.legacyPath() {
		stats.Legacy = true
	} else {
		stats.Partitions = len(paths)
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return Stats{}, fmt.Errorf("stat partition: %w", err)
		}
		stats.Bytes += info.Size()
		count, err := countLines(p)
		if err != nil {
			return Stats{}, err
		}
		stats.Records += count
	}
	return stats, nil
}

// migrateLegacy streams the legacy file into partitions, dropping the
// target path and appending replacements; the legacy file is deleted.
func (m *Manager) migrateLegacy(ctx context.Context, notePath string, records []ChunkRecord) error {
	w := newPartitionWriter(m.base, m.config.PartitionMaxBytes, 0)
	err := scanLines(m.legacyPath(), func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lineMatchesPath(line, notePath) {
			return nil
		}
		return w.writeLine(line)
	})
	if err != nil {
		w.abort()
		return err
	}
	for _, rec := range records {
		if err := w.writeRecord(rec); err != nil {
			w.abort()
			return err
		}
	}
	if _, err := w.finish(); err != nil {
		return err
	}
	return removeIfExists(m.legacyPath())
}

// appendRecords appends records starting at the current last partition,
// rolling into new partitions as the cap fills.
func (m *Manager) appendRecords(lastIdx int, records []ChunkRecord) error {
	path := m.partitionPath(lastIdx)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat tail partition: %w", err)
	}

	idx := lastIdx
	size := info.Size()
	if size >= m.config.PartitionMaxBytes {
		idx++
		size = 0
	}

	f, err := os.OpenFile(m.partitionPath(idx), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open tail partition: %w", err)
	}
	w := bufio.NewWriter(f)

	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("marshal chunk record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			_ = f.Close()
			return fmt.Errorf("append chunk record: %w", err)
		}
		size += int64(len(line)) + 1
		if size >= m.config.PartitionMaxBytes {
			if err := w.Flush(); err != nil {
				_ = f.Close()
				return fmt.Errorf("flush partition: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close partition: %w", err)
			}
			idx++
			size = 0
			f, err = os.OpenFile(m.partitionPath(idx), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open next partition: %w", err)
			}
			w = bufio.NewWriter(f)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush partition: %w", err)
	}
	return f.Close()
}

// removePartitionsFrom deletes contiguous partitions starting at idx,
// cleaning up leftovers from a previously larger index.
func (m *Manager) removePartitionsFrom(idx int) error {
	for {
		p := m.partitionPath(idx)
		if _, err := os.Stat(p); err != nil {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("remove stale partition: %w", err)
		}
		idx++
	}
}

// filterPartition rewrites one partition without the given note path.
// Partitions not containing the path are left byte-for-byte untouched.
func filterPartition(path, notePath string) error {
	contains := false
	err := scanLines(path, func(line []byte) error {
		if lineMatchesPath(line, notePath) {
			contains = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !contains {
		return nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create filtered partition: %w", err)
	}
	w := bufio.NewWriter(f)
	err = scanLines(path, func(line []byte) error {
		if lineMatchesPath(line, notePath) {
			return nil
		}
		if _, werr := w.Write(append(line, '\n')); werr != nil {
			return werr
		}
		return nil
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rewrite partition: %w", err)
	}
	return os.Rename(tmp, path)
}

// pathProbe is the minimal decode used to route lines by note path.
type pathProbe struct {
	Path string `json:"path"`
}

func lineMatchesPath(line []byte, notePath string) bool {
	var probe pathProbe
	if err := json.Unmarshal(line, &probe); err != nil {
		return false
	}
	return probe.Path == notePath
}

// readPartition parses every line of one index file. Malformed lines
// are logged and skipped so one bad write cannot take the index down.
func readPartition(path string, emit func(ChunkRecord)) error {
	return scanLines(path, func(line []byte) error {
		var rec ChunkRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("chunk_record_skipped",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()))
			return nil
		}
		emit(rec)
		return nil
	})
}

// scanLines streams non-empty lines of a file.
func scanLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan index file: %w", err)
	}
	return nil
}

func countLines(path string) (int, error) {
	n := 0
	err := scanLines(path, func([]byte) error {
		n++
		return nil
	})
	return n, err
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}
