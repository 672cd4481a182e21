package chunkindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(path string, n int) ChunkRecord {
	text := fmt.Sprintf("chunk %d of %s", n, path)
	return ChunkRecord{
		ID:        ChunkID(path, text),
		Path:      path,
		Title:     filepath.Base(path),
		MTime:     1700000000000 + int64(n),
		CTime:     1600000000000,
		Embedding: []float32{float32(n), 0.5, -0.25},
	}
}

func testRecords(path string, count int) []ChunkRecord {
	recs := make([]ChunkRecord, count)
	for i := range recs {
		recs[i] = testRecord(path, i)
	}
	return recs
}

func newTestManager(t *testing.T, maxBytes int64) *Manager {
	t.Helper()
	base := filepath.Join(t.TempDir(), "chunks")
	return NewManager(base, Config{PartitionMaxBytes: maxBytes})
}

func partitionFiles(t *testing.T, m *Manager) []string {
	t.Helper()
	matches, err := filepath.Glob(m.base + "-*.jsonl")
	require.NoError(t, err)
	return matches
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 0)

	want := append(testRecords("notes/a.md", 3), testRecords("notes/b.md", 2)...)
	require.NoError(t, m.WriteRecords(ctx, want))

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteRollsPartitionsAtCap(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 300)

	want := testRecords("notes/a.md", 10)
	require.NoError(t, m.WriteRecords(ctx, want))

	files := partitionFiles(t, m)
	require.Greater(t, len(files), 1, "small cap should roll into multiple partitions")

	// Every partition except the last reached the cap.
	for _, f := range files[:len(files)-1] {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, info.Size(), int64(300))
	}

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRewriteRemovesStalePartitions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 300)

	require.NoError(t, m.WriteRecords(ctx, testRecords("notes/a.md", 20)))
	before := len(partitionFiles(t, m))
	require.Greater(t, before, 2)

	small := testRecords("notes/a.md", 1)
	require.NoError(t, m.WriteRecords(ctx, small))
	after := partitionFiles(t, m)
	assert.Len(t, after, 1, "shrunk index must drop stale partitions")

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, small, got)
}

func TestLegacySingleFileRead(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 0)

	want := testRecords("notes/old.md", 3)
	writeLegacy(t, m, want)

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRewriteRetiresLegacyFile(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 0)

	writeLegacy(t, m, testRecords("notes/old.md", 2))
	require.NoError(t, m.WriteRecords(ctx, testRecords("notes/new.md", 2)))

	_, err := os.Stat(m.legacyPath())
	assert.True(t, os.IsNotExist(err), "legacy file should be removed on rewrite")
	assert.Len(t, partitionFiles(t, m), 1)
}

func TestUpdateFileLeavesOtherPartitionsUntouched(t *testing.T) {
	ctx := context.Background()
	// Cap sized so each note's records land in their own partition.
	m := newTestManager(t, 200)

	var all []ChunkRecord
	for _, p := range []string{"notes/a.md", "notes/b.md", "notes/c.md"} {
		all = append(all, testRecords(p, 2)...)
	}
	require.NoError(t, m.WriteRecords(ctx, all))
	files := partitionFiles(t, m)
	require.Greater(t, len(files), 1)

	// Find a partition with no records for the target path. The tail
	// partition takes appended replacements, so skip it.
	target := "notes/b.md"
	var untouched string
	for _, f := range files[:len(files)-1] {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		if !containsPath(t, data, target) {
			untouched = f
			break
		}
	}
	require.NotEmpty(t, untouched)
	before, err := os.ReadFile(untouched)
	require.NoError(t, err)

	replacement := testRecords(target, 5)
	require.NoError(t, m.UpdateFile(ctx, target, replacement))

	after, err := os.ReadFile(untouched)
	require.NoError(t, err)
	assert.Equal(t, before, after, "unaffected partition must stay byte-for-byte identical")

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	var gotTarget, gotOther []ChunkRecord
	for _, rec := range got {
		if rec.Path == target {
			gotTarget = append(gotTarget, rec)
		} else {
			gotOther = append(gotOther, rec)
		}
	}
	assert.Equal(t, replacement, gotTarget)
	assert.Len(t, gotOther, 4)
}

func TestUpdateFileMigratesLegacy(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 0)

	kept := testRecords("notes/keep.md", 2)
	stale := testRecords("notes/edit.md", 2)
	writeLegacy(t, m, append(append([]ChunkRecord{}, kept...), stale...))

	fresh := testRecords("notes/edit.md", 3)
	require.NoError(t, m.UpdateFile(ctx, "notes/edit.md", fresh))

	_, err := os.Stat(m.legacyPath())
	assert.True(t, os.IsNotExist(err))

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, append(append([]ChunkRecord{}, kept...), fresh...), got)
}

func TestUpdateFileOnEmptyIndex(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 0)

	recs := testRecords("notes/first.md", 2)
	require.NoError(t, m.UpdateFile(ctx, "notes/first.md", recs))

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestRemoveFile(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 0)

	all := append(testRecords("notes/a.md", 2), testRecords("notes/b.md", 2)...)
	require.NoError(t, m.WriteRecords(ctx, all))
	require.NoError(t, m.RemoveFile(ctx, "notes/a.md"))

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	for _, rec := range got {
		assert.NotEqual(t, "notes/a.md", rec.Path)
	}
	assert.Len(t, got, 2)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 300)

	require.NoError(t, m.WriteRecords(ctx, testRecords("notes/a.md", 10)))
	require.NoError(t, m.Clear())

	assert.Empty(t, partitionFiles(t, m))
	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 0)

	want := testRecords("notes/a.md", 1)
	require.NoError(t, m.WriteRecords(ctx, want))

	files := partitionFiles(t, m)
	require.Len(t, files, 1)
	f, err := os.OpenFile(files[0], os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := m.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMissingIndexReadsEmpty(t *testing.T) {
	m := newTestManager(t, 0)
	got, err := m.ReadRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 300)

	require.NoError(t, m.WriteRecords(ctx, testRecords("notes/a.md", 10)))
	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Records)
	assert.Greater(t, stats.Partitions, 1)
	assert.False(t, stats.Legacy)
	assert.Greater(t, stats.Bytes, int64(0))
}

func writeLegacy(t *testing.T, m *Manager, records []ChunkRecord) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(m.base), 0o755))
	f, err := os.Create(m.legacyPath())
	require.NoError(t, err)
	for _, rec := range records {
		line, err := json.Marshal(rec)
		require.NoError(t, err)
		_, err = f.Write(append(line, '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
}

func containsPath(t *testing.T, data []byte, path string) bool {
	t.Helper()
	var found bool
	for _, line := range splitLinesBytes(data) {
		var probe pathProbe
		if err := json.Unmarshal(line, &probe); err == nil && probe.Path == path {
			found = true
		}
	}
	return found
}

func splitLinesBytes(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
