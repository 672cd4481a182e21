package chunkindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// partitionWriter streams JSONL lines into numbered partition files,
// rolling to the next partition once the byte cap is reached. Data goes
// to temporary files first; finish renames them into place so readers
// never observe a half-written partition.
type partitionWriter struct {
	base     string
	maxBytes int64

	idx     int
	file    *os.File
	buf     *bufio.Writer
	written int64
	renamed []string // tmp paths pending rename, in partition order
	opened  bool
	last    int
}

func newPartitionWriter(base string, maxBytes int64, startIdx int) *partitionWriter {
	return &partitionWriter{
		base:     base,
		maxBytes: maxBytes,
		idx:      startIdx,
		last:     startIdx - 1,
	}
}

func (w *partitionWriter) partitionPath(i int) string {
	return fmt.Sprintf("%s-%03d.jsonl", w.base, i)
}

func (w *partitionWriter) writeRecord(rec ChunkRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal chunk record: %w", err)
	}
	return w.writeLine(line)
}

func (w *partitionWriter) writeLine(line []byte) error {
	if !w.opened {
		if err := w.open(); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("write chunk record: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write chunk record: %w", err)
	}
	w.written += int64(len(line)) + 1
	if w.written >= w.maxBytes {
		return w.closeCurrent()
	}
	return nil
}

func (w *partitionWriter) open() error {
	tmp := w.partitionPath(w.idx) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create partition: %w", err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.written = 0
	w.opened = true
	return nil
}

func (w *partitionWriter) closeCurrent() error {
	if !w.opened {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("flush partition: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close partition: %w", err)
	}
	w.renamed = append(w.renamed, w.partitionPath(w.idx)+".tmp")
	w.last = w.idx
	w.idx++
	w.opened = false
	return nil
}

// finish closes the open partition and renames all temporary files into
// place. It returns the index of the last partition written, or
// startIdx-1 when no records were written.
func (w *partitionWriter) finish() (int, error) {
	if err := w.closeCurrent(); err != nil {
		return 0, err
	}
	for _, tmp := range w.renamed {
		final := tmp[:len(tmp)-len(".tmp")]
		if err := os.Rename(tmp, final); err != nil {
			return 0, fmt.Errorf("install partition: %w", err)
		}
	}
	w.renamed = nil
	return w.last, nil
}

// abort discards any temporary files after a failed write.
func (w *partitionWriter) abort() {
	if w.opened {
		_ = w.file.Close()
		_ = os.Remove(w.partitionPath(w.idx) + ".tmp")
		w.opened = false
	}
	for _, tmp := range w.renamed {
		_ = os.Remove(tmp)
	}
	w.renamed = nil
}
