package chunkindex

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncerCoalescesCreateModify(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.md", Operation: OpCreate})
	d.add(FileEvent{Path: "a.md", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncerCreateDeleteCancels(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.md", Operation: OpCreate})
	d.add(FileEvent{Path: "a.md", Operation: OpDelete})
	d.add(FileEvent{Path: "b.md", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "b.md", batch[0].Path)
}

func TestDebouncerDeleteCreateBecomesModify(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.md", Operation: OpDelete})
	d.add(FileEvent{Path: "a.md", Operation: OpCreate})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerModifyDeleteKeepsDelete(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.md", Operation: OpModify})
	d.add(FileEvent{Path: "a.md", Operation: OpDelete})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestDebouncerSeparatePaths(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.md", Operation: OpModify})
	d.add(FileEvent{Path: "b.md", Operation: OpModify})

	batch := collectBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerFlushesUnderSustainedEvents(t *testing.T) {
	// Events arrive faster than the window closes, across different
	// paths. The batch must still flush by the staleness deadline
	// instead of deferring forever.
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			case <-time.After(10 * time.Millisecond):
				d.add(FileEvent{Path: fmt.Sprintf("note-%d.md", i), Operation: OpModify})
			}
		}
	}()

	d.add(FileEvent{Path: "first.md", Operation: OpModify})
	select {
	case batch := <-d.output():
		assert.NotEmpty(t, batch)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("sustained events deferred the flush past the staleness bound")
	}
}

func TestDebouncerStopDropsEvents(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	d.stop()
	d.add(FileEvent{Path: "a.md", Operation: OpModify})

	_, ok := <-d.output()
	assert.False(t, ok, "output closes on stop")
}
