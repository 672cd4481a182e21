package chunkindex

import (
	"log/slog"
	"sync"
	"time"
)

// maxFlushDelayFactor bounds how long a batch can sit pending: a
// sustained event stream keeps resetting the window timer, so the batch
// flushes no later than this many windows after its first event.
const maxFlushDelayFactor = 5

// debouncer coalesces rapid events for the same note so a burst of
// editor writes produces one index patch. Coalescing rules:
//   - CREATE + MODIFY = CREATE
//   - CREATE + DELETE = nothing
//   - MODIFY + DELETE = DELETE
//   - DELETE + CREATE = MODIFY
type debouncer struct {
	window   time.Duration
	mu       sync.Mutex
	pending  map[string]*pendingEvent
	out      chan []FileEvent
	timer    *time.Timer
	deadline time.Time
	stopped  bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		out:     make(chan []FileEvent, 10),
	}
}

func (d *debouncer) add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if len(d.pending) == 0 {
		d.deadline = time.Now().Add(d.window * maxFlushDelayFactor)
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged := coalesce(existing, event)
		if merged == nil {
			delete(d.pending, event.Path)
		} else {
			existing.event = *merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	delay := d.window
	if remaining := time.Until(d.deadline); remaining < delay {
		delay = remaining
		if delay < 0 {
			delay = 0
		}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.flush)
}

func coalesce(existing *pendingEvent, next FileEvent) *FileEvent {
	switch existing.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &existing.event
		case OpDelete:
			return nil
		default:
			return &next
		}
	case OpDelete:
		if next.Operation == OpCreate {
			replaced := next
			replaced.Operation = OpModify
			return &replaced
		}
		return &next
	default:
		return &next
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.out <- events:
	default:
		slog.Warn("debouncer_batch_dropped", slog.Int("batch_size", len(events)))
	}
}

func (d *debouncer) output() <-chan []FileEvent {
	return d.out
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
