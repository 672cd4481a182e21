package chunkindex

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation classifies a vault file event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced change to a markdown note, with Path
// relative to the vault root.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// WatchOptions configures the vault watcher.
type WatchOptions struct {
	// DebounceWindow is how long to coalesce rapid events for the same
	// note before applying them. Default 200ms.
	DebounceWindow time.Duration
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	return o
}

// Watcher keeps the chunk index current as notes change on disk. Events
// are debounced per path, then applied through the rebuilder as single
// file patches so an edit never triggers a full rewrite.
type Watcher struct {
	rebuilder *Rebuilder
	opts      WatchOptions

	fsw       *fsnotify.Watcher
	debouncer *debouncer
	root      string

	mu      sync.Mutex
	stopped bool
}

// NewWatcher creates a watcher that applies note changes to the index.
func NewWatcher(rebuilder *Rebuilder, opts WatchOptions) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	o := opts.withDefaults()
	return &Watcher{
		rebuilder: rebuilder,
		opts:      o,
		fsw:       fsw,
		debouncer: newDebouncer(o.DebounceWindow),
	}, nil
}

// Run watches the vault rooted at dir until the context is cancelled.
// It blocks; run it in its own goroutine.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve vault root: %w", err)
	}
	w.root = root

	if err := w.addRecursive(root); err != nil {
		return fmt.Errorf("watch vault directories: %w", err)
	}

	go w.applyBatches(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("vault_watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop tears down the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	w.debouncer.stop()
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return
		}
	}

	// New directories must be added to the watch set; fsnotify is not
	// recursive on its own.
	if event.Op.Has(fsnotify.Create) {
		if err := w.fsw.Add(event.Name); err == nil {
			_ = w.addRecursive(event.Name)
		}
	}

	if !strings.EqualFold(filepath.Ext(rel), ".md") {
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	w.debouncer.add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

func (w *Watcher) applyBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.debouncer.output():
			if !ok {
				return
			}
			for _, ev := range batch {
				w.apply(ctx, ev)
			}
		}
	}
}

func (w *Watcher) apply(ctx context.Context, ev FileEvent) {
	var err error
	switch ev.Operation {
	case OpDelete:
		err = w.rebuilder.RemoveNote(ctx, ev.Path)
	default:
		err = w.rebuilder.UpdateNote(ctx, ev.Path)
	}
	if err != nil {
		slog.Warn("chunk_index_patch_failed",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()),
			slog.String("error", err.Error()))
		return
	}
	slog.Debug("chunk_index_patched",
		slog.String("path", ev.Path),
		slog.String("op", ev.Operation.String()))
}
