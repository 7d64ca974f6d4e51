// Package watch feeds live filesystem changes into the incremental
// maintainer: OS notifications, filtered through the walker's ignore
// rules, coalesced by a debounce window.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kestrel-search/kestrel/internal/walk"
)

// DefaultDebounceWindow coalesces event bursts per path.
const DefaultDebounceWindow = 300 * time.Millisecond

// Refresher runs one incremental maintenance pass. The maintainer's
// Incremental also returns a summary, so it is adapted through
// RefresherFunc.
type Refresher interface {
	Incremental(ctx context.Context) (err error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) error

// Incremental implements Refresher.
func (f RefresherFunc) Incremental(ctx context.Context) error { return f(ctx) }

// Watcher wraps fsnotify over one repository root. After a debounce
// window closes it triggers exactly one incremental pass against that
// root. Maintenance errors are logged, never propagated to the watch
// loop.
type Watcher struct {
	root      string
	walker    *walk.Walker
	refresher Refresher
	window    time.Duration
	debouncer *Debouncer
	fsw       *fsnotify.Watcher
}

// New creates a watcher for root. window <= 0 selects the default.
func New(root string, walker *walk.Walker, refresher Refresher, window time.Duration) *Watcher {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Watcher{
		root:      root,
		walker:    walker,
		refresher: refresher,
		window:    window,
	}
}

// Run watches until ctx is cancelled. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()
	w.fsw = fsw

	if err := w.addTree(w.root); err != nil {
		return err
	}

	w.debouncer = NewDebouncer(w.window)
	defer w.debouncer.Stop()

	slog.Info("watching for changes",
		slog.String("root", w.root),
		slog.Duration("debounce", w.window))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.String("error", err.Error()))

		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return nil
			}
			slog.Debug("debounce window closed",
				slog.Int("events", len(batch)))
			if err := w.refresher.Incremental(ctx); err != nil && ctx.Err() == nil {
				slog.Error("incremental update failed",
					slog.String("root", w.root),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// New directories join the watch set; their contents arrive as
	// separate create events.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.walker.IsIgnored(rel + "/") {
				_ = w.addTree(ev.Name)
			}
			return
		}
	}

	if w.walker.IsIgnored(rel) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		w.debouncer.Add(Event{Path: rel, Op: OpCreate})
	case ev.Op.Has(fsnotify.Write):
		w.debouncer.Add(Event{Path: rel, Op: OpModify})
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.debouncer.Add(Event{Path: rel, Op: OpDelete})
	}
}

// addTree registers dir and every non-ignored subdirectory.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && w.walker.IsIgnored(rel+"/") {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			slog.Debug("cannot watch directory",
				slog.String("path", path),
				slog.String("error", addErr.Error()))
		}
		return nil
	})
}
