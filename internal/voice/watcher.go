package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher refreshes a [Catalog] when files under its root change. Bursts of
// events are coalesced: a refresh runs once the tree has been quiet for the
// debounce interval.
type Watcher struct {
	catalog  *Catalog
	debounce time.Duration
	fsw      *fsnotify.Watcher

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a refresh. The default is 500ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher starts watching the catalog root and every voice folder in it.
// The root must exist.
func NewWatcher(c *Catalog, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("voice: create watcher: %w", err)
	}
	w := &Watcher{
		catalog:  c,
		debounce: 500 * time.Millisecond,
		fsw:      fsw,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if err := fsw.Add(c.Root()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("voice: watch %q: %w", c.Root(), err)
	}
	w.addSubdirs()

	go w.loop()
	return w, nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
	<-w.stopped
}

// addSubdirs watches every direct subdirectory of the root. fsnotify is not
// recursive and reference files live one level down.
func (w *Watcher) addSubdirs() {
	root := w.catalog.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !isDir(root, e) {
			continue
		}
		if err := w.fsw.Add(filepath.Join(root, e.Name())); err != nil {
			slog.Warn("voice watcher: cannot watch folder", "folder", e.Name(), "err", err)
		}
	}
}

func (w *Watcher) loop() {
	defer close(w.stopped)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == w.catalog.Root() {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(ev.Name)
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("voice watcher: fsnotify error", "err", err)
		case <-timer.C:
			if _, err := w.catalog.Refresh(context.Background()); err != nil {
				slog.Warn("voice watcher: refresh failed", "err", err)
				continue
			}
			slog.Info("voice catalog reloaded", "root", w.catalog.Root(), "voices", w.catalog.Len())
		}
	}
}
