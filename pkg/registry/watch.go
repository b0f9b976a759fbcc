package registry

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a Static registry whenever a definition file under its
// directory changes. Events are debounced so an editor save burst produces a
// single reload.
type Watcher struct {
	dir      string
	pattern  string
	registry *Static
	logger   *slog.Logger
	debounce time.Duration
	onReload func(error)

	mu      sync.Mutex
	lastErr error
	reloads atomic.Uint64
	running atomic.Bool
	done    chan struct{}
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchLogger sets the logger used for reload diagnostics.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook registers a callback invoked after every reload attempt.
func WithReloadHook(fn func(error)) WatchOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for the given registry. Call Start to begin.
func NewWatcher(dir, pattern string, reg *Static, opts ...WatchOption) *Watcher {
	if pattern == "" {
		pattern = DefaultPattern
	}
	w := &Watcher{
		dir:      dir,
		pattern:  pattern,
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reload re-reads every definition file and replaces the registry content.
// Partial failures keep the previous definition of the affected contexts.
func (w *Watcher) Reload() error {
	contexts, err := LoadDir(w.dir, w.pattern)
	if err == nil {
		err = w.registry.Replace(contexts)
	}

	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	w.reloads.Add(1)

	if err != nil {
		w.logger.Warn("registry reload rejected definitions", "dir", w.dir, "error", err)
	} else {
		w.logger.Info("registry reloaded", "dir", w.dir, "contexts", len(contexts))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
	return err
}

// Start begins watching. The watch loop stops when ctx is cancelled; Done is
// closed once it has exited.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("registry watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.running.Store(false)
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := addDirs(watcher, w.dir); err != nil {
		_ = watcher.Close()
		w.running.Store(false)
		return err
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(w.done)
		defer w.running.Store(false)
		defer watcher.Close()
		return w.loop(ctx, watcher)
	}, lifecycle.WithErrorHandler(func(err error) {
		w.logger.Error("registry watcher failed", "error", err)
	}))
	return nil
}

// Done is closed when the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories must be watched too.
				_ = addDirs(watcher, event.Name)
			}
			if !w.relevant(event.Name) {
				continue
			}
			w.logger.Debug("registry file changed", "name", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			_ = w.Reload()

		case wErr, ok := <-watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("fsnotify error", "error", wErr)
		}
	}
}

func (w *Watcher) relevant(name string) bool {
	rel, err := filepath.Rel(w.dir, name)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// WatcherState exposes internal state for observability.
type WatcherState struct {
	Dir       string `json:"dir"`
	Pattern   string `json:"pattern"`
	Running   bool   `json:"running"`
	Reloads   uint64 `json:"reloads"`
	LastError string `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (w *Watcher) State() any {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := WatcherState{
		Dir:     w.dir,
		Pattern: w.pattern,
		Running: w.running.Load(),
		Reloads: w.reloads.Load(),
	}
	if w.lastErr != nil {
		st.LastError = w.lastErr.Error()
	}
	return st
}

// ComponentType implements introspection.Component.
func (w *Watcher) ComponentType() string {
	return "registry-watcher"
}

var _ introspection.Introspectable = (*Watcher)(nil)
var _ introspection.Component = (*Watcher)(nil)
