// Package watcher reports changes to a set of files on disk.
//
// Directories rather than files are handed to fsnotify so that editors which
// replace a file by rename are still noticed. Events are debounced per file.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must be quiet before onChange fires
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches files for changes
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func(path string)
	debounce time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	files  map[string]bool
	dirs   map[string]int
	timers map[string]*time.Timer
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the debounce duration
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher that calls onChange with the absolute path of a
// watched file after it was written, created or renamed into place.
func New(onChange func(path string), opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		files:    make(map[string]bool),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Set replaces the watched files. Paths may not exist yet; their directories
// must.
func (w *Watcher) Set(paths ...string) error {
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		wanted[abs] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for abs := range wanted {
		if w.files[abs] {
			continue
		}
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.fsw.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
		w.files[abs] = true
		w.logger.Debug("watching file", zap.String("path", abs))
	}

	for abs := range w.files {
		if wanted[abs] {
			continue
		}
		delete(w.files, abs)
		if t := w.timers[abs]; t != nil {
			t.Stop()
			delete(w.timers, abs)
		}
		dir := filepath.Dir(abs)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			if err := w.fsw.Remove(dir); err != nil {
				w.logger.Warn("failed to unwatch directory", zap.String("dir", dir), zap.Error(err))
			}
		}
	}
	return nil
}

// Paths returns the watched files
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

// Watch dispatches events until ctx is cancelled. It closes the underlying
// fsnotify watcher on return.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.close()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.touch(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) touch(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.files[abs] {
		return
	}
	if t := w.timers[abs]; t != nil {
		t.Stop()
	}
	w.timers[abs] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, abs)
		watched := w.files[abs]
		w.mu.Unlock()
		if !watched {
			return
		}
		w.logger.Info("file changed", zap.String("path", abs))
		w.onChange(abs)
	})
}

func (w *Watcher) close() {
	w.mu.Lock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()
	w.fsw.Close()
}
