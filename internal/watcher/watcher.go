// Package watcher reports changes to local files matching glob patterns, with debouncing.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches the directories under a set of glob patterns and invokes
// callbacks when a matching file is written, created or removed. Callbacks run
// one at a time.
type Watcher struct {
	patterns []string
	roots    []root
	onChange func(path string)
	onRemove func(path string)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timers   map[string]*time.Timer
	dirs     map[string]bool
	started  bool
	done     chan struct{}
	stopOnce sync.Once

	callbackMu sync.Mutex
}

// root is the fixed directory prefix of a pattern. Only patterns that can
// match below their first level need the whole tree watched.
type root struct {
	dir       string
	recursive bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must stay quiet before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for patterns, which are doublestar globs or plain file
// paths. Relative patterns are resolved against the working directory.
// onChange is called for created or written files, onRemove for removed or
// renamed ones; either may be nil.
func New(patterns []string, onChange, onRemove func(path string), opts ...Option) (*Watcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("watcher: no patterns")
	}
	w := &Watcher{
		onChange: onChange,
		onRemove: onRemove,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		timers:   make(map[string]*time.Timer),
		dirs:     make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, p := range patterns {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watcher: resolve %q: %w", p, err)
		}
		if !doublestar.ValidatePathPattern(abs) {
			return nil, fmt.Errorf("watcher: invalid pattern %q", p)
		}
		base, rest := doublestar.SplitPattern(filepath.ToSlash(abs))
		w.patterns = append(w.patterns, abs)
		w.roots = append(w.roots, root{
			dir:       filepath.FromSlash(base),
			recursive: strings.Contains(rest, "/") || strings.Contains(rest, "**"),
		})
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It returns once every root directory is watched and
// keeps running until ctx is cancelled or Stop is called. A stopped watcher
// cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	for _, r := range w.roots {
		var err error
		if r.recursive {
			err = w.watchTreeLocked(r.dir)
		} else {
			err = w.watchDirLocked(r.dir)
		}
		if err != nil {
			_ = fw.Close()
			w.watcher = nil
			w.mu.Unlock()
			return fmt.Errorf("watcher: watch %s: %w", r.dir, err)
		}
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("watcher started", zap.Strings("patterns", w.patterns), zap.Strings("dirs", w.Dirs()))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		info, err := os.Stat(path)
		switch {
		case err != nil:
		case info.IsDir():
			if w.underRecursiveRoot(path) {
				w.handleNewDirectory(path)
			}
		case w.Matches(path):
			w.schedule(path)
		}
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.cancel(path)
		w.mu.Lock()
		delete(w.dirs, path)
		w.mu.Unlock()
		if w.Matches(path) && w.onRemove != nil {
			w.callback(w.onRemove, path)
		}
	}
}

// handleNewDirectory watches a directory that appeared under a root and
// schedules every matching file already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	err := w.watchTreeLocked(dir)
	w.mu.Unlock()
	if err != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.Matches(path) {
			w.schedule(path)
		}
		return nil
	})
}

// watchTreeLocked adds dir and its subdirectories. Callers hold w.mu.
func (w *Watcher) watchTreeLocked(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.watchDirLocked(path)
	})
}

func (w *Watcher) watchDirLocked(dir string) error {
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

func (w *Watcher) underRecursiveRoot(path string) bool {
	for _, r := range w.roots {
		if r.recursive && inDir(r.dir, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Matches reports whether path matches any of the watcher's patterns.
func (w *Watcher) Matches(path string) bool {
	for _, p := range w.patterns {
		if ok, _ := doublestar.PathMatch(p, path); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if w.onChange != nil {
			w.callback(w.onChange, path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) callback(fn func(string), path string) {
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	fn(path)
}

// Dirs returns the watched directories in sorted order.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Stop stops watching and drops pending callbacks. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
