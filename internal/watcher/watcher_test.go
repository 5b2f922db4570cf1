package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) has(suffix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) count(suffix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, patterns []string, changed, removed *recorder, opts ...Option) *Watcher {
	t.Helper()
	var onChange, onRemove func(string)
	if changed != nil {
		onChange = changed.add
	}
	if removed != nil {
		onRemove = removed.add
	}
	opts = append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)
	w, err := New(patterns, onChange, onRemove, opts...)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{
		filepath.Join(dir, "**", "*.txt"),
		filepath.Join(dir, "*.md"),
		filepath.Join(dir, "notes", "a.html"),
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []root{
		{dir: dir, recursive: true},
		{dir: dir, recursive: false},
		{dir: filepath.Join(dir, "notes"), recursive: false},
	}
	if len(w.roots) != len(want) {
		t.Fatalf("roots = %+v", w.roots)
	}
	for i := range want {
		if w.roots[i] != want[i] {
			t.Errorf("root %d = %+v, want %+v", i, w.roots[i], want[i])
		}
	}

	if _, err := New(nil, nil, nil); err == nil {
		t.Error("expected error for no patterns")
	}
	if _, err := New([]string{filepath.Join(dir, "[")}, nil, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestWatcher_DebouncedChangeAndFilter(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	changed := &recorder{}
	startWatcher(t, []string{filepath.Join(dir, "**", "*.txt")}, changed, nil, WithDebounce(300*time.Millisecond))

	for i := 0; i < 3; i++ {
		if err := writeFile(filepath.Join(sub, "f.txt"), strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(sub, "ignore.md"), "skip"); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return changed.has("f.txt") }) {
		t.Fatalf("expected a change callback for f.txt, got %v", changed.list())
	}
	time.Sleep(500 * time.Millisecond)
	if n := changed.count("f.txt"); n != 1 {
		t.Errorf("burst of writes produced %d callbacks, want 1", n)
	}
	if changed.has("ignore.md") {
		t.Error("ignore.md does not match the pattern")
	}
}

func TestWatcher_Remove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := writeFile(path, "bye"); err != nil {
		t.Fatal(err)
	}
	removed := &recorder{}
	startWatcher(t, []string{filepath.Join(dir, "*.txt")}, nil, removed)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return removed.has("gone.txt") }) {
		t.Errorf("expected a remove callback, got %v", removed.list())
	}
}

func TestWatcher_NewDirectoryUnderRecursiveRoot(t *testing.T) {
	dir := t.TempDir()
	changed := &recorder{}
	w := startWatcher(t, []string{filepath.Join(dir, "**", "*.txt")}, changed, nil)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return changed.has("deep.txt") }) {
		t.Errorf("expected deep.txt to be reported, got %v", changed.list())
	}
	if !waitFor(t, func() bool { return len(w.Dirs()) == 3 }) {
		t.Errorf("Dirs() = %v, want the root and both new levels", w.Dirs())
	}
}

func TestWatcher_NonRecursivePatternWatchesOnlyItsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	changed := &recorder{}
	w := startWatcher(t, []string{filepath.Join(dir, "*.txt")}, changed, nil)

	if dirs := w.Dirs(); len(dirs) != 1 || dirs[0] != dir {
		t.Errorf("Dirs() = %v, want [%s]", dirs, dir)
	}
	if err := writeFile(filepath.Join(dir, "top.txt"), "top"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return changed.has("top.txt") }) {
		t.Errorf("expected top.txt to be reported, got %v", changed.list())
	}
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "missing", "*.txt")}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error for a missing root directory")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w := startWatcher(t, []string{filepath.Join(t.TempDir(), "*.txt")}, nil, nil)
	w.Stop()
	w.Stop()
	if len(w.Dirs()) == 0 {
		t.Error("Dirs() should still list what was watched")
	}
}

func TestMatches(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{filepath.Join(dir, "**", "*.{html,md}"), filepath.Join(dir, "exact.txt")}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "a.html"), true},
		{filepath.Join(dir, "x", "y", "b.md"), true},
		{filepath.Join(dir, "c.txt"), false},
		{filepath.Join(dir, "exact.txt"), true},
		{filepath.Join(filepath.Dir(dir), "outside.html"), false},
	}
	for _, tt := range tests {
		if got := w.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
