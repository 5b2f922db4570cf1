package pageid

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/tanya/internal/models"
)

func TestDocID(t *testing.T) {
	id1 := DocID("https://en.wikipedia.org/wiki/Go")
	id2 := DocID("https://en.wikipedia.org/wiki/Go")
	if id1 != id2 {
		t.Errorf("same url should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
	if DocID("https://en.wikipedia.org/wiki/Rust") == id1 {
		t.Error("different urls should give different IDs")
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://EN.Wikipedia.org/wiki/Go#History", "https://en.wikipedia.org/wiki/Go"},
		{"  HTTPS://x.org  ", "https://x.org/"},
		{"https://x/y", "https://x/y"},
		{"https://x/y?a=1", "https://x/y?a=1"},
		{"file:///tmp/a/../b.txt", "file:///tmp/b.txt"},
	}
	for _, tt := range tests {
		got, err := Canonical(tt.in)
		if err != nil {
			t.Errorf("Canonical(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonical_rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://x/y", "https://", "not a url", "file://"} {
		if _, err := Canonical(in); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("Canonical(%q): expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestFileURL(t *testing.T) {
	abs, _ := filepath.Abs("notes.md")
	got, err := FileURL("notes.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != "file://"+filepath.ToSlash(abs) {
		t.Errorf("FileURL = %q", got)
	}
	canon, err := Canonical(got)
	if err != nil || canon != got {
		t.Errorf("FileURL output should already be canonical: %q, %v", canon, err)
	}
}
