package extract

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	page, err := e.ExtractBytes([]byte("Hello world\nLine 2"), "text/plain; charset=utf-8", "https://example.com/notes.txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if page.Text != "Hello world\nLine 2" {
		t.Errorf("text: got %q", page.Text)
	}
	if page.Title != "notes" {
		t.Errorf("title from source: got %q", page.Title)
	}
}

func TestExtractBytes_markdownTitle(t *testing.T) {
	e := NewExtractor()
	page, err := e.ExtractBytes([]byte("\n# Release Notes\n\nBody"), "", "/docs/release_notes.md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if page.Title != "Release Notes" {
		t.Errorf("title: got %q", page.Title)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	page, err := e.ExtractBytes([]byte("hello\x80world"), "", "file:///tmp/a.rst")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if page.Text != "hello�world" {
		t.Errorf("got %q", page.Text)
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	page, err := NewExtractor().ExtractBytes(buf.Bytes(), "", "https://example.com/files/q3-report.xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "Sheet1\nTitle\nValue 1\tValue 2"; page.Text != want {
		t.Errorf("text: got %q, want %q", page.Text, want)
	}
	if page.Title != "q3 report" {
		t.Errorf("title: got %q", page.Title)
	}
}

func TestExtractBytes_invalidPDF(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("not a pdf"), "application/pdf", "x.pdf"); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		contentType string
		source      string
		want        string
	}{
		{"media type wins", "plain", "text/html; charset=utf-8", "https://x/a.txt", "html"},
		{"pdf media type", "", "application/pdf", "https://x/a", "pdf"},
		{"extension", "", "", "https://x/a.HTM", "html"},
		{"octet-stream falls to extension", "", "application/octet-stream", "https://x/b.xlsx", "xlsx"},
		{"sniffed html", "<!DOCTYPE html><html><body>x</body></html>", "", "https://x/wiki/Go", "html"},
		{"sniffed pdf", "%PDF-1.4", "", "https://x/paper", "pdf"},
		{"fallback text", "just words", "", "https://x/readme", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := format([]byte(tt.content), tt.contentType, tt.source); got != tt.want {
				t.Errorf("format() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTitleFromSource(t *testing.T) {
	tests := map[string]string{
		"https://en.wikipedia.org/wiki/Alan_Turing": "Alan Turing",
		"https://example.com/":                      "example.com",
		"file:///tmp/my-notes.md":                   "my notes",
		"https://x/wiki/Caf%C3%A9":                  "Café",
	}
	for source, want := range tests {
		if got := titleFromSource(source); got != want {
			t.Errorf("titleFromSource(%q) = %q, want %q", source, got, want)
		}
	}
}
