package e2e

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Render returns the on-disk bytes of p in its format.
func Render(p Page) ([]byte, error) {
	switch p.Format {
	case "html":
		return renderHTML(p), nil
	case "md":
		return []byte("# " + p.Title + "\n\n" + p.Text()), nil
	case "txt":
		return []byte(p.Text()), nil
	case "xlsx":
		return renderXLSX(p)
	default:
		return nil, fmt.Errorf("unsupported format %q", p.Format)
	}
}

// WriteCorpus renders every page into dir and returns the written paths in order.
func WriteCorpus(dir string, pages []Page) ([]string, error) {
	paths := make([]string, 0, len(pages))
	for _, p := range pages {
		data, err := Render(p)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, p.Name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func renderHTML(p Page) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>")
	b.WriteString(html.EscapeString(p.Title))
	b.WriteString("</title></head><body><nav>Home | About</nav><main>")
	for _, para := range p.Paragraphs {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(para))
		b.WriteString("<sup>[1]</sup></p>")
	}
	b.WriteString("</main><footer>Copyright</footer></body></html>")
	return []byte(b.String())
}

func renderXLSX(p Page) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for i, para := range p.Paragraphs {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue("Sheet1", cell, para); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
