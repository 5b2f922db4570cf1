// Package extract turns fetched pages and local files into a title and plain text.
package extract

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Page is the readable content of one source.
type Page struct {
	Title string
	Text  string
}

// Extractor extracts a title and plain text from HTML, PDF, office documents and text content.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

const xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExtractBytes extracts content. The format is taken from contentType when it is
// a known media type, else from the extension of source (a URL or path), else
// sniffed. When the content carries no title, one is derived from source.
func (e *Extractor) ExtractBytes(content []byte, contentType, source string) (*Page, error) {
	var (
		page *Page
		err  error
	)
	kind := format(content, contentType, source)
	switch kind {
	case "html":
		page, err = extractHTML(content)
	case "pdf":
		var text string
		text, err = extractPDF(content)
		page = &Page{Text: text}
	case "xlsx":
		var text string
		text, err = extractExcel(content)
		page = &Page{Text: text}
	case "docx":
		page, err = extractDOCX(content)
	case "pptx":
		page, err = extractPPTX(content)
	case "odt", "odp", "ods":
		page, err = extractODF(kind, content)
	default:
		page, err = extractPlain(content)
	}
	if err != nil {
		return nil, err
	}
	if page.Title == "" {
		page.Title = titleFromSource(source)
	}
	return page, nil
}

// format picks one of html, pdf, xlsx, docx, pptx, odt, odp, ods or text.
func format(content []byte, contentType, source string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "text/html", "application/xhtml+xml":
			return "html"
		case "application/pdf":
			return "pdf"
		case xlsxMediaType:
			return "xlsx"
		case docxMediaType:
			return "docx"
		case pptxMediaType:
			return "pptx"
		case odtMediaType, odpMediaType, odsMediaType:
			return odfFormats[mediaType]
		case "text/plain", "text/markdown":
			return "text"
		}
	}
	ext := strings.ToLower(path.Ext(sourcePath(source)))
	switch ext {
	case ".html", ".htm", ".xhtml":
		return "html"
	case ".pdf":
		return "pdf"
	case ".xlsx":
		return "xlsx"
	case ".docx":
		return "docx"
	case ".pptx":
		return "pptx"
	case ".odt", ".odp", ".ods":
		return ext[1:]
	case ".txt", ".md", ".markdown", ".rst":
		return "text"
	}
	sniffed := http.DetectContentType(content)
	switch {
	case strings.HasPrefix(sniffed, "text/html"):
		return "html"
	case strings.HasPrefix(sniffed, "application/pdf"):
		return "pdf"
	case sniffed == "application/zip":
		if kind := sniffOffice(content); kind != "" {
			return kind
		}
	}
	return "text"
}

// sourcePath returns the path component of a URL, or source itself when it is not one.
func sourcePath(source string) string {
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		return u.Path
	}
	return source
}

// titleFromSource derives a readable title from the last path element, falling back to the host.
func titleFromSource(source string) string {
	name := path.Base(sourcePath(source))
	if name == "/" || name == "." || name == "" {
		if u, err := url.Parse(source); err == nil {
			return u.Host
		}
		return ""
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

func wrapExtractErr(kind string, err error) error {
	return fmt.Errorf("extract %s: %w", kind, err)
}
