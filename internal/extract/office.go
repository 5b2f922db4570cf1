package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	docxMediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	pptxMediaType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	odtMediaType  = "application/vnd.oasis.opendocument.text"
	odpMediaType  = "application/vnd.oasis.opendocument.presentation"
	odsMediaType  = "application/vnd.oasis.opendocument.spreadsheet"

	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	docxDefaultMainPart = "word/document.xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	odfContentPart      = "content.xml"

	// maxPartBytes caps the decompressed size of a single XML part.
	maxPartBytes = 64 << 20
)

// xmlTextRules say which elements of an office XML part carry text.
type xmlTextRules struct {
	// text elements hold the character data; anything outside them is markup.
	text map[string]bool
	// after is written when an element closes.
	after map[string]string
	// section elements start a heading taken from their name attribute.
	section string
}

var (
	docxRules = xmlTextRules{
		text:  map[string]bool{"t": true},
		after: map[string]string{"p": "\n", "br": "\n", "cr": "\n"},
	}
	pptxRules = xmlTextRules{
		text:  map[string]bool{"t": true},
		after: map[string]string{"p": "\n", "br": "\n"},
	}
	odfTextRules = xmlTextRules{
		text:  map[string]bool{"p": true, "h": true},
		after: map[string]string{"p": "\n", "h": "\n", "s": " ", "tab": "\t", "line-break": "\n"},
	}
	odfSheetRules = xmlTextRules{
		text:    map[string]bool{"p": true},
		after:   map[string]string{"p": " ", "s": " ", "table-cell": "\t", "table-row": "\n"},
		section: "table",
	}
	titleRules = xmlTextRules{text: map[string]bool{"title": true}}
)

// odfFormats maps the mimetype entry of an OpenDocument package to its format.
var odfFormats = map[string]string{
	odtMediaType: "odt",
	odpMediaType: "odp",
	odsMediaType: "ods",
}

// extractDOCX reads the main document part named by [Content_Types].xml.
func extractDOCX(content []byte) (*Page, error) {
	zr, err := openZip(content)
	if err != nil {
		return nil, wrapExtractErr("DOCX", err)
	}
	var b strings.Builder
	if err := zipPartText(zr, docxMainPart(zr), docxRules, &b); err != nil {
		return nil, wrapExtractErr("DOCX", err)
	}
	return &Page{Title: zipTitle(zr, "docProps/core.xml"), Text: tidyLines(b.String())}, nil
}

// extractPPTX reads every slide in slide-number order.
func extractPPTX(content []byte) (*Page, error) {
	zr, err := openZip(content)
	if err != nil {
		return nil, wrapExtractErr("PPTX", err)
	}
	var b strings.Builder
	for _, name := range pptxSlides(zr) {
		if err := zipPartText(zr, name, pptxRules, &b); err != nil {
			return nil, wrapExtractErr("PPTX", err)
		}
		b.WriteByte('\n')
	}
	return &Page{Title: zipTitle(zr, "docProps/core.xml"), Text: tidyLines(b.String())}, nil
}

// extractODF reads content.xml of an OpenDocument text, presentation or spreadsheet.
func extractODF(kind string, content []byte) (*Page, error) {
	zr, err := openZip(content)
	if err != nil {
		return nil, wrapExtractErr(strings.ToUpper(kind), err)
	}
	rules := odfTextRules
	if kind == "ods" {
		rules = odfSheetRules
	}
	var b strings.Builder
	if err := zipPartText(zr, odfContentPart, rules, &b); err != nil {
		return nil, wrapExtractErr(strings.ToUpper(kind), err)
	}
	return &Page{Title: zipTitle(zr, "meta.xml"), Text: tidyLines(b.String())}, nil
}

// sniffOffice names the office format of a zip archive, or "" when it is not one.
func sniffOffice(content []byte) string {
	zr, err := openZip(content)
	if err != nil {
		return ""
	}
	if f := zipFile(zr, "mimetype"); f != nil {
		if rc, err := f.Open(); err == nil {
			mt, _ := io.ReadAll(io.LimitReader(rc, 128))
			_ = rc.Close()
			if kind, ok := odfFormats[strings.TrimSpace(string(mt))]; ok {
				return kind
			}
		}
	}
	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, "word/"):
			return "docx"
		case strings.HasPrefix(f.Name, "ppt/"):
			return "pptx"
		case strings.HasPrefix(f.Name, "xl/"):
			return "xlsx"
		}
	}
	return ""
}

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip archive: %w", err)
	}
	return zr, nil
}

func zipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// zipPartText appends the text of the named part to b.
func zipPartText(zr *zip.Reader, name string, rules xmlTextRules, b *strings.Builder) error {
	f := zipFile(zr, name)
	if f == nil {
		return fmt.Errorf("%s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	if err := xmlText(io.LimitReader(rc, maxPartBytes), rules, b); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// zipTitle returns the document title from a metadata part, or "".
func zipTitle(zr *zip.Reader, part string) string {
	var b strings.Builder
	if err := zipPartText(zr, part, titleRules, &b); err != nil {
		return ""
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// xmlText streams an XML part and writes its text to b following rules.
func xmlText(r io.Reader, rules xmlTextRules, b *strings.Builder) error {
	dec := xml.NewDecoder(r)
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if rules.text[t.Name.Local] {
				depth++
			}
			if rules.section != "" && t.Name.Local == rules.section {
				if name := xmlAttr(t, "name"); name != "" {
					b.WriteString("\n" + name + "\n")
				}
			}
		case xml.EndElement:
			if rules.text[t.Name.Local] && depth > 0 {
				depth--
			}
			b.WriteString(rules.after[t.Name.Local])
		case xml.CharData:
			if depth > 0 {
				b.Write(t)
			}
		}
	}
}

func xmlAttr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// contentTypes is the part of [Content_Types].xml that names each part's type.
type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// docxMainPart returns the main document part, falling back to word/document.xml.
func docxMainPart(zr *zip.Reader) string {
	f := zipFile(zr, "[Content_Types].xml")
	if f == nil {
		return docxDefaultMainPart
	}
	rc, err := f.Open()
	if err != nil {
		return docxDefaultMainPart
	}
	defer rc.Close()

	var types contentTypes
	if err := xml.NewDecoder(io.LimitReader(rc, maxPartBytes)).Decode(&types); err != nil {
		return docxDefaultMainPart
	}
	for _, o := range types.Overrides {
		if o.ContentType == docxMainContentType {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDefaultMainPart
}

// pptxSlides lists ppt/slides/slideN.xml parts ordered by N.
func pptxSlides(zr *zip.Reader) []string {
	type slide struct {
		name string
		n    int
	}
	var slides []slide
	for _, f := range zr.File {
		num, ok := strings.CutPrefix(f.Name, pptxSlidePrefix)
		if !ok {
			continue
		}
		if num, ok = strings.CutSuffix(num, ".xml"); !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		slides = append(slides, slide{name: f.Name, n: n})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names
}

// tidyLines collapses spaces inside each tab-separated field, drops trailing
// empty fields and removes blank lines.
func tidyLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Split(line, "\t")
		for i, f := range fields {
			fields[i] = strings.Join(strings.Fields(f), " ")
		}
		line = strings.TrimRight(strings.Join(fields, "\t"), "\t")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
