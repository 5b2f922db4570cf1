package extract

import (
	"archive/zip"
	"bytes"
	"testing"
)

type zipEntry struct {
	name, body string
}

func zipBytes(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		if err != nil {
			t.Fatalf("Create %s: %v", e.name, err)
		}
		if _, err := f.Write([]byte(e.body)); err != nil {
			t.Fatalf("Write %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

const (
	wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	odfNS  = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:number="urn:oasis:names:tc:opendocument:xmlns:datastyle:1.0"`
)

func docxBody(paragraphs string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document ` + wordNS + `><w:body>` + paragraphs + `</w:body></w:document>`
}

const coreProps = `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Quarterly  Plan</dc:title></cp:coreProperties>`

func TestExtractBytes_docx(t *testing.T) {
	content := zipBytes(t,
		zipEntry{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override ContentType="` + docxMainContentType + `" PartName="/word/document2.xml"/></Types>`},
		zipEntry{"word/document2.xml", docxBody(
			`<w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>` +
				`<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Second</w:t><w:br/><w:t>line</w:t></w:r></w:p>`)},
		zipEntry{"docProps/core.xml", coreProps},
	)

	page, err := NewExtractor().ExtractBytes(content, "", "file:///tmp/plan.docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "Hello world\nSecond\nline"; page.Text != want {
		t.Errorf("text: got %q, want %q", page.Text, want)
	}
	if page.Title != "Quarterly Plan" {
		t.Errorf("title: got %q", page.Title)
	}
}

func TestExtractBytes_docxDefaultPart(t *testing.T) {
	content := zipBytes(t, zipEntry{"word/document.xml", docxBody(`<w:p><w:r><w:t>Only body</w:t></w:r></w:p>`)})

	page, err := NewExtractor().ExtractBytes(content, docxMediaType, "https://example.com/files/meeting-notes.docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if page.Text != "Only body" {
		t.Errorf("text: got %q", page.Text)
	}
	if page.Title != "meeting notes" {
		t.Errorf("title from source: got %q", page.Title)
	}
}

func TestExtractBytes_pptxSlideOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">` +
			`<p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	content := zipBytes(t,
		zipEntry{"ppt/slides/slide10.xml", slide("Ten")},
		zipEntry{"ppt/slides/slide2.xml", slide("Two")},
		zipEntry{"ppt/slides/_rels/slide1.xml.rels", `<Relationships/>`},
		zipEntry{"ppt/slides/slide1.xml", slide("One")},
	)

	page, err := NewExtractor().ExtractBytes(content, "", "deck.pptx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "One\nTwo\nTen"; page.Text != want {
		t.Errorf("text: got %q, want %q", page.Text, want)
	}
}

func TestExtractBytes_odt(t *testing.T) {
	content := zipBytes(t,
		zipEntry{"mimetype", odtMediaType},
		zipEntry{"content.xml", `<office:document-content ` + odfNS + `>` +
			`<office:automatic-styles><number:date-style><number:text>-</number:text></number:date-style></office:automatic-styles>` +
			`<office:body><office:text><text:h text:outline-level="1">Intro</text:h>` +
			`<text:p>First<text:s/>line<text:line-break/>next <text:span text:style-name="T1">bold</text:span></text:p>` +
			`</office:text></office:body></office:document-content>`},
		zipEntry{"meta.xml", `<office:document-meta ` + odfNS + ` xmlns:dc="http://purl.org/dc/elements/1.1/"><office:meta><dc:title>Field Notes</dc:title></office:meta></office:document-meta>`},
	)

	page, err := NewExtractor().ExtractBytes(content, "", "file:///tmp/notes.odt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "Intro\nFirst line\nnext bold"; page.Text != want {
		t.Errorf("text: got %q, want %q", page.Text, want)
	}
	if page.Title != "Field Notes" {
		t.Errorf("title: got %q", page.Title)
	}
}

func TestExtractBytes_ods(t *testing.T) {
	cell := func(v string) string {
		return `<table:table-cell><text:p>` + v + `</text:p></table:table-cell>`
	}
	content := zipBytes(t,
		zipEntry{"mimetype", odsMediaType},
		zipEntry{"content.xml", `<office:document-content ` + odfNS + `><office:body><office:spreadsheet>` +
			`<table:table table:name="Budget"><table:table-column table:number-columns-repeated="2"/>` +
			`<table:table-row>` + cell("Item") + cell("Cost") + `</table:table-row>` +
			`<table:table-row>` + cell("Rent") + cell("1200") + `<table:table-cell table:number-columns-repeated="5"/></table:table-row>` +
			`<table:table-row table:number-rows-repeated="100"><table:table-cell/></table:table-row>` +
			`</table:table></office:spreadsheet></office:body></office:document-content>`},
	)

	page, err := NewExtractor().ExtractBytes(content, odsMediaType, "https://example.com/budget")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "Budget\nItem\tCost\nRent\t1200"; page.Text != want {
		t.Errorf("text: got %q, want %q", page.Text, want)
	}
}

func TestExtractBytes_odpSniffed(t *testing.T) {
	content := zipBytes(t,
		zipEntry{"mimetype", odpMediaType},
		zipEntry{"content.xml", `<office:document-content ` + odfNS + `><office:body><office:presentation>` +
			`<draw:page xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"><draw:frame><draw:text-box><text:p>Roadmap</text:p></draw:text-box></draw:frame></draw:page>` +
			`</office:presentation></office:body></office:document-content>`},
	)

	if got := format(content, "application/octet-stream", "https://example.com/download?id=7"); got != "odp" {
		t.Fatalf("format: got %q, want odp", got)
	}
	page, err := NewExtractor().ExtractBytes(content, "", "https://example.com/download?id=7")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if page.Text != "Roadmap" {
		t.Errorf("text: got %q", page.Text)
	}
}

func TestSniffOffice(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"docx", zipBytes(t, zipEntry{"word/document.xml", docxBody("")}), "docx"},
		{"pptx", zipBytes(t, zipEntry{"ppt/presentation.xml", "<p/>"}), "pptx"},
		{"xlsx", zipBytes(t, zipEntry{"xl/workbook.xml", "<w/>"}), "xlsx"},
		{"ods", zipBytes(t, zipEntry{"mimetype", odsMediaType}), "ods"},
		{"plain zip", zipBytes(t, zipEntry{"readme.txt", "hi"}), ""},
		{"not a zip", []byte("plain words"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffOffice(tt.content); got != tt.want {
				t.Errorf("sniffOffice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_officeErrors(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		source  string
	}{
		{"docx not a zip", []byte("not a zip"), "a.docx"},
		{"pptx not a zip", []byte("not a zip"), "a.pptx"},
		{"docx missing body", zipBytes(t, zipEntry{"docProps/core.xml", coreProps}), "a.docx"},
		{"odt missing content", zipBytes(t, zipEntry{"mimetype", odtMediaType}), "a.odt"},
		{"ods malformed content", zipBytes(t, zipEntry{"content.xml", "<office:document-content><table:table>"}), "a.ods"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExtractor().ExtractBytes(tt.content, "", tt.source); err == nil {
				t.Error("expected error")
			}
		})
	}
}
