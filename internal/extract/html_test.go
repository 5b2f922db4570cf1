package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wikiPage = `<!DOCTYPE html>
<html><head><title>Alan Turing - Wikipedia</title><style>p{}</style></head>
<body>
<nav>Main menu</nav>
<h1 id="firstHeading">Alan <i>Turing</i></h1>
<div id="mw-content-text"><div class="mw-parser-output">
  <table class="infobox"><tr><td>Born 1912</td></tr></table>
  <p>Alan Mathison Turing was an English
     mathematician.<sup class="reference">[1]</sup> He was influential.[23]</p>
  <div class="toc"><ul><li>Contents</li></ul></div>
  <h2>Early life<span class="mw-editsection">[edit]</span></h2>
  <ul><li>Born in London</li><li>Studied at King's</li></ul>
  <pre>
code   kept
  as is</pre>
  <div class="navbox">Navigation</div>
  <script>var x = 1;</script>
</div></div>
<footer>Privacy policy</footer>
</body></html>`

func TestExtractHTML_Wikipedia(t *testing.T) {
	page, err := extractHTML([]byte(wikiPage))
	require.NoError(t, err)

	assert.Equal(t, "Alan Turing", page.Title)
	blocks := strings.Split(page.Text, "\n\n")
	require.Len(t, blocks, 4)
	assert.Equal(t, "Alan Mathison Turing was an English mathematician. He was influential.", blocks[0])
	assert.Equal(t, "Early life", blocks[1])
	assert.Equal(t, "Born in London\nStudied at King's", blocks[2])
	assert.Equal(t, "code   kept\n  as is", blocks[3])

	for _, noise := range []string{"Born 1912", "Contents", "Navigation", "var x", "Main menu", "Privacy", "[1]", "[edit]"} {
		assert.NotContains(t, page.Text, noise)
	}
}

func TestExtractHTML_GenericPage(t *testing.T) {
	content := `<html><head><title> Blog &amp; Notes </title></head><body>
<header><p>Site header</p></header>
<main><article><h1>Post</h1><p>First paragraph.</p><blockquote>A quote</blockquote></article></main>
</body></html>`
	page, err := extractHTML([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "Blog & Notes", page.Title)
	assert.Equal(t, "Post\n\nFirst paragraph.\n\nA quote", page.Text)
}

func TestExtractHTML_NoBlocks(t *testing.T) {
	page, err := extractHTML([]byte(`<html><body><div>Loose   text<br>here</div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "", page.Title)
	assert.Equal(t, "Loose text here", page.Text)
}

func TestExtractBytes_HTMLTitleFallback(t *testing.T) {
	page, err := NewExtractor().ExtractBytes([]byte(`<html><body><p>x</p></body></html>`), "text/html", "https://x/wiki/Grace_Hopper")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", page.Title)
}
