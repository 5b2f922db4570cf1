package extract

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// citationRe matches footnote markers such as "[12]".
var citationRe = regexp.MustCompile(`\[\d+\]`)

// noiseClasses are removed along with their subtree.
var noiseClasses = []string{"infobox", "navbox", "toc", "reference", "mw-editsection"}

// noiseTags are removed along with their subtree.
var noiseTags = map[atom.Atom]bool{
	atom.Table:    true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
}

// blockTags contribute one block of text each.
var blockTags = map[atom.Atom]bool{
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.P:          true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Li:         true,
	atom.Pre:        true,
	atom.Blockquote: true,
}

// extractHTML returns the page heading and the text of its main content.
// Wikipedia layout (#firstHeading, .mw-parser-output) is preferred when present.
func extractHTML(content []byte) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, wrapExtractErr("HTML", err)
	}

	title := ""
	if n := findFirst(doc, func(n *html.Node) bool { return attr(n, "id") == "firstHeading" }); n != nil {
		title = collapse(textContent(n))
	}
	if title == "" {
		if n := findFirst(doc, isTag(atom.Title)); n != nil {
			title = collapse(textContent(n))
		}
	}

	root := contentRoot(doc)
	removeNoise(root)

	var blocks []string
	collectBlocks(root, &blocks)
	if len(blocks) == 0 {
		if text := collapse(citationRe.ReplaceAllString(textContent(root), "")); text != "" {
			blocks = append(blocks, text)
		}
	}
	return &Page{Title: title, Text: strings.Join(blocks, "\n\n")}, nil
}

func contentRoot(doc *html.Node) *html.Node {
	if n := findFirst(doc, hasClass("mw-parser-output")); n != nil {
		return n
	}
	for _, a := range []atom.Atom{atom.Main, atom.Article, atom.Body} {
		if n := findFirst(doc, isTag(a)); n != nil {
			return n
		}
	}
	return doc
}

func removeNoise(root *html.Node) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (noiseTags[c.DataAtom] || hasAnyClass(c, noiseClasses)) {
				doomed = append(doomed, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	for _, n := range doomed {
		n.Parent.RemoveChild(n)
	}
}

func collectBlocks(n *html.Node, blocks *[]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if !blockTags[c.DataAtom] {
			collectBlocks(c, blocks)
			continue
		}
		var text string
		switch c.DataAtom {
		case atom.Pre:
			text = strings.Trim(textContent(c), "\n")
		case atom.Ul, atom.Ol:
			var items []string
			for li := c.FirstChild; li != nil; li = li.NextSibling {
				if item := collapse(textContent(li)); item != "" {
					items = append(items, item)
				}
			}
			text = strings.Join(items, "\n")
		default:
			text = collapse(textContent(c))
		}
		if text = strings.TrimSpace(citationRe.ReplaceAllString(text, "")); text != "" {
			*blocks = append(*blocks, text)
		}
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// collapse joins all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isTag(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return hasAnyClass(n, []string{class}) }
}

func hasAnyClass(n *html.Node, classes []string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
