package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as text, replacing invalid UTF-8 with U+FFFD.
// A leading markdown "# " heading becomes the title.
func extractPlain(content []byte) (*Page, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	return &Page{Title: markdownTitle(text), Text: text}, nil
}

func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
		return ""
	}
	return ""
}
