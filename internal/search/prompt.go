package search

import (
	"fmt"
	"strings"
)

// BuildPrompt returns the user prompt for question: a "Context:" block of
// "[i] content" entries numbered from 1 in the given order and separated by
// blank lines, followed by the question.
func BuildPrompt(question string, contexts []string) string {
	blocks := make([]string, len(contexts))
	for i, c := range contexts {
		blocks[i] = fmt.Sprintf("[%d] %s", i+1, c)
	}
	return "Context:\n" + strings.Join(blocks, "\n\n") + "\n\nQuestion: " + question
}
