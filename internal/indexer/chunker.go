// Package indexer provides text chunking and document ingestion.
package indexer

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxLen is the window length in characters used when none is configured.
	DefaultMaxLen = 1200
	// DefaultOverlap is the number of characters shared by consecutive windows.
	DefaultOverlap = 200
	// MaxSegments bounds the work done for a single text. Inputs that would
	// produce more windows are cut down to their first window.
	MaxSegments = 200000
)

// spaceBeforeNewline matches a run of whitespace ending in a newline. RE2's \s is
// ASCII-only, so vertical tab and the Unicode space separators are listed too.
var spaceBeforeNewline = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+\n`)

// Chunker splits text into overlapping character windows.
type Chunker struct {
	maxLen  int
	overlap int
}

// NewChunker creates a chunker with the given window length and overlap, in characters.
// Out-of-range values are clamped the same way Chunk clamps them.
func NewChunker(maxLen, overlap int) *Chunker {
	maxLen, overlap = clampParams(maxLen, overlap)
	return &Chunker{maxLen: maxLen, overlap: overlap}
}

// Chunk splits text with the chunker's configured parameters.
func (c *Chunker) Chunk(text string) []string {
	return Chunk(text, c.maxLen, c.overlap)
}

// MaxLen returns the effective window length.
func (c *Chunker) MaxLen() int { return c.maxLen }

// Overlap returns the effective overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into windows of at most maxLen characters whose start
// positions advance by max(1, maxLen-overlap). Each window is trimmed and
// whitespace-only windows are dropped. Trimmed-empty text yields nil.
func Chunk(text string, maxLen, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	maxLen, overlap = clampParams(maxLen, overlap)
	step := maxLen - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	n := len(runes)
	var chunks []string
	for start := 0; start < n; start += step {
		end := start + maxLen
		if end > n {
			end = n
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			chunks = append(chunks, s)
		}
		if end >= n {
			break
		}
		if len(chunks) > MaxSegments {
			end = maxLen
			if end > n {
				end = n
			}
			return []string{strings.TrimSpace(string(runes[:end]))}
		}
	}

	for i, c := range chunks {
		chunks[i] = strings.TrimSpace(spaceBeforeNewline.ReplaceAllString(c, "\n"))
	}
	return chunks
}

func clampParams(maxLen, overlap int) (int, int) {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap > maxLen-1 {
		overlap = maxLen - 1
	}
	return maxLen, overlap
}
