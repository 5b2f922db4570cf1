// Package models defines core data structures for documents, segments, and answers.
package models

import "time"

// DefaultLang is the language recorded for documents when none is given.
const DefaultLang = "en"

// Document represents an ingested source page, keyed by its canonical URL.
type Document struct {
	ID        string    `json:"id" db:"id"`
	URL       string    `json:"url" db:"url"`
	Title     string    `json:"title,omitempty" db:"title"`
	Lang      string    `json:"lang" db:"lang"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Segment is one chunk of a document's text with its embedding.
type Segment struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Index      int       `json:"index" db:"segment_index"`
	Content    string    `json:"content" db:"content"`
	TokenCount int       `json:"token_count" db:"token_count"`
	Embedding  []float32 `json:"-" db:"embedding"`
}

// SegmentInput is a segment to be written by ReplaceSegments. The store assigns
// ID and Index; Index follows slice order.
type SegmentInput struct {
	Content   string
	Embedding []float32
}

// ScoredSegment is a retrieval hit.
type ScoredSegment struct {
	ID      string  `json:"id"`
	Index   int     `json:"index"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// IngestInput is the input for ingesting a document's text.
type IngestInput struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// IngestResult is the result of a successful ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
}
