package models

import (
	"fmt"
	"strings"
)

// MaxTopK caps the number of segments a single request may retrieve.
const MaxTopK = 50

// AskRequest is a question about one ingested document.
type AskRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	TopK       int    `json:"top_k,omitempty"`
}

// Validate checks required fields and normalizes TopK.
// A zero TopK is replaced by defaultTopK; values above MaxTopK are capped.
func (q *AskRequest) Validate(defaultTopK int) error {
	q.DocumentID = strings.TrimSpace(q.DocumentID)
	q.Question = strings.TrimSpace(q.Question)
	if q.DocumentID == "" || q.Question == "" {
		return fmt.Errorf("%w: document_id and question are required", ErrInvalidInput)
	}
	if q.TopK < 0 {
		return fmt.Errorf("%w: top_k must not be negative", ErrInvalidInput)
	}
	if q.TopK == 0 {
		q.TopK = defaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}
