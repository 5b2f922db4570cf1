package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages. Wrap with fmt.Errorf("...: %w", err)
// and classify with errors.Is.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrEmptyContent           = errors.New("no text content")
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	ErrStoreWriteFailure      = errors.New("store write failed")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrNotFound               = errors.New("not found")
)

// ErrDimensionMismatch is returned when a vector does not match the configured dimension.
var ErrDimensionMismatch = fmt.Errorf("vector dimension mismatch: %w", ErrInvalidInput)

// IsRetryable reports whether err is worth retrying later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
