// Package storage defines the persistence interface for documents and their embedded segments.
package storage

import (
	"context"

	"github.com/hyperjump/tanya/internal/models"
)

// Writer holds the write operations that may be grouped into one transaction.
type Writer interface {
	// UpsertDocument creates the document for url, or updates its title and
	// returns the existing ID. An empty title keeps the stored one.
	UpsertDocument(ctx context.Context, url, title string) (string, error)
	// ReplaceSegments deletes every segment of documentID and inserts segments
	// with indices 0..n-1 in slice order. All or nothing.
	ReplaceSegments(ctx context.Context, documentID string, segments []models.SegmentInput) error
}

// Storage defines document and segment persistence operations.
type Storage interface {
	Writer

	// InTx runs fn in a single transaction. Nothing fn wrote is visible unless
	// fn returns nil and the commit succeeds.
	InTx(ctx context.Context, fn func(w Writer) error) error

	// Retrieval
	QueryTopK(ctx context.Context, documentID string, query []float32, k int) ([]*models.ScoredSegment, error)

	// Document operations
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByURL(ctx context.Context, url string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Segment operations
	GetSegmentsByDocumentID(ctx context.Context, documentID string) ([]*models.Segment, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountSegments(ctx context.Context) (int64, error)

	Close() error
}
