// Package indexer splits document text into overlapping segments, embeds them and
// stores them so a later question can be answered from the closest segments.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/pageid"
	"github.com/hyperjump/tanya/internal/storage"
)

// PageFetcher retrieves and extracts the page behind a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*extract.Page, error)
}

// Indexer ingests documents into storage.
type Indexer struct {
	storage  storage.Storage
	embedder embedding.Embedder
	chunker  *Chunker
	fetcher  PageFetcher
	logger   *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingest and delete events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithFetcher enables IngestURL.
func WithFetcher(f PageFetcher) IndexerOption {
	return func(idx *Indexer) { idx.fetcher = f }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	chunker *Chunker,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:  storage,
		embedder: embedder,
		chunker:  chunker,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest chunks, embeds and stores input.Text under input.URL, replacing any
// segments stored for that URL before. Embedding happens before any write; the
// document upsert and segment replacement commit together or not at all.
func (idx *Indexer) Ingest(ctx context.Context, input *models.IngestInput) (*models.IngestResult, error) {
	start := time.Now()
	url, err := pageid.Canonical(input.URL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrEmptyContent, url)
	}
	title := strings.TrimSpace(input.Title)

	chunks := idx.chunker.Chunk(input.Text)
	segments, err := idx.embedSegments(ctx, chunks)
	if err != nil {
		return nil, err
	}

	var docID string
	err = idx.storage.InTx(ctx, func(w storage.Writer) error {
		id, err := w.UpsertDocument(ctx, url, title)
		if err != nil {
			return err
		}
		docID = id
		return w.ReplaceSegments(ctx, id, segments)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreWriteFailure, err)
	}

	if title == "" {
		if doc, err := idx.storage.GetDocument(ctx, docID); err == nil {
			title = doc.Title
		}
	}

	idx.logger.Info("Ingested document",
		zap.String("id", docID),
		zap.String("url", url),
		zap.Int("segments", len(segments)),
		zap.Duration("elapsed", time.Since(start)))
	return &models.IngestResult{DocumentID: docID, Title: title, ChunkCount: len(segments)}, nil
}

// embedSegments pairs each chunk with its embedding, in order.
func (idx *Indexer) embedSegments(ctx context.Context, chunks []string) ([]models.SegmentInput, error) {
	segments := make([]models.SegmentInput, len(chunks))
	if len(chunks) == 0 {
		return segments, nil
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		if errors.Is(err, models.ErrEmbeddingCountMismatch) || errors.Is(err, models.ErrUpstreamUnavailable) {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		return nil, fmt.Errorf("embedding failed: %w: %w", models.ErrUpstreamUnavailable, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d segments, %d embeddings", models.ErrEmbeddingCountMismatch, len(chunks), len(vectors))
	}
	for i, c := range chunks {
		segments[i] = models.SegmentInput{Content: c, Embedding: vectors[i]}
	}
	return segments, nil
}

// IngestURL fetches rawURL, extracts its text and ingests it. A non-empty title
// overrides the extracted one.
func (idx *Indexer) IngestURL(ctx context.Context, rawURL, title string) (*models.IngestResult, error) {
	if idx.fetcher == nil {
		return nil, fmt.Errorf("%w: fetching is not configured", models.ErrInvalidInput)
	}
	url, err := pageid.Canonical(rawURL)
	if err != nil {
		return nil, err
	}
	page, err := idx.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = page.Title
	}
	return idx.Ingest(ctx, &models.IngestInput{URL: url, Title: title, Text: page.Text})
}

// DeleteDocument removes a document; its segments go with it.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	idx.logger.Info("Deleted document", zap.String("id", id))
	return nil
}
