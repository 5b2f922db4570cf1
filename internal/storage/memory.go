package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/pageid"
	"github.com/hyperjump/tanya/internal/vector"
)

// MemoryStorage implements Storage in process memory. Writes are staged and
// swapped in under a single lock; a document's segment set is immutable once
// published, so readers always see a complete set.
type MemoryStorage struct {
	mu         sync.RWMutex
	dimensions int
	docs       map[string]*models.Document
	byURL      map[string]string
	segments   map[string]*segmentSet
	now        func() time.Time
}

type segmentSet struct {
	segments []*models.Segment
	index    *vector.MemoryIndex
}

// NewMemoryStorage creates an empty in-memory store for embeddings of the given dimension.
func NewMemoryStorage(dimensions int) (*MemoryStorage, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStorage{
		dimensions: dimensions,
		docs:       make(map[string]*models.Document),
		byURL:      make(map[string]string),
		segments:   make(map[string]*segmentSet),
		now:        time.Now,
	}, nil
}

// InTx runs fn against a staging area and publishes its writes only if fn succeeds.
func (m *MemoryStorage) InTx(ctx context.Context, fn func(w Writer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		m:        m,
		docs:     make(map[string]*models.Document),
		byURL:    make(map[string]string),
		segments: make(map[string]*segmentSet),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, doc := range tx.docs {
		m.docs[id] = doc
	}
	for url, id := range tx.byURL {
		m.byURL[url] = id
	}
	for id, set := range tx.segments {
		m.segments[id] = set
	}
	return nil
}

// UpsertDocument runs a single upsert in its own transaction.
func (m *MemoryStorage) UpsertDocument(ctx context.Context, url, title string) (string, error) {
	var id string
	err := m.InTx(ctx, func(w Writer) error {
		var err error
		id, err = w.UpsertDocument(ctx, url, title)
		return err
	})
	return id, err
}

// ReplaceSegments runs a single replace in its own transaction.
func (m *MemoryStorage) ReplaceSegments(ctx context.Context, documentID string, segments []models.SegmentInput) error {
	return m.InTx(ctx, func(w Writer) error {
		return w.ReplaceSegments(ctx, documentID, segments)
	})
}

// memoryTx stages writes; m.mu is held by InTx for its whole lifetime.
type memoryTx struct {
	m        *MemoryStorage
	docs     map[string]*models.Document
	byURL    map[string]string
	segments map[string]*segmentSet
}

func (tx *memoryTx) lookupURL(url string) (string, bool) {
	if id, ok := tx.byURL[url]; ok {
		return id, true
	}
	id, ok := tx.m.byURL[url]
	return id, ok
}

func (tx *memoryTx) lookupDoc(id string) (*models.Document, bool) {
	if doc, ok := tx.docs[id]; ok {
		return doc, true
	}
	doc, ok := tx.m.docs[id]
	return doc, ok
}

func (tx *memoryTx) UpsertDocument(ctx context.Context, url, title string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("%w: url is required", models.ErrInvalidInput)
	}
	now := tx.m.now().UTC()
	title = strings.TrimSpace(title)
	if id, ok := tx.lookupURL(url); ok {
		existing, _ := tx.lookupDoc(id)
		updated := *existing
		if title != "" {
			updated.Title = title
		}
		updated.UpdatedAt = now
		tx.docs[id] = &updated
		return id, nil
	}
	id := pageid.DocID(url)
	tx.docs[id] = &models.Document{
		ID:        id,
		URL:       url,
		Title:     title,
		Lang:      models.DefaultLang,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx.byURL[url] = id
	return id, nil
}

func (tx *memoryTx) ReplaceSegments(ctx context.Context, documentID string, segments []models.SegmentInput) error {
	if err := validateSegments(segments, tx.m.dimensions); err != nil {
		return err
	}
	if _, ok := tx.lookupDoc(documentID); !ok {
		return fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	index, err := vector.NewMemoryIndex(tx.m.dimensions)
	if err != nil {
		return err
	}
	set := &segmentSet{segments: make([]*models.Segment, len(segments)), index: index}
	ids := make([]string, len(segments))
	vectors := make([][]float32, len(segments))
	for i, in := range segments {
		seg := &models.Segment{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Index:      i,
			Content:    in.Content,
			TokenCount: utf8.RuneCountInString(in.Content),
			Embedding:  append([]float32(nil), in.Embedding...),
		}
		set.segments[i] = seg
		ids[i] = seg.ID
		vectors[i] = seg.Embedding
	}
	if err := index.Add(ids, vectors); err != nil {
		return err
	}
	tx.segments[documentID] = set
	return nil
}

// QueryTopK ranks the document's segments by cosine similarity to query.
func (m *MemoryStorage) QueryTopK(ctx context.Context, documentID string, query []float32, k int) ([]*models.ScoredSegment, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", models.ErrDimensionMismatch, len(query), m.dimensions)
	}
	results := make([]*models.ScoredSegment, 0)
	if k <= 0 {
		return results, nil
	}
	m.mu.RLock()
	set, ok := m.segments[documentID]
	m.mu.RUnlock()
	if !ok {
		return results, nil
	}
	hits, err := set.index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		seg := set.segments[hit.Position]
		results = append(results, &models.ScoredSegment{
			ID:      seg.ID,
			Index:   seg.Index,
			Content: seg.Content,
			Score:   hit.Score,
		})
	}
	return results, nil
}

// GetDocument returns a document by ID.
func (m *MemoryStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	out := *doc
	return &out, nil
}

// GetDocumentByURL returns the document stored for a canonical URL.
func (m *MemoryStorage) GetDocumentByURL(ctx context.Context, url string) (*models.Document, error) {
	m.mu.RLock()
	id, ok := m.byURL[url]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document for %s: %w", url, models.ErrNotFound)
	}
	return m.GetDocument(ctx, id)
}

// ListDocuments returns documents newest first with offset and limit.
func (m *MemoryStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	m.mu.RLock()
	docs := make([]*models.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out := *doc
		docs = append(docs, &out)
	}
	m.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return []*models.Document{}, nil
	}
	docs = docs[offset:]
	if limit >= 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

// DeleteDocument removes a document and its segments.
func (m *MemoryStorage) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	delete(m.byURL, doc.URL)
	delete(m.docs, id)
	delete(m.segments, id)
	return nil
}

// GetSegmentsByDocumentID returns all segments for a document ordered by index.
func (m *MemoryStorage) GetSegmentsByDocumentID(ctx context.Context, documentID string) ([]*models.Segment, error) {
	m.mu.RLock()
	set, ok := m.segments[documentID]
	m.mu.RUnlock()
	out := make([]*models.Segment, 0)
	if !ok {
		return out, nil
	}
	for _, seg := range set.segments {
		cp := *seg
		cp.Embedding = append([]float32(nil), seg.Embedding...)
		out = append(out, &cp)
	}
	return out, nil
}

// CountDocuments returns the total number of documents.
func (m *MemoryStorage) CountDocuments(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.docs)), nil
}

// CountSegments returns the total number of segments.
func (m *MemoryStorage) CountSegments(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, set := range m.segments {
		n += int64(len(set.segments))
	}
	return n, nil
}

// Close is a no-op for MemoryStorage.
func (m *MemoryStorage) Close() error {
	return nil
}
