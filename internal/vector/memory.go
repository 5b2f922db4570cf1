package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/tanya/internal/models"
)

// VectorResult is a single ranking hit. Position is the insertion order of the vector.
type VectorResult struct {
	ID       string
	Position int
	Score    float64
}

// MemoryIndex is an append-only brute-force cosine index. It is not safe for
// concurrent mutation; callers build it once and then share it read-only.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Add appends vectors with the given IDs. Vectors are copied.
func (m *MemoryIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", models.ErrDimensionMismatch, len(vectors[i]), m.dimensions)
		}
	}
	for i, id := range ids {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns up to k hits ordered by cosine similarity descending, ties
// broken by insertion order. k <= 0 returns no hits.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", models.ErrDimensionMismatch, len(query), m.dimensions)
	}
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]*VectorResult, len(m.ids))
	for i, vec := range m.vectors {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			return nil, err
		}
		scores[i] = &VectorResult{ID: m.ids[i], Position: i, Score: sim}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	return len(m.ids)
}
