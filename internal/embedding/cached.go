package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hyperjump/tanya/internal/models"
)

// CachedEmbedder serves repeated texts from a Cache and sends only misses to the
// wrapped embedder.
type CachedEmbedder struct {
	inner Embedder
	cache Cache
	model string
}

// NewCachedEmbedder wraps inner. model namespaces the cache keys so switching
// models never returns stale vectors.
func NewCachedEmbedder(inner Embedder, cache Cache, model string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, model: model}
}

// Embed returns the embedding for text.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one embedding per text in input order. Duplicate texts
// within a batch are embedded once.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var missKeys []string
	var missTexts []string

	for i, text := range texts {
		key := CacheKey(e.model, text)
		if v, ok := e.cache.Get(key); ok {
			out[i] = slices.Clone(v)
			continue
		}
		if _, seen := pending[key]; !seen {
			missKeys = append(missKeys, key)
			missTexts = append(missTexts, text)
		}
		pending[key] = append(pending[key], i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: requested %d, got %d", models.ErrEmbeddingCountMismatch, len(missTexts), len(vecs))
	}
	for j, key := range missKeys {
		e.cache.Set(key, vecs[j])
		for _, i := range pending[key] {
			out[i] = slices.Clone(vecs[j])
		}
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close closes the wrapped embedder and the cache.
func (e *CachedEmbedder) Close() error {
	return errors.Join(e.inner.Close(), e.cache.Close())
}
