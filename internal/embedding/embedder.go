// Package embedding turns text into vectors via an OpenAI-compatible API, a local
// ONNX model, or a deterministic mock, with optional in-memory or on-disk caching.
package embedding

import "context"

// Embedder produces vector embeddings for text.
// EmbedBatch returns one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
