package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/config"
)

// New returns the embedder selected by cfg.Provider, wrapped in a cache unless
// the provider is the mock. A cache_path selects the persistent bbolt cache;
// otherwise an in-memory LRU of cache_size entries is used.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var inner Embedder
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "openai":
		if cfg.APIKey() == "" {
			return nil, fmt.Errorf("embedding API key missing: set %s", cfg.APIKeyEnv)
		}
		inner = NewOpenAIEmbedder(cfg, logger)
	case "onnx":
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("embedding.model_path is required for the onnx provider")
		}
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	model := cfg.Provider + "/" + cfg.Model
	if cfg.Provider == "onnx" {
		model = cfg.Provider + "/" + cfg.ModelPath
	}
	if cfg.CachePath != "" {
		cache, err := NewBoltCache(cfg.CachePath, logger)
		if err != nil {
			_ = inner.Close()
			return nil, err
		}
		return NewCachedEmbedder(inner, cache, model), nil
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, NewLRUCache(cfg.CacheSize), model), nil
	}
	return inner, nil
}
