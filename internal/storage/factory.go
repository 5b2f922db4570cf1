package storage

import (
	"fmt"

	"github.com/hyperjump/tanya/internal/config"
)

// Backend names accepted in storage.backend.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// New creates the storage backend named in cfg for embeddings of the given dimension.
func New(cfg config.StorageConfig, dimensions int) (Storage, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLiteStorage(cfg.DatabasePath, dimensions)
	case BackendMemory:
		return NewMemoryStorage(dimensions)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, memory)", cfg.Backend)
	}
}
