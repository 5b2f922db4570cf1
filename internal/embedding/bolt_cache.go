package embedding

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/vector"
)

var bucketEmbeddings = []byte("embeddings")

// BoltCache persists embeddings in a bbolt file so re-ingesting unchanged text
// costs no provider calls across restarts.
type BoltCache struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBoltCache opens (or creates) the cache file at path.
func NewBoltCache(path string, logger *zap.Logger) (*BoltCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEmbeddings); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketEmbeddings, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCache{db: db, logger: logger}, nil
}

// Get returns the stored embedding for key. Read or decode failures count as a miss.
func (c *BoltCache) Get(key string) ([]float32, bool) {
	var out []float32
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get([]byte(key))
		if data == nil {
			return nil
		}
		v, err := vector.Decode(data)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return out, out != nil
}

// Set stores value under key. Write failures are logged and otherwise ignored.
func (c *BoltCache) Set(key string, value []float32) {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put([]byte(key), vector.Encode(value))
	})
	if err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the underlying file.
func (c *BoltCache) Close() error {
	return c.db.Close()
}
