package storage

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/tanya/internal/config"
)

// DiskUsage returns the bytes used on disk by the configured backend,
// including SQLite's write-ahead log and shared-memory files.
func DiskUsage(cfg config.StorageConfig) (int64, error) {
	if cfg.Backend == BackendMemory || cfg.DatabasePath == "" {
		return 0, nil
	}
	p := cfg.DatabasePath
	return DiskUsageBytes(p, p+"-wal", p+"-shm")
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Directories are summed recursively; missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
