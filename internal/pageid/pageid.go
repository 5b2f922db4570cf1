// Package pageid canonicalizes source URLs and derives deterministic document IDs from them.
package pageid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/hyperjump/tanya/internal/models"
)

const prefix = "page:"

// Canonical returns the stored form of a source URL: scheme and host lowercased,
// fragment dropped, file paths cleaned. Only http, https and file URLs are accepted.
func Canonical(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", models.ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return "", fmt.Errorf("%w: url %q has no host", models.ErrInvalidInput, raw)
		}
		u.Host = strings.ToLower(u.Host)
		if u.Path == "" {
			u.Path = "/"
		}
	case "file":
		if u.Path == "" {
			return "", fmt.Errorf("%w: url %q has no path", models.ErrInvalidInput, raw)
		}
		u.Host = ""
		u.Path = filepath.ToSlash(filepath.Clean(u.Path))
	default:
		return "", fmt.Errorf("%w: unsupported url scheme %q", models.ErrInvalidInput, u.Scheme)
	}
	return u.String(), nil
}

// DocID returns a stable document ID for a canonical URL.
// The same URL always yields the same ID.
func DocID(canonicalURL string) string {
	hash := sha256.Sum256([]byte(canonicalURL))
	return prefix + hex.EncodeToString(hash[:])
}

// FileURL returns a file:// URL for a local path, made absolute first.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
