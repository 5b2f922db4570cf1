package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/pageid"
)

func testFetcher(maxBytes int64, opts ...FetcherOption) *Fetcher {
	return NewFetcher(config.FetchConfig{UserAgent: "tanya-test", Timeout: 5 * time.Second, MaxBytes: maxBytes}, nil, opts...)
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tanya-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Hello</title></head><body><p>World</p></body></html>`))
	}))
	defer srv.Close()

	page, err := testFetcher(0).Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Hello", page.Title)
	assert.Equal(t, "World", page.Text)
}

func TestFetch_HTTPErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, models.ErrInvalidInput},
		{http.StatusGone, models.ErrInvalidInput},
		{http.StatusForbidden, models.ErrInvalidInput},
		{http.StatusTooManyRequests, models.ErrUpstreamUnavailable},
		{http.StatusInternalServerError, models.ErrUpstreamUnavailable},
		{http.StatusServiceUnavailable, models.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := testFetcher(0).Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "status %d: %v", tt.status, err)
		})
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	_, err := testFetcher(10).Fetch(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestFetch_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide\n\nStep one."), 0644))

	fileURL, err := pageid.FileURL(path)
	require.NoError(t, err)
	page, err := testFetcher(0, AllowFile()).Fetch(context.Background(), fileURL)
	require.NoError(t, err)
	assert.Equal(t, "Guide", page.Title)
	assert.Contains(t, page.Text, "Step one.")

	missing, err := pageid.FileURL(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	_, err = testFetcher(0, AllowFile()).Fetch(context.Background(), missing)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestFetch_FileRejectedByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("host file content"), 0600))
	fileURL, err := pageid.FileURL(path)
	require.NoError(t, err)

	page, err := testFetcher(0).Fetch(context.Background(), fileURL)
	assert.Nil(t, page)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	_, err := testFetcher(0).Fetch(context.Background(), "ftp://example.com/a")
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}
