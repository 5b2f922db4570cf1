package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
)

// Fetcher downloads http(s) pages, and file:// URLs when allowed, and extracts them.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	allowFile bool
	extractor *Extractor
	logger    *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// AllowFile lets the fetcher read file:// URLs from the local filesystem.
// Only callers acting for the local user should set it.
func AllowFile() FetcherOption {
	return func(f *Fetcher) { f.allowFile = true }
}

// NewFetcher returns a fetcher configured by cfg. Without AllowFile it only
// fetches http and https URLs.
func NewFetcher(cfg config.FetchConfig, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		extractor: NewExtractor(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL and returns its extracted page.
// Transport failures, 429 and 5xx responses wrap models.ErrUpstreamUnavailable.
// Other 4xx responses, disallowed schemes, unreadable files and oversized
// bodies wrap models.ErrInvalidInput.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	var (
		content     []byte
		contentType string
	)
	switch u.Scheme {
	case "file":
		if !f.allowFile {
			return nil, fmt.Errorf("%w: file URLs are not allowed here", models.ErrInvalidInput)
		}
		content, err = f.readFile(u.Path)
	case "http", "https":
		content, contentType, err = f.get(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", models.ErrInvalidInput, u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	page, err := f.extractor.ExtractBytes(content, contentType, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	f.logger.Debug("Fetched page",
		zap.String("url", rawURL),
		zap.String("title", page.Title),
		zap.Int("bytes", len(content)),
		zap.Int("text_len", len(page.Text)))
	return page, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	defer file.Close()
	return f.readLimited(file)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch %s: %w", models.ErrUpstreamUnavailable, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", statusError(rawURL, resp.StatusCode)
	}
	content, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return content, resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", models.ErrUpstreamUnavailable, err)
	}
	if int64(len(content)) > f.maxBytes {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", models.ErrInvalidInput, f.maxBytes)
	}
	return content, nil
}

// statusError maps 4xx responses other than 429 to invalid input and the rest to upstream failures.
func statusError(rawURL string, status int) error {
	kind := models.ErrUpstreamUnavailable
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		kind = models.ErrInvalidInput
	}
	return fmt.Errorf("%w: fetch %s: status %d", kind, rawURL, status)
}
