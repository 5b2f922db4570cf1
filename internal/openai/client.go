// Package openai is a minimal client for OpenAI-compatible HTTP APIs, shared by
// the embedding and completion adapters.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
)

// maxErrorBody bounds how much of an error response is kept in the error message.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	Logger            *zap.Logger
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client posts JSON to an OpenAI-compatible endpoint with rate limiting and retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
}

// NewClient returns a client for opts.BaseURL. A non-positive RequestsPerSecond disables rate limiting.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: hc,
		limiter:    limiter,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether a response status is worth retrying.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// PostJSON sends in as JSON to path and decodes the response into out.
// 429, 5xx and transport errors are retried up to MaxRetries times; the final
// error wraps models.ErrUpstreamUnavailable.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
		}

		delay, err := c.do(ctx, url, body, out, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if delay < 0 || attempt == c.maxRetries {
			break
		}
		c.logger.Debug("Retrying upstream request",
			zap.String("url", url), zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		if err := utils.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, lastErr)
}

// do performs a single attempt. A negative delay means the error is final.
func (c *Client) do(ctx context.Context, url string, body []byte, out any, attempt int) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return -1, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return -1, err
		}
		return utils.RetryDelay(attempt), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if retryable(resp.StatusCode) {
			return utils.RetryAfter(resp.Header, attempt), statusErr
		}
		return -1, statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return -1, fmt.Errorf("decode response: %w", err)
	}
	return 0, nil
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
