package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/tanya/internal/models"
)

// Client calls a running Tanya server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL (e.g. http://localhost:8080).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ingest posts input to /api/v1/ingest.
func (c *Client) Ingest(ctx context.Context, input *models.IngestInput) (*models.IngestResult, error) {
	var out models.IngestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/ingest", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask posts req to /api/v1/chat.
func (c *Client) Ask(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error) {
	var out models.AskResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Retrieve posts req to /api/v1/retrieve.
func (c *Client) Retrieve(ctx context.Context, req *models.AskRequest) (*models.RetrieveResponse, error) {
	var out models.RetrieveResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/retrieve", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pages lists documents newest first.
func (c *Client) Pages(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		Pages []*models.Document `json:"pages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/pages?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/pages/"+url.PathEscape(id), nil, nil)
}

// Status fetches /api/v1/status.
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
