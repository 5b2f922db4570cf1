package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/tanya/internal/models"
)

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/ingest":
			var in models.IngestInput
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			_ = json.NewEncoder(w).Encode(models.IngestResult{DocumentID: "page:1", Title: in.Title, ChunkCount: 2})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/chat":
			_ = json.NewEncoder(w).Encode(models.AskResponse{Answer: "yes"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/retrieve":
			_ = json.NewEncoder(w).Encode(models.RetrieveResponse{Results: []*models.ScoredSegment{{ID: "s1", Content: "c"}}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/pages":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"pages": []models.Document{{ID: "page:1"}}})
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/v1/pages/"):
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "document page:2: not found"})
		case r.URL.Path == "/api/v1/status":
			_ = json.NewEncoder(w).Encode(models.StatusResponse{Documents: 1})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL+"/", 5*time.Second)

	res, err := c.Ingest(ctx, &models.IngestInput{URL: "https://x", Title: "T"})
	require.NoError(t, err)
	assert.Equal(t, "T", res.Title)

	ans, err := c.Ask(ctx, &models.AskRequest{DocumentID: "page:1", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "yes", ans.Answer)

	ret, err := c.Retrieve(ctx, &models.AskRequest{DocumentID: "page:1", Question: "q"})
	require.NoError(t, err)
	require.Len(t, ret.Results, 1)
	assert.Equal(t, "c", ret.Results[0].Content)

	pages, err := c.Pages(ctx, 0, 5)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	err = c.Delete(ctx, "page:2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "not found")

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Documents)
}
