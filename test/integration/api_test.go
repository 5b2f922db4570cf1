// Package integration runs the HTTP API over SQLite against a fake OpenAI-compatible upstream.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/cli"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/llm"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/pageid"
	"github.com/hyperjump/tanya/internal/search"
	"github.com/hyperjump/tanya/internal/server"
	"github.com/hyperjump/tanya/internal/storage"
)

const dims = 16

// fakeUpstream serves /embeddings and /chat/completions the way the OpenAI API does.
type fakeUpstream struct {
	embedCalls atomic.Int64

	mu         sync.Mutex
	lastChat   map[string]interface{}
	lastAuth   string
	embedder   *embedding.MockEmbedder
	chatAnswer string
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastAuth = r.Header.Get("Authorization")
	f.mu.Unlock()

	switch r.URL.Path {
	case "/v1/embeddings":
		f.embedCalls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]interface{}, len(req.Input))
		for i, text := range req.Input {
			vec, _ := f.embedder.Embed(r.Context(), text)
			data[i] = map[string]interface{}{"index": i, "embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	case "/v1/chat/completions":
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastChat = req
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "  " + f.chatAnswer + "\n"}},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func setup(t *testing.T) (*cli.Client, *fakeUpstream, *config.Config) {
	t.Helper()
	upstream := &fakeUpstream{embedder: embedding.NewMockEmbedder(dims), chatAnswer: "Go was designed at Google."}
	upstreamSrv := httptest.NewServer(upstream)
	t.Cleanup(upstreamSrv.Close)

	t.Setenv("TANYA_IT_API_KEY", "sk-integration")
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "tanya.db")
	cfg.Embedding.BaseURL = upstreamSrv.URL + "/v1"
	cfg.Embedding.APIKeyEnv = "TANYA_IT_API_KEY"
	cfg.Embedding.Dimensions = dims
	cfg.Embedding.BatchSize = 4
	cfg.Embedding.RequestsPerSecond = 0
	cfg.Completion.BaseURL = upstreamSrv.URL + "/v1"
	cfg.Completion.APIKeyEnv = "TANYA_IT_API_KEY"
	cfg.Completion.RequestsPerSecond = 0
	cfg.Chunking.MaxLen = 120
	cfg.Chunking.Overlap = 20

	logger := zap.NewNop()
	store, err := storage.New(cfg.Storage, dims)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder, err := embedding.New(cfg.Embedding, logger)
	require.NoError(t, err)
	t.Cleanup(func() { embedder.Close() })

	completer := llm.NewOpenAICompleter(cfg.Completion, logger)
	idx := indexer.NewIndexer(store, embedder,
		indexer.NewChunker(cfg.Chunking.MaxLen, cfg.Chunking.Overlap),
		indexer.WithFetcher(extract.NewFetcher(cfg.Fetch, logger)),
	)
	engine := search.NewEngine(store, embedder, completer, cfg)

	api := httptest.NewServer(server.NewServer(engine, idx, store, cfg, logger).Router())
	t.Cleanup(api.Close)
	return cli.NewClient(api.URL, 0), upstream, cfg
}

const goArticle = `Go is a statically typed, compiled programming language designed at Google by Robert Griesemer, Rob Pike, and Ken Thompson.

It is syntactically similar to C, but also has memory safety, garbage collection, structural typing, and CSP-style concurrency.

It is often referred to as Golang to avoid ambiguity and because of its former domain name, golang.org, but its proper name is Go.`

func TestIntegration_IngestAskDelete(t *testing.T) {
	client, upstream, cfg := setup(t)
	ctx := context.Background()

	res, err := client.Ingest(ctx, &models.IngestInput{URL: "https://Example.com/wiki/Go#History", Title: "Go", Text: goArticle})
	require.NoError(t, err)
	assert.Equal(t, pageid.DocID("https://example.com/wiki/Go"), res.DocumentID)
	assert.Greater(t, res.ChunkCount, 1)

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Alan Turing</title></head>
<body><main><p>Alan Turing was an English mathematician.</p><p>He formalised computation with the Turing machine.</p></main></body></html>`))
	}))
	defer site.Close()
	turing, err := client.Ingest(ctx, &models.IngestInput{URL: site.URL + "/wiki/Alan_Turing"})
	require.NoError(t, err)
	assert.Equal(t, "Alan Turing", turing.Title)
	assert.Equal(t, 1, turing.ChunkCount)

	pages, err := client.Pages(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	ans, err := client.Ask(ctx, &models.AskRequest{DocumentID: res.DocumentID, Question: "Who designed Go?", TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, "Go was designed at Google.", ans.Answer)
	assert.Len(t, ans.Sources, 2)

	upstream.mu.Lock()
	chat := upstream.lastChat
	auth := upstream.lastAuth
	upstream.mu.Unlock()
	assert.Equal(t, "Bearer sk-integration", auth)
	assert.Equal(t, cfg.Completion.Model, chat["model"])
	assert.InDelta(t, 0.2, chat["temperature"], 1e-9)
	msgs, ok := chat["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, config.DefaultSystemPrompt, msgs[0].(map[string]interface{})["content"])
	user := msgs[1].(map[string]interface{})["content"].(string)
	assert.True(t, strings.HasPrefix(user, "Context:\n[1] "))
	assert.True(t, strings.HasSuffix(user, "\n\nQuestion: Who designed Go?"))

	retrieved, err := client.Retrieve(ctx, &models.AskRequest{DocumentID: turing.DocumentID, Question: "machine"})
	require.NoError(t, err)
	require.Len(t, retrieved.Results, 1)
	assert.Contains(t, retrieved.Results[0].Content, "Turing machine")

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Documents)
	assert.Greater(t, status.DiskUsageBytes, int64(0))

	require.NoError(t, client.Delete(ctx, turing.DocumentID))
	_, err = client.Ask(ctx, &models.AskRequest{DocumentID: turing.DocumentID, Question: "machine"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestIntegration_ReingestUsesEmbeddingCache(t *testing.T) {
	client, upstream, _ := setup(t)
	ctx := context.Background()

	input := &models.IngestInput{URL: "https://example.com/wiki/Go", Text: goArticle}
	first, err := client.Ingest(ctx, input)
	require.NoError(t, err)
	calls := upstream.embedCalls.Load()
	require.Greater(t, calls, int64(0))

	second, err := client.Ingest(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.Equal(t, calls, upstream.embedCalls.Load(), "identical segments should be served from the cache")
}

func TestIntegration_ErrorStatuses(t *testing.T) {
	client, _, _ := setup(t)
	ctx := context.Background()

	_, err := client.Ingest(ctx, &models.IngestInput{URL: "ftp://example.com/x", Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	secret := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("host file content"), 0600))
	secretURL, err := pageid.FileURL(secret)
	require.NoError(t, err)
	_, err = client.Ingest(ctx, &models.IngestInput{URL: secretURL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	pages, err := client.Pages(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pages)

	_, err = client.Ingest(ctx, &models.IngestInput{URL: "https://example.com/empty", Text: "   \n\t "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")

	_, err = client.Ask(ctx, &models.AskRequest{DocumentID: "page:missing", Question: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = client.Ask(ctx, &models.AskRequest{Question: "no document"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
