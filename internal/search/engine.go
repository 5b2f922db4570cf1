// Package search answers questions about one ingested document: it embeds the
// question, retrieves the closest segments and asks the completion model.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/llm"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
)

// Engine runs retrieval and answer synthesis.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	completer    llm.Completer
	topK         int
	systemPrompt string
	temperature  float64
	logger       *zap.Logger
}

// NewEngine creates a search engine with the given dependencies. completer may be
// nil for retrieval-only use.
func NewEngine(
	storage storage.Storage,
	embedder embedding.Embedder,
	completer llm.Completer,
	cfg *config.Config,
) *Engine {
	return &Engine{
		storage:      storage,
		embedder:     embedder,
		completer:    completer,
		topK:         cfg.Retrieval.TopK,
		systemPrompt: cfg.Completion.SystemPrompt,
		temperature:  cfg.Completion.TemperatureOrDefault(),
		logger:       zap.NewNop(),
	}
}

// WithLogger sets the logger and returns e.
func (e *Engine) WithLogger(logger *zap.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Retrieve returns the k segments of documentID most similar to query, best
// first, ties broken by segment index. k <= 0 yields no results.
func (e *Engine) Retrieve(ctx context.Context, documentID string, query []float32, k int) ([]*models.ScoredSegment, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", models.ErrInvalidInput)
	}
	return e.storage.QueryTopK(ctx, documentID, query, k)
}

// RetrieveText embeds the question and retrieves segments without calling the
// completion model.
func (e *Engine) RetrieveText(ctx context.Context, req *models.AskRequest) (*models.RetrieveResponse, error) {
	start := time.Now()
	segments, err := e.retrieveForQuestion(ctx, req)
	if err != nil {
		return nil, err
	}
	return &models.RetrieveResponse{
		Results:   segments,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// Ask answers req.Question from the document's most relevant segments.
func (e *Engine) Ask(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error) {
	if e.completer == nil {
		return nil, fmt.Errorf("%w: no completion model configured", models.ErrUpstreamUnavailable)
	}
	start := time.Now()
	segments, err := e.retrieveForQuestion(ctx, req)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, len(segments))
	sources := make([]models.Source, len(segments))
	for i, s := range segments {
		contexts[i] = s.Content
		sources[i] = models.Source{ID: s.ID, Index: s.Index, Score: s.Score}
	}

	answer, err := e.completer.Complete(ctx, e.systemPrompt, BuildPrompt(req.Question, contexts), e.temperature)
	if err != nil {
		return nil, upstreamError("completion", err)
	}

	e.logger.Info("Answered question",
		zap.String("document_id", req.DocumentID),
		zap.Int("sources", len(sources)),
		zap.Duration("elapsed", time.Since(start)))
	return &models.AskResponse{
		Answer:    answer,
		Sources:   sources,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func (e *Engine) retrieveForQuestion(ctx context.Context, req *models.AskRequest) ([]*models.ScoredSegment, error) {
	if err := ProcessQuery(req, e.topK); err != nil {
		return nil, err
	}
	if _, err := e.storage.GetDocument(ctx, req.DocumentID); err != nil {
		return nil, err
	}
	query, err := e.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, upstreamError("embedding", err)
	}
	segments, err := e.Retrieve(ctx, req.DocumentID, query, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve failed: %w", err)
	}
	return segments, nil
}

// upstreamError makes sure a failed model call is classified as upstream unavailable.
func upstreamError(op string, err error) error {
	if errors.Is(err, models.ErrUpstreamUnavailable) {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return fmt.Errorf("%s failed: %w: %w", op, models.ErrUpstreamUnavailable, err)
}
