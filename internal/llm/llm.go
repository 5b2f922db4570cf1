// Package llm synthesizes answers with a chat-completion model.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/openai"
)

// Completer turns a system and user prompt into an answer.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
	Model() string
}

// Ensure OpenAICompleter implements the interface.
var _ Completer = (*OpenAICompleter)(nil)

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAICompleter calls an OpenAI-compatible /chat/completions endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAICompleter builds a completer from cfg.
func NewOpenAICompleter(cfg config.CompletionConfig, logger *zap.Logger) *OpenAICompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompleter{
		client: openai.NewClient(openai.Options{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey(),
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxRetries:        cfg.MaxRetries,
			Logger:            logger,
		}),
		model:  cfg.Model,
		logger: logger,
	}
}

// Complete sends one system and one user message and returns the trimmed reply.
func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	req := chatCompletionRequest{
		Model: c.model,
		Messages: []chatCompletionMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}

	var resp chatCompletionResponse
	if err := c.client.PostJSON(ctx, "chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", models.ErrUpstreamUnavailable, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion response", models.ErrUpstreamUnavailable)
	}

	c.logger.Debug("Completion finished",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", resp.Choices[0].FinishReason))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Model returns the configured model name.
func (c *OpenAICompleter) Model() string {
	return c.model
}

// MockCompleter returns a canned answer and records the last prompts it saw.
type MockCompleter struct {
	Answer string
	Err    error

	LastSystem      string
	LastUser        string
	LastTemperature float64
	Calls           int
}

// Complete returns m.Answer, or m.Err when set.
func (m *MockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	m.Calls++
	m.LastSystem = systemPrompt
	m.LastUser = userPrompt
	m.LastTemperature = temperature
	if m.Err != nil {
		return "", m.Err
	}
	return m.Answer, nil
}

// Model returns "mock".
func (m *MockCompleter) Model() string {
	return "mock"
}
