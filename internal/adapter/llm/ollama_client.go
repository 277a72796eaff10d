// Package llm adapts the Ollama-style HTTP generate endpoint
// (spec.md §6) to the domain.LLMClient port, grounded on the teacher's
// internal/adapter/rag_augur.OllamaEmbedder request/response/logging
// shape.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"taxauditrag/internal/domain"
)

// OllamaClient implements domain.LLMClient against {base}/api/generate.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.LLMClient = (*OllamaClient)(nil)

// NewOllamaClient constructs an OllamaClient whose request timeout is
// timeoutSeconds; a non-positive value falls back to 60s, the spec.md §6
// LLM backend timeout.
func NewOllamaClient(baseURL, model string, timeoutSeconds int, logger *slog.Logger) *OllamaClient {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		logger:     logger,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate issues a single non-streaming completion call.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	format := ""
	if jsonMode {
		format = "json"
	}
	reqBody := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Format:  format,
		Options: generateOptions{Temperature: 0.1},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	c.logger.Info("llm_generate_started", slog.String("model", c.model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("llm_generate_failed", slog.Any("error", err))
		return "", fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("llm_generate_failed", slog.Any("error", err))
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("llm_generate_failed", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("llm: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		c.logger.Warn("llm_generate_failed", slog.Any("error", err))
		return "", fmt.Errorf("llm: decode response: %w", err)
	}

	c.logger.Info("llm_generate_completed")
	return out.Response, nil
}
