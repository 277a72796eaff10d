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

// OllamaEmbedder implements domain.Embedder against {base}/api/embed,
// carried over verbatim from the teacher's
// internal/adapter/rag_augur.OllamaEmbedder (adapted: this system embeds
// single queries rather than ingestion batches).
type OllamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder constructs an OllamaEmbedder.
func NewOllamaEmbedder(baseURL, model string, timeoutSeconds int, logger *slog.Logger) *OllamaEmbedder {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		logger:     logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Encode computes dense embeddings for the given texts.
func (e *OllamaEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}

	e.logger.Info("embed_started", slog.Int("count", len(texts)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("embed_failed", slog.Any("error", err))
		return nil, fmt.Errorf("embedder: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.logger.Warn("embed_failed", slog.Any("error", err))
		return nil, fmt.Errorf("embedder: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("embed_failed", slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("embedder: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		e.logger.Warn("embed_failed", slog.Any("error", err))
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}

	e.logger.Info("embed_completed")
	return out.Embeddings, nil
}
