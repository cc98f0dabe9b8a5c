package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bonfirelabs/bonfire/internal/config"
)

// Embedder produces a vector for a piece of text. A wrong dimension is an
// error, never silently stored.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embedderClient struct {
	apiKey      string
	baseURL     string
	model       string
	expectedDim int
	httpClient  *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func NewEmbedder(cfg *config.Config) Embedder {
	timeout := time.Duration(cfg.Memory.Embedding.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// The embedding endpoint path differs from the chat one, so the
	// provider base url is only a fallback here.
	baseURL := cfg.Memory.Embedding.BaseURL
	if baseURL == "" {
		baseURL = cfg.Provider.BaseURL
	}
	return &embedderClient{
		apiKey:      cfg.Provider.APIKey,
		baseURL:     baseURL,
		model:       cfg.Memory.Embedding.Model,
		expectedDim: cfg.Memory.Embedding.Dimension,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *embedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("embed: empty text")
	}
	if c.model == "" {
		return nil, fmt.Errorf("embed: missing embedding model")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("embed: missing base url")
	}

	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: trimmed})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: empty embedding in response")
	}

	vector := decoded.Data[0].Embedding
	if c.expectedDim > 0 && len(vector) != c.expectedDim {
		return nil, fmt.Errorf("embed: dimension mismatch: got %d want %d", len(vector), c.expectedDim)
	}
	return vector, nil
}
