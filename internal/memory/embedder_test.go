package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bonfirelabs/bonfire/internal/config"
)

func newTestEmbedder(baseURL string, dim int) Embedder {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = baseURL
	cfg.Memory.Embedding.Dimension = dim
	return NewEmbedder(cfg)
}

func embeddingServerResponse(vector []float32) string {
	resp := map[string]any{
		"data": []map[string]any{{"embedding": vector}},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestEmbedReturnsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, embeddingServerResponse([]float32{0.1, 0.2, 0.3}))
	}))
	defer server.Close()

	vector, err := newTestEmbedder(server.URL, 3).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vector) != 3 {
		t.Errorf("got %d values, want 3", len(vector))
	}
}

func TestEmbedPrefersEmbeddingBaseURL(t *testing.T) {
	embeddingServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, embeddingServerResponse([]float32{0.1, 0.2, 0.3}))
	}))
	defer embeddingServer.Close()
	chatServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("embedding call hit the chat provider endpoint")
	}))
	defer chatServer.Close()

	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = chatServer.URL
	cfg.Memory.Embedding.BaseURL = embeddingServer.URL
	cfg.Memory.Embedding.Dimension = 3

	vector, err := NewEmbedder(cfg).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vector) != 3 {
		t.Errorf("got %d values, want 3", len(vector))
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, embeddingServerResponse([]float32{0.1, 0.2}))
	}))
	defer server.Close()

	if _, err := newTestEmbedder(server.URL, 768).Embed(context.Background(), "hello"); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	if _, err := newTestEmbedder("http://unused", 3).Embed(context.Background(), "   "); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestEmbedPropagatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := newTestEmbedder(server.URL, 3).Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error for http failure")
	}
}
