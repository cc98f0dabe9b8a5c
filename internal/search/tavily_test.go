package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bonfirelabs/bonfire/internal/config"
)

func newTestClient(baseURL string) *Client {
	cfg := config.DefaultConfig()
	cfg.Tools.TavilyAPIKey = "tvly-test"
	return NewClient(cfg).WithBaseURL(baseURL)
}

func TestSearchSendsExpectedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req["api_key"] != "tvly-test" {
			t.Errorf("api_key = %v", req["api_key"])
		}
		if req["search_depth"] != "basic" {
			t.Errorf("search_depth = %v, want basic", req["search_depth"])
		}
		if req["max_results"] != float64(3) {
			t.Errorf("max_results = %v, want 3", req["max_results"])
		}
		fmt.Fprint(w, `{"results":[{"title":"Canberra - Wikipedia","url":"https://en.wikipedia.org/wiki/Canberra","content":"Canberra is the capital of Australia."}]}`)
	}))
	defer server.Close()

	results, err := newTestClient(server.URL).Search(context.Background(), "capital of australia")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].URL != "https://en.wikipedia.org/wiki/Canberra" {
		t.Errorf("url = %q", results[0].URL)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	if _, err := newTestClient("http://unused").Search(context.Background(), "  "); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestSearchMissingAPIKey(t *testing.T) {
	client := NewClient(config.DefaultConfig()).WithBaseURL("http://unused")
	if _, err := client.Search(context.Background(), "anything"); err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestSearchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).Search(context.Background(), "anything"); err == nil {
		t.Error("expected error for http failure")
	}
}
