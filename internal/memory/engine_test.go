package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bonfirelabs/bonfire/internal/config"
)

type fakeSanitizer struct {
	out string
}

func (f *fakeSanitizer) Sanitize(ctx context.Context, rawText, speaker string) string {
	return f.out
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func newTestEngine(t *testing.T, san Sanitizer, emb Embedder) (*Engine, *Store) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, san, emb, config.DefaultConfig()), store
}

func TestRememberStoresSanitizedFact(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	engine, store := newTestEngine(t, &fakeSanitizer{out: "alice benches 120kg"}, emb)

	if !engine.Remember(context.Background(), "user-1", "room-1", "I BENCHED 120 TODAY LOL", "alice") {
		t.Fatal("expected fact to be stored")
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("stored %d facts, want 1", n)
	}
}

func TestRememberSkipsWhenSanitizerSkips(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	engine, store := newTestEngine(t, &fakeSanitizer{out: ""}, emb)

	if engine.Remember(context.Background(), "user-1", "room-1", "lolol", "alice") {
		t.Error("expected SKIP to store nothing")
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for a skipped fact, want 0", emb.calls)
	}
	if n, _ := store.Count(); n != 0 {
		t.Errorf("stored %d facts, want 0", n)
	}
}

func TestRememberDegradesOnEmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{err: context.DeadlineExceeded}
	engine, store := newTestEngine(t, &fakeSanitizer{out: "a fact"}, emb)

	if engine.Remember(context.Background(), "user-1", "room-1", "text", "alice") {
		t.Error("expected failure to report false")
	}
	if n, _ := store.Count(); n != 0 {
		t.Errorf("stored %d facts after embed failure, want 0", n)
	}
}

func TestRecallEmptyQuerySkipsEmbedder(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	engine, _ := newTestEngine(t, &fakeSanitizer{}, emb)

	if got := engine.Recall(context.Background(), "   "); got != "" {
		t.Errorf("recall of empty query = %q, want empty", got)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for empty query, want 0", emb.calls)
	}
}

func TestRecallFormatsFacts(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	engine, store := newTestEngine(t, &fakeSanitizer{}, emb)

	for _, content := range []string{"alice benches 120kg", "alice hates cilantro"} {
		if err := store.Insert(&Fact{
			UserID:    "user-1",
			RoomID:    "room-1",
			Content:   content,
			Embedding: []float32{1, 0, 0},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got := engine.Recall(context.Background(), "what does alice lift")
	if !strings.Contains(got, "- alice benches 120kg") {
		t.Errorf("recall missing fact, got %q", got)
	}
	if len(strings.Split(got, "\n")) != 2 {
		t.Errorf("recall = %q, want 2 bullet lines", got)
	}
}

func TestRecallRespectsThresholdAndLimit(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	engine, store := newTestEngine(t, &fakeSanitizer{}, emb)

	// Orthogonal to the query: similarity 0, below the 0.1 threshold.
	if err := store.Insert(&Fact{
		UserID: "user-1", RoomID: "room-1",
		Content:   "unrelated fact",
		Embedding: []float32{0, 1, 0},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := store.Insert(&Fact{
			UserID: "user-1", RoomID: "room-1",
			Content:   "relevant fact",
			Embedding: []float32{1, 0.1, 0},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got := engine.Recall(context.Background(), "query")
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Errorf("recall returned %d lines, want recall limit 3: %q", len(lines), got)
	}
	if strings.Contains(got, "unrelated fact") {
		t.Errorf("recall included below-threshold fact: %q", got)
	}
}

func TestSearchOrdersBestMatchFirst(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	facts := []Fact{
		{UserID: "u", RoomID: "r", Content: "weak match", Embedding: []float32{1, 1, 0}},
		{UserID: "u", RoomID: "r", Content: "exact match", Embedding: []float32{1, 0, 0}},
	}
	for i := range facts {
		if err := store.Insert(&facts[i]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := store.Search([]float32{1, 0, 0}, 0.1, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d facts, want 2", len(got))
	}
	if got[0].Content != "exact match" {
		t.Errorf("best match = %q, want exact match", got[0].Content)
	}
}
