// Package memory gives the agent a long-term memory: messages worth keeping
// are distilled to a fact, embedded and stored; recall runs a similarity
// search and hands back plain text for the prompt. Every failure degrades to
// "no memory" instead of breaking the conversation.
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bonfirelabs/bonfire/internal/config"
)

type Engine struct {
	store     *Store
	sanitizer Sanitizer
	embedder  Embedder
	threshold float64
	limit     int
}

func NewEngine(store *Store, sanitizer Sanitizer, embedder Embedder, cfg *config.Config) *Engine {
	threshold := cfg.Memory.Threshold
	if threshold <= 0 {
		threshold = config.DefaultSimThreshold
	}
	limit := cfg.Memory.RecallLimit
	if limit <= 0 {
		limit = config.DefaultRecallLimit
	}
	return &Engine{
		store:     store,
		sanitizer: sanitizer,
		embedder:  embedder,
		threshold: threshold,
		limit:     limit,
	}
}

// Remember runs the sanitize -> embed -> persist pipeline for one message.
// It reports whether a fact was stored; failures are logged, never returned.
func (e *Engine) Remember(ctx context.Context, userID, roomID, rawText, speaker string) bool {
	fact := e.sanitizer.Sanitize(ctx, rawText, speaker)
	if fact == "" {
		return false
	}

	vector, err := e.embedder.Embed(ctx, fact)
	if err != nil {
		log.Printf("[memory] warning: embed fact: %v", err)
		return false
	}

	if err := e.store.Insert(&Fact{
		UserID:    userID,
		RoomID:    roomID,
		Content:   fact,
		Embedding: vector,
	}); err != nil {
		log.Printf("[memory] warning: persist fact: %v", err)
		return false
	}

	log.Printf("[memory] stored fact for user %s", userID)
	return true
}

// Recall returns relevant facts formatted as bullet lines for the prompt.
// An empty query skips the embedding call entirely.
func (e *Engine) Recall(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[memory] warning: embed query: %v", err)
		return ""
	}

	facts, err := e.store.Search(vector, e.threshold, e.limit)
	if err != nil {
		log.Printf("[memory] warning: search: %v", err)
		return ""
	}
	if len(facts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s\n", f.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
