package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/bonfirelabs/bonfire/internal/agent"
	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/config"
)

// Recaller is the slice of the memory engine the assembler needs. A nil
// Recaller means memory is disabled.
type Recaller interface {
	Recall(ctx context.Context, query string) string
}

// Context is the conversational state the gate and responder need for one
// turn. Memory recall is deliberately not part of it: recall costs an
// embedding call and only replying turns pay for it.
type Context struct {
	History []agent.Turn
	Stale   bool
	Prev    *chat.Message
}

type assembler struct {
	store      *chat.Store
	memory     Recaller
	limit      int
	staleAfter time.Duration
}

func newAssembler(store *chat.Store, memory Recaller, cfg *config.Config) *assembler {
	limit := cfg.Gate.HistoryLimit
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	staleAfter, err := time.ParseDuration(cfg.Gate.StaleAfter)
	if err != nil || staleAfter <= 0 {
		staleAfter, _ = time.ParseDuration(config.DefaultStaleAfter)
	}
	return &assembler{store: store, memory: memory, limit: limit, staleAfter: staleAfter}
}

// Assemble builds the model context for a turn triggered by the newest
// message in the room. Failures degrade to a thinner context, never an
// error: the agent can always answer from the current message alone.
func (a *assembler) Assemble(ctx context.Context, roomID string) *Context {
	out := &Context{}

	recent, err := a.store.RecentHistory(roomID, a.limit)
	if err != nil {
		log.Printf("[pipeline] warning: fetch history: %v", err)
		recent = nil
	}

	// The newest entry is the triggering message itself, so staleness is
	// judged from the one before it. A room with no prior traffic is new,
	// not stale.
	if len(recent) > 1 {
		out.Stale = time.Since(recent[1].CreatedAt) > a.staleAfter
		out.Prev = &recent[1]
	}

	// Oldest first for the model.
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		if msg.IsAgent {
			out.History = append(out.History, agent.Turn{Role: "assistant", Content: msg.Content})
			continue
		}
		name := msg.AuthorName
		if name == "" {
			name = "user"
		}
		out.History = append(out.History, agent.Turn{Role: "user", Content: name + ": " + msg.Content})
	}

	// The history window may open on an agent message, which providers
	// reject as a leading assistant turn. Drop exactly one.
	if len(out.History) > 0 && out.History[0].Role == "assistant" {
		out.History = out.History[1:]
	}

	return out
}

// RecallMemories fetches stored facts relevant to the query. Called only
// once the gate has decided to reply.
func (a *assembler) RecallMemories(ctx context.Context, query string) string {
	if a.memory == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	return a.memory.Recall(ctx, query)
}
