// Package pipeline is the decision path for every incoming message: classify
// it, decide whether to reply, assemble context, generate the reply,
// persist. The message store is only written once the whole turn succeeded.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"

	"github.com/bonfirelabs/bonfire/internal/agent"
	"github.com/bonfirelabs/bonfire/internal/bus"
	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/classify"
	"github.com/bonfirelabs/bonfire/internal/config"
	"github.com/bonfirelabs/bonfire/internal/gate"
	"github.com/bonfirelabs/bonfire/internal/prompt"
)

// Memory is the slice of the memory engine the runner uses. Nil disables it.
type Memory interface {
	Recaller
	Remember(ctx context.Context, userID, roomID, rawText, speaker string) bool
}

// Responder produces the agent's reply for an assembled context. The
// session scopes tool side effects to the triggering user and room.
type Responder interface {
	Respond(ctx context.Context, system string, history []agent.Turn, session agent.Session) (*agent.Result, error)
}

// Incoming is a user message that was already persisted by the transport.
type Incoming struct {
	RoomID     string
	MessageID  string
	AuthorID   string
	AuthorName string
	Text       string
}

// Outcome reports what the runner did with a message. Exactly one of
// Replied and Silent is true.
type Outcome struct {
	Replied   bool
	Silent    bool
	Reason    string
	Text      string
	MessageID string
	Poll      *chat.Poll
}

type Runner struct {
	store      *chat.Store
	classifier classify.Classifier
	memory     Memory
	responder  Responder
	bus        *bus.MessageBus
	assembler  *assembler
	cfg        *config.Config
	rng        func() float64

	mu    sync.Mutex
	rooms map[string]*sync.Mutex
}

func NewRunner(store *chat.Store, classifier classify.Classifier, memory Memory, responder Responder, b *bus.MessageBus, cfg *config.Config) *Runner {
	var recaller Recaller
	if memory != nil {
		recaller = memory
	}
	return &Runner{
		store:      store,
		classifier: classifier,
		memory:     memory,
		responder:  responder,
		bus:        b,
		assembler:  newAssembler(store, recaller, cfg),
		cfg:        cfg,
		rng:        rand.Float64,
		rooms:      make(map[string]*sync.Mutex),
	}
}

// SetRand overrides the reply gate's randomness source. Used by tests.
func (r *Runner) SetRand(rng func() float64) {
	r.rng = rng
}

func (r *Runner) roomLock(roomID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.rooms[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.rooms[roomID] = lock
	}
	return lock
}

// Handle runs the full pipeline for one incoming message. Silence is a
// normal outcome, not an error; errors mean the agent wanted to reply and
// could not.
func (r *Runner) Handle(ctx context.Context, in Incoming) (*Outcome, error) {
	tagged := strings.Contains(strings.ToLower(in.Text), strings.ToLower(r.cfg.Agent.MentionTag))

	assembled := r.assembler.Assemble(ctx, in.RoomID)

	clsIn := classify.Input{Text: in.Text, Speaker: in.AuthorName}
	if assembled.Prev != nil {
		clsIn.PrevMessage = assembled.Prev.Content
		clsIn.PrevSpeaker = assembled.Prev.AuthorName
		if assembled.Prev.IsAgent {
			clsIn.PrevSpeaker = r.cfg.Agent.Name
		}
	}
	analysis := r.classifier.Classify(ctx, clsIn)
	log.Printf("[pipeline] room=%s intent=%s target=%s intensity=%d", in.RoomID, analysis.Intent, analysis.Target, analysis.Intensity)

	// Memory capture runs off the reply path so a slow embedding call
	// never delays the answer.
	if r.memory != nil && gate.ShouldMemorize(analysis, r.cfg.Memory.Trigger) {
		go func(in Incoming) {
			r.memory.Remember(context.Background(), in.AuthorID, in.RoomID, in.Text, in.AuthorName)
		}(in)
	}

	decision := gate.Decide(gate.Input{
		Tagged:   tagged,
		Stale:    assembled.Stale,
		Analysis: analysis,
	}, r.rng, r.cfg.Gate)
	if !decision.Reply {
		return &Outcome{Silent: true, Reason: decision.Reason}, nil
	}

	lock := r.roomLock(in.RoomID)
	if !lock.TryLock() {
		// Another reply for this room is in flight; piling a second one
		// on top reads deranged.
		return &Outcome{Silent: true, Reason: "busy"}, nil
	}
	defer lock.Unlock()

	// Recall only runs for turns that will actually produce a reply; the
	// silent path never pays for an embedding call.
	memories := r.assembler.RecallMemories(ctx, in.Text)

	profile, err := r.store.Profile(in.AuthorID)
	if err != nil {
		log.Printf("[pipeline] warning: load profile %s: %v", in.AuthorID, err)
		profile = nil
	}

	roomName := ""
	if room, err := r.store.Room(in.RoomID); err == nil && room != nil {
		roomName = room.Name
	}

	system := prompt.Build(prompt.Input{
		AgentName: r.cfg.Agent.Name,
		RoomName:  roomName,
		Directive: decision.Directive,
		Memories:  memories,
		Profile:   profile,
	})

	session := agent.Session{UserID: in.AuthorID, RoomID: in.RoomID}
	result, err := r.responder.Respond(ctx, system, assembled.History, session)
	if err != nil {
		return nil, fmt.Errorf("handle message %s: %w", in.MessageID, err)
	}

	// Polls were already inserted by the tool at dispatch time; the text
	// reply is a separate message. A poll with no commentary is a valid
	// complete turn.
	if result.Text == "" {
		return &Outcome{
			Replied:   true,
			Reason:    decision.Reason,
			MessageID: result.PollMessageID,
			Poll:      result.Poll,
		}, nil
	}

	reply := &chat.Message{
		RoomID:   in.RoomID,
		AuthorID: chat.AgentUserID,
		Content:  result.Text,
		IsAgent:  true,
		ParentID: in.MessageID,
		Kind:     chat.KindText,
	}
	if len(result.Sources) > 0 || len(result.ToolCalls) > 0 {
		reply.Metadata = &chat.Metadata{
			Sources:   result.Sources,
			ToolCalls: result.ToolCalls,
		}
	}
	if err := r.store.InsertMessage(reply); err != nil {
		return nil, fmt.Errorf("persist reply: %w", err)
	}

	if r.bus != nil {
		r.bus.PublishOutbound(bus.OutboundMessage{
			RoomID:  in.RoomID,
			Content: result.Text,
			ReplyTo: in.MessageID,
		})
	}

	return &Outcome{
		Replied:   true,
		Reason:    decision.Reason,
		Text:      result.Text,
		MessageID: reply.ID,
		Poll:      result.Poll,
	}, nil
}
