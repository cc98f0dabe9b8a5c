package chat

import "time"

// AgentUserID is the sentinel author id for messages written by the agent.
const AgentUserID = "00000000-0000-0000-0000-000000000001"

// Message kinds. Polls are regular messages with a router flag so the
// frontend can render them differently.
const (
	KindText = "text"
	KindPoll = "poll"
)

// Message is one row of a room's append-only message stream. Content and
// flags are immutable after insert; metadata is attached at creation time
// only.
type Message struct {
	ID        string
	RoomID    string
	AuthorID  string
	Content   string
	CreatedAt time.Time
	IsAgent   bool
	IsPrivate bool
	ParentID  string
	Kind      string
	Metadata  *Metadata

	// AuthorName is joined from the profiles table on reads, never stored.
	AuthorName string
}

// Metadata carries provenance for agent messages: which tools ran and which
// search results back any claims the agent made.
type Metadata struct {
	Sources   []Source         `json:"sources,omitempty"`
	ToolCalls []ToolCallRecord `json:"toolCalls,omitempty"`
	Poll      *Poll            `json:"poll,omitempty"`
}

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ToolCallRecord is one entry of the responder's tool log.
type ToolCallRecord struct {
	Step      int    `json:"step"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Success   bool   `json:"success"`
}

type Poll struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Profile is the slice of a user profile the agent works with. The core
// reads it for roast material; the status tool may write PreferredStatus
// and CustomActivity.
type Profile struct {
	ID              string
	Name            string
	Vibe            string
	Insecurity      string
	PreferredStatus string
	CustomActivity  string
}
