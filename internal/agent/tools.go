package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/search"
)

const (
	toolSearchWeb    = "search_the_web"
	toolUpdateStatus = "update_profile_status"
	toolCreatePoll   = "create_poll"

	minPollOptions = 2
	maxPollOptions = 5
)

var validStatuses = map[string]bool{
	"online":    true,
	"idle":      true,
	"dnd":       true,
	"invisible": true,
}

// toolSchemas is the function-calling surface offered to the model.
var toolSchemas = []map[string]any{
	{
		"type": "function",
		"function": map[string]any{
			"name":        toolSearchWeb,
			"description": "Search the web for current information. Use for factual questions or to get specific details to joke about.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query.",
					},
				},
				"required": []string{"query"},
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        toolUpdateStatus,
			"description": "Update the current user's profile status or activity text as a prank or punchline, e.g. after roasting them.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"preferred_status": map[string]any{
						"type":        "string",
						"enum":        []string{"online", "idle", "dnd", "invisible"},
						"description": "The presence status to set on the user.",
					},
					"custom_activity": map[string]any{
						"type":        "string",
						"description": "A short activity line shown next to the user's name.",
					},
				},
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        toolCreatePoll,
			"description": "Create a poll in the chat. Use to settle arguments or put someone on the spot.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "The poll question.",
					},
					"options": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Between 2 and 5 answer options.",
					},
				},
				"required": []string{"question", "options"},
			},
		},
	},
}

// ProfileUpdater is the slice of the chat store the status tool needs.
type ProfileUpdater interface {
	UpdateProfileStatus(userID, preferredStatus, customActivity string) error
}

// MessageInserter is the slice of the chat store the poll tool needs.
type MessageInserter interface {
	InsertMessage(msg *chat.Message) error
}

// Searcher runs one web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Session scopes one turn's tool side effects: the status tool mutates
// this user's profile, the poll tool posts into this room.
type Session struct {
	UserID string
	RoomID string
}

// Outcome is what one tool execution produced. Result goes back to the
// model verbatim; Sources, Poll and MessageID are side effects the
// responder surfaces on its result.
type Outcome struct {
	Result    string
	Sources   []chat.Source
	Poll      *chat.Poll
	MessageID string
	Success   bool
}

// Toolbelt executes tool calls. The collaborators are process-wide; the
// per-turn scope arrives with each Dispatch call.
type Toolbelt struct {
	Profiles ProfileUpdater
	Messages MessageInserter
	Search   Searcher
	AgentID  string
}

// Dispatch runs the named tool. Unknown tools and bad arguments fold into a
// failure result for the model rather than an error for the caller, so a
// confused model can recover on the next step.
func (t *Toolbelt) Dispatch(ctx context.Context, name string, args json.RawMessage, session Session) Outcome {
	switch name {
	case toolSearchWeb:
		return t.searchWeb(ctx, args)
	case toolUpdateStatus:
		return t.updateStatus(args, session)
	case toolCreatePoll:
		return t.createPoll(args, session)
	default:
		return failure(fmt.Sprintf("unknown tool %q", name))
	}
}

func (t *Toolbelt) searchWeb(ctx context.Context, args json.RawMessage) Outcome {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return failure("invalid arguments: " + err.Error())
	}
	if t.Search == nil {
		return failure("search is not configured")
	}

	results, err := t.Search.Search(ctx, params.Query)
	if err != nil {
		log.Printf("[agent] warning: search tool: %v", err)
		return failure("search failed: " + err.Error())
	}

	sources := make([]chat.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, chat.Source{Title: r.Title, URL: r.URL})
	}

	payload, _ := json.Marshal(map[string]any{
		"success": true,
		"results": results,
	})
	return Outcome{Result: string(payload), Sources: sources, Success: true}
}

func (t *Toolbelt) updateStatus(args json.RawMessage, session Session) Outcome {
	var params struct {
		PreferredStatus string `json:"preferred_status"`
		CustomActivity  string `json:"custom_activity"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return failure("invalid arguments: " + err.Error())
	}

	status := strings.ToLower(strings.TrimSpace(params.PreferredStatus))
	if status != "" && !validStatuses[status] {
		return failure(fmt.Sprintf("invalid status %q: must be online, idle, dnd or invisible", params.PreferredStatus))
	}
	if status == "" && strings.TrimSpace(params.CustomActivity) == "" {
		return failure("nothing to update: pass preferred_status or custom_activity")
	}
	if session.UserID == "" {
		return failure("no user in scope for this turn")
	}
	if t.Profiles == nil {
		return failure("profiles are not configured")
	}

	if err := t.Profiles.UpdateProfileStatus(session.UserID, status, strings.TrimSpace(params.CustomActivity)); err != nil {
		log.Printf("[agent] warning: status tool: %v", err)
		return failure("status update failed: " + err.Error())
	}

	payload, _ := json.Marshal(map[string]any{"success": true})
	return Outcome{Result: string(payload), Success: true}
}

// createPoll inserts the poll message into the room right away, so the
// model gets a real message id back and can refer to the poll in its
// closing text.
func (t *Toolbelt) createPoll(args json.RawMessage, session Session) Outcome {
	var params struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return failure("invalid arguments: " + err.Error())
	}

	question := strings.TrimSpace(params.Question)
	options := make([]string, 0, len(params.Options))
	for _, opt := range params.Options {
		if trimmed := strings.TrimSpace(opt); trimmed != "" {
			options = append(options, trimmed)
		}
	}
	if question == "" {
		return failure("poll needs a question")
	}
	if len(options) < minPollOptions || len(options) > maxPollOptions {
		return failure(fmt.Sprintf("poll needs %d to %d options, got %d", minPollOptions, maxPollOptions, len(options)))
	}
	if t.Messages == nil {
		return failure("polls are not configured")
	}
	if session.RoomID == "" {
		return failure("no room in scope for this turn")
	}

	poll := &chat.Poll{Question: question, Options: options}
	msg := &chat.Message{
		RoomID:   session.RoomID,
		AuthorID: t.AgentID,
		Content:  question,
		IsAgent:  true,
		Kind:     chat.KindPoll,
		Metadata: &chat.Metadata{Poll: poll},
	}
	if err := t.Messages.InsertMessage(msg); err != nil {
		log.Printf("[agent] warning: poll tool: %v", err)
		return failure("poll creation failed: " + err.Error())
	}

	payload, _ := json.Marshal(map[string]any{"success": true, "messageId": msg.ID})
	return Outcome{
		Result:    string(payload),
		Poll:      poll,
		MessageID: msg.ID,
		Success:   true,
	}
}

func failure(reason string) Outcome {
	payload, _ := json.Marshal(map[string]any{"success": false, "error": reason})
	return Outcome{Result: string(payload)}
}
