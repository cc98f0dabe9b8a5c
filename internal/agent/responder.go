// Package agent drives the reply generation: a bounded tool loop over an
// OpenAI-compatible chat completions endpoint. The loop is a small state
// machine so the step accounting stays auditable.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/config"
)

type loopState int

const (
	stateThinking loopState = iota
	stateToolExecuting
	stateResponding
	stateDone
)

// Turn is one history entry handed to the model.
type Turn struct {
	Role    string
	Content string
}

// Result is the finished reply. Sources only ever come from tool calls
// that actually succeeded. A poll is already in the message stream by the
// time the result is returned; PollMessageID points at it.
type Result struct {
	Text          string
	Sources       []chat.Source
	Poll          *chat.Poll
	PollMessageID string
	ToolCalls     []chat.ToolCallRecord
}

type Responder struct {
	apiKey       string
	baseURL      string
	model        string
	maxTokens    int
	temperature  float64
	maxToolSteps int
	tools        *Toolbelt
	httpClient   *http.Client
}

func NewResponder(cfg *config.Config, tools *Toolbelt) *Responder {
	maxSteps := cfg.Agent.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = config.DefaultMaxToolSteps
	}
	return &Responder{
		apiKey:       cfg.Provider.APIKey,
		baseURL:      cfg.Provider.BaseURL,
		model:        cfg.Agent.Model,
		maxTokens:    cfg.Agent.MaxTokens,
		temperature:  cfg.Agent.Temperature,
		maxToolSteps: maxSteps,
		tools:        tools,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type completionRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

// Respond runs the tool loop: the model may call tools for at most
// maxToolSteps rounds, then it is forced to produce text. An error here
// means no reply message; tool side effects that already landed (a posted
// poll, a status change) stay, and are reported in the result's ToolCalls
// on the happy path.
func (r *Responder) Respond(ctx context.Context, system string, history []Turn, session Session) (*Result, error) {
	messages := make([]wireMessage, 0, len(history)+1)
	messages = append(messages, wireMessage{Role: "system", Content: system})
	for _, turn := range history {
		messages = append(messages, wireMessage{Role: turn.Role, Content: turn.Content})
	}

	result := &Result{}
	steps := 0
	state := stateThinking
	var pending []wireToolCall

	for state != stateDone {
		switch state {
		case stateThinking:
			msg, err := r.complete(ctx, messages, toolSchemas, "")
			if err != nil {
				return nil, err
			}
			if len(msg.ToolCalls) > 0 && steps < r.maxToolSteps {
				messages = append(messages, *msg)
				pending = msg.ToolCalls
				state = stateToolExecuting
				continue
			}
			if len(msg.ToolCalls) > 0 {
				// Step budget exhausted but the model still wants tools:
				// force a plain answer.
				state = stateResponding
				continue
			}
			result.Text = strings.TrimSpace(msg.Content)
			state = stateDone

		case stateToolExecuting:
			steps++
			for _, call := range pending {
				outcome := r.tools.Dispatch(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments), session)
				result.ToolCalls = append(result.ToolCalls, chat.ToolCallRecord{
					Step:      steps,
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
					Success:   outcome.Success,
				})
				if outcome.Success {
					result.Sources = append(result.Sources, outcome.Sources...)
					if outcome.Poll != nil {
						result.Poll = outcome.Poll
						result.PollMessageID = outcome.MessageID
					}
				}
				messages = append(messages, wireMessage{
					Role:       "tool",
					Content:    outcome.Result,
					ToolCallID: call.ID,
					Name:       call.Function.Name,
				})
			}
			pending = nil
			state = stateThinking

		case stateResponding:
			log.Printf("[agent] tool step cap reached after %d steps, forcing final answer", steps)
			msg, err := r.complete(ctx, messages, toolSchemas, "none")
			if err != nil {
				return nil, err
			}
			result.Text = strings.TrimSpace(msg.Content)
			state = stateDone
		}
	}

	if result.Text == "" && result.Poll == nil {
		return nil, fmt.Errorf("respond: model returned empty content")
	}
	return result, nil
}

func (r *Responder) complete(ctx context.Context, messages []wireMessage, tools []map[string]any, toolChoice string) (*wireMessage, error) {
	if strings.TrimSpace(r.apiKey) == "" {
		return nil, fmt.Errorf("respond: missing api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(r.baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("respond: missing base url")
	}
	if r.model == "" {
		return nil, fmt.Errorf("respond: missing model")
	}

	payload, err := json.Marshal(completionRequest{
		Model:       r.model,
		Messages:    messages,
		Tools:       tools,
		ToolChoice:  toolChoice,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("respond: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("respond: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("respond: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("respond: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("respond: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded completionResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("respond: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("respond: empty choices in response")
	}
	return &decoded.Choices[0].Message, nil
}
