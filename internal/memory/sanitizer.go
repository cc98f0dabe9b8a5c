package memory

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

	"github.com/bonfirelabs/bonfire/internal/config"
)

const sanitizerPrompt = `You are a memory compression engine. Convert the chat message below into a single short third-person fact about the speaker, suitable for long-term storage.

Speaker: %s
Message: %s

Rules:
- Write one sentence, third person, present tense. Example: "%s claims to bench press 120kg."
- Strip greetings, filler, emoji and profanity.
- If the message contains no fact worth remembering, reply with exactly: SKIP

Reply with the sentence or SKIP, nothing else.`

// Sanitizer distills a raw chat message into a storable fact. An empty
// return means the message is not worth remembering.
type Sanitizer interface {
	Sanitize(ctx context.Context, rawText, speaker string) string
}

type llmSanitizer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewSanitizer(cfg *config.Config) Sanitizer {
	model := cfg.Memory.SanitizerModel
	if model == "" {
		model = cfg.Agent.ClassifierModel
	}
	return &llmSanitizer{
		apiKey:     cfg.Provider.APIKey,
		baseURL:    cfg.Provider.BaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Sanitize never fails the pipeline: when the model is unreachable the raw
// text is stored as-is, which beats forgetting.
func (s *llmSanitizer) Sanitize(ctx context.Context, rawText, speaker string) string {
	trimmed := strings.TrimSpace(rawText)
	if trimmed == "" {
		return ""
	}

	content, err := s.complete(ctx, fmt.Sprintf(sanitizerPrompt, speaker, trimmed, speaker))
	if err != nil {
		log.Printf("[memory] warning: sanitize failed, storing raw text: %v", err)
		return trimmed
	}

	content = strings.TrimSpace(content)
	if content == "" || strings.EqualFold(content, "SKIP") {
		return ""
	}
	return content
}

func (s *llmSanitizer) complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return "", fmt.Errorf("missing api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(s.baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("missing base url")
	}
	if s.model == "" {
		return "", fmt.Errorf("missing sanitizer model")
	}

	body := map[string]any{
		"model": s.model,
		"messages": []map[string]string{{
			"role":    "user",
			"content": prompt,
		}},
		"max_tokens":  256,
		"temperature": 0,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sanitizer http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return decoded.Choices[0].Message.Content, nil
}
