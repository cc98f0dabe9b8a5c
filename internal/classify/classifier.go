package classify

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

const classifierPrompt = `ROLE: You are the social intelligence engine for a chat bot named "%s" in a group chat.

TASK: Analyze the CURRENT MESSAGE sent by "%s". Determine who the user is talking to and what their intent is.

--- PREVIOUS MESSAGE FOR CONTEXT ---
Last Speaker: "%s"
Last Message: "%s"
---------------

CURRENT MESSAGE:
User: "%s"
Text: "%s"

GUIDELINES:
1. TARGET DETECTION ("Who is 'you'?"):
   - If the text does not address anyone specifically, it usually refers to the last speaker.
   - If the text tags %s, "you" refers to 'bot'.
   - If the text is a direct reply to the bot's previous roast, "you" refers to 'bot'.

2. CONTEXTUAL AWARENESS (CRITICAL):
   - If the last message was a ROAST from the bot and the user says "You are mean", "Stop it", or "That hurt":
     -> This is NOT 'sadness'. This is 'banter_defense'. The user is just whining because they lost.
   - 'sadness' is RESERVED for real-life problems (job loss, breakups, bad days, depression).

3. INTENT CLASSIFICATION:
   - 'flex': Bragging (gym, money, code).
   - 'roast': Insulting/Mocking.
   - 'sadness': ONLY for serious real-life trouble.
   - 'banter_defense': User is complaining about being roasted or is playfully offended.
   - 'question': Asking for help.
   - 'joke': Banter.
   - 'memorize': User wants the bot to remember something.
   - 'noise': User is just spamming or talking nonsense.

Return a strict JSON object:
{"intensity": 1-10, "sentiment": "positive"|"negative"|"neutral", "intent": "flex"|"roast"|"sadness"|"banter_defense"|"question"|"joke"|"memorize"|"noise", "target": "self"|"other_user"|"bot"|"general", "reasoning": "brief explanation"}`

// Classifier turns a message into a Classification. Implementations must
// never fail: any trouble resolves to Fallback().
type Classifier interface {
	Classify(ctx context.Context, in Input) Classification
}

type llmClassifier struct {
	apiKey     string
	baseURL    string
	model      string
	botName    string
	mentionTag string
	httpClient *http.Client
}

func NewClassifier(cfg *config.Config) Classifier {
	return &llmClassifier{
		apiKey:     cfg.Provider.APIKey,
		baseURL:    cfg.Provider.BaseURL,
		model:      cfg.Agent.ClassifierModel,
		botName:    cfg.Agent.Name,
		mentionTag: cfg.Agent.MentionTag,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *llmClassifier) Classify(ctx context.Context, in Input) Classification {
	if strings.TrimSpace(in.Text) == "" {
		return Fallback()
	}

	content, err := c.complete(ctx, c.buildPrompt(in))
	if err != nil {
		log.Printf("[classify] warning: %v", err)
		return Fallback()
	}

	var out Classification
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		log.Printf("[classify] warning: parse classification: %v", err)
		return Fallback()
	}
	if !normalize(&out) {
		log.Printf("[classify] warning: classification out of contract: %+v", out)
		return Fallback()
	}
	return out
}

func (c *llmClassifier) buildPrompt(in Input) string {
	prevSpeaker := strings.TrimSpace(in.PrevSpeaker)
	if prevSpeaker == "" {
		prevSpeaker = "None"
	}
	prevMessage := strings.TrimSpace(in.PrevMessage)
	if prevMessage == "" {
		prevMessage = "None"
	}
	return fmt.Sprintf(classifierPrompt,
		c.botName, in.Speaker, prevSpeaker, prevMessage, in.Speaker, in.Text, c.mentionTag)
}

func (c *llmClassifier) complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("missing base url")
	}
	if c.model == "" {
		return "", fmt.Errorf("missing classifier model")
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{{
			"role":    "user",
			"content": prompt,
		}},
		"max_tokens":  512,
		"temperature": 0,
		"response_format": map[string]string{
			"type": "json_object",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("classifier http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
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
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return content, nil
}
