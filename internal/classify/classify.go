// Package classify scores every incoming room message for social intent,
// emotional intensity and conversational target. The result feeds the reply
// gate; it is produced fresh per message and never cached.
package classify

import "strings"

type Intent string

const (
	IntentFlex          Intent = "flex"
	IntentRoast         Intent = "roast"
	IntentSadness       Intent = "sadness"
	IntentQuestion      Intent = "question"
	IntentJoke          Intent = "joke"
	IntentNoise         Intent = "noise"
	IntentMemorize      Intent = "memorize"
	IntentBanterDefense Intent = "banter_defense"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type Target string

const (
	TargetSelf      Target = "self"
	TargetOtherUser Target = "other_user"
	TargetBot       Target = "bot"
	TargetGeneral   Target = "general"
)

type Classification struct {
	Intensity int       `json:"intensity"`
	Sentiment Sentiment `json:"sentiment"`
	Intent    Intent    `json:"intent"`
	Target    Target    `json:"target"`
	Reasoning string    `json:"reasoning"`
}

// Input is one message plus the short prior-turn context the model needs
// for target disambiguation. Prev fields are optional.
type Input struct {
	Text        string
	Speaker     string
	PrevMessage string
	PrevSpeaker string
}

// Fallback is the deterministic classification used whenever the model call
// fails or returns garbage. Intensity 0 and intent noise route the message
// toward silence without ever failing the pipeline.
func Fallback() Classification {
	return Classification{
		Intensity: 0,
		Sentiment: SentimentNeutral,
		Intent:    IntentNoise,
		Target:    TargetGeneral,
		Reasoning: "error",
	}
}

func validIntent(i Intent) bool {
	switch i {
	case IntentFlex, IntentRoast, IntentSadness, IntentQuestion,
		IntentJoke, IntentNoise, IntentMemorize, IntentBanterDefense:
		return true
	}
	return false
}

func validSentiment(s Sentiment) bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

func validTarget(t Target) bool {
	switch t {
	case TargetSelf, TargetOtherUser, TargetBot, TargetGeneral:
		return true
	}
	return false
}

// normalize lowercases and validates a raw model classification, returning
// false when any field is outside the contract.
func normalize(c *Classification) bool {
	c.Sentiment = Sentiment(strings.ToLower(strings.TrimSpace(string(c.Sentiment))))
	c.Intent = Intent(strings.ToLower(strings.TrimSpace(string(c.Intent))))
	c.Target = Target(strings.ToLower(strings.TrimSpace(string(c.Target))))

	if c.Intensity < 1 || c.Intensity > 10 {
		return false
	}
	return validIntent(c.Intent) && validSentiment(c.Sentiment) && validTarget(c.Target)
}
