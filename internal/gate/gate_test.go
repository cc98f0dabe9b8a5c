package gate

import (
	"testing"

	"github.com/bonfirelabs/bonfire/internal/classify"
	"github.com/bonfirelabs/bonfire/internal/config"
)

func testGateConfig() config.GateConfig {
	return config.DefaultConfig().Gate
}

// fixedRng returns the given value forever and counts calls.
func fixedRng(v float64, calls *int) func() float64 {
	return func() float64 {
		*calls++
		return v
	}
}

func TestTaggedAlwaysReplies(t *testing.T) {
	calls := 0
	d := Decide(Input{
		Tagged:   true,
		Analysis: classify.Fallback(),
	}, fixedRng(0.99, &calls), testGateConfig())

	if !d.Reply {
		t.Fatal("tagged message must always get a reply")
	}
	if calls != 0 {
		t.Errorf("hard trigger consumed %d rng draws, want 0", calls)
	}
	if d.Reason != "tagged" {
		t.Errorf("reason = %q, want tagged", d.Reason)
	}
}

func TestTargetBotAlwaysReplies(t *testing.T) {
	calls := 0
	d := Decide(Input{
		Analysis: classify.Classification{
			Intensity: 2,
			Sentiment: classify.SentimentNegative,
			Intent:    classify.IntentRoast,
			Target:    classify.TargetBot,
		},
	}, fixedRng(0.99, &calls), testGateConfig())

	if !d.Reply || d.Reason != "target_bot" {
		t.Errorf("got %+v, want reply with reason target_bot", d)
	}
	if calls != 0 {
		t.Errorf("hard trigger consumed %d rng draws, want 0", calls)
	}
}

func TestStaleChatRevives(t *testing.T) {
	calls := 0
	d := Decide(Input{
		Stale:    true,
		Analysis: classify.Fallback(),
	}, fixedRng(0.99, &calls), testGateConfig())

	if !d.Reply || d.Reason != "revive" {
		t.Errorf("got %+v, want reply with reason revive", d)
	}
	if calls != 0 {
		t.Errorf("hard trigger consumed %d rng draws, want 0", calls)
	}
}

func TestHardTriggerOrderTaggedBeforeTargetBot(t *testing.T) {
	d := Decide(Input{
		Tagged: true,
		Stale:  true,
		Analysis: classify.Classification{
			Intensity: 5,
			Sentiment: classify.SentimentNeutral,
			Intent:    classify.IntentJoke,
			Target:    classify.TargetBot,
		},
	}, fixedRng(0.5, new(int)), testGateConfig())

	if d.Reason != "tagged" {
		t.Errorf("reason = %q, want tagged to win over target_bot and revive", d.Reason)
	}
}

func TestFlexRollBothBranches(t *testing.T) {
	flex := classify.Classification{
		Intensity: 5,
		Sentiment: classify.SentimentPositive,
		Intent:    classify.IntentFlex,
		Target:    classify.TargetSelf,
	}

	d := Decide(Input{Analysis: flex}, fixedRng(0.69, new(int)), testGateConfig())
	if !d.Reply || d.Reason != "flex" {
		t.Errorf("draw below 0.70 should reply, got %+v", d)
	}

	d = Decide(Input{Analysis: flex}, fixedRng(0.71, new(int)), testGateConfig())
	if d.Reply {
		t.Errorf("draw above 0.70 should stay silent, got %+v", d)
	}
}

func TestBanterDefenseAlwaysFires(t *testing.T) {
	d := Decide(Input{
		Analysis: classify.Classification{
			Intensity: 6,
			Sentiment: classify.SentimentNegative,
			Intent:    classify.IntentBanterDefense,
			Target:    classify.TargetGeneral,
		},
	}, fixedRng(0.9999, new(int)), testGateConfig())

	if !d.Reply || d.Reason != "banter_defense" {
		t.Errorf("banter defense must always reply, got %+v", d)
	}
}

func TestSadnessRequiresIntensity(t *testing.T) {
	sad := classify.Classification{
		Sentiment: classify.SentimentNegative,
		Intent:    classify.IntentSadness,
		Target:    classify.TargetSelf,
	}

	sad.Intensity = 5
	d := Decide(Input{Analysis: sad}, fixedRng(0.0, new(int)), testGateConfig())
	if d.Reply {
		t.Errorf("sadness below intensity 6 must not fire, got %+v", d)
	}

	sad.Intensity = 6
	d = Decide(Input{Analysis: sad}, fixedRng(0.39, new(int)), testGateConfig())
	if !d.Reply || d.Reason != "sadness" {
		t.Errorf("sadness at intensity 6 with winning draw should reply, got %+v", d)
	}

	d = Decide(Input{Analysis: sad}, fixedRng(0.41, new(int)), testGateConfig())
	if d.Reply {
		t.Errorf("sadness losing draw should stay silent, got %+v", d)
	}
}

func TestRoastOfOtherUser(t *testing.T) {
	roast := classify.Classification{
		Intensity: 5,
		Sentiment: classify.SentimentNegative,
		Intent:    classify.IntentRoast,
		Target:    classify.TargetOtherUser,
	}

	d := Decide(Input{Analysis: roast}, fixedRng(0.49, new(int)), testGateConfig())
	if !d.Reply || d.Reason != "roast_bystander" {
		t.Errorf("got %+v, want roast_bystander reply", d)
	}

	// Roasting the bot is a hard trigger, not this roll.
	roast.Target = classify.TargetBot
	d = Decide(Input{Analysis: roast}, fixedRng(0.99, new(int)), testGateConfig())
	if !d.Reply || d.Reason != "target_bot" {
		t.Errorf("got %+v, want target_bot", d)
	}
}

func TestHighEnergyCatchAll(t *testing.T) {
	loud := classify.Classification{
		Intensity: 8,
		Sentiment: classify.SentimentPositive,
		Intent:    classify.IntentJoke,
		Target:    classify.TargetGeneral,
	}

	d := Decide(Input{Analysis: loud}, fixedRng(0.59, new(int)), testGateConfig())
	if !d.Reply || d.Reason != "high_energy" {
		t.Errorf("got %+v, want high_energy reply", d)
	}

	d = Decide(Input{Analysis: loud}, fixedRng(0.61, new(int)), testGateConfig())
	if d.Reply {
		t.Errorf("losing high energy draw should stay silent, got %+v", d)
	}
}

func TestFlexWinsOverHighEnergy(t *testing.T) {
	// A max-intensity flex matches the flex trigger, not the catch-all.
	d := Decide(Input{
		Analysis: classify.Classification{
			Intensity: 10,
			Sentiment: classify.SentimentPositive,
			Intent:    classify.IntentFlex,
			Target:    classify.TargetSelf,
		},
	}, fixedRng(0.65, new(int)), testGateConfig())

	// 0.65 < 0.70 (flex) but > 0.60 (high energy): the flex roll decides.
	if !d.Reply || d.Reason != "flex" {
		t.Errorf("got %+v, want flex trigger to match first", d)
	}
}

func TestSingleDrawPerDecision(t *testing.T) {
	calls := 0
	Decide(Input{
		Analysis: classify.Classification{
			Intensity: 10,
			Sentiment: classify.SentimentPositive,
			Intent:    classify.IntentFlex,
			Target:    classify.TargetSelf,
		},
	}, fixedRng(0.99, &calls), testGateConfig())

	if calls != 1 {
		t.Errorf("soft trigger consumed %d rng draws, want exactly 1", calls)
	}
}

func TestQuietMessageNoTrigger(t *testing.T) {
	calls := 0
	d := Decide(Input{
		Analysis: classify.Classification{
			Intensity: 3,
			Sentiment: classify.SentimentNeutral,
			Intent:    classify.IntentNoise,
			Target:    classify.TargetGeneral,
		},
	}, fixedRng(0.0, &calls), testGateConfig())

	if d.Reply {
		t.Errorf("noise should never reply, got %+v", d)
	}
	if calls != 0 {
		t.Errorf("no trigger matched but %d draws consumed", calls)
	}
	if d.Reason != "no_trigger" {
		t.Errorf("reason = %q, want no_trigger", d.Reason)
	}
}

func TestShouldMemorize(t *testing.T) {
	tests := []struct {
		name      string
		intensity int
		intent    classify.Intent
		policy    string
		want      bool
	}{
		{"strict both", 8, classify.IntentFlex, config.MemoryTriggerStrict, true},
		{"strict intense only", 8, classify.IntentJoke, config.MemoryTriggerStrict, false},
		{"strict intent only", 4, classify.IntentMemorize, config.MemoryTriggerStrict, false},
		{"strict neither", 4, classify.IntentJoke, config.MemoryTriggerStrict, false},
		{"loose intense only", 8, classify.IntentJoke, config.MemoryTriggerLoose, true},
		{"loose intent only", 4, classify.IntentMemorize, config.MemoryTriggerLoose, true},
		{"loose neither", 4, classify.IntentJoke, config.MemoryTriggerLoose, false},
		{"boundary intensity 7 strict", 7, classify.IntentFlex, config.MemoryTriggerStrict, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := classify.Classification{Intensity: tt.intensity, Intent: tt.intent}
			if got := ShouldMemorize(a, tt.policy); got != tt.want {
				t.Errorf("ShouldMemorize(%d, %s, %s) = %v, want %v",
					tt.intensity, tt.intent, tt.policy, got, tt.want)
			}
		})
	}
}
