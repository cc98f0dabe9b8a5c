// Package gate decides whether the agent speaks at all, and with what
// attitude. It is pure: all randomness comes in through the caller's rng
// so decisions are reproducible in tests.
package gate

import (
	"fmt"

	"github.com/bonfirelabs/bonfire/internal/classify"
	"github.com/bonfirelabs/bonfire/internal/config"
)

// Decision is the gate's verdict on a single incoming message.
type Decision struct {
	Reply     bool
	Directive string
	Reason    string
}

// Input is everything the gate looks at. Tagged and Stale are computed
// upstream; Analysis comes from the classifier (possibly its fallback).
type Input struct {
	Tagged   bool
	Stale    bool
	Analysis classify.Classification
}

// Decide applies hard triggers first, then at most one soft trigger.
// Soft triggers consume exactly one draw from rng; hard triggers never
// touch it.
func Decide(in Input, rng func() float64, cfg config.GateConfig) Decision {
	if in.Tagged {
		return Decision{
			Reply:     true,
			Directive: "The user is talking directly to you. Respond to their message.",
			Reason:    "tagged",
		}
	}
	if in.Analysis.Target == classify.TargetBot {
		return Decision{
			Reply:     true,
			Directive: "The user is addressing you. Respond to what they said about you.",
			Reason:    "target_bot",
		}
	}
	if in.Stale {
		return Decision{
			Reply:     true,
			Directive: "The chat has been dead for over a day. Revive it: comment on the last message or stir something up.",
			Reason:    "revive",
		}
	}

	a := in.Analysis
	switch {
	case a.Intent == classify.IntentFlex:
		if rng() < cfg.FlexProb {
			return Decision{
				Reply:     true,
				Directive: "The user is flexing. Humble them. Find the crack in the brag and poke it.",
				Reason:    "flex",
			}
		}
		return silent("flex", cfg.FlexProb)

	case a.Intent == classify.IntentBanterDefense:
		return Decision{
			Reply:     true,
			Directive: "The user is whining about your last roast. Do not apologize. Double down, playfully.",
			Reason:    "banter_defense",
		}

	case a.Intent == classify.IntentSadness && a.Intensity >= 6:
		if rng() < cfg.SadnessProb {
			return Decision{
				Reply:     true,
				Directive: "The user is genuinely down. Drop the act for one message and be supportive, in your own voice.",
				Reason:    "sadness",
			}
		}
		return silent("sadness", cfg.SadnessProb)

	case a.Intent == classify.IntentRoast && a.Target == classify.TargetOtherUser:
		if rng() < cfg.RoastProb {
			return Decision{
				Reply:     true,
				Directive: "Two users are roasting each other. Pile on, or referee, whichever is funnier.",
				Reason:    "roast_bystander",
			}
		}
		return silent("roast_bystander", cfg.RoastProb)

	case a.Intensity >= 8:
		if rng() < cfg.HighEnergyProb {
			return Decision{
				Reply:     true,
				Directive: "The chat energy is high. Match it.",
				Reason:    "high_energy",
			}
		}
		return silent("high_energy", cfg.HighEnergyProb)
	}

	return Decision{Reason: "no_trigger"}
}

func silent(trigger string, prob float64) Decision {
	return Decision{Reason: fmt.Sprintf("%s_roll_failed_p%.2f", trigger, prob)}
}

// ShouldMemorize reports whether a message is worth feeding to the memory
// pipeline. Policy "strict" requires both an intense message and a
// memorable intent; "loose" settles for either.
func ShouldMemorize(a classify.Classification, policy string) bool {
	intense := a.Intensity > 7
	memorable := a.Intent == classify.IntentFlex || a.Intent == classify.IntentMemorize
	if policy == config.MemoryTriggerLoose {
		return intense || memorable
	}
	return intense && memorable
}
