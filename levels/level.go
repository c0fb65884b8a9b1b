// Package levels implements the leveling core: the read-only level registry,
// the per-player progression state machine, and the policy knobs that govern
// both.
package levels

import (
	"context"

	"cyberlevels/core"
	"cyberlevels/formula"
)

// Reward is a single handler invoked when a player first reaches a level.
// Execution (commands, items, messages) belongs to collaborators; the core
// only sequences the calls.
type Reward interface {
	GiveAll(ctx context.Context, id core.UserID)
}

// RewardFunc adapts a function to the Reward interface.
type RewardFunc func(ctx context.Context, id core.UserID)

func (f RewardFunc) GiveAll(ctx context.Context, id core.UserID) { f(ctx, id) }

// Level is an immutable-after-construction descriptor: a level number, the
// formula describing the experience threshold leading out of it, and the
// ordered rewards granted when a player first reaches it. Reward lists are
// populated during registry construction and read afterwards.
type Level[N any] struct {
	number  int64
	formula formula.Formula[N]
	custom  bool
	rewards []Reward
}

// Number returns the level's unique key.
func (l *Level[N]) Number() int64 { return l.number }

// Formula returns the bound formula (a per-level override if one was
// configured, otherwise the registry default).
func (l *Level[N]) Formula() formula.Formula[N] { return l.formula }

// HasCustomFormula reports whether this level carries its own override.
func (l *Level[N]) HasCustomFormula() bool { return l.custom }

// AddReward appends a reward handler.
func (l *Level[N]) AddReward(r Reward) { l.rewards = append(l.rewards, r) }

// ClearRewards drops all reward handlers.
func (l *Level[N]) ClearRewards() { l.rewards = nil }

// Rewards returns the reward handlers in dispatch order.
func (l *Level[N]) Rewards() []Reward {
	out := make([]Reward, len(l.rewards))
	copy(out, l.rewards)
	return out
}
