package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventExpGained    EventType = "exp_gained"
	EventExpLost      EventType = "exp_lost"
	EventLevelUp      EventType = "level_up"
	EventLevelDown    EventType = "level_down"
	EventRewardIssued EventType = "reward_issued"
)

// Event represents an immutable domain event. Experience amounts are carried
// as strings already formatted by the active numeric policy, so events stay
// independent of the deployment's numeric representation.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	UserID   UserID         `json:"user_id"`
	Amount   string         `json:"amount,omitempty"`
	Total    string         `json:"total,omitempty"`
	Level    int64          `json:"level,omitempty"`
	Levels   int64          `json:"levels,omitempty"`
	Source   ExpSource      `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewExpGained reports a net experience gain. amount is the applied delta,
// total the experience held at the resulting level.
func NewExpGained(user UserID, amount, total string, level, levels int64, source ExpSource) Event {
	return Event{Type: EventExpGained, Time: time.Now().UTC(), UserID: user, Amount: amount, Total: total, Level: level, Levels: levels, Source: source}
}

// NewExpLost reports a net experience loss.
func NewExpLost(user UserID, amount, total string, level, levels int64, source ExpSource) Event {
	return Event{Type: EventExpLost, Time: time.Now().UTC(), UserID: user, Amount: amount, Total: total, Level: level, Levels: levels, Source: source}
}

// NewLevelUp reports that a user finished a call at a higher level.
func NewLevelUp(user UserID, level, gained int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level, Levels: gained}
}

// NewLevelDown reports that a user finished a call at a lower level.
func NewLevelDown(user UserID, level, lost int64) Event {
	return Event{Type: EventLevelDown, Time: time.Now().UTC(), UserID: user, Level: level, Levels: lost}
}

// NewRewardIssued reports that the rewards of a crossed level were dispatched.
func NewRewardIssued(user UserID, level int64) Event {
	return Event{Type: EventRewardIssued, Time: time.Now().UTC(), UserID: user, Level: level}
}
