package engine

import (
	"context"

	"cyberlevels/core"
	"cyberlevels/levels"
)

// Storage abstracts persistence for progression snapshots. Implementations
// must be safe for concurrent use.
type Storage interface {
	// Load fetches one snapshot; found is false when the user is unknown.
	Load(ctx context.Context, user core.UserID) (snap levels.Snapshot, found bool, err error)
	Save(ctx context.Context, snap levels.Snapshot) error
	SaveAll(ctx context.Context, snaps []levels.Snapshot) error
	Delete(ctx context.Context, user core.UserID) error
	// LoadAll streams every stored snapshot, for leaderboard rebuilds.
	LoadAll(ctx context.Context) ([]levels.Snapshot, error)
	Close() error
}

// Gate decides whether a natural experience gain is allowed at all. Admin
// operations bypass it.
type Gate interface {
	Allow(ctx context.Context, user core.UserID, source core.ExpSource) bool
}

// GateFunc adapts a plain function to a Gate.
type GateFunc func(ctx context.Context, user core.UserID, source core.ExpSource) bool

func (f GateFunc) Allow(ctx context.Context, user core.UserID, source core.ExpSource) bool {
	return f(ctx, user, source)
}

// MultiplierSource scales natural experience gains per user and source.
// A multiplier of 1 leaves the amount untouched.
type MultiplierSource interface {
	Multiplier(ctx context.Context, user core.UserID, source core.ExpSource) float64
}

// MultiplierFunc adapts a plain function to a MultiplierSource.
type MultiplierFunc func(ctx context.Context, user core.UserID, source core.ExpSource) float64

func (f MultiplierFunc) Multiplier(ctx context.Context, user core.UserID, source core.ExpSource) float64 {
	return f(ctx, user, source)
}
