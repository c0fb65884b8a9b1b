// Package leaderboard maintains the ranked top players over all tracked
// progression states. Ordering is level first, then experience; players with
// identical standing carry no meaningful relative order.
package leaderboard

import (
	"sync"
	"sync/atomic"

	"cyberlevels/core"
	"cyberlevels/numeric"
)

// Capacity is the fixed size of the visible board.
const Capacity = 10

// Entry is a point-in-time snapshot of one player's standing. It is computed
// from the live progression state and used for ordering only.
type Entry[N any] struct {
	User  core.UserID
	Name  string
	Level int64
	Exp   N
}

// Board keeps the visible top entries current through two converging paths:
// a coalesced full rebuild over every tracked player, and an incremental
// in-place update for a single player after a state change.
type Board[N any] struct {
	op numeric.Operator[N]

	// source snapshots every tracked player for a full rebuild.
	source func() []Entry[N]

	mu  sync.Mutex
	top []Entry[N]

	updating atomic.Bool
	queued   atomic.Bool
}

func New[N any](op numeric.Operator[N], source func() []Entry[N]) *Board[N] {
	return &Board[N]{op: op, source: source}
}

// outranks reports whether a sorts strictly above b on the board.
func (b *Board[N]) outranks(a, e Entry[N]) bool {
	if a.Level != e.Level {
		return a.Level > e.Level
	}
	return b.op.Cmp(a.Exp, e.Exp) > 0
}

// Update rebuilds the whole board from a fresh snapshot of every player and
// swaps it in atomically. Readers see nothing mid-swap. A call arriving while
// a rebuild is in flight is coalesced into one trailing rebuild rather than
// stacking.
func (b *Board[N]) Update() {
	if !b.updating.CompareAndSwap(false, true) {
		b.queued.Store(true)
		return
	}
	defer b.updating.Store(false)
	for {
		rank := NewRanking(b.op)
		for _, e := range b.source() {
			rank.Update(e)
		}
		top := rank.TopN(Capacity)

		b.mu.Lock()
		b.top = top
		b.mu.Unlock()

		if !b.queued.Swap(false) {
			return
		}
	}
}

// UpdateInstant folds one player's new standing into the live board: any
// previous entry for the player is dropped, the new one is inserted at its
// sorted position, and the board is truncated back to capacity.
func (b *Board[N]) UpdateInstant(e Entry[N]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.top {
		if b.top[i].User == e.User {
			b.top = append(b.top[:i], b.top[i+1:]...)
			break
		}
	}
	pos := len(b.top)
	for i := range b.top {
		if b.outranks(e, b.top[i]) {
			pos = i
			break
		}
	}
	b.top = append(b.top, Entry[N]{})
	copy(b.top[pos+1:], b.top[pos:])
	b.top[pos] = e
	if len(b.top) > Capacity {
		b.top = b.top[:Capacity]
	}
}

// Remove drops a player from the visible board, if present. The next full
// rebuild promotes whoever ranks eleventh.
func (b *Board[N]) Remove(user core.UserID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.top {
		if b.top[i].User == user {
			b.top = append(b.top[:i], b.top[i+1:]...)
			return
		}
	}
}

// TopPlayer returns the entry at the given 1-based position, or nil outside
// [1, Capacity], beyond the current board size, or while a full rebuild is in
// flight.
func (b *Board[N]) TopPlayer(position int) *Entry[N] {
	if position < 1 || position > Capacity || b.updating.Load() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if position > len(b.top) {
		return nil
	}
	e := b.top[position-1]
	return &e
}

// CheckPosition returns the player's 1-based position on the board, or -1.
func (b *Board[N]) CheckPosition(user core.UserID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.top {
		if b.top[i].User == user {
			return i + 1
		}
	}
	return -1
}

// Top returns a copy of the current board.
func (b *Board[N]) Top() []Entry[N] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry[N], len(b.top))
	copy(out, b.top)
	return out
}

// Size reports how many entries the board currently holds.
func (b *Board[N]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.top)
}
