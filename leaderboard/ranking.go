package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"cyberlevels/core"
	"cyberlevels/numeric"
)

// A skip list keyed by (level desc, exp desc, user asc) giving O(log n)
// inserts, so a full rebuild over n players costs O(n log n).

const skipMaxLevel = 16
const skipPFactor = 0.25

type node[N any] struct {
	e    Entry[N]
	next [skipMaxLevel]*node[N]
}

// Ranking is an ordered index over every tracked player, rebuilt from
// snapshots. It is not safe for concurrent use; the Board serializes access.
type Ranking[N any] struct {
	op     numeric.Operator[N]
	head   *node[N]
	lvl    int
	byUser map[core.UserID]*node[N]
	rng    *rand.Rand
}

func NewRanking[N any](op numeric.Operator[N]) *Ranking[N] {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &Ranking[N]{
		op:     op,
		head:   &node[N]{},
		lvl:    1,
		byUser: map[core.UserID]*node[N]{},
		rng:    rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (r *Ranking[N]) randomLevel() int {
	lvl := 1
	for lvl < skipMaxLevel && r.rng.Float64() < skipPFactor {
		lvl++
	}
	return lvl
}

// less reports whether a outranks b.
func (r *Ranking[N]) less(a, b Entry[N]) bool {
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if c := r.op.Cmp(a.Exp, b.Exp); c != 0 {
		return c > 0
	}
	return a.User < b.User
}

// Update inserts or moves a player to its new ranking position.
func (r *Ranking[N]) Update(e Entry[N]) {
	if old, ok := r.byUser[e.User]; ok {
		r.remove(e.User, old.e)
	}
	update := [skipMaxLevel]*node[N]{}
	cur := r.head
	for i := r.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && r.less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := r.randomLevel()
	if lvl > r.lvl {
		for i := r.lvl; i < lvl; i++ {
			update[i] = r.head
		}
		r.lvl = lvl
	}
	n := &node[N]{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	r.byUser[e.User] = n
}

func (r *Ranking[N]) remove(user core.UserID, e Entry[N]) {
	update := [skipMaxLevel]*node[N]{}
	cur := r.head
	for i := r.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && r.less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.User != user {
		return
	}
	for i := 0; i < r.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(r.byUser, user)
	for r.lvl > 1 && r.head.next[r.lvl-1] == nil {
		r.lvl--
	}
}

// Remove drops a player from the index.
func (r *Ranking[N]) Remove(user core.UserID) {
	if n, ok := r.byUser[user]; ok {
		r.remove(user, n.e)
	}
}

// TopN returns the first n entries in ranking order.
func (r *Ranking[N]) TopN(n int) []Entry[N] {
	if n <= 0 {
		return nil
	}
	out := make([]Entry[N], 0, n)
	cur := r.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, cur.e)
		cur = cur.next[0]
	}
	return out
}

// Len reports how many players are indexed.
func (r *Ranking[N]) Len() int { return len(r.byUser) }
