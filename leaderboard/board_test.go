package leaderboard

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"cyberlevels/core"
	"cyberlevels/numeric"
)

func entry(id string, level int64, exp float64) Entry[float64] {
	return Entry[float64]{User: core.UserID(id), Name: id, Level: level, Exp: exp}
}

func ids(entries []Entry[float64]) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.User)
	}
	return out
}

func TestUpdateInstantOrdering(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	b.UpdateInstant(entry("a", 5, 10))
	b.UpdateInstant(entry("b", 5, 5))
	b.UpdateInstant(entry("c", 5, 7))

	got := ids(b.Top())
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("board = %v, want %v", got, want)
		}
	}
}

func TestUpdateInstantReplacesExisting(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	b.UpdateInstant(entry("a", 2, 0))
	b.UpdateInstant(entry("b", 3, 0))
	b.UpdateInstant(entry("a", 4, 0))

	got := ids(b.Top())
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("board = %v, want [a b]", got)
	}
}

func TestUpdateInstantLevelBeatsExp(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	b.UpdateInstant(entry("low", 2, 9999))
	b.UpdateInstant(entry("high", 3, 0))
	if got := ids(b.Top()); got[0] != "high" {
		t.Fatalf("board = %v, level must dominate exp", got)
	}
}

func TestBoardCapacity(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	for i := 0; i < 25; i++ {
		b.UpdateInstant(entry(fmt.Sprintf("p%02d", i), int64(i), 0))
	}
	if b.Size() != Capacity {
		t.Fatalf("size = %d, want %d", b.Size(), Capacity)
	}
	if got := ids(b.Top()); got[0] != "p24" || got[Capacity-1] != "p15" {
		t.Fatalf("board = %v", got)
	}
}

func TestFullRebuildMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	var players []Entry[float64]
	for i := 0; i < 60; i++ {
		players = append(players, entry(fmt.Sprintf("p%02d", i), rng.Int64N(20), float64(rng.Int64N(500))))
	}
	b := New[float64](numeric.Float64{}, func() []Entry[float64] {
		out := make([]Entry[float64], len(players))
		copy(out, players)
		return out
	})
	b.Update()

	want := make([]Entry[float64], len(players))
	copy(want, players)
	sort.SliceStable(want, func(i, j int) bool {
		if want[i].Level != want[j].Level {
			return want[i].Level > want[j].Level
		}
		if want[i].Exp != want[j].Exp {
			return want[i].Exp > want[j].Exp
		}
		return want[i].User < want[j].User
	})

	got := b.Top()
	if len(got) != Capacity {
		t.Fatalf("size = %d, want %d", len(got), Capacity)
	}
	for i := 0; i < Capacity; i++ {
		if got[i].User != want[i].User {
			t.Fatalf("position %d = %s, want %s", i+1, got[i].User, want[i].User)
		}
	}
}

func TestTopPlayerBounds(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	b.UpdateInstant(entry("a", 5, 0))

	if b.TopPlayer(0) != nil || b.TopPlayer(11) != nil {
		t.Fatal("positions outside [1, 10] must be nil")
	}
	if b.TopPlayer(2) != nil {
		t.Fatal("positions past the board size must be nil")
	}
	top := b.TopPlayer(1)
	if top == nil || top.User != "a" {
		t.Fatalf("TopPlayer(1) = %+v", top)
	}
}

func TestTopPlayerNilDuringRebuild(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	b.UpdateInstant(entry("a", 5, 0))
	b.updating.Store(true)
	if b.TopPlayer(1) != nil {
		t.Fatal("readers must see nothing while a rebuild is in flight")
	}
	b.updating.Store(false)
	if b.TopPlayer(1) == nil {
		t.Fatal("board must be visible again after the rebuild")
	}
}

func TestCheckPosition(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	b.UpdateInstant(entry("a", 5, 10))
	b.UpdateInstant(entry("b", 5, 5))

	if got := b.CheckPosition("b"); got != 2 {
		t.Fatalf("CheckPosition(b) = %d, want 2", got)
	}
	if got := b.CheckPosition("zz"); got != -1 {
		t.Fatalf("CheckPosition(zz) = %d, want -1", got)
	}
}

func TestRemove(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	b.UpdateInstant(entry("a", 5, 0))
	b.UpdateInstant(entry("b", 4, 0))
	b.Remove("a")
	if got := ids(b.Top()); len(got) != 1 || got[0] != "b" {
		t.Fatalf("board = %v, want [b]", got)
	}
}

func TestConcurrentIncrementalUpdates(t *testing.T) {
	b := New[float64](numeric.Float64{}, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.UpdateInstant(entry(fmt.Sprintf("p%d", g), int64(i), float64(i)))
			}
		}(g)
	}
	wg.Wait()

	top := b.Top()
	if len(top) != 8 {
		t.Fatalf("size = %d, want 8 distinct players", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i-1].Level < top[i].Level {
			t.Fatalf("board out of order at %d: %+v", i, top)
		}
	}
}

func TestRankingIndex(t *testing.T) {
	r := NewRanking[float64](numeric.Float64{})
	r.Update(entry("a", 1, 0))
	r.Update(entry("b", 2, 0))
	r.Update(entry("c", 2, 50))
	if r.Len() != 3 {
		t.Fatalf("len = %d", r.Len())
	}

	got := ids(r.TopN(10))
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	// Re-inserting the same player moves it instead of duplicating.
	r.Update(entry("a", 9, 0))
	if r.Len() != 3 {
		t.Fatalf("len after move = %d", r.Len())
	}
	if got := ids(r.TopN(1)); got[0] != "a" {
		t.Fatalf("top = %v, want a", got)
	}

	r.Remove("b")
	if r.Len() != 2 {
		t.Fatalf("len after remove = %d", r.Len())
	}
}
