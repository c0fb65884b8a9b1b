package levels

import (
	"testing"
	"time"

	"cyberlevels/core"
	"cyberlevels/numeric"

	"github.com/shopspring/decimal"
)

func newFloatUser(t *testing.T, opts Options) *User[float64] {
	t.Helper()
	return newFloatSystem(t, opts).NewUser(core.NewUserID(), "steve")
}

func TestAddExpSingleLevel(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	ch, err := u.AddExp(60)
	if err != nil {
		t.Fatalf("AddExp: %v", err)
	}
	if u.Level() != 1 || u.Exp() != 60 {
		t.Fatalf("state = (%d, %v), want (1, 60)", u.Level(), u.Exp())
	}
	if ch.LevelsGained != 0 || len(ch.RewardLevels) != 0 {
		t.Fatalf("unexpected level change: %+v", ch)
	}
}

func TestAddExpMultiLevel(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	ch, err := u.AddExp(250)
	if err != nil {
		t.Fatalf("AddExp: %v", err)
	}
	if u.Level() != 3 || u.Exp() != 50 {
		t.Fatalf("state = (%d, %v), want (3, 50)", u.Level(), u.Exp())
	}
	if ch.LevelsGained != 2 {
		t.Fatalf("LevelsGained = %d, want 2", ch.LevelsGained)
	}
	if len(ch.RewardLevels) != 2 || ch.RewardLevels[0] != 2 || ch.RewardLevels[1] != 3 {
		t.Fatalf("RewardLevels = %v, want [2 3]", ch.RewardLevels)
	}
}

func TestAddExpExactThreshold(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	if _, err := u.AddExp(100); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 2 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want (2, 0)", u.Level(), u.Exp())
	}
}

func TestAddExpCeilingAtMaxLevel(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 3))
	if _, err := u.AddExp(1000000); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want pinned at (3, 0)", u.Level(), u.Exp())
	}

	// Any further grant stays pinned.
	if _, err := u.AddExp(50); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 0 {
		t.Fatalf("state after extra grant = (%d, %v)", u.Level(), u.Exp())
	}
}

func TestAddExpIgnoresNonPositive(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	if _, err := u.AddExp(0); err != nil {
		t.Fatal(err)
	}
	if _, err := u.AddExp(-5); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want untouched (1, 0)", u.Level(), u.Exp())
	}
}

func TestRemoveExpWithinLevel(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 80)
	if _, err := u.RemoveExp(30); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 || u.Exp() != 50 {
		t.Fatalf("state = (%d, %v), want (1, 50)", u.Level(), u.Exp())
	}
}

func TestRemoveExpAcrossLevels(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 220) // (3, 20)

	ch, err := u.RemoveExp(150)
	if err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 || u.Exp() != 70 {
		t.Fatalf("state = (%d, %v), want (1, 70)", u.Level(), u.Exp())
	}
	if ch.LevelsLost != 2 {
		t.Fatalf("LevelsLost = %d, want 2", ch.LevelsLost)
	}
	if len(ch.RewardLevels) != 0 {
		t.Fatal("removal must never earn rewards")
	}
}

func TestRemoveExpClampsAtFloor(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 220) // (3, 20)
	if _, err := u.RemoveExp(250); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want (1, 0)", u.Level(), u.Exp())
	}

	// Draining far past the floor still bottoms out at the start state.
	if _, err := u.RemoveExp(99999); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want (1, 0)", u.Level(), u.Exp())
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 137)
	level, exp := u.Level(), u.Exp()

	mustAdd(t, u, 555)
	if _, err := u.RemoveExp(555); err != nil {
		t.Fatal(err)
	}
	if u.Level() != level || u.Exp() != exp {
		t.Fatalf("round trip drifted: (%d, %v) != (%d, %v)", u.Level(), u.Exp(), level, exp)
	}
}

func TestRewardDeduplication(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 250) // rewards for 2 and 3
	if u.HighestRewarded() != 3 {
		t.Fatalf("HighestRewarded = %d, want 3", u.HighestRewarded())
	}

	if _, err := u.RemoveExp(250); err != nil {
		t.Fatal(err)
	}
	ch, err := u.AddExp(350) // back through 2, 3 and on to 4
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.RewardLevels) != 1 || ch.RewardLevels[0] != 4 {
		t.Fatalf("RewardLevels = %v, want only the new level 4", ch.RewardLevels)
	}
}

func TestRewardDeduplicationDisabled(t *testing.T) {
	o := flatOptions("100", 50)
	o.PreventDuplicateRewards = false
	u := newFloatUser(t, o)
	mustAdd(t, u, 250)
	if _, err := u.RemoveExp(250); err != nil {
		t.Fatal(err)
	}
	ch, err := u.AddExp(250)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.RewardLevels) != 2 {
		t.Fatalf("RewardLevels = %v, want both crossings again", ch.RewardLevels)
	}
}

func TestSetExpOverwrite(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 250)
	if _, err := u.SetExp(42, false); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 42 {
		t.Fatalf("state = (%d, %v), want (3, 42)", u.Level(), u.Exp())
	}

	if _, err := u.SetExp(-10, false); err != nil {
		t.Fatal(err)
	}
	if u.Exp() != 0 {
		t.Fatalf("negative set must clamp to zero, got %v", u.Exp())
	}
}

func TestSetExpCheckLevel(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	ch, err := u.SetExp(250, true)
	if err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 50 {
		t.Fatalf("state = (%d, %v), want (3, 50)", u.Level(), u.Exp())
	}
	if ch.LevelsGained != 2 {
		t.Fatalf("LevelsGained = %d, want 2", ch.LevelsGained)
	}
}

func TestAddLevel(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 5))
	mustAdd(t, u, 30)
	ch, err := u.AddLevel(2)
	if err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 30 {
		t.Fatalf("state = (%d, %v), want (3, 30) with exp carried over", u.Level(), u.Exp())
	}
	if len(ch.RewardLevels) != 2 {
		t.Fatalf("RewardLevels = %v, want rewards for both granted levels", ch.RewardLevels)
	}

	// Granting past the cap stops there.
	if _, err := u.AddLevel(10); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 5 || u.Exp() != 30 {
		t.Fatalf("state = (%d, %v), want (5, 30)", u.Level(), u.Exp())
	}
}

func TestAddLevelWithoutRewards(t *testing.T) {
	o := flatOptions("100", 5)
	o.AddLevelRewards = false
	u := newFloatUser(t, o)
	ch, err := u.AddLevel(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.RewardLevels) != 0 {
		t.Fatalf("RewardLevels = %v, want none", ch.RewardLevels)
	}
	if u.HighestRewarded() != 4 {
		t.Fatalf("HighestRewarded = %d, want high-water mark advanced to 4", u.HighestRewarded())
	}
}

func TestRemoveLevel(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 420) // (5, 20)
	ch, err := u.RemoveLevel(2)
	if err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 20 {
		t.Fatalf("state = (%d, %v), want (3, 20) with exp carried over", u.Level(), u.Exp())
	}
	if ch.LevelsLost != 2 {
		t.Fatalf("LevelsLost = %d, want 2", ch.LevelsLost)
	}

	if _, err := u.RemoveLevel(99); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 || u.Exp() != 20 {
		t.Fatalf("state = (%d, %v), want clamped at the start level with exp kept", u.Level(), u.Exp())
	}
}

func TestRemoveLevelKeepsSetExp(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	mustAdd(t, u, 250) // (3, 50)
	if _, err := u.SetExp(40, false); err != nil {
		t.Fatal(err)
	}
	if _, err := u.RemoveLevel(1); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 2 || u.Exp() != 40 {
		t.Fatalf("state = (%d, %v), want (2, 40)", u.Level(), u.Exp())
	}
}

func TestSetLevelKeepsExpInRange(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 10))
	mustAdd(t, u, 50) // (1, 50)
	if _, err := u.SetLevel(3); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 50 {
		t.Fatalf("state = (%d, %v), want (3, 50) with exp carried over", u.Level(), u.Exp())
	}

	// A target at or past the max has no next threshold, so the counter
	// resets.
	if _, err := u.SetLevel(10); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 10 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want (10, 0)", u.Level(), u.Exp())
	}

	if _, err := u.SetLevel(4); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, u, 30)
	// A target below the start level also resets before clamping.
	if _, err := u.SetLevel(-3); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want (1, 0)", u.Level(), u.Exp())
	}
}

func TestSetLevelNeverRewards(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	ch, err := u.SetLevel(10)
	if err != nil {
		t.Fatal(err)
	}
	if u.Level() != 10 || u.Exp() != 0 {
		t.Fatalf("state = (%d, %v), want (10, 0)", u.Level(), u.Exp())
	}
	if len(ch.RewardLevels) != 0 {
		t.Fatal("administrative level set must not dispatch rewards")
	}
	if u.HighestRewarded() != 10 {
		t.Fatalf("HighestRewarded = %d, want advanced to 10", u.HighestRewarded())
	}

	// Clamped both ways.
	if _, err := u.SetLevel(999); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 50 {
		t.Fatalf("level = %d, want clamped to 50", u.Level())
	}
	if _, err := u.SetLevel(-3); err != nil {
		t.Fatal(err)
	}
	if u.Level() != 1 {
		t.Fatalf("level = %d, want clamped to 1", u.Level())
	}
}

func TestComboWindowStacksDisplay(t *testing.T) {
	now := time.Unix(1000, 0)
	o := flatOptions("1000", 50)
	o.Clock = func() time.Time { return now }
	u := newFloatUser(t, o)

	ch, _ := u.AddExp(10)
	if ch.Display != "10" {
		t.Fatalf("first display = %q", ch.Display)
	}

	now = now.Add(300 * time.Millisecond)
	ch, _ = u.AddExp(5)
	if ch.Display != "15" {
		t.Fatalf("stacked display = %q, want 15", ch.Display)
	}
	if ch.Gained != "5" {
		t.Fatalf("Gained = %q, must stay the raw amount", ch.Gained)
	}

	now = now.Add(2 * time.Second)
	ch, _ = u.AddExp(7)
	if ch.Display != "7" {
		t.Fatalf("display after window lapsed = %q, want 7", ch.Display)
	}
}

func TestComboWindowStacksAcrossGainAndLoss(t *testing.T) {
	now := time.Unix(1000, 0)
	o := flatOptions("1000", 50)
	o.Clock = func() time.Time { return now }
	u := newFloatUser(t, o)

	u.AddExp(30)
	now = now.Add(100 * time.Millisecond)
	ch, _ := u.RemoveExp(10)
	if ch.Display != "40" {
		t.Fatalf("merged display = %q, want 40", ch.Display)
	}
	if ch.Lost != "10" {
		t.Fatalf("Lost = %q, must stay the raw amount", ch.Lost)
	}

	// A removal refreshes the window, so a gain shortly after still stacks.
	now = now.Add(600 * time.Millisecond)
	ch, _ = u.AddExp(5)
	if ch.Display != "45" {
		t.Fatalf("display after removal = %q, want 45", ch.Display)
	}

	now = now.Add(2 * time.Second)
	ch, _ = u.RemoveExp(8)
	if ch.Display != "8" {
		t.Fatalf("display after window lapsed = %q, want 8", ch.Display)
	}
}

func TestSetExpCheckLevelReportsDelta(t *testing.T) {
	now := time.Unix(1000, 0)
	o := flatOptions("100", 50)
	o.Clock = func() time.Time { return now }
	u := newFloatUser(t, o)

	if _, err := u.SetExp(40, false); err != nil {
		t.Fatal(err)
	}
	ch, err := u.SetExp(250, true)
	if err != nil {
		t.Fatal(err)
	}
	if u.Level() != 3 || u.Exp() != 50 {
		t.Fatalf("state = (%d, %v), want (3, 50)", u.Level(), u.Exp())
	}
	// The user already held 40, so only 210 counts as gained.
	if ch.Gained != "210" || ch.Lost != "" {
		t.Fatalf("Gained = %q, Lost = %q, want net gain of 210", ch.Gained, ch.Lost)
	}
	if ch.Display != "250" {
		t.Fatalf("Display = %q, want the full set amount", ch.Display)
	}

	now = now.Add(2 * time.Second)
	ch, err = u.SetExp(10, true)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Lost != "40" || ch.Gained != "" {
		t.Fatalf("Gained = %q, Lost = %q, want net loss of 40", ch.Gained, ch.Lost)
	}
	if u.Level() != 3 || u.Exp() != 10 {
		t.Fatalf("state = (%d, %v), want (3, 10)", u.Level(), u.Exp())
	}
}

func TestComboWindowDisabled(t *testing.T) {
	now := time.Unix(1000, 0)
	o := flatOptions("1000", 50)
	o.StackComboExp = false
	o.Clock = func() time.Time { return now }
	u := newFloatUser(t, o)

	u.AddExp(10)
	now = now.Add(100 * time.Millisecond)
	ch, _ := u.AddExp(5)
	if ch.Display != "5" {
		t.Fatalf("display = %q, want unstacked 5", ch.Display)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := newFloatSystem(t, flatOptions("100", 50))
	u := s.NewUser(core.NewUserID(), "steve")
	u.SetDisplayName("Steve!")
	mustAdd(t, u, 250)

	snap := u.Snapshot()
	restored, err := s.RestoreUser(snap)
	if err != nil {
		t.Fatalf("RestoreUser: %v", err)
	}
	if restored.Level() != 3 || restored.Exp() != 50 {
		t.Fatalf("restored = (%d, %v)", restored.Level(), restored.Exp())
	}
	if restored.HighestRewarded() != 3 {
		t.Fatalf("restored HighestRewarded = %d", restored.HighestRewarded())
	}
	if restored.DisplayName() != "Steve!" {
		t.Fatalf("restored display name = %q", restored.DisplayName())
	}
}

func TestRestoreClampsCorruptState(t *testing.T) {
	s := newFloatSystem(t, flatOptions("100", 10))
	u, err := s.RestoreUser(Snapshot{ID: core.NewUserID(), Name: "x", Level: 99, Exp: "-5"})
	if err != nil {
		t.Fatalf("RestoreUser: %v", err)
	}
	if u.Level() != 10 || u.Exp() != 0 {
		t.Fatalf("restored = (%d, %v), want clamped (10, 0)", u.Level(), u.Exp())
	}

	if _, err := s.RestoreUser(Snapshot{ID: core.NewUserID(), Name: "x", Level: 1, Exp: "junk"}); err == nil {
		t.Fatal("expected parse error for junk exp")
	}
}

func TestOnChangeFiresOutsideLock(t *testing.T) {
	u := newFloatUser(t, flatOptions("100", 50))
	var seen []Change
	u.SetOnChange(func(user *User[float64], ch Change) {
		// Re-entrant reads must not deadlock.
		_ = user.Level()
		seen = append(seen, ch)
	})
	mustAdd(t, u, 150)
	u.RemoveExp(20)
	if len(seen) != 2 {
		t.Fatalf("hook fired %d times, want 2", len(seen))
	}
	if seen[0].LevelsGained != 1 {
		t.Fatalf("first change = %+v", seen[0])
	}
}

func TestDecimalProgressionExactness(t *testing.T) {
	s, err := NewSystem[decimal.Decimal](numeric.Decimal{}, flatOptions("0.3", 50))
	if err != nil {
		t.Fatal(err)
	}
	u := s.NewUser(core.NewUserID(), "steve")
	tenth := decimal.RequireFromString("0.1")
	for i := 0; i < 3; i++ {
		if _, err := u.AddExp(tenth); err != nil {
			t.Fatal(err)
		}
	}
	// 0.1 added three times meets the 0.3 threshold exactly.
	if u.Level() != 2 || !u.Exp().IsZero() {
		t.Fatalf("state = (%d, %v), want exact (2, 0)", u.Level(), u.Exp())
	}
}

func mustAdd(t *testing.T, u *User[float64], amount float64) {
	t.Helper()
	if _, err := u.AddExp(amount); err != nil {
		t.Fatalf("AddExp(%v): %v", amount, err)
	}
}
