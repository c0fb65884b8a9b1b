package levels

import (
	"strconv"
	"sync"
	"time"

	"cyberlevels/core"
	"cyberlevels/numeric"
)

// Change summarizes one mutation of a user's progression. Amount strings are
// rendered with the system's rounding policy; Display carries the combo-merged
// amount when exp stacking is enabled.
type Change struct {
	LevelsGained int64
	LevelsLost   int64
	Gained       string
	Lost         string
	Display      string
	Level        int64
	Total        string

	// RewardLevels lists, in ascending crossing order, the levels whose
	// rewards this change earned. Dispatch is the caller's job.
	RewardLevels []int64
}

// Snapshot is the persistable view of a user. Exp travels as a string so
// storage never couples to the numeric policy.
type Snapshot struct {
	ID              core.UserID `json:"uuid"`
	Name            string      `json:"name"`
	DisplayName     string      `json:"displayName,omitempty"`
	Level           int64       `json:"level"`
	Exp             string      `json:"exp"`
	HighestRewarded int64       `json:"maxLevelReward"`
}

// User is one player's progression through a System. All mutations hold the
// per-user mutex; the optional onChange hook fires after it is released.
type User[N any] struct {
	system *System[N]
	op     numeric.Operator[N]

	id          core.UserID
	name        string
	displayName string

	mu              sync.Mutex
	level           int64
	exp             N
	highestRewarded int64
	lastAmount      N
	lastTime        time.Time

	onChange func(*User[N], Change)
}

func (u *User[N]) ID() core.UserID { return u.id }
func (u *User[N]) Name() string    { return u.name }

// DisplayName falls back to the plain name when no override is set.
func (u *User[N]) DisplayName() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.displayName != "" {
		return u.displayName
	}
	return u.name
}

func (u *User[N]) SetDisplayName(name string) {
	u.mu.Lock()
	u.displayName = name
	u.mu.Unlock()
}

// SetOnChange installs the post-mutation hook. Installed once at load time,
// before the user is shared.
func (u *User[N]) SetOnChange(fn func(*User[N], Change)) { u.onChange = fn }

func (u *User[N]) Level() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.level
}

func (u *User[N]) Exp() N {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.exp
}

// HighestRewarded reports the highest level whose rewards this user has
// received.
func (u *User[N]) HighestRewarded() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.highestRewarded
}

// System returns the registry this user progresses through.
func (u *User[N]) System() *System[N] { return u.system }

// FormulaVars returns the numeric placeholder values for this user's current
// state, suitable for formula evaluation.
func (u *User[N]) FormulaVars() map[string]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.formulaVarsLocked()
}

func (u *User[N]) formulaVarsLocked() map[string]string {
	next := u.level + 1
	if next > u.system.MaxLevel() {
		next = u.system.MaxLevel()
	}
	return map[string]string{
		"level":     strconv.FormatInt(u.level, 10),
		"playerEXP": u.op.Format(u.exp),
		"nextLevel": strconv.FormatInt(next, 10),
		"maxLevel":  strconv.FormatInt(u.system.MaxLevel(), 10),
		"minLevel":  strconv.FormatInt(u.system.StartLevel(), 10),
		"minEXP":    strconv.FormatInt(u.system.StartExp(), 10),
	}
}

// RequiredExp evaluates the threshold leading out of the user's current level.
func (u *User[N]) RequiredExp() (N, error) {
	u.mu.Lock()
	level := u.level
	vars := u.formulaVarsLocked()
	u.mu.Unlock()
	return u.system.requiredExp(level, vars)
}

// RemainingExp is the experience still needed to reach the next level,
// clamped at zero.
func (u *User[N]) RemainingExp() (N, error) {
	req, err := u.RequiredExp()
	if err != nil {
		var zero N
		return zero, err
	}
	u.mu.Lock()
	exp := u.exp
	u.mu.Unlock()
	rem := u.op.Sub(req, exp)
	if u.op.Cmp(rem, u.op.Zero()) < 0 {
		rem = u.op.Zero()
	}
	return rem, nil
}

// Percent renders the user's whole-number progress toward the next level.
func (u *User[N]) Percent() (string, error) {
	req, err := u.RequiredExp()
	if err != nil {
		return "", err
	}
	return u.system.Percent(u.Exp(), req), nil
}

// ProgressBar renders the user's configured progress bar.
func (u *User[N]) ProgressBar() (string, error) {
	req, err := u.RequiredExp()
	if err != nil {
		return "", err
	}
	return u.system.ProgressBar(u.Exp(), req), nil
}

// Snapshot captures the persistable state.
func (u *User[N]) Snapshot() Snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Snapshot{
		ID:              u.id,
		Name:            u.name,
		DisplayName:     u.displayName,
		Level:           u.level,
		Exp:             u.op.Format(u.exp),
		HighestRewarded: u.highestRewarded,
	}
}

// RestoreUser rebuilds a user from its snapshot, clamping the level into the
// registry's range and the experience at zero.
func (s *System[N]) RestoreUser(snap Snapshot) (*User[N], error) {
	exp, err := s.op.Parse(snap.Exp)
	if err != nil {
		return nil, err
	}
	if s.op.Cmp(exp, s.op.Zero()) < 0 {
		exp = s.op.Zero()
	}
	level := snap.Level
	if level < s.opts.StartLevel {
		level = s.opts.StartLevel
	}
	if level > s.opts.MaxLevel {
		level = s.opts.MaxLevel
	}
	if level == s.opts.MaxLevel {
		exp = s.op.Zero()
	}
	hr := snap.HighestRewarded
	if hr < s.opts.StartLevel {
		hr = s.opts.StartLevel
	}
	return &User[N]{
		system:          s,
		op:              s.op,
		id:              snap.ID,
		name:            snap.Name,
		displayName:     snap.DisplayName,
		level:           level,
		exp:             exp,
		highestRewarded: hr,
		lastAmount:      s.op.Zero(),
	}, nil
}

// recordCrossing notes a level-up at lvl, honoring the duplicate-reward
// policy, and keeps the high-water mark current.
func (u *User[N]) recordCrossing(lvl int64, ch *Change) {
	if !(u.system.opts.PreventDuplicateRewards && lvl <= u.highestRewarded) {
		ch.RewardLevels = append(ch.RewardLevels, lvl)
	}
	if lvl > u.highestRewarded {
		u.highestRewarded = lvl
	}
}

// addExpLocked runs the level-up loop. amount must be positive. Experience
// that would carry past the max level is discarded and the counter pinned at
// zero there.
func (u *User[N]) addExpLocked(amount N, ch *Change) error {
	op := u.op
	if u.level >= u.system.MaxLevel() {
		u.exp = op.Zero()
		return nil
	}
	for {
		req, err := u.system.requiredExp(u.level, u.formulaVarsLocked())
		if err != nil {
			return err
		}
		if op.Cmp(op.Add(u.exp, amount), req) < 0 {
			u.exp = op.Add(u.exp, amount)
			return nil
		}
		amount = op.Sub(amount, op.Sub(req, u.exp))
		u.level++
		u.exp = op.Zero()
		ch.LevelsGained++
		u.recordCrossing(u.level, ch)
		if u.level >= u.system.MaxLevel() {
			return nil
		}
	}
}

// AddExp grants experience, leveling up through as many thresholds as the
// amount covers. Non-positive amounts are ignored.
func (u *User[N]) AddExp(amount N) (Change, error) {
	op := u.op
	var ch Change
	if op.Cmp(amount, op.Zero()) <= 0 {
		return ch, nil
	}

	u.mu.Lock()
	if err := u.addExpLocked(amount, &ch); err != nil {
		u.mu.Unlock()
		return Change{}, err
	}

	display := amount
	if u.system.opts.StackComboExp {
		now := u.system.now()
		if !u.lastTime.IsZero() && now.Sub(u.lastTime) <= u.system.opts.ComboWindow {
			display = op.Add(u.lastAmount, amount)
		}
		u.lastAmount = display
		u.lastTime = now
	}

	ch.Gained = u.system.RoundedString(amount)
	ch.Display = u.system.RoundedString(display)
	ch.Level = u.level
	ch.Total = op.Format(u.exp)
	u.mu.Unlock()

	u.notify(ch)
	return ch, nil
}

// RemoveExp takes experience away, demoting through lower levels when the
// amount exceeds what the user holds, never below the start level with zero
// experience. Non-positive amounts are ignored.
func (u *User[N]) RemoveExp(amount N) (Change, error) {
	op := u.op
	var ch Change
	if op.Cmp(amount, op.Zero()) <= 0 {
		return ch, nil
	}

	u.mu.Lock()
	removed := amount
	for op.Cmp(amount, u.exp) > 0 && u.level > u.system.StartLevel() {
		amount = op.Sub(amount, u.exp)
		u.level--
		ch.LevelsLost++
		req, err := u.system.requiredExp(u.level, u.formulaVarsLocked())
		if err != nil {
			u.mu.Unlock()
			return Change{}, err
		}
		u.exp = req
	}
	u.exp = op.Sub(u.exp, amount)
	if op.Cmp(u.exp, op.Zero()) < 0 {
		u.exp = op.Zero()
	}

	display := removed
	if u.system.opts.StackComboExp {
		now := u.system.now()
		if !u.lastTime.IsZero() && now.Sub(u.lastTime) <= u.system.opts.ComboWindow {
			display = op.Add(u.lastAmount, removed)
		}
		u.lastAmount = display
		u.lastTime = now
	}

	ch.Lost = u.system.RoundedString(removed)
	ch.Display = u.system.RoundedString(display)
	ch.Level = u.level
	ch.Total = op.Format(u.exp)
	u.mu.Unlock()

	u.notify(ch)
	return ch, nil
}

// SetExp replaces the user's experience. With checkLevel set the new value is
// applied through the level-up loop from zero, so thresholds and rewards
// resolve exactly as if the amount had been earned, and the change reports the
// net gain or loss against the experience the user already held; otherwise the
// counter is overwritten in place, clamped at zero.
func (u *User[N]) SetExp(value N, checkLevel bool) (Change, error) {
	op := u.op
	var ch Change

	u.mu.Lock()
	if !checkLevel {
		if op.Cmp(value, op.Zero()) < 0 {
			value = op.Zero()
		}
		u.exp = value
		ch.Level = u.level
		ch.Total = op.Format(u.exp)
		u.mu.Unlock()
		u.notify(ch)
		return ch, nil
	}

	value = op.Abs(value)
	oldExp := u.exp
	u.exp = op.Zero()
	if op.Cmp(value, op.Zero()) > 0 {
		if err := u.addExpLocked(value, &ch); err != nil {
			u.mu.Unlock()
			return Change{}, err
		}
	}

	display := value
	if u.system.opts.StackComboExp {
		now := u.system.now()
		if !u.lastTime.IsZero() && now.Sub(u.lastTime) <= u.system.opts.ComboWindow {
			display = op.Add(u.lastAmount, value)
		}
		u.lastAmount = display
		u.lastTime = now
	}

	// The user already held oldExp, so only the difference counts as a
	// gain or a loss.
	diff := op.Sub(display, oldExp)
	switch {
	case op.Cmp(diff, op.Zero()) > 0:
		ch.Gained = u.system.RoundedString(diff)
		ch.Display = u.system.RoundedString(value)
	case op.Cmp(diff, op.Zero()) < 0:
		ch.Lost = u.system.RoundedString(op.Abs(diff))
		ch.Display = u.system.RoundedString(value)
	}
	ch.Level = u.level
	ch.Total = op.Format(u.exp)
	u.mu.Unlock()

	u.notify(ch)
	return ch, nil
}

// AddLevel grants whole levels one at a time, leaving experience untouched.
// Crossed levels earn rewards only when the registry's level-grant reward
// policy allows it.
func (u *User[N]) AddLevel(n int64) (Change, error) {
	var ch Change
	if n <= 0 {
		return ch, nil
	}

	u.mu.Lock()
	for i := int64(0); i < n && u.level < u.system.MaxLevel(); i++ {
		u.level++
		ch.LevelsGained++
		if u.system.opts.AddLevelRewards {
			u.recordCrossing(u.level, &ch)
		} else if u.level > u.highestRewarded {
			u.highestRewarded = u.level
		}
	}
	ch.Level = u.level
	ch.Total = u.op.Format(u.exp)
	u.mu.Unlock()

	u.notify(ch)
	return ch, nil
}

// RemoveLevel takes whole levels away, never below the start level. Experience
// carries over to the lower level. No rewards are involved.
func (u *User[N]) RemoveLevel(n int64) (Change, error) {
	var ch Change
	if n <= 0 {
		return ch, nil
	}

	u.mu.Lock()
	target := u.level - n
	if target < u.system.StartLevel() {
		target = u.system.StartLevel()
	}
	ch.LevelsLost = u.level - target
	u.level = target
	ch.Level = u.level
	ch.Total = u.op.Format(u.exp)
	u.mu.Unlock()

	u.notify(ch)
	return ch, nil
}

// SetLevel jumps directly to the target level, clamped into range. Experience
// is kept for in-range targets and zeroed only when the requested level lies
// below the start level or at or beyond the max, where the counter has no
// threshold left to measure against. Administrative; rewards are never
// dispatched.
func (u *User[N]) SetLevel(n int64) (Change, error) {
	var ch Change

	u.mu.Lock()
	if n < u.system.StartLevel() || n >= u.system.MaxLevel() {
		u.exp = u.op.Zero()
	}
	target := n
	if target < u.system.StartLevel() {
		target = u.system.StartLevel()
	}
	if target > u.system.MaxLevel() {
		target = u.system.MaxLevel()
	}
	if target > u.level {
		ch.LevelsGained = target - u.level
	} else {
		ch.LevelsLost = u.level - target
	}
	u.level = target
	if target > u.highestRewarded {
		u.highestRewarded = target
	}
	ch.Level = u.level
	ch.Total = u.op.Format(u.exp)
	u.mu.Unlock()

	u.notify(ch)
	return ch, nil
}

func (u *User[N]) notify(ch Change) {
	if u.onChange != nil {
		u.onChange(u, ch)
	}
}
