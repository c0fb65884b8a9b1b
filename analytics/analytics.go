// Package analytics aggregates progression activity into per-period KPIs:
// active players, experience throughput, level-up rates and reward volume.
package analytics

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cyberlevels/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// DAU tracks daily active players.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := e.Time.UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// Tracker accumulates progression metrics. Experience volumes are summed as
// exact decimals regardless of the engine's numeric policy, since events
// carry amounts as strings.
type Tracker struct {
	mu sync.RWMutex

	// Player engagement
	dailyActiveUsers   map[string]map[core.UserID]struct{}
	weeklyActiveUsers  map[string]map[core.UserID]struct{}
	monthlyActiveUsers map[string]map[core.UserID]struct{}

	// Experience throughput
	expGainedByDay    map[string]decimal.Decimal
	expLostByDay      map[string]decimal.Decimal
	expGainedBySource map[core.ExpSource]decimal.Decimal

	// Level movement
	levelUpsByDay     map[string]int64
	levelDownsByDay   map[string]int64
	levelDistribution map[core.UserID]int64

	// Rewards
	rewardsIssuedByDay map[string]int64
}

func NewTracker() *Tracker {
	return &Tracker{
		dailyActiveUsers:   make(map[string]map[core.UserID]struct{}),
		weeklyActiveUsers:  make(map[string]map[core.UserID]struct{}),
		monthlyActiveUsers: make(map[string]map[core.UserID]struct{}),
		expGainedByDay:     make(map[string]decimal.Decimal),
		expLostByDay:       make(map[string]decimal.Decimal),
		expGainedBySource:  make(map[core.ExpSource]decimal.Decimal),
		levelUpsByDay:      make(map[string]int64),
		levelDownsByDay:    make(map[string]int64),
		levelDistribution:  make(map[core.UserID]int64),
		rewardsIssuedByDay: make(map[string]int64),
	}
}

func (t *Tracker) OnEvent(e core.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := e.Time.UTC().Format("2006-01-02")
	week := getWeekKey(e.Time)
	month := getMonthKey(e.Time)

	t.trackEngagement(e.UserID, day, week, month)

	switch e.Type {
	case core.EventExpGained:
		if amount, err := decimal.NewFromString(e.Amount); err == nil {
			t.expGainedByDay[day] = t.expGainedByDay[day].Add(amount)
			if e.Source != "" {
				t.expGainedBySource[e.Source] = t.expGainedBySource[e.Source].Add(amount)
			}
		}
		t.levelDistribution[e.UserID] = e.Level

	case core.EventExpLost:
		if amount, err := decimal.NewFromString(e.Amount); err == nil {
			t.expLostByDay[day] = t.expLostByDay[day].Add(amount)
		}
		t.levelDistribution[e.UserID] = e.Level

	case core.EventLevelUp:
		t.levelUpsByDay[day] += e.Levels
		t.levelDistribution[e.UserID] = e.Level

	case core.EventLevelDown:
		t.levelDownsByDay[day] += e.Levels
		t.levelDistribution[e.UserID] = e.Level

	case core.EventRewardIssued:
		t.rewardsIssuedByDay[day]++
	}
}

func (t *Tracker) trackEngagement(user core.UserID, day, week, month string) {
	for key, bucket := range map[string]map[string]map[core.UserID]struct{}{
		day:   t.dailyActiveUsers,
		week:  t.weeklyActiveUsers,
		month: t.monthlyActiveUsers,
	} {
		m := bucket[key]
		if m == nil {
			m = map[core.UserID]struct{}{}
			bucket[key] = m
		}
		m[user] = struct{}{}
	}
}

// ActiveUsers returns the distinct player count for a period key
// ("2006-01-02", "2006-W02" or "2006-01").
func (t *Tracker) ActiveUsers(period AggregationPeriod, key string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch period {
	case PeriodWeekly:
		return len(t.weeklyActiveUsers[key])
	case PeriodMonthly:
		return len(t.monthlyActiveUsers[key])
	default:
		return len(t.dailyActiveUsers[key])
	}
}

// ExpGained returns the total experience gained on a day.
func (t *Tracker) ExpGained(day string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expGainedByDay[day]
}

// ExpLost returns the total experience removed on a day.
func (t *Tracker) ExpLost(day string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expLostByDay[day]
}

// ExpBySource returns a copy of experience totals keyed by gain source.
func (t *Tracker) ExpBySource() map[core.ExpSource]decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[core.ExpSource]decimal.Decimal, len(t.expGainedBySource))
	for source, total := range t.expGainedBySource {
		out[source] = total
	}
	return out
}

// LevelUps returns the number of levels gained across all players on a day.
func (t *Tracker) LevelUps(day string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.levelUpsByDay[day]
}

// LevelDowns returns the number of levels lost across all players on a day.
func (t *Tracker) LevelDowns(day string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.levelDownsByDay[day]
}

// RewardsIssued returns the reward dispatch count for a day.
func (t *Tracker) RewardsIssued(day string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rewardsIssuedByDay[day]
}

// LevelDistribution returns how many players sit at each level, based on the
// last observed level per player.
func (t *Tracker) LevelDistribution() map[int64]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dist := make(map[int64]int)
	for _, level := range t.levelDistribution {
		dist[level]++
	}
	return dist
}

func getWeekKey(ts time.Time) string {
	year, week := ts.UTC().ISOWeek()
	return formatWeekKey(year, week)
}

func getMonthKey(ts time.Time) string {
	return ts.UTC().Format("2006-01")
}
