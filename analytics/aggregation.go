package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cyberlevels/core"
)

// AggregationPeriod represents different time periods for aggregation
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData is one period's worth of progression KPIs.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // e.g., "2024-01-01" for daily, "2024-W01" for weekly
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	// Player engagement
	ActiveUsers int `json:"active_users"`

	// Experience throughput; decimal strings to stay policy-neutral
	ExpGained   string                    `json:"exp_gained"`
	ExpLost     string                    `json:"exp_lost"`
	ExpBySource map[core.ExpSource]string `json:"exp_by_source,omitempty"`

	// Level movement
	LevelUps   int64 `json:"level_ups"`
	LevelDowns int64 `json:"level_downs"`

	// Rewards
	RewardsIssued int64 `json:"rewards_issued"`

	// Metadata
	CreatedAt time.Time `json:"created_at"`
}

// AggregationEngine handles periodic aggregation of tracked metrics
type AggregationEngine struct {
	mu sync.RWMutex

	tracker *Tracker
	hook    Hook

	dailyAggregations   map[string]*AggregatedData
	weeklyAggregations  map[string]*AggregatedData
	monthlyAggregations map[string]*AggregatedData

	aggregationInterval time.Duration
	lastAggregation     time.Time
}

func NewAggregationEngine(tracker *Tracker, aggregationInterval time.Duration) *AggregationEngine {
	return &AggregationEngine{
		tracker:             tracker,
		hook:                tracker,
		dailyAggregations:   make(map[string]*AggregatedData),
		weeklyAggregations:  make(map[string]*AggregatedData),
		monthlyAggregations: make(map[string]*AggregatedData),
		aggregationInterval: aggregationInterval,
		lastAggregation:     time.Now(),
	}
}

// OnEvent forwards events to the underlying tracker
func (ae *AggregationEngine) OnEvent(e core.Event) {
	ae.hook.OnEvent(e)
}

// Start runs the aggregation loop until the context is cancelled.
func (ae *AggregationEngine) Start(ctx context.Context) {
	ticker := time.NewTicker(ae.aggregationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = ae.AggregateNow()
		}
	}
}

// AggregateNow forces an immediate aggregation of all periods
func (ae *AggregationEngine) AggregateNow() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	now := time.Now().UTC()

	if err := ae.aggregateDaily(now); err != nil {
		return fmt.Errorf("failed to aggregate daily data: %w", err)
	}

	if err := ae.aggregateWeekly(now); err != nil {
		return fmt.Errorf("failed to aggregate weekly data: %w", err)
	}

	if err := ae.aggregateMonthly(now); err != nil {
		return fmt.Errorf("failed to aggregate monthly data: %w", err)
	}

	ae.lastAggregation = now
	return nil
}

func (ae *AggregationEngine) aggregateDaily(now time.Time) error {
	today := now.Format("2006-01-02")
	startTime := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	data := ae.newData(PeriodDaily, today, startTime, startTime.Add(24*time.Hour), now)
	data.ActiveUsers = ae.tracker.ActiveUsers(PeriodDaily, today)
	data.ExpGained = ae.tracker.ExpGained(today).String()
	data.ExpLost = ae.tracker.ExpLost(today).String()
	data.LevelUps = ae.tracker.LevelUps(today)
	data.LevelDowns = ae.tracker.LevelDowns(today)
	data.RewardsIssued = ae.tracker.RewardsIssued(today)

	for source, total := range ae.tracker.ExpBySource() {
		data.ExpBySource[source] = total.String()
	}

	ae.dailyAggregations[today] = data
	return nil
}

// aggregateWeekly aggregates data for the current week
func (ae *AggregationEngine) aggregateWeekly(now time.Time) error {
	year, week := now.ISOWeek()
	weekKey := formatWeekKey(year, week)

	// Week start (Monday)
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	startTime := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -(weekday - 1))

	data := ae.newData(PeriodWeekly, weekKey, startTime, startTime.AddDate(0, 0, 7), now)
	data.ActiveUsers = ae.tracker.ActiveUsers(PeriodWeekly, weekKey)

	ae.weeklyAggregations[weekKey] = data
	return nil
}

// aggregateMonthly aggregates data for the current month
func (ae *AggregationEngine) aggregateMonthly(now time.Time) error {
	monthKey := getMonthKey(now)
	startTime := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	data := ae.newData(PeriodMonthly, monthKey, startTime, startTime.AddDate(0, 1, 0), now)
	data.ActiveUsers = ae.tracker.ActiveUsers(PeriodMonthly, monthKey)

	ae.monthlyAggregations[monthKey] = data
	return nil
}

func (ae *AggregationEngine) newData(period AggregationPeriod, key string, start, end, now time.Time) *AggregatedData {
	return &AggregatedData{
		Period:      period,
		Key:         key,
		StartTime:   start,
		EndTime:     end,
		CreatedAt:   now,
		ExpGained:   "0",
		ExpLost:     "0",
		ExpBySource: make(map[core.ExpSource]string),
	}
}

// GetAggregatedData returns one period's data, if it has been aggregated.
func (ae *AggregationEngine) GetAggregatedData(period AggregationPeriod, key string) (*AggregatedData, bool) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	var data *AggregatedData
	switch period {
	case PeriodWeekly:
		data = ae.weeklyAggregations[key]
	case PeriodMonthly:
		data = ae.monthlyAggregations[key]
	default:
		data = ae.dailyAggregations[key]
	}
	return data, data != nil
}

// GetAllAggregatedData returns every aggregation for a period.
func (ae *AggregationEngine) GetAllAggregatedData(period AggregationPeriod) []*AggregatedData {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	var src map[string]*AggregatedData
	switch period {
	case PeriodWeekly:
		src = ae.weeklyAggregations
	case PeriodMonthly:
		src = ae.monthlyAggregations
	default:
		src = ae.dailyAggregations
	}

	out := make([]*AggregatedData, 0, len(src))
	for _, data := range src {
		out = append(out, data)
	}
	return out
}

func formatWeekKey(year, week int) string {
	return fmt.Sprintf("%d-W%02d", year, week)
}
