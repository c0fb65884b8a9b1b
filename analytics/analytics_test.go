package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberlevels/core"
	"cyberlevels/engine"
)

func TestTracker_OnEvent(t *testing.T) {
	tracker := NewTracker()

	userID := core.NewUserID()
	now := time.Now().UTC()

	tracker.OnEvent(core.Event{
		Type:   core.EventExpGained,
		UserID: userID,
		Time:   now,
		Amount: "100.5",
		Total:  "100.5",
		Level:  1,
		Source: "mining",
	})
	tracker.OnEvent(core.Event{
		Type:   core.EventLevelUp,
		UserID: userID,
		Time:   now,
		Level:  3,
		Levels: 2,
	})
	tracker.OnEvent(core.Event{
		Type:   core.EventRewardIssued,
		UserID: userID,
		Time:   now,
		Level:  2,
	})

	dayKey := now.Format("2006-01-02")
	assert.Equal(t, "100.5", tracker.ExpGained(dayKey).String())
	assert.Equal(t, int64(2), tracker.LevelUps(dayKey))
	assert.Equal(t, int64(1), tracker.RewardsIssued(dayKey))
	assert.Equal(t, 1, tracker.ActiveUsers(PeriodDaily, dayKey))
	assert.Equal(t, "100.5", tracker.ExpBySource()["mining"].String())
	assert.Equal(t, map[int64]int{3: 1}, tracker.LevelDistribution())
}

func TestTracker_IgnoresMalformedAmounts(t *testing.T) {
	tracker := NewTracker()
	now := time.Now().UTC()

	tracker.OnEvent(core.Event{
		Type:   core.EventExpGained,
		UserID: core.NewUserID(),
		Time:   now,
		Amount: "not-a-number",
	})

	dayKey := now.Format("2006-01-02")
	assert.True(t, tracker.ExpGained(dayKey).IsZero())
	// engagement still counts
	assert.Equal(t, 1, tracker.ActiveUsers(PeriodDaily, dayKey))
}

func TestTracker_ExpLostAndLevelDowns(t *testing.T) {
	tracker := NewTracker()
	userID := core.NewUserID()
	now := time.Now().UTC()

	tracker.OnEvent(core.Event{
		Type:   core.EventExpLost,
		UserID: userID,
		Time:   now,
		Amount: "40",
		Level:  2,
	})
	tracker.OnEvent(core.Event{
		Type:   core.EventLevelDown,
		UserID: userID,
		Time:   now,
		Level:  2,
		Levels: 1,
	})

	dayKey := now.Format("2006-01-02")
	assert.Equal(t, "40", tracker.ExpLost(dayKey).String())
	assert.Equal(t, int64(1), tracker.LevelDowns(dayKey))
}

func TestDAU(t *testing.T) {
	dau := NewDAU()
	now := time.Now().UTC()
	a, b := core.NewUserID(), core.NewUserID()

	dau.OnEvent(core.Event{UserID: a, Time: now})
	dau.OnEvent(core.Event{UserID: a, Time: now})
	dau.OnEvent(core.Event{UserID: b, Time: now})

	assert.Equal(t, 2, dau.Count(now.Format("2006-01-02")))
	assert.Equal(t, 0, dau.Count("1999-01-01"))
}

func TestBridgeHook(t *testing.T) {
	t1, t2 := NewTracker(), NewTracker()
	bridge := NewBridge(t1, t2)

	now := time.Now().UTC()
	bridge.OnEvent(core.Event{Type: core.EventExpGained, UserID: core.NewUserID(), Time: now, Amount: "5"})

	dayKey := now.Format("2006-01-02")
	assert.Equal(t, "5", t1.ExpGained(dayKey).String())
	assert.Equal(t, "5", t2.ExpGained(dayKey).String())
}

func TestAggregationEngine_AggregateNow(t *testing.T) {
	tracker := NewTracker()
	now := time.Now().UTC()
	userID := core.NewUserID()

	tracker.OnEvent(core.Event{Type: core.EventExpGained, UserID: userID, Time: now, Amount: "150", Source: "quests"})
	tracker.OnEvent(core.Event{Type: core.EventLevelUp, UserID: userID, Time: now, Level: 2, Levels: 1})

	ae := NewAggregationEngine(tracker, time.Hour)
	require.NoError(t, ae.AggregateNow())

	dayKey := now.Format("2006-01-02")
	daily, ok := ae.GetAggregatedData(PeriodDaily, dayKey)
	require.True(t, ok)
	assert.Equal(t, PeriodDaily, daily.Period)
	assert.Equal(t, 1, daily.ActiveUsers)
	assert.Equal(t, "150", daily.ExpGained)
	assert.Equal(t, int64(1), daily.LevelUps)
	assert.Equal(t, "150", daily.ExpBySource["quests"])

	weekly, ok := ae.GetAggregatedData(PeriodWeekly, getWeekKey(now))
	require.True(t, ok)
	assert.Equal(t, 1, weekly.ActiveUsers)

	monthly, ok := ae.GetAggregatedData(PeriodMonthly, getMonthKey(now))
	require.True(t, ok)
	assert.Equal(t, 1, monthly.ActiveUsers)

	assert.Len(t, ae.GetAllAggregatedData(PeriodDaily), 1)
}

func TestHTTPExporter(t *testing.T) {
	var received []*AggregatedData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	exporter := NewHTTPExporter(srv.URL, "key1", 2)
	ctx := context.Background()

	// first export buffers, second flushes the batch
	require.NoError(t, exporter.Export(ctx, &AggregatedData{Period: PeriodDaily, Key: "2026-01-01"}))
	assert.Empty(t, received)
	require.NoError(t, exporter.Export(ctx, &AggregatedData{Period: PeriodDaily, Key: "2026-01-02"}))
	require.Len(t, received, 2)
	assert.Equal(t, "2026-01-01", received[0].Key)
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewCSVExporter(&buf)
	ctx := context.Background()

	require.NoError(t, exporter.Export(ctx, &AggregatedData{
		Period:      PeriodDaily,
		Key:         "2026-01-01",
		ActiveUsers: 3,
		ExpGained:   "500",
		ExpLost:     "0",
		LevelUps:    4,
	}))
	require.NoError(t, exporter.Flush(ctx))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "period,key,"))
	assert.Contains(t, lines[1], "daily,2026-01-01")
	assert.Contains(t, lines[1], "500")
}

func TestService_AttachToBus(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync, nil)
	svc := NewService()
	detach := svc.Attach(bus)

	userID := core.NewUserID()
	bus.Publish(context.Background(), core.NewExpGained(userID, "25", "25", 1, 0, "mining"))
	bus.Publish(context.Background(), core.NewLevelUp(userID, 2, 1))

	dayKey := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, "25", svc.Tracker().ExpGained(dayKey).String())
	assert.Equal(t, int64(1), svc.Tracker().LevelUps(dayKey))

	detach()
	bus.Publish(context.Background(), core.NewExpGained(userID, "100", "125", 1, 0, "mining"))
	assert.Equal(t, "25", svc.Tracker().ExpGained(dayKey).String())
}
