package analytics

import (
	"context"
	"log/slog"
	"time"

	"cyberlevels/core"
	"cyberlevels/engine"
)

// Service composes the tracker, aggregation loop and exporters into one
// analytics pipeline fed by the engine's event bus.
type Service struct {
	tracker    *Tracker
	aggregator *AggregationEngine
	exporter   *ExportManager
	log        *slog.Logger

	exportInterval time.Duration
}

// ServiceOption configures the analytics service.
type ServiceOption func(*Service)

// WithExporters replaces the default (none) exporter set.
func WithExporters(exporters ...Exporter) ServiceOption {
	return func(s *Service) { s.exporter = NewExportManager(exporters...) }
}

// WithExportInterval sets how often daily aggregations are exported.
func WithExportInterval(interval time.Duration) ServiceOption {
	return func(s *Service) { s.exportInterval = interval }
}

// WithServiceLogger sets the structured logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// NewService creates an analytics pipeline that aggregates hourly.
func NewService(opts ...ServiceOption) *Service {
	tracker := NewTracker()
	s := &Service{
		tracker:        tracker,
		aggregator:     NewAggregationEngine(tracker, time.Hour),
		exporter:       NewExportManager(),
		log:            slog.Default(),
		exportInterval: 6 * time.Hour,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Tracker exposes the live counters for ad-hoc queries.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Aggregator exposes the periodic aggregations.
func (s *Service) Aggregator() *AggregationEngine { return s.aggregator }

// Attach subscribes the pipeline to every progression event on the bus and
// returns a detach func.
func (s *Service) Attach(bus *engine.EventBus) func() {
	types := []core.EventType{
		core.EventExpGained,
		core.EventExpLost,
		core.EventLevelUp,
		core.EventLevelDown,
		core.EventRewardIssued,
	}
	offs := make([]func(), 0, len(types))
	for _, typ := range types {
		offs = append(offs, bus.Subscribe(typ, func(_ context.Context, e core.Event) {
			s.tracker.OnEvent(e)
		}))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// Start begins background aggregation and export until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go s.aggregator.Start(ctx)
	go s.exportLoop(ctx)
}

func (s *Service) exportLoop(ctx context.Context) {
	ticker := time.NewTicker(s.exportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daily := s.aggregator.GetAllAggregatedData(PeriodDaily)
			if err := s.exporter.ExportData(ctx, daily); err != nil {
				s.log.Warn("analytics export failed", "error", err)
			}
		}
	}
}
