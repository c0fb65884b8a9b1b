// Package cyber is the convenience facade for embedding the leveling engine
// in another Go program without wiring every collaborator by hand.
package cyber

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cyberlevels/core"
	"cyberlevels/engine"
	"cyberlevels/levels"
	"cyberlevels/numeric"
	"cyberlevels/realtime"
)

// Option configures the service builder.
type Option func(*builder)

type builder struct {
	storage  engine.Storage
	mode     engine.DispatchMode
	hub      *realtime.Hub
	gate     engine.Gate
	mult     engine.MultiplierSource
	logger   *slog.Logger
	autoSave time.Duration
	opts     levels.Options
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(b *builder) { b.storage = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(b *builder) { b.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(b *builder) { b.hub = h } }

// WithGate installs an earn gate consulted before natural experience gains.
func WithGate(g engine.Gate) Option { return func(b *builder) { b.gate = g } }

// WithMultiplier installs a per-user experience multiplier source.
func WithMultiplier(m engine.MultiplierSource) Option { return func(b *builder) { b.mult = m } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(b *builder) { b.logger = l } }

// WithAutoSave enables periodic persistence on the given interval.
func WithAutoSave(interval time.Duration) Option {
	return func(b *builder) { b.autoSave = interval }
}

// WithLeveling replaces the default leveling policy.
func WithLeveling(opts levels.Options) Option { return func(b *builder) { b.opts = opts } }

// New builds a progression service on float64 arithmetic. If not provided,
// defaults are used:
//   - storage: in-memory
//   - leveling: stock policy from levels.DefaultOptions
//   - dispatch: async
func New(opts ...Option) (engine.API, error) {
	return build[float64](numeric.Float64{}, opts)
}

// NewDecimal builds a progression service on exact decimal arithmetic, for
// deployments where drift on fractional experience is unacceptable.
func NewDecimal(opts ...Option) (engine.API, error) {
	return build[decimal.Decimal](numeric.Decimal{}, opts)
}

func build[N any](op numeric.Operator[N], opts []Option) (engine.API, error) {
	b := &builder{mode: engine.DispatchAsync, opts: levels.DefaultOptions()}
	for _, o := range opts {
		o(b)
	}
	if b.storage == nil {
		b.storage = &memStore{}
	}

	system, err := levels.NewSystem(op, b.opts)
	if err != nil {
		return nil, err
	}

	bus := engine.NewEventBus(b.mode, b.logger)
	if b.hub != nil {
		b.hub.AttachBus(bus)
	}

	return engine.NewService(system, b.storage, engine.Options{
		Bus:        bus,
		Gate:       b.gate,
		Multiplier: b.mult,
		Logger:     b.logger,
		AutoSave:   b.autoSave,
	}), nil
}

// memStore mirrors adapters/memory so New() stays usable without explicit
// storage; pass a real adapter in production.
type memStore struct {
	mu   sync.RWMutex
	data map[core.UserID]levels.Snapshot
}

func (s *memStore) Load(_ context.Context, user core.UserID) (levels.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[user]
	return snap, ok, nil
}

func (s *memStore) Save(_ context.Context, snap levels.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = map[core.UserID]levels.Snapshot{}
	}
	s.data[core.UserID(snap.ID)] = snap
	return nil
}

func (s *memStore) SaveAll(ctx context.Context, snaps []levels.Snapshot) error {
	for _, snap := range snaps {
		if err := s.Save(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, user)
	return nil
}

func (s *memStore) LoadAll(_ context.Context) ([]levels.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := make([]levels.Snapshot, 0, len(s.data))
	for _, snap := range s.data {
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (s *memStore) Close() error { return nil }
