// Package engine wires the level registry, persistence, the leaderboard, and
// the event bus into one progression service.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cyberlevels/core"
	"cyberlevels/leaderboard"
	"cyberlevels/levels"
)

// ErrUserNotFound is returned by lookups for identities that were never
// tracked.
var ErrUserNotFound = errors.New("user not found")

// Result is the outward, representation-free summary of one mutation.
type Result struct {
	Level        int64   `json:"level"`
	Exp          string  `json:"exp"`
	LevelsGained int64   `json:"levelsGained,omitempty"`
	LevelsLost   int64   `json:"levelsLost,omitempty"`
	Display      string  `json:"display,omitempty"`
	RewardLevels []int64 `json:"rewardLevels,omitempty"`
}

// UserView is the outward read model of one tracked player.
type UserView struct {
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Level        int64  `json:"level"`
	Exp          string `json:"exp"`
	RequiredExp  string `json:"requiredExp"`
	RemainingExp string `json:"remainingExp"`
	Percent      string `json:"percent"`
	ProgressBar  string `json:"progressBar"`
	Position     int    `json:"position"`
}

// BoardEntry is one leaderboard row.
type BoardEntry struct {
	Position int    `json:"position"`
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Level    int64  `json:"level"`
	Exp      string `json:"exp"`
}

// API is the numeric-policy-free surface consumed by transports. Amounts
// travel as decimal strings; malformed input surfaces a core.FormatError.
type API interface {
	Join(ctx context.Context, user core.UserID, name string) (UserView, error)
	Leave(ctx context.Context, user core.UserID) error
	Remove(ctx context.Context, user core.UserID) error
	GetUser(ctx context.Context, user core.UserID) (UserView, error)

	EarnExp(ctx context.Context, user core.UserID, amount string, source core.ExpSource) (Result, error)
	AddExp(ctx context.Context, user core.UserID, amount string) (Result, error)
	RemoveExp(ctx context.Context, user core.UserID, amount string) (Result, error)
	SetExp(ctx context.Context, user core.UserID, amount string, checkLevel bool) (Result, error)
	AddLevel(ctx context.Context, user core.UserID, n int64) (Result, error)
	RemoveLevel(ctx context.Context, user core.UserID, n int64) (Result, error)
	SetLevel(ctx context.Context, user core.UserID, n int64) (Result, error)

	Leaderboard(ctx context.Context) []BoardEntry
	CheckPosition(ctx context.Context, user core.UserID) int
	RebuildLeaderboard()

	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
	SaveAll(ctx context.Context) error
}

// Options carry the service's optional collaborators.
type Options struct {
	Bus        *EventBus
	Gate       Gate
	Multiplier MultiplierSource
	Logger     *slog.Logger

	// AutoSave flushes every tracked player to storage on this interval.
	// Zero disables the loop.
	AutoSave time.Duration
}

// Service owns the live progression states. One instance per numeric policy
// per deployment.
type Service[N any] struct {
	system  *levels.System[N]
	storage Storage
	board   *leaderboard.Board[N]
	bus     *EventBus
	gate    Gate
	mult    MultiplierSource
	log     *slog.Logger

	mu    sync.RWMutex
	users map[core.UserID]*levels.User[N]

	stopSave context.CancelFunc
	saveDone chan struct{}
}

func NewService[N any](system *levels.System[N], storage Storage, opts Options) *Service[N] {
	if system == nil || storage == nil {
		panic("NewService requires non-nil system and storage")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = NewEventBus(DispatchSync, log)
	}
	s := &Service[N]{
		system:  system,
		storage: storage,
		bus:     bus,
		gate:    opts.Gate,
		mult:    opts.Multiplier,
		log:     log,
		users:   make(map[core.UserID]*levels.User[N]),
	}
	s.board = leaderboard.New(system.Operator(), s.boardSource)
	if opts.AutoSave > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopSave = cancel
		s.saveDone = make(chan struct{})
		go s.autoSaveLoop(ctx, opts.AutoSave)
	}
	return s
}

func (s *Service[N]) autoSaveLoop(ctx context.Context, interval time.Duration) {
	defer close(s.saveDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.SaveAll(ctx); err != nil {
				s.log.Error("auto-save failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Board exposes the live leaderboard.
func (s *Service[N]) Board() *leaderboard.Board[N] { return s.board }

// Bus exposes the event bus for subscribers that need it directly.
func (s *Service[N]) Bus() *EventBus { return s.bus }

func (s *Service[N]) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service[N]) entryOf(u *levels.User[N]) leaderboard.Entry[N] {
	return leaderboard.Entry[N]{User: u.ID(), Name: u.DisplayName(), Level: u.Level(), Exp: u.Exp()}
}

// loadOrCreate resolves the live state for an identity, pulling it from
// storage on first sight and creating a fresh one for wholly new players.
func (s *Service[N]) loadOrCreate(ctx context.Context, id core.UserID, name string) (*levels.User[N], error) {
	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if ok {
		return u, nil
	}

	snap, found, err := s.storage.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		u, err = s.system.RestoreUser(snap)
		if err != nil {
			return nil, err
		}
	} else {
		u = s.system.NewUser(id, name)
	}
	u.SetOnChange(func(user *levels.User[N], _ levels.Change) {
		s.board.UpdateInstant(s.entryOf(user))
	})

	s.mu.Lock()
	if existing, ok := s.users[id]; ok {
		u = existing
	} else {
		s.users[id] = u
	}
	s.mu.Unlock()
	return u, nil
}

// lookup resolves a live state without creating one.
func (s *Service[N]) lookup(ctx context.Context, id core.UserID) (*levels.User[N], error) {
	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if ok {
		return u, nil
	}
	_, found, err := s.storage.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUserNotFound
	}
	return s.loadOrCreate(ctx, id, "")
}

// Join starts tracking an identity, loading any persisted state.
func (s *Service[N]) Join(ctx context.Context, id core.UserID, name string) (UserView, error) {
	u, err := s.loadOrCreate(ctx, id, name)
	if err != nil {
		return UserView{}, err
	}
	s.board.UpdateInstant(s.entryOf(u))
	return s.view(u)
}

// Leave saves and evicts an identity. Its standing drops off the live board
// until the next full rebuild includes it from storage.
func (s *Service[N]) Leave(ctx context.Context, id core.UserID) error {
	s.mu.Lock()
	u, ok := s.users[id]
	delete(s.users, id)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.storage.Save(ctx, u.Snapshot())
}

// Remove forgets an identity entirely: live state, leaderboard standing, and
// the persisted snapshot. Unlike Leave, nothing survives to reload later.
func (s *Service[N]) Remove(ctx context.Context, id core.UserID) error {
	s.mu.Lock()
	delete(s.users, id)
	s.mu.Unlock()
	s.board.Remove(id)
	return s.storage.Delete(ctx, id)
}

func (s *Service[N]) GetUser(ctx context.Context, id core.UserID) (UserView, error) {
	u, err := s.lookup(ctx, id)
	if err != nil {
		return UserView{}, err
	}
	return s.view(u)
}

func (s *Service[N]) view(u *levels.User[N]) (UserView, error) {
	required, err := u.RequiredExp()
	if err != nil {
		return UserView{}, err
	}
	remaining, err := u.RemainingExp()
	if err != nil {
		return UserView{}, err
	}
	exp := u.Exp()
	return UserView{
		UUID:         string(u.ID()),
		Name:         u.Name(),
		DisplayName:  u.DisplayName(),
		Level:        u.Level(),
		Exp:          s.system.RoundedString(exp),
		RequiredExp:  s.system.RoundedString(required),
		RemainingExp: s.system.RoundedString(remaining),
		Percent:      s.system.Percent(exp, required),
		ProgressBar:  s.system.ProgressBar(exp, required),
		Position:     s.board.CheckPosition(u.ID()),
	}, nil
}

func (s *Service[N]) parse(amount string) (N, error) {
	v, err := s.system.Operator().Parse(amount)
	if err != nil {
		var zero N
		return zero, core.NewFormatError(amount, err)
	}
	return v, nil
}

// dispatchRewards hands out rewards for every crossed level, lowest first,
// and publishes one event per level.
func (s *Service[N]) dispatchRewards(ctx context.Context, id core.UserID, rewardLevels []int64) {
	for _, lvl := range rewardLevels {
		l := s.system.Level(lvl)
		if l == nil {
			continue
		}
		for _, r := range l.Rewards() {
			r.GiveAll(ctx, id)
		}
		s.bus.Publish(ctx, core.NewRewardIssued(id, lvl))
	}
}

func (s *Service[N]) publishChange(ctx context.Context, id core.UserID, ch levels.Change, source core.ExpSource) {
	if ch.Gained != "" {
		s.bus.Publish(ctx, core.NewExpGained(id, ch.Gained, ch.Total, ch.Level, ch.LevelsGained, source))
	}
	if ch.Lost != "" {
		s.bus.Publish(ctx, core.NewExpLost(id, ch.Lost, ch.Total, ch.Level, ch.LevelsLost, source))
	}
	if ch.LevelsGained > 0 {
		s.bus.Publish(ctx, core.NewLevelUp(id, ch.Level, ch.LevelsGained))
	}
	if ch.LevelsLost > 0 {
		s.bus.Publish(ctx, core.NewLevelDown(id, ch.Level, ch.LevelsLost))
	}
}

func (s *Service[N]) finish(ctx context.Context, id core.UserID, ch levels.Change, source core.ExpSource) Result {
	s.dispatchRewards(ctx, id, ch.RewardLevels)
	s.publishChange(ctx, id, ch, source)
	return Result{
		Level:        ch.Level,
		Exp:          ch.Total,
		LevelsGained: ch.LevelsGained,
		LevelsLost:   ch.LevelsLost,
		Display:      ch.Display,
		RewardLevels: ch.RewardLevels,
	}
}

// EarnExp is the natural gain path: it honors the gate and the per-source
// multiplier. A blocked gain is not an error; the result reflects the
// unchanged state.
func (s *Service[N]) EarnExp(ctx context.Context, id core.UserID, amount string, source core.ExpSource) (Result, error) {
	u, err := s.loadOrCreate(ctx, id, "")
	if err != nil {
		return Result{}, err
	}
	if s.gate != nil && !s.gate.Allow(ctx, id, source) {
		s.log.Debug("exp gain blocked", "user", id, "source", source)
		return Result{Level: u.Level(), Exp: s.system.Operator().Format(u.Exp())}, nil
	}
	v, err := s.parse(amount)
	if err != nil {
		return Result{}, err
	}
	if s.mult != nil {
		op := s.system.Operator()
		if m := s.mult.Multiplier(ctx, id, source); m != 1 {
			v = op.Mul(v, op.FromFloat(m))
		}
	}
	ch, err := u.AddExp(v)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, id, ch, source), nil
}

// AddExp is the administrative gain path: no gate, no multiplier.
func (s *Service[N]) AddExp(ctx context.Context, id core.UserID, amount string) (Result, error) {
	u, err := s.loadOrCreate(ctx, id, "")
	if err != nil {
		return Result{}, err
	}
	v, err := s.parse(amount)
	if err != nil {
		return Result{}, err
	}
	ch, err := u.AddExp(v)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, id, ch, core.SourceAdmin), nil
}

func (s *Service[N]) RemoveExp(ctx context.Context, id core.UserID, amount string) (Result, error) {
	u, err := s.loadOrCreate(ctx, id, "")
	if err != nil {
		return Result{}, err
	}
	v, err := s.parse(amount)
	if err != nil {
		return Result{}, err
	}
	ch, err := u.RemoveExp(v)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, id, ch, core.SourceAdmin), nil
}

func (s *Service[N]) SetExp(ctx context.Context, id core.UserID, amount string, checkLevel bool) (Result, error) {
	u, err := s.loadOrCreate(ctx, id, "")
	if err != nil {
		return Result{}, err
	}
	v, err := s.parse(amount)
	if err != nil {
		return Result{}, err
	}
	ch, err := u.SetExp(v, checkLevel)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, id, ch, core.SourceAdmin), nil
}

func (s *Service[N]) AddLevel(ctx context.Context, id core.UserID, n int64) (Result, error) {
	u, err := s.loadOrCreate(ctx, id, "")
	if err != nil {
		return Result{}, err
	}
	ch, err := u.AddLevel(n)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, id, ch, core.SourceAdmin), nil
}

func (s *Service[N]) RemoveLevel(ctx context.Context, id core.UserID, n int64) (Result, error) {
	u, err := s.loadOrCreate(ctx, id, "")
	if err != nil {
		return Result{}, err
	}
	ch, err := u.RemoveLevel(n)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, id, ch, core.SourceAdmin), nil
}

func (s *Service[N]) SetLevel(ctx context.Context, id core.UserID, n int64) (Result, error) {
	u, err := s.loadOrCreate(ctx, id, "")
	if err != nil {
		return Result{}, err
	}
	ch, err := u.SetLevel(n)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, id, ch, core.SourceAdmin), nil
}

// boardSource snapshots every known player for a full rebuild: everything in
// storage, overlaid with the live states, which are fresher.
func (s *Service[N]) boardSource() []leaderboard.Entry[N] {
	op := s.system.Operator()
	byUser := make(map[core.UserID]leaderboard.Entry[N])

	snaps, err := s.storage.LoadAll(context.Background())
	if err != nil {
		s.log.Error("leaderboard rebuild: loading stored players failed", "error", err)
	}
	for _, snap := range snaps {
		exp, err := op.Parse(snap.Exp)
		if err != nil {
			s.log.Warn("skipping unparseable stored exp", "user", snap.ID, "exp", snap.Exp)
			continue
		}
		name := snap.DisplayName
		if name == "" {
			name = snap.Name
		}
		byUser[snap.ID] = leaderboard.Entry[N]{User: snap.ID, Name: name, Level: snap.Level, Exp: exp}
	}

	s.mu.RLock()
	live := make([]*levels.User[N], 0, len(s.users))
	for _, u := range s.users {
		live = append(live, u)
	}
	s.mu.RUnlock()
	for _, u := range live {
		byUser[u.ID()] = s.entryOf(u)
	}

	out := make([]leaderboard.Entry[N], 0, len(byUser))
	for _, e := range byUser {
		out = append(out, e)
	}
	return out
}

// RebuildLeaderboard runs a coalesced full rebuild in the background.
func (s *Service[N]) RebuildLeaderboard() {
	go s.board.Update()
}

func (s *Service[N]) Leaderboard(ctx context.Context) []BoardEntry {
	top := s.board.Top()
	out := make([]BoardEntry, len(top))
	for i, e := range top {
		out[i] = BoardEntry{
			Position: i + 1,
			UUID:     string(e.User),
			Name:     e.Name,
			Level:    e.Level,
			Exp:      s.system.RoundedString(e.Exp),
		}
	}
	return out
}

func (s *Service[N]) CheckPosition(ctx context.Context, id core.UserID) int {
	return s.board.CheckPosition(id)
}

// SaveAll flushes every live state to storage in one batch.
func (s *Service[N]) SaveAll(ctx context.Context) error {
	s.mu.RLock()
	snaps := make([]levels.Snapshot, 0, len(s.users))
	for _, u := range s.users {
		snaps = append(snaps, u.Snapshot())
	}
	s.mu.RUnlock()
	if len(snaps) == 0 {
		return nil
	}
	return s.storage.SaveAll(ctx, snaps)
}

// Close stops the auto-save loop, flushes state, and releases collaborators.
func (s *Service[N]) Close(ctx context.Context) error {
	if s.stopSave != nil {
		s.stopSave()
		<-s.saveDone
	}
	err := s.SaveAll(ctx)
	s.bus.Close()
	if cerr := s.storage.Close(); err == nil {
		err = cerr
	}
	return err
}
