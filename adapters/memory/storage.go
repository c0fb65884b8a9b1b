// Package memory provides a concurrent in-memory snapshot store, used in
// tests and single-process demos.
package memory

import (
	"context"
	"sync"

	"cyberlevels/core"
	"cyberlevels/engine"
	"cyberlevels/levels"
)

type Store struct {
	mu    sync.RWMutex
	snaps map[core.UserID]levels.Snapshot
}

func New() *Store {
	return &Store{snaps: make(map[core.UserID]levels.Snapshot)}
}

func (s *Store) Load(_ context.Context, user core.UserID) (levels.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[user]
	return snap, ok, nil
}

func (s *Store) Save(_ context.Context, snap levels.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap
	return nil
}

func (s *Store) SaveAll(_ context.Context, snaps []levels.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		s.snaps[snap.ID] = snap
	}
	return nil
}

func (s *Store) Delete(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, user)
	return nil
}

func (s *Store) LoadAll(_ context.Context) ([]levels.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]levels.Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

var _ engine.Storage = (*Store)(nil)
