// Package jsonfile persists snapshots to a single JSON file.
// Suitable for demos and small deployments.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"cyberlevels/core"
	"cyberlevels/engine"
	"cyberlevels/levels"
)

type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]levels.Snapshot
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]levels.Snapshot{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]levels.Snapshot
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		v.ID = core.UserID(k)
		s.data[core.UserID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]levels.Snapshot, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Load(_ context.Context, user core.UserID) (levels.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[user]
	return snap, ok, nil
}

func (s *Store) Save(_ context.Context, snap levels.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.ID] = snap
	return s.persist()
}

func (s *Store) SaveAll(_ context.Context, snaps []levels.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		s.data[snap.ID] = snap
	}
	return s.persist()
}

func (s *Store) Delete(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, user)
	return s.persist()
}

func (s *Store) LoadAll(_ context.Context) ([]levels.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]levels.Snapshot, 0, len(s.data))
	for _, snap := range s.data {
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

var _ engine.Storage = (*Store)(nil)
