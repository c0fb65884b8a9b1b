// Package redis implements snapshot storage on Redis.
//
// Data structure:
//   - player:{uuid} -> JSON blob of the snapshot
//   - players       -> set of tracked uuids, for full scans
//
// Both keys live under a configurable prefix so several deployments can share
// one Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cyberlevels/core"
	"cyberlevels/engine"
	"cyberlevels/levels"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "cyberlevels",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

type Store struct {
	client *redis.Client
	prefix string
}

// New creates a Redis-backed store and verifies the connection.
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "cyberlevels"
	}
	return &Store{client: client, prefix: prefix}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing).
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "cyberlevels"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) playerKey(user core.UserID) string {
	return fmt.Sprintf("%s:player:%s", s.prefix, user)
}

func (s *Store) indexKey() string {
	return s.prefix + ":players"
}

func (s *Store) Load(ctx context.Context, user core.UserID) (levels.Snapshot, bool, error) {
	data, err := s.client.Get(ctx, s.playerKey(user)).Bytes()
	if err == redis.Nil {
		return levels.Snapshot{}, false, nil
	}
	if err != nil {
		return levels.Snapshot{}, false, fmt.Errorf("failed to load player: %w", err)
	}
	var snap levels.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return levels.Snapshot{}, false, fmt.Errorf("corrupt player record %s: %w", user, err)
	}
	return snap, true, nil
}

func (s *Store) Save(ctx context.Context, snap levels.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.playerKey(snap.ID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), string(snap.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	return nil
}

func (s *Store) SaveAll(ctx context.Context, snaps []levels.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, snap := range snaps {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		pipe.Set(ctx, s.playerKey(snap.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), string(snap.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save players: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, user core.UserID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.playerKey(user))
	pipe.SRem(ctx, s.indexKey(), string(user))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]levels.Snapshot, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	out := make([]levels.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, found, err := s.Load(ctx, core.UserID(id))
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, snap)
		}
	}
	return out, nil
}

var _ engine.Storage = (*Store)(nil)
