// Package sqlx implements snapshot storage on a relational database through
// jmoiron/sqlx. MySQL and PostgreSQL are supported; experience is stored as
// text so the schema stays independent of the numeric policy.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	libsqlx "github.com/jmoiron/sqlx"

	// Drivers registered for sqlx.Connect.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"cyberlevels/core"
	"cyberlevels/engine"
	"cyberlevels/levels"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds the database connection settings.
type Config struct {
	Driver          Driver
	DSN             string
	Table           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible pool defaults; the DSN must be set by the
// caller.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		Table:           "players",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

type Store struct {
	db     *libsqlx.DB
	driver Driver
	table  string
}

type row struct {
	UUID           string    `db:"uuid"`
	Name           string    `db:"name"`
	DisplayName    string    `db:"display_name"`
	Level          int64     `db:"level"`
	Exp            string    `db:"exp"`
	MaxLevelReward int64     `db:"max_level_reward"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// New connects to the database and verifies the connection.
func New(config Config) (*Store, error) {
	if config.Driver != DriverPostgres && config.Driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported driver %q", config.Driver)
	}
	db, err := libsqlx.Connect(string(config.Driver), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	return NewWithDB(db, config.Driver, config.Table), nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *libsqlx.DB, driver Driver, table string) *Store {
	if table == "" {
		table = "players"
	}
	return &Store{db: db, driver: driver, table: table}
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the players table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		uuid VARCHAR(36) PRIMARY KEY,
		name VARCHAR(64) NOT NULL DEFAULT '',
		display_name VARCHAR(64) NOT NULL DEFAULT '',
		level BIGINT NOT NULL,
		exp TEXT NOT NULL,
		max_level_reward BIGINT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *Store) rebind(q string) string { return s.db.Rebind(q) }

func (s *Store) upsertQuery() string {
	switch s.driver {
	case DriverMySQL:
		return fmt.Sprintf(`INSERT INTO %s (uuid, name, display_name, level, exp, max_level_reward, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), display_name = VALUES(display_name),
			level = VALUES(level), exp = VALUES(exp),
			max_level_reward = VALUES(max_level_reward), updated_at = VALUES(updated_at)`, s.table)
	default:
		return fmt.Sprintf(`INSERT INTO %s (uuid, name, display_name, level, exp, max_level_reward, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (uuid) DO UPDATE SET name = EXCLUDED.name, display_name = EXCLUDED.display_name,
			level = EXCLUDED.level, exp = EXCLUDED.exp,
			max_level_reward = EXCLUDED.max_level_reward, updated_at = EXCLUDED.updated_at`, s.table)
	}
}

func (s *Store) Load(ctx context.Context, user core.UserID) (levels.Snapshot, bool, error) {
	var r row
	q := s.rebind(fmt.Sprintf(`SELECT uuid, name, display_name, level, exp, max_level_reward, updated_at FROM %s WHERE uuid = ?`, s.table))
	err := s.db.GetContext(ctx, &r, q, string(user))
	if errors.Is(err, sql.ErrNoRows) {
		return levels.Snapshot{}, false, nil
	}
	if err != nil {
		return levels.Snapshot{}, false, fmt.Errorf("failed to load player: %w", err)
	}
	return snapOf(r), true, nil
}

func snapOf(r row) levels.Snapshot {
	return levels.Snapshot{
		ID:              core.UserID(r.UUID),
		Name:            r.Name,
		DisplayName:     r.DisplayName,
		Level:           r.Level,
		Exp:             r.Exp,
		HighestRewarded: r.MaxLevelReward,
	}
}

func (s *Store) Save(ctx context.Context, snap levels.Snapshot) error {
	q := s.rebind(s.upsertQuery())
	_, err := s.db.ExecContext(ctx, q,
		string(snap.ID), snap.Name, snap.DisplayName, snap.Level, snap.Exp, snap.HighestRewarded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	return nil
}

func (s *Store) SaveAll(ctx context.Context, snaps []levels.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	q := s.rebind(s.upsertQuery())
	now := time.Now().UTC()
	for _, snap := range snaps {
		if _, err := tx.ExecContext(ctx, q,
			string(snap.ID), snap.Name, snap.DisplayName, snap.Level, snap.Exp, snap.HighestRewarded, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to save player %s: %w", snap.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, user core.UserID) error {
	q := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE uuid = ?`, s.table))
	if _, err := s.db.ExecContext(ctx, q, string(user)); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]levels.Snapshot, error) {
	var rows []row
	q := fmt.Sprintf(`SELECT uuid, name, display_name, level, exp, max_level_reward, updated_at FROM %s`, s.table)
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}
	out := make([]levels.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = snapOf(r)
	}
	return out, nil
}

var _ engine.Storage = (*Store)(nil)
