// Package localstore keeps client-side flags in a small SQLite file. The flags
// are device-local and never synced; they only decide whether onboarding is
// shown again and whether the guardian poller runs.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"aether-vault/internal/domain"
)

const (
	KeyOnboarded = "aether_onboarded"
	KeyStrategy  = "aether_strategy"
	KeyGuardian  = "aether_guardian"
)

const (
	createFlagsSQL = `CREATE TABLE IF NOT EXISTS flags (
        key   TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );`

	getFlagSQL = `SELECT value FROM flags WHERE key = ?;`

	setFlagSQL = `INSERT INTO flags (key, value) VALUES (?, ?)
    ON CONFLICT(key) DO UPDATE SET value = excluded.value;`

	deleteFlagSQL = `DELETE FROM flags WHERE key = ?;`
)

// Flags is the decoded view of the stored keys.
type Flags struct {
	Onboarded bool
	Strategy  domain.StrategyProfile
	Guardian  bool
}

// Store reads and writes flags.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory, opens the SQLite file and ensures the table exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("local.path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create local dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// sqlite 只允许单写者
	db.SetMaxOpenConns(1)

	s, err := NewWithDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle and runs the table migration.
func NewWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, createFlagsSQL); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the raw value and whether the key was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, getFlagSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read flag %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a raw value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, setFlagSQL, key, value); err != nil {
		return fmt.Errorf("write flag %s: %w", key, err)
	}
	return nil
}

// Load decodes all flags. Guardian defaults to enabled when never set.
func (s *Store) Load(ctx context.Context) (Flags, error) {
	flags := Flags{Guardian: true}

	onboarded, _, err := s.Get(ctx, KeyOnboarded)
	if err != nil {
		return Flags{}, err
	}
	flags.Onboarded = onboarded == "1"

	strategy, ok, err := s.Get(ctx, KeyStrategy)
	if err != nil {
		return Flags{}, err
	}
	if ok {
		if p, perr := domain.ParseProfile(strategy); perr == nil {
			flags.Strategy = p
		}
	}

	guardian, ok, err := s.Get(ctx, KeyGuardian)
	if err != nil {
		return Flags{}, err
	}
	if ok {
		flags.Guardian = guardian == "1"
	}
	return flags, nil
}

// MarkOnboarded sets the onboarding-complete flag.
func (s *Store) MarkOnboarded(ctx context.Context) error {
	return s.Set(ctx, KeyOnboarded, "1")
}

// SaveSelections stores the onboarding flag with the chosen profile and guardian preference.
func (s *Store) SaveSelections(ctx context.Context, profile domain.StrategyProfile, guardian bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin local tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, kv := range [][2]string{
		{KeyOnboarded, "1"},
		{KeyStrategy, string(profile)},
		{KeyGuardian, boolFlag(guardian)},
	} {
		if _, err := tx.ExecContext(ctx, setFlagSQL, kv[0], kv[1]); err != nil {
			return fmt.Errorf("write flag %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit local tx: %w", err)
	}
	return nil
}

// GuardianEnabled reports the local guardian toggle.
func (s *Store) GuardianEnabled(ctx context.Context) (bool, error) {
	v, ok, err := s.Get(ctx, KeyGuardian)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return v == "1", nil
}

// SetGuardian stores the local guardian toggle.
func (s *Store) SetGuardian(ctx context.Context, enabled bool) error {
	return s.Set(ctx, KeyGuardian, boolFlag(enabled))
}

// Clear removes all known keys so onboarding shows again.
func (s *Store) Clear(ctx context.Context) error {
	for _, key := range []string{KeyOnboarded, KeyStrategy, KeyGuardian} {
		if _, err := s.db.ExecContext(ctx, deleteFlagSQL, key); err != nil {
			return fmt.Errorf("clear flag %s: %w", key, err)
		}
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
