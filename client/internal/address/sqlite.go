package address

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a small preferences table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the preferences database and runs migrations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// Shared cache so every pooled connection sees the same in-memory database.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	} else if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored address, or "" when none is stored.
func (s *SQLiteStore) Get(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, Key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", Key, err)
	}
	return value, nil
}

// Set normalizes and stores host. An empty host clears the stored address.
func (s *SQLiteStore) Set(ctx context.Context, host string) error {
	host, err := Normalize(host)
	if err != nil {
		return err
	}
	if host == "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, Key); err != nil {
			return fmt.Errorf("clear %s: %w", Key, err)
		}
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		Key, host, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", Key, err)
	}
	return nil
}
