package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version     int
	description string
	up          func(*sql.Tx) error
}

var migrations = []migration{
	{version: 1, description: "create schema_version table", up: migration001Up},
	{version: 2, description: "create interactions table", up: migration002Up},
	{version: 3, description: "index interactions by account", up: migration003Up},
}

// Version returns the latest applied schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var exists bool
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type = 'table' AND name = 'schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	if err := s.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) migrate(ctx context.Context) error {
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		if err := s.execTx(ctx, func(tx *sql.Tx) error {
			if err := m.up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			_, err := tx.Exec(`
				INSERT INTO schema_version (version, description, applied_at)
				VALUES (?, ?, ?)
			`, m.version, m.description, time.Now().UTC())
			return err
		}); err != nil {
			return err
		}

		s.log.Debug().Int("version", m.version).Str("description", m.description).Msg("history migration applied")
	}

	return nil
}

func (s *Store) execTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target_id TEXT NOT NULL,
			family TEXT NOT NULL,
			target_type TEXT NOT NULL,
			account_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (target_id, family, target_type, account_id)
		)
	`)
	return err
}

func migration003Up(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_interactions_account ON interactions (account_id)`)
	return err
}
