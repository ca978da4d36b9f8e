// Package sqlite keeps the interaction history in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var _ ports.HistoryStore = (*Store)(nil)

type Store struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("open history database: path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	// sqlite serializes writers anyway.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	store := &Store{conn: conn, path: path, log: log}
	if err := store.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) Insert(ctx context.Context, record domain.InteractionRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO interactions (target_id, family, target_type, account_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (target_id, family, target_type, account_id)
		DO UPDATE SET created_at = excluded.created_at
	`, record.TargetID, string(record.Family), string(record.TargetType), string(record.AccountID), createdAt.UTC())
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, query domain.HistoryQuery) ([]domain.InteractionRecord, error) {
	where, args := whereClause(query)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT target_id, family, target_type, account_id, created_at
		FROM interactions`+where+`
		ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var records []domain.InteractionRecord
	for rows.Next() {
		var (
			record                      domain.InteractionRecord
			family, targetType, account string
		)
		if err := rows.Scan(&record.TargetID, &family, &targetType, &account, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		record.Family = domain.Family(family)
		record.TargetType = domain.TargetType(targetType)
		record.AccountID = domain.AccountID(account)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read interactions: %w", err)
	}

	return records, nil
}

// Remove deletes matching records. An empty query is refused so a typo never
// wipes the whole history.
func (s *Store) Remove(ctx context.Context, query domain.HistoryQuery) (int64, error) {
	where, args := whereClause(query)
	if where == "" {
		return 0, errors.New("remove interactions: empty query")
	}

	result, err := s.conn.ExecContext(ctx, `DELETE FROM interactions`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("remove interactions: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count removed interactions: %w", err)
	}
	return removed, nil
}

func whereClause(query domain.HistoryQuery) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	add := func(column, value string) {
		if value == "" {
			return
		}
		conditions = append(conditions, column+" = ?")
		args = append(args, value)
	}

	add("target_id", query.TargetID)
	add("family", string(query.Family))
	add("target_type", string(query.TargetType))
	add("account_id", string(query.AccountID))

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
