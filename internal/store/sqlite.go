// Package store implements the embedded local store backing the sync
// engine: domain tables, the outbox queue, the media upload queue, and the
// sync cursors, all in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore represents the SQLite-backed local database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, runs
// migrations, and recovers media rows stranded in the uploading state.
// Any failure here is fatal to the engine; no writes happen before the
// store is ready.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{db: db}

	// An app killed mid-upload leaves rows in 'uploading'. They go back to
	// 'pending' so the next pass picks them up.
	n, err := s.resetUploadingMedia(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recover uploading media: %w", err)
	}
	if n > 0 {
		slog.Info("recovered interrupted uploads",
			"component", "store",
			"action", "upload_recovery",
			"count", n,
		)
	}

	return s, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RunInTransaction executes fn inside a single transaction. The transaction
// is committed when fn returns nil and rolled back otherwise. Domain writes
// and their outbox entries must go through here so neither can exist
// without the other.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) resetUploadingMedia(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE media_assets SET upload_state = 'pending' WHERE upload_state = 'uploading'
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Setting reads one app_settings value. Returns ErrNotFound for unknown keys.
func (s *SQLiteStore) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting writes one app_settings value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
	`, key, value, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// timeLayout keeps the fractional part fixed width. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering of the TEXT columns
// ("...00.1Z" sorts after "...00.15Z"); every ORDER BY and range comparison
// on a timestamp column relies on this layout.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// fmtTime renders a timestamp the way every table stores them.
func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp, tolerating second precision.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// nullableTime converts an optional timestamp column to *time.Time.
// Unparseable values are logged and dropped rather than failing the scan.
func nullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		slog.Warn("failed to parse stored timestamp", "value", ns.String, "error", err)
		return nil
	}
	return &t
}
