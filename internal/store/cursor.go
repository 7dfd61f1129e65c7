package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Pull stream names. One sync_state row exists per logical stream.
const (
	StreamPull      = "pull"
	StreamBootstrap = "bootstrap"
)

// SyncCursor marks the position of the last fully applied batch for a
// stream. Cursor is the opaque server-issued token.
type SyncCursor struct {
	EntityType   string
	LastSyncedAt *time.Time
	Cursor       string
	UpdatedAt    time.Time
}

// Cursor returns the stored cursor for a stream, or ErrNoCursor when the
// stream has never completed a batch (bootstrap not yet run).
func (s *SQLiteStore) Cursor(ctx context.Context, stream string) (*SyncCursor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_type, last_synced_at, cursor, updated_at
		FROM sync_state WHERE entity_type = ?
	`, stream)

	var c SyncCursor
	var lastSyncedAt, cursor sql.NullString
	var updatedAt string
	err := row.Scan(&c.EntityType, &lastSyncedAt, &cursor, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCursor
	}
	if err != nil {
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}

	c.Cursor = cursor.String
	c.LastSyncedAt = nullableTime(lastSyncedAt)
	if t, err := parseTime(updatedAt); err == nil {
		c.UpdatedAt = t
	}
	return &c, nil
}

// SaveCursor advances a stream's cursor. Callers invoke this only after the
// entire batch behind the token has been applied; a failed application must
// leave the previous cursor in place.
func (s *SQLiteStore) SaveCursor(ctx context.Context, stream, cursor string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_state (entity_type, cursor, last_synced_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, stream, cursor, cursor, now)
	if err != nil {
		return fmt.Errorf("save sync cursor: %w", err)
	}
	return nil
}
