package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	fieldsync "github.com/inspectos/fieldsync/internal/sync"
	"github.com/oklog/ulid/v2"
)

const insertOutboxSQL = `
	INSERT INTO outbox (id, entity_type, entity_id, operation, payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

// AppendOutbox inserts a pending entry inside the caller's transaction.
// Every local domain write must append its entry through here so the write
// and the entry commit or roll back together.
func AppendOutbox(tx *sql.Tx, entityType, entityID, operation string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal outbox payload: %w", err)
	}

	id := ulid.Make().String()
	_, err = tx.Exec(insertOutboxSQL,
		id, entityType, entityID, operation, string(data), fmtTime(time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("append outbox: %w", err)
	}
	return id, nil
}

// PendingOutbox returns up to limit unsynced entries whose attempts are
// below maxAttempts, ordered by created_at ascending. Read-only; safe to
// call repeatedly. Entries at the ceiling stay parked until RetryFailedOutbox,
// and a parked entry also holds back newer entries for the same entity so a
// later retry cannot replay an old mutation over a newer one.
func (s *SQLiteStore) PendingOutbox(ctx context.Context, limit, maxAttempts int) ([]fieldsync.OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.entity_type, o.entity_id, o.operation, o.payload,
		       o.created_at, o.attempts, o.last_attempt_at, o.error, o.synced_at
		FROM outbox o
		WHERE o.synced_at IS NULL AND o.attempts < ?
		  AND NOT EXISTS (
			SELECT 1 FROM outbox b
			WHERE b.entity_type = o.entity_type
			  AND b.entity_id = o.entity_id
			  AND b.synced_at IS NULL
			  AND b.attempts >= ?
			  AND b.created_at < o.created_at
		  )
		ORDER BY o.created_at ASC, o.id ASC
		LIMIT ?
	`, maxAttempts, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()

	entries := make([]fieldsync.OutboxEntry, 0)
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// OutboxEntry retrieves a single entry by id.
func (s *SQLiteStore) OutboxEntry(ctx context.Context, id string) (*fieldsync.OutboxEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_id, operation, payload,
		       created_at, attempts, last_attempt_at, error, synced_at
		FROM outbox WHERE id = ?
	`, id)

	entry, err := scanOutboxEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkOutboxSynced records a server-confirmed success. Idempotent: synced_at
// is written exactly once and the entry is never mutated afterwards.
func (s *SQLiteStore) MarkOutboxSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET synced_at = ?, error = NULL
		WHERE id = ? AND synced_at IS NULL
	`, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("mark outbox synced: %w", err)
	}
	return nil
}

// MarkOutboxFailed increments attempts and records the server or transport
// error on the entry. Leaves synced entries untouched.
func (s *SQLiteStore) MarkOutboxFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, last_attempt_at = ?, error = ?
		WHERE id = ? AND synced_at IS NULL
	`, fmtTime(time.Now().UTC()), message, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// RetryFailedOutbox resets attempts for entries that reached the retry
// ceiling, making them eligible for the next pass. Explicit recovery action;
// nothing resets automatically.
func (s *SQLiteStore) RetryFailedOutbox(ctx context.Context, maxAttempts int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = 0, error = NULL
		WHERE synced_at IS NULL AND attempts >= ?
	`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("retry failed outbox: %w", err)
	}
	return result.RowsAffected()
}

// PendingOutboxCount returns the number of unsynced entries.
func (s *SQLiteStore) PendingOutboxCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE synced_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return count, nil
}

// FailedOutboxCount returns the number of unsynced entries parked at the
// retry ceiling.
func (s *SQLiteStore) FailedOutboxCount(ctx context.Context, maxAttempts int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox WHERE synced_at IS NULL AND attempts >= ?
	`, maxAttempts).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed outbox: %w", err)
	}
	return count, nil
}

// PurgeSyncedOutbox deletes confirmed entries older than the retention
// window. Returns the number of entries removed.
func (s *SQLiteStore) PurgeSyncedOutbox(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE synced_at IS NOT NULL AND synced_at < ?
	`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge synced outbox: %w", err)
	}
	return result.RowsAffected()
}

func scanOutboxEntry(scanner interface{ Scan(...any) error }) (*fieldsync.OutboxEntry, error) {
	var e fieldsync.OutboxEntry
	var payload, createdAt string
	var lastAttemptAt, errMsg, syncedAt sql.NullString

	err := scanner.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Operation,
		&payload, &createdAt, &e.Attempts, &lastAttemptAt, &errMsg, &syncedAt)
	if err != nil {
		return nil, err
	}

	e.Payload = json.RawMessage(payload)
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse outbox created_at: %w", err)
	}
	e.CreatedAt = t
	e.LastAttemptAt = nullableTime(lastAttemptAt)
	e.SyncedAt = nullableTime(syncedAt)
	if errMsg.Valid {
		e.Error = errMsg.String
	}
	return &e, nil
}
