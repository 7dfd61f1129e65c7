package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

// Job returns one job by id.
func (s *SQLiteStore) Job(ctx context.Context, id string) (*fieldsync.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, property_id, client_id, template_id, inspector_id, status,
		       scheduled_date, scheduled_time, duration_minutes, notes, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobsByDate lists jobs scheduled on the given date (YYYY-MM-DD), ordered
// by scheduled time.
func (s *SQLiteStore) JobsByDate(ctx context.Context, date string) ([]fieldsync.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, property_id, client_id, template_id, inspector_id, status,
		       scheduled_date, scheduled_time, duration_minutes, notes, created_at, updated_at
		FROM jobs WHERE scheduled_date = ? ORDER BY scheduled_time ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]fieldsync.JobRecord, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus transitions a job's status locally and queues the change.
// Jobs are otherwise server-owned reference data; status is the one field
// the field worker mutates.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id, status string) error {
	now := fmtTime(time.Now().UTC())

	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?
		`, status, now, id)
		if err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		_, err = AppendOutbox(tx, "jobs", id, fieldsync.OperationUpsert,
			map[string]string{"id": id, "status": status, "updated_at": now})
		return err
	})
}

func scanJob(scanner interface{ Scan(...any) error }) (*fieldsync.JobRecord, error) {
	var j fieldsync.JobRecord
	var clientID, scheduledTime, notes sql.NullString
	err := scanner.Scan(&j.ID, &j.TenantID, &j.PropertyID, &clientID, &j.TemplateID,
		&j.InspectorID, &j.Status, &j.ScheduledDate, &scheduledTime,
		&j.DurationMinutes, &notes, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.ClientID = clientID.String
	j.ScheduledTime = scheduledTime.String
	j.Notes = notes.String
	return &j, nil
}
