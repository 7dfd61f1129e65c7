package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Upload states for media assets.
const (
	UploadPending   = "pending"
	UploadUploading = "uploading"
	UploadUploaded  = "uploaded"
	UploadFailed    = "failed"
)

// MediaAsset is a locally captured binary asset with its upload lifecycle.
// RemoteURL is non-empty iff UploadState is uploaded.
type MediaAsset struct {
	ID                string
	InspectionID      string
	FindingID         string
	AnswerID          string
	LocalPath         string
	RemoteURL         string
	FileName          string
	MimeType          string
	FileSize          int64
	SHA256            string
	Caption           string
	UploadState       string
	UploadAttempts    int
	LastUploadAttempt *time.Time
	UploadError       string
	CreatedAt         time.Time
}

// NewMediaInput describes a freshly captured asset. At most one owning
// reference should be set; an asset with none is an orphan and eligible for
// cleanup.
type NewMediaInput struct {
	InspectionID string
	FindingID    string
	AnswerID     string
	LocalPath    string
	FileName     string
	MimeType     string
	FileSize     int64
	SHA256       string
	Caption      string
}

// CreateMedia records a captured asset in the pending state.
func (s *SQLiteStore) CreateMedia(ctx context.Context, in NewMediaInput) (string, error) {
	id := ulid.Make().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_assets (id, inspection_id, finding_id, answer_id, local_path,
			file_name, mime_type, file_size, sha256, caption, upload_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)
	`, id, nullable(in.InspectionID), nullable(in.FindingID), nullable(in.AnswerID),
		in.LocalPath, in.FileName, in.MimeType, in.FileSize,
		nullable(in.SHA256), nullable(in.Caption), fmtTime(time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("create media asset: %w", err)
	}
	return id, nil
}

// MediaByID retrieves one asset.
func (s *SQLiteStore) MediaByID(ctx context.Context, id string) (*MediaAsset, error) {
	row := s.db.QueryRowContext(ctx, selectMediaSQL+` WHERE id = ?`, id)
	asset, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// MediaByInspection lists assets attached to an inspection, oldest first.
func (s *SQLiteStore) MediaByInspection(ctx context.Context, inspectionID string) ([]MediaAsset, error) {
	return s.queryMedia(ctx, selectMediaSQL+` WHERE inspection_id = ? ORDER BY created_at ASC`, inspectionID)
}

// PendingUploads returns up to limit assets awaiting their first upload
// attempt, oldest first.
func (s *SQLiteStore) PendingUploads(ctx context.Context, limit int) ([]MediaAsset, error) {
	return s.queryMedia(ctx, selectMediaSQL+`
		WHERE upload_state = 'pending'
		ORDER BY created_at ASC
		LIMIT ?`, limit)
}

// RetryableUploads returns up to limit failed assets still below the attempt
// ceiling, ordered by last attempt so the longest-waiting retries first.
func (s *SQLiteStore) RetryableUploads(ctx context.Context, maxAttempts, limit int) ([]MediaAsset, error) {
	return s.queryMedia(ctx, selectMediaSQL+`
		WHERE upload_state = 'failed' AND upload_attempts < ?
		ORDER BY last_upload_attempt ASC
		LIMIT ?`, maxAttempts, limit)
}

// MarkMediaUploading transitions an asset into the uploading state,
// incrementing its attempt counter. This state never survives a restart;
// Open resets it to pending.
func (s *SQLiteStore) MarkMediaUploading(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media_assets
		SET upload_state = 'uploading',
		    upload_attempts = upload_attempts + 1,
		    last_upload_attempt = ?
		WHERE id = ?
	`, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("mark media uploading: %w", err)
	}
	return nil
}

// MarkMediaUploaded records a completed transfer. Idempotent by id; the
// stored public reference and cleared error are the same however many times
// it is called.
func (s *SQLiteStore) MarkMediaUploaded(ctx context.Context, id, remoteURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media_assets
		SET upload_state = 'uploaded', remote_url = ?, upload_error = NULL
		WHERE id = ?
	`, remoteURL, id)
	if err != nil {
		return fmt.Errorf("mark media uploaded: %w", err)
	}
	return nil
}

// MarkMediaFailed records a transport failure. The asset stays queued for a
// future pass; it is never dropped.
func (s *SQLiteStore) MarkMediaFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media_assets
		SET upload_state = 'failed', upload_error = ?
		WHERE id = ?
	`, message, id)
	if err != nil {
		return fmt.Errorf("mark media failed: %w", err)
	}
	return nil
}

// ResetMediaForRetry is the explicit user-triggered recovery for assets that
// exhausted the attempt ceiling.
func (s *SQLiteStore) ResetMediaForRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media_assets
		SET upload_state = 'pending', upload_attempts = 0, upload_error = NULL
		WHERE id = ? AND upload_state = 'failed'
	`, id)
	if err != nil {
		return fmt.Errorf("reset media for retry: %w", err)
	}
	return nil
}

// UploadStats reports asset counts per upload state.
type UploadStats struct {
	Pending   int
	Uploading int
	Uploaded  int
	Failed    int
}

// MediaUploadStats aggregates per-state counts for the status surface.
func (s *SQLiteStore) MediaUploadStats(ctx context.Context) (UploadStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT upload_state, COUNT(*) FROM media_assets GROUP BY upload_state`)
	if err != nil {
		return UploadStats{}, fmt.Errorf("media upload stats: %w", err)
	}
	defer rows.Close()

	var stats UploadStats
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return UploadStats{}, fmt.Errorf("scan upload stats: %w", err)
		}
		switch state {
		case UploadPending:
			stats.Pending = count
		case UploadUploading:
			stats.Uploading = count
		case UploadUploaded:
			stats.Uploaded = count
		case UploadFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// PendingUploadSize returns the total bytes still awaiting upload.
func (s *SQLiteStore) PendingUploadSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(file_size), 0) FROM media_assets
		WHERE upload_state IN ('pending', 'failed')
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("pending upload size: %w", err)
	}
	return total, nil
}

// CleanupOrphanedMedia deletes assets with no owning entity reference.
func (s *SQLiteStore) CleanupOrphanedMedia(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM media_assets
		WHERE inspection_id IS NULL AND finding_id IS NULL AND answer_id IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("cleanup orphaned media: %w", err)
	}
	return result.RowsAffected()
}

const selectMediaSQL = `
	SELECT id, inspection_id, finding_id, answer_id, local_path, remote_url,
	       file_name, mime_type, file_size, sha256, caption, upload_state,
	       upload_attempts, last_upload_attempt, upload_error, created_at
	FROM media_assets`

func (s *SQLiteStore) queryMedia(ctx context.Context, query string, args ...any) ([]MediaAsset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query media assets: %w", err)
	}
	defer rows.Close()

	assets := make([]MediaAsset, 0)
	for rows.Next() {
		asset, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

func scanMedia(scanner interface{ Scan(...any) error }) (*MediaAsset, error) {
	var a MediaAsset
	var inspectionID, findingID, answerID, remoteURL sql.NullString
	var sha256, caption, lastAttempt, uploadErr sql.NullString
	var createdAt string

	err := scanner.Scan(&a.ID, &inspectionID, &findingID, &answerID, &a.LocalPath,
		&remoteURL, &a.FileName, &a.MimeType, &a.FileSize, &sha256, &caption,
		&a.UploadState, &a.UploadAttempts, &lastAttempt, &uploadErr, &createdAt)
	if err != nil {
		return nil, err
	}

	a.InspectionID = inspectionID.String
	a.FindingID = findingID.String
	a.AnswerID = answerID.String
	a.RemoteURL = remoteURL.String
	a.SHA256 = sha256.String
	a.Caption = caption.String
	a.UploadError = uploadErr.String
	a.LastUploadAttempt = nullableTime(lastAttempt)
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse media created_at: %w", err)
	}
	a.CreatedAt = t
	return &a, nil
}

// nullable converts an empty string to NULL for optional columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
