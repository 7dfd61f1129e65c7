package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func createTestMedia(t *testing.T, s *SQLiteStore, fileName string) string {
	t.Helper()
	id, err := s.CreateMedia(context.Background(), NewMediaInput{
		InspectionID: "insp-1",
		LocalPath:    "/data/media/" + fileName,
		FileName:     fileName,
		MimeType:     "image/jpeg",
		FileSize:     2048,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestMedia_LifecycleToUploaded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestMedia(t, s, "roof.jpg")

	asset, err := s.MediaByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if asset.UploadState != UploadPending {
		t.Fatalf("new asset should be pending, got %q", asset.UploadState)
	}

	if err := s.MarkMediaUploading(ctx, id); err != nil {
		t.Fatal(err)
	}
	asset, _ = s.MediaByID(ctx, id)
	if asset.UploadState != UploadUploading || asset.UploadAttempts != 1 {
		t.Errorf("expected uploading with 1 attempt, got %q/%d",
			asset.UploadState, asset.UploadAttempts)
	}

	if err := s.MarkMediaUploaded(ctx, id, "https://cdn.example.com/roof.jpg"); err != nil {
		t.Fatal(err)
	}
	asset, _ = s.MediaByID(ctx, id)
	if asset.UploadState != UploadUploaded {
		t.Errorf("expected uploaded, got %q", asset.UploadState)
	}
	if asset.RemoteURL != "https://cdn.example.com/roof.jpg" {
		t.Errorf("expected remote url, got %q", asset.RemoteURL)
	}
}

func TestMedia_FailureKeepsAssetQueued(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestMedia(t, s, "basement.jpg")
	if err := s.MarkMediaUploading(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkMediaFailed(ctx, id, "connection reset"); err != nil {
		t.Fatal(err)
	}

	asset, err := s.MediaByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if asset.UploadState != UploadFailed {
		t.Errorf("expected failed, got %q", asset.UploadState)
	}
	if asset.UploadError != "connection reset" {
		t.Errorf("expected stored error, got %q", asset.UploadError)
	}

	// Still below the ceiling: selected for retry.
	retryable, err := s.RetryableUploads(ctx, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(retryable) != 1 || retryable[0].ID != id {
		t.Errorf("failed asset should be retryable, got %d assets", len(retryable))
	}
}

func TestMedia_RetryableExcludesExhausted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestMedia(t, s, "attic.jpg")
	for i := 0; i < 5; i++ {
		if err := s.MarkMediaUploading(ctx, id); err != nil {
			t.Fatal(err)
		}
		if err := s.MarkMediaFailed(ctx, id, "timeout"); err != nil {
			t.Fatal(err)
		}
	}

	retryable, err := s.RetryableUploads(ctx, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(retryable) != 0 {
		t.Fatalf("exhausted asset must not be retryable, got %d", len(retryable))
	}

	// Explicit reset re-queues it as pending with a clean slate.
	if err := s.ResetMediaForRetry(ctx, id); err != nil {
		t.Fatal(err)
	}
	asset, _ := s.MediaByID(ctx, id)
	if asset.UploadState != UploadPending || asset.UploadAttempts != 0 {
		t.Errorf("expected pending/0 after reset, got %q/%d",
			asset.UploadState, asset.UploadAttempts)
	}
}

func TestMedia_ResetOnlyAppliesToFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestMedia(t, s, "garage.jpg")
	if err := s.MarkMediaUploaded(ctx, id, "https://cdn.example.com/garage.jpg"); err != nil {
		t.Fatal(err)
	}

	if err := s.ResetMediaForRetry(ctx, id); err != nil {
		t.Fatal(err)
	}
	asset, _ := s.MediaByID(ctx, id)
	if asset.UploadState != UploadUploaded {
		t.Errorf("uploaded asset must not be reset, got %q", asset.UploadState)
	}
}

func TestMedia_StatsAndPendingSize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := createTestMedia(t, s, "a.jpg")
	createTestMedia(t, s, "b.jpg")
	c := createTestMedia(t, s, "c.jpg")

	if err := s.MarkMediaUploaded(ctx, a, "https://cdn.example.com/a.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkMediaFailed(ctx, c, "timeout"); err != nil {
		t.Fatal(err)
	}

	stats, err := s.MediaUploadStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 || stats.Uploaded != 1 || stats.Failed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// Pending size counts pending and failed, not uploaded.
	size, err := s.PendingUploadSize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if size != 4096 {
		t.Errorf("expected 4096 bytes pending, got %d", size)
	}
}

func TestMedia_MalformedTimestampSurfacesError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestMedia(t, s, "roof.jpg")
	err := s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE media_assets SET created_at = 'garbage' WHERE id = ?`, id)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.MediaByID(ctx, id); err == nil {
		t.Error("expected error for unparseable created_at")
	}
}

func TestMedia_CleanupOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orphan, err := s.CreateMedia(ctx, NewMediaInput{
		LocalPath: "/data/media/stray.jpg",
		FileName:  "stray.jpg",
		MimeType:  "image/jpeg",
		FileSize:  100,
	})
	if err != nil {
		t.Fatal(err)
	}
	owned := createTestMedia(t, s, "owned.jpg")

	n, err := s.CleanupOrphanedMedia(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 orphan removed, got %d", n)
	}
	if _, err := s.MediaByID(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("orphan should be gone, got %v", err)
	}
	if _, err := s.MediaByID(ctx, owned); err != nil {
		t.Errorf("owned asset must survive cleanup: %v", err)
	}
}
