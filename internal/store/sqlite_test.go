package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Open(t *testing.T) {
	s := newTestStore(t)

	// Migrations ran; the outbox is queryable and empty.
	count, err := s.PendingOutboxCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected empty outbox, got %d entries", count)
	}
}

func TestStore_Settings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Setting(ctx, "tenant_id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSetting(ctx, "tenant_id", "tenant-1"); err != nil {
		t.Fatal(err)
	}

	value, err := s.Setting(ctx, "tenant_id")
	if err != nil {
		t.Fatal(err)
	}
	if value != "tenant-1" {
		t.Errorf("expected tenant-1, got %q", value)
	}

	// Overwrite replaces the value.
	if err := s.SetSetting(ctx, "tenant_id", "tenant-2"); err != nil {
		t.Fatal(err)
	}
	value, _ = s.Setting(ctx, "tenant_id")
	if value != "tenant-2" {
		t.Errorf("expected tenant-2, got %q", value)
	}
}

func TestStore_RunInTransaction_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := fmt.Errorf("boom")
	err := s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := AppendOutbox(tx, "inspections", "insp-1", "upsert",
			map[string]string{"id": "insp-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	count, err := s.PendingOutboxCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("rolled back entry still visible, count=%d", count)
	}
}

func TestStore_Open_RecoversInterruptedUploads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	id, err := s.CreateMedia(ctx, NewMediaInput{
		InspectionID: "insp-1",
		LocalPath:    "/tmp/photo.jpg",
		FileName:     "photo.jpg",
		MimeType:     "image/jpeg",
		FileSize:     1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkMediaUploading(ctx, id); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Simulated crash mid-upload: reopen and the asset is pending again.
	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	asset, err := s.MediaByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if asset.UploadState != UploadPending {
		t.Errorf("expected pending after reopen, got %q", asset.UploadState)
	}
	if asset.UploadAttempts != 1 {
		t.Errorf("attempt count should survive recovery, got %d", asset.UploadAttempts)
	}
}
