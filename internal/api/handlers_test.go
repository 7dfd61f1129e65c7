package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/inspectos/fieldsync/internal/config"
	"github.com/inspectos/fieldsync/internal/engine"
	"github.com/inspectos/fieldsync/internal/media"
	"github.com/inspectos/fieldsync/internal/remote"
	"github.com/inspectos/fieldsync/internal/store"
	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

// newTestAPI wires a real engine against a stub backend and returns the
// loopback router plus the store for direct queue manipulation.
func newTestAPI(t *testing.T) (http.Handler, *store.SQLiteStore, *engine.Engine) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/sync/bootstrap", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fieldsync.BootstrapData{
			Tenant:   fieldsync.Tenant{ID: "tenant-1", Slug: "acme"},
			SyncedAt: "2026-09-01T08:00:00Z",
		})
	})
	mux.HandleFunc("/sync/push", func(w http.ResponseWriter, r *http.Request) {
		var req fieldsync.PushRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := fieldsync.PushResponse{}
		for _, item := range req.Items {
			resp.Results = append(resp.Results, fieldsync.PushResult{ID: item.ID, Success: true})
			resp.Succeeded++
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fieldsync.PullResponse{
			Changes:  map[string]json.RawMessage{},
			SyncedAt: "2026-09-01T10:00:00Z",
		})
	})
	mux.HandleFunc("/uploads/sign", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fieldsync.SignResponse{})
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.NewClient(backend.URL, "token", remote.WithRetry(0, time.Millisecond))
	pipeline := media.NewPipeline(s, media.NewSignedURLUploader(client), client, 5, 5, logger)
	e := engine.New(s, client, pipeline, config.SyncConfig{
		Interval:        config.Duration(time.Hour),
		PushBatchSize:   50,
		MaxAttempts:     5,
		OutboxRetention: config.Duration(time.Hour),
	}, logger)

	return NewRouter(NewHandler(e, s, 5)), s, e
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestAPI_Health(t *testing.T) {
	h, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPI_StatusReportsIdle(t *testing.T) {
	h, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var state fieldsync.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.Status != fieldsync.StatusIdle {
		t.Errorf("expected idle, got %v", state.Status)
	}
}

func TestAPI_SyncBeforeBootstrapConflicts(t *testing.T) {
	h, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/sync")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem details, got %q", ct)
	}
}

func TestAPI_BootstrapThenSync(t *testing.T) {
	h, s, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/bootstrap?tenant=acme")
	if rec.Code != http.StatusOK {
		t.Fatalf("bootstrap: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	insp := &store.Inspection{
		JobID: "job-1", TenantID: "tenant-1", TemplateID: "tpl-1",
		TemplateVersion: 1, InspectorID: "user-1",
	}
	if err := s.CreateInspection(context.Background(), insp); err != nil {
		t.Fatal(err)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/sync")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var state fieldsync.State
	json.Unmarshal(rec.Body.Bytes(), &state)
	if state.PendingChanges != 0 {
		t.Errorf("expected drained outbox, got %d pending", state.PendingChanges)
	}
}

func TestAPI_BootstrapRequiresTenant(t *testing.T) {
	h, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/bootstrap")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAPI_PendingListsQueue(t *testing.T) {
	h, s, _ := newTestAPI(t)
	ctx := context.Background()

	insp := &store.Inspection{
		JobID: "job-1", TenantID: "tenant-1", TemplateID: "tpl-1",
		TemplateVersion: 1, InspectorID: "user-1",
	}
	if err := s.CreateInspection(ctx, insp); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/pending")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Entries []struct {
			EntityType string `json:"entity_type"`
			EntityID   string `json:"entity_id"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].EntityID != insp.ID {
		t.Errorf("unexpected pending entries: %+v", resp.Entries)
	}
}

func TestAPI_PendingRejectsBadLimit(t *testing.T) {
	h, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/pending?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAPI_RetryFailedReportsCount(t *testing.T) {
	h, s, _ := newTestAPI(t)
	ctx := context.Background()

	insp := &store.Inspection{
		JobID: "job-1", TenantID: "tenant-1", TemplateID: "tpl-1",
		TemplateVersion: 1, InspectorID: "user-1",
	}
	if err := s.CreateInspection(ctx, insp); err != nil {
		t.Fatal(err)
	}
	entries, _ := s.PendingOutbox(ctx, 50, 5)
	for i := 0; i < 5; i++ {
		s.MarkOutboxFailed(ctx, entries[0].ID, "rejected")
	}

	rec := doRequest(t, h, http.MethodPost, "/v1/retry")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["requeued"] != 1 {
		t.Errorf("expected 1 requeued, got %d", resp["requeued"])
	}
}

func TestAPI_RetryMedia(t *testing.T) {
	h, s, _ := newTestAPI(t)
	ctx := context.Background()

	id, err := s.CreateMedia(ctx, store.NewMediaInput{
		InspectionID: "insp-1",
		LocalPath:    "/data/media/roof.jpg",
		FileName:     "roof.jpg",
		MimeType:     "image/jpeg",
		FileSize:     1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.MarkMediaUploading(ctx, id)
	s.MarkMediaFailed(ctx, id, "timeout")

	rec := doRequest(t, h, http.MethodPost, "/v1/media/"+id+"/retry")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	asset, _ := s.MediaByID(ctx, id)
	if asset.UploadState != store.UploadPending {
		t.Errorf("expected pending after retry, got %q", asset.UploadState)
	}
}

func TestAPI_RetryMediaUnknownAsset(t *testing.T) {
	h, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/media/nope/retry")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
