// Package api exposes the loopback diagnostics surface: engine status,
// queue introspection, and manual sync triggers for the CLI and any local
// tooling. It binds to localhost only and carries no remote traffic.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inspectos/fieldsync/internal/engine"
	"github.com/inspectos/fieldsync/internal/store"
)

// Handler holds the dependencies for the status API.
type Handler struct {
	engine      *engine.Engine
	store       *store.SQLiteStore
	maxAttempts int
}

// NewHandler creates a Handler.
func NewHandler(e *engine.Engine, s *store.SQLiteStore, maxAttempts int) *Handler {
	return &Handler{engine: e, store: s, maxAttempts: maxAttempts}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the engine's current state snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.State(r.Context()))
}

// pendingResponse is the queue introspection payload.
type pendingResponse struct {
	Entries      []pendingEntry    `json:"entries"`
	Failed       int               `json:"failed"`
	Media        store.UploadStats `json:"media"`
	PendingBytes int64             `json:"pending_bytes"`
}

// pendingEntry is one queued mutation, payload omitted.
type pendingEntry struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Operation  string `json:"operation"`
	CreatedAt  string `json:"created_at"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
}

// Pending lists queued outbox entries and media queue counters.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.store.PendingOutbox(ctx, limit, h.maxAttempts)
	if err != nil {
		h.internalError(w, r, "list pending outbox", err)
		return
	}
	failed, err := h.store.FailedOutboxCount(ctx, h.maxAttempts)
	if err != nil {
		h.internalError(w, r, "count failed outbox", err)
		return
	}
	media, err := h.store.MediaUploadStats(ctx)
	if err != nil {
		h.internalError(w, r, "media stats", err)
		return
	}
	bytes, err := h.store.PendingUploadSize(ctx)
	if err != nil {
		h.internalError(w, r, "pending upload size", err)
		return
	}

	resp := pendingResponse{
		Entries:      make([]pendingEntry, len(entries)),
		Failed:       failed,
		Media:        media,
		PendingBytes: bytes,
	}
	for i, e := range entries {
		resp.Entries[i] = pendingEntry{
			ID:         e.ID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Operation:  e.Operation,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339Nano),
			Attempts:   e.Attempts,
			Error:      e.Error,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerSync runs one sync cycle synchronously and returns the resulting
// state.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	err := h.engine.Sync(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.engine.State(r.Context()))
	case errors.Is(err, engine.ErrSyncInProgress):
		WriteProblem(w, r, http.StatusConflict, "a sync cycle is already running")
	case errors.Is(err, engine.ErrNotBootstrapped):
		WriteProblem(w, r, http.StatusConflict, "run bootstrap before syncing")
	case errors.Is(err, engine.ErrOffline):
		WriteProblem(w, r, http.StatusServiceUnavailable, "device is offline")
	case errors.Is(err, engine.ErrAuthSuspended):
		WriteProblem(w, r, http.StatusServiceUnavailable, "credentials rejected; refresh the access token")
	default:
		WriteProblem(w, r, http.StatusServiceUnavailable, err.Error())
	}
}

// Bootstrap runs the one-shot initial download for a tenant.
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		WriteProblem(w, r, http.StatusBadRequest, "tenant query parameter is required")
		return
	}
	if err := h.engine.Bootstrap(r.Context(), tenant); err != nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.State(r.Context()))
}

// RetryFailed re-queues outbox entries parked at the attempt ceiling.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.RetryFailed(r.Context())
	if err != nil {
		h.internalError(w, r, "retry failed outbox", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": n})
}

// RetryMedia re-queues one exhausted media asset.
func (h *Handler) RetryMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.MediaByID(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteProblem(w, r, http.StatusNotFound, "no such media asset")
			return
		}
		h.internalError(w, r, "load media asset", err)
		return
	}
	if err := h.store.ResetMediaForRetry(r.Context(), id); err != nil {
		h.internalError(w, r, "reset media asset", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "upload_state": store.UploadPending})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, action string, err error) {
	slog.Error("handler failure",
		"component", "api",
		"action", action,
		"error", err,
	)
	WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
