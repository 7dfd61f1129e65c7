// Package engine coordinates the sync cycle: outbox push, incremental pull,
// and the media upload pass, with a status surface for subscribers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inspectos/fieldsync/internal/config"
	"github.com/inspectos/fieldsync/internal/media"
	"github.com/inspectos/fieldsync/internal/remote"
	"github.com/inspectos/fieldsync/internal/store"
	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

// Sentinel errors surfaced to callers and the status API.
var (
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrNotBootstrapped = errors.New("bootstrap has not been run")
	ErrOffline         = errors.New("device is offline")
	ErrAuthSuspended   = errors.New("sync suspended until credentials are refreshed")
)

const tenantSettingKey = "tenant_id"

// Engine drives synchronization for one device. All exported methods are
// safe for concurrent use; at most one sync cycle runs at a time.
type Engine struct {
	store    *store.SQLiteStore
	client   *remote.Client
	pipeline *media.Pipeline
	cfg      config.SyncConfig
	logger   *slog.Logger

	mu            sync.Mutex
	syncing       bool
	online        bool
	authSuspended bool
	lastError     string
	lastSyncedAt  *time.Time

	listenerMu sync.Mutex
	listeners  map[int]func(fieldsync.State)
	nextID     int
}

// New creates an Engine. The device is assumed online until the
// connectivity monitor reports otherwise.
func New(s *store.SQLiteStore, client *remote.Client, pipeline *media.Pipeline, cfg config.SyncConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:     s,
		client:    client,
		pipeline:  pipeline,
		cfg:       cfg,
		logger:    logger,
		online:    true,
		listeners: map[int]func(fieldsync.State){},
	}
}

// Subscribe registers a status listener. The current state is delivered
// immediately; the returned func removes the listener.
func (e *Engine) Subscribe(fn func(fieldsync.State)) func() {
	e.listenerMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenerMu.Unlock()

	fn(e.State(context.Background()))

	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, id)
		e.listenerMu.Unlock()
	}
}

// State reports the engine's current status snapshot.
func (e *Engine) State(ctx context.Context) fieldsync.State {
	e.mu.Lock()
	state := fieldsync.State{
		Status:       fieldsync.StatusIdle,
		LastSyncedAt: e.lastSyncedAt,
		Error:        e.lastError,
	}
	switch {
	case e.syncing:
		state.Status = fieldsync.StatusSyncing
	case !e.online:
		state.Status = fieldsync.StatusOffline
	case e.lastError != "":
		state.Status = fieldsync.StatusError
	}
	e.mu.Unlock()

	if n, err := e.store.PendingOutboxCount(ctx); err == nil {
		state.PendingChanges = n
	}
	if stats, err := e.store.MediaUploadStats(ctx); err == nil {
		state.PendingUploads = stats.Pending + stats.Failed
	}
	return state
}

// SetCredentials installs a fresh bearer token and lifts the auth
// suspension.
func (e *Engine) SetCredentials(token string) {
	e.client.SetToken(token)
	e.mu.Lock()
	e.authSuspended = false
	e.lastError = ""
	e.mu.Unlock()
	e.notify()
}

// SetOnline records a connectivity transition. Coming back online fires an
// immediate sync so queued work drains without waiting for the ticker.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()

	if online == wasOnline {
		return
	}
	e.logger.Info("connectivity changed",
		"component", "engine",
		"action", "connectivity",
		"online", online,
	)
	e.notify()

	if online && !wasOnline {
		go func() {
			if err := e.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				e.logger.Warn("reconnect sync failed",
					"component", "engine",
					"action", "reconnect_sync",
					"error", err,
				)
			}
		}()
	}
}

// Bootstrap downloads the tenant's full snapshot and seeds the local store.
// Rerunnable; reference data is replaced by upsert. On success both stream
// cursors start at the snapshot's timestamp.
func (e *Engine) Bootstrap(ctx context.Context, tenant string) error {
	data, err := e.client.Bootstrap(ctx, tenant)
	if err != nil {
		return e.recordFailure("bootstrap", err)
	}

	if err := e.store.ApplyBootstrap(ctx, data); err != nil {
		return e.recordFailure("bootstrap", err)
	}
	if err := e.store.SetSetting(ctx, tenantSettingKey, data.Tenant.ID); err != nil {
		return e.recordFailure("bootstrap", err)
	}
	if err := e.store.SaveCursor(ctx, store.StreamBootstrap, data.SyncedAt); err != nil {
		return e.recordFailure("bootstrap", err)
	}
	if err := e.store.SaveCursor(ctx, store.StreamPull, data.SyncedAt); err != nil {
		return e.recordFailure("bootstrap", err)
	}

	e.mu.Lock()
	e.lastError = ""
	e.mu.Unlock()
	e.logger.Info("bootstrap complete",
		"component", "engine",
		"action", "bootstrap",
		"tenant", data.Tenant.ID,
		"templates", len(data.Templates),
		"jobs", len(data.Jobs),
	)
	e.notify()
	return nil
}

// Sync runs one full cycle: push, pull, media. The phases are independent;
// a failed phase is recorded and the cycle moves on, so a broken pull never
// blocks the queue drain. Returns ErrSyncInProgress when a cycle is
// already running.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.syncing:
		e.mu.Unlock()
		return ErrSyncInProgress
	case !e.online:
		e.mu.Unlock()
		return ErrOffline
	case e.authSuspended:
		e.mu.Unlock()
		return ErrAuthSuspended
	}
	e.syncing = true
	e.mu.Unlock()
	e.notify()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
		e.notify()
	}()

	tenant, err := e.store.Setting(ctx, tenantSettingKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotBootstrapped
		}
		return err
	}

	var phaseErrs []error
	if err := e.push(ctx, tenant); err != nil {
		phaseErrs = append(phaseErrs, fmt.Errorf("push: %w", err))
	}
	if err := e.pull(ctx, tenant); err != nil {
		phaseErrs = append(phaseErrs, fmt.Errorf("pull: %w", err))
	}
	if _, err := e.pipeline.Run(ctx, tenant); err != nil {
		phaseErrs = append(phaseErrs, fmt.Errorf("media: %w", err))
	}

	if err := errors.Join(phaseErrs...); err != nil {
		return e.recordFailure("sync", err)
	}

	now := time.Now().UTC()
	e.mu.Lock()
	e.lastSyncedAt = &now
	e.lastError = ""
	e.mu.Unlock()
	return nil
}

// push drains one batch of pending outbox entries. Server verdicts are
// applied per item; a transport failure leaves every entry untouched for
// the next cycle.
func (e *Engine) push(ctx context.Context, tenant string) error {
	entries, err := e.store.PendingOutbox(ctx, e.cfg.PushBatchSize, e.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	items := make([]fieldsync.PushItem, len(entries))
	for i, entry := range entries {
		items[i] = fieldsync.PushItem{
			ID:         entry.ID,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Operation:  entry.Operation,
			Payload:    entry.Payload,
			CreatedAt:  entry.CreatedAt,
		}
	}

	resp, err := e.client.Push(ctx, &fieldsync.PushRequest{TenantID: tenant, Items: items})
	if err != nil {
		return err
	}

	for _, result := range resp.Results {
		if result.Success {
			if err := e.store.MarkOutboxSynced(ctx, result.ID); err != nil {
				return err
			}
			continue
		}
		if err := e.store.MarkOutboxFailed(ctx, result.ID, result.Error); err != nil {
			return err
		}
	}

	e.logger.Info("push complete",
		"component", "engine",
		"action", "push",
		"sent", len(items),
		"succeeded", resp.Succeeded,
		"failed", resp.Failed,
	)
	return nil
}

// pull fetches and applies server changes since the stored cursor. The
// cursor advances only after the whole batch lands.
func (e *Engine) pull(ctx context.Context, tenant string) error {
	since := ""
	cursor, err := e.store.Cursor(ctx, store.StreamPull)
	if err == nil {
		since = cursor.Cursor
	} else if !errors.Is(err, store.ErrNoCursor) {
		return err
	}

	resp, err := e.client.Pull(ctx, tenant, since)
	if err != nil {
		return err
	}

	if len(resp.Changes) > 0 {
		if err := e.store.ApplyChanges(ctx, resp.Changes); err != nil {
			return err
		}
	}
	if err := e.store.SaveCursor(ctx, store.StreamPull, resp.SyncedAt); err != nil {
		return err
	}

	e.logger.Info("pull complete",
		"component", "engine",
		"action", "pull",
		"entity_types", len(resp.Changes),
		"cursor", resp.SyncedAt,
	)
	return nil
}

// RetryFailed resets parked outbox entries and exhausted media assets so
// the next cycle picks them up again.
func (e *Engine) RetryFailed(ctx context.Context) (int64, error) {
	n, err := e.store.RetryFailedOutbox(ctx, e.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.lastError = ""
	e.mu.Unlock()
	e.notify()
	return n, nil
}

// Run is the automatic sync loop. It syncs immediately, then on every tick,
// and purges confirmed outbox entries past the retention window once per
// cycle. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("auto sync started",
		"component", "engine",
		"action", "auto_sync_started",
		"interval", time.Duration(e.cfg.Interval).String(),
	)

	ticker := time.NewTicker(time.Duration(e.cfg.Interval))
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("auto sync stopped",
				"component", "engine",
				"action", "auto_sync_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	err := e.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline),
		errors.Is(err, ErrAuthSuspended), errors.Is(err, ErrNotBootstrapped):
		// Expected idle conditions, nothing to do until they clear.
	default:
		e.logger.Warn("sync cycle failed",
			"component", "engine",
			"action", "sync_cycle",
			"error", err,
		)
	}

	if n, err := e.store.PurgeSyncedOutbox(ctx, time.Duration(e.cfg.OutboxRetention)); err == nil && n > 0 {
		e.logger.Info("purged confirmed outbox entries",
			"component", "engine",
			"action", "outbox_purge",
			"count", n,
		)
	}
}

// recordFailure stores the failure for the status surface. Credential
// failures additionally suspend automatic syncing until SetCredentials.
func (e *Engine) recordFailure(action string, err error) error {
	e.mu.Lock()
	e.lastError = err.Error()
	if errors.Is(err, remote.ErrUnauthorized) {
		e.authSuspended = true
	}
	suspended := e.authSuspended
	e.mu.Unlock()

	e.logger.Error("operation failed",
		"component", "engine",
		"action", action,
		"auth_suspended", suspended,
		"error", err,
	)
	e.notify()
	return err
}

// notify delivers the current state to every subscriber. Listeners run on
// the caller's goroutine; they must not block.
func (e *Engine) notify() {
	state := e.State(context.Background())

	e.listenerMu.Lock()
	fns := make([]func(fieldsync.State), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenerMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
