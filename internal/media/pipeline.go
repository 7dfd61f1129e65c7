package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inspectos/fieldsync/internal/store"
	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

// Signer obtains pre-authorized upload targets for a batch of assets.
// Nil when the direct-S3 backend is active; that backend signs nothing.
type Signer interface {
	SignUploads(ctx context.Context, req *fieldsync.SignRequest) (*fieldsync.SignResponse, error)
}

// Stats summarizes one upload pass.
type Stats struct {
	Attempted int
	Uploaded  int
	Failed    int
}

// Pipeline drains the media upload queue: fresh assets first, then failed
// ones still under the attempt ceiling.
type Pipeline struct {
	store    *store.SQLiteStore
	uploader Uploader
	signer   Signer

	batchSize   int
	maxAttempts int
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline. signer may be nil for backends that do
// not need signed targets.
func NewPipeline(s *store.SQLiteStore, uploader Uploader, signer Signer, batchSize, maxAttempts int, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:       s,
		uploader:    uploader,
		signer:      signer,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Run performs one upload pass for the tenant. A signing failure aborts the
// pass before any asset is touched; rows stay queued for the next pass.
// Per-asset transfer failures are recorded on the row and do not stop the
// batch.
func (p *Pipeline) Run(ctx context.Context, tenant string) (Stats, error) {
	var stats Stats

	if _, disabled := p.uploader.(*NoopUploader); disabled {
		return stats, nil
	}

	pending, err := p.store.PendingUploads(ctx, p.batchSize)
	if err != nil {
		return stats, fmt.Errorf("select pending uploads: %w", err)
	}
	retryable, err := p.store.RetryableUploads(ctx, p.maxAttempts, p.batchSize)
	if err != nil {
		return stats, fmt.Errorf("select retryable uploads: %w", err)
	}

	assets := append(pending, retryable...)
	if len(assets) == 0 {
		return stats, nil
	}

	targets, err := p.signTargets(ctx, tenant, assets)
	if err != nil {
		return stats, fmt.Errorf("sign upload batch: %w", err)
	}

	for i := range assets {
		asset := &assets[i]
		stats.Attempted++

		if err := p.uploadOne(ctx, asset, targets[asset.ID]); err != nil {
			stats.Failed++
			p.logger.Warn("media upload failed",
				"component", "media",
				"action", "upload",
				"asset_id", asset.ID,
				"attempts", asset.UploadAttempts+1,
				"error", err,
			)
			if markErr := p.store.MarkMediaFailed(ctx, asset.ID, err.Error()); markErr != nil {
				return stats, markErr
			}
			continue
		}
		stats.Uploaded++
	}

	p.logger.Info("media upload pass complete",
		"component", "media",
		"action", "upload_pass",
		"attempted", stats.Attempted,
		"uploaded", stats.Uploaded,
		"failed", stats.Failed,
	)
	return stats, nil
}

// signTargets requests signed URLs for the whole batch in one call.
func (p *Pipeline) signTargets(ctx context.Context, tenant string, assets []store.MediaAsset) (map[string]fieldsync.SignedURL, error) {
	targets := make(map[string]fieldsync.SignedURL, len(assets))
	if p.signer == nil {
		return targets, nil
	}

	files := make([]fieldsync.SignFile, len(assets))
	for i, a := range assets {
		files[i] = fieldsync.SignFile{
			ID:           a.ID,
			FileName:     a.FileName,
			MimeType:     a.MimeType,
			FileSize:     a.FileSize,
			InspectionID: a.InspectionID,
		}
	}

	resp, err := p.signer.SignUploads(ctx, &fieldsync.SignRequest{TenantID: tenant, Files: files})
	if err != nil {
		return nil, err
	}
	for _, u := range resp.SignedURLs {
		targets[u.ID] = u
	}
	return targets, nil
}

func (p *Pipeline) uploadOne(ctx context.Context, asset *store.MediaAsset, target fieldsync.SignedURL) error {
	if p.signer != nil && target.UploadURL == "" {
		return ErrNoTarget
	}

	if err := p.store.MarkMediaUploading(ctx, asset.ID); err != nil {
		return err
	}

	publicURL, err := p.uploader.Upload(ctx, asset, target)
	if err != nil {
		return err
	}
	return p.store.MarkMediaUploaded(ctx, asset.ID, publicURL)
}
