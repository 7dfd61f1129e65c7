// Package media moves captured binary assets off the device: signing,
// transfer, and the pending/uploading/uploaded/failed lifecycle.
// When direct S3 storage is not configured (empty bucket), uploads go
// through server-signed URLs instead.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/inspectos/fieldsync/internal/config"
	"github.com/inspectos/fieldsync/internal/remote"
	"github.com/inspectos/fieldsync/internal/store"
	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

var (
	// ErrNoTarget is returned when an asset has no upload destination.
	ErrNoTarget = errors.New("no upload target for asset")

	// ErrUploadsDisabled is returned by the noop backend. Assets stay queued
	// locally until uploads are enabled again.
	ErrUploadsDisabled = errors.New("media uploads disabled")
)

// Uploader transfers one asset's bytes to remote storage and returns the
// public URL it will be served from.
type Uploader interface {
	Upload(ctx context.Context, asset *store.MediaAsset, target fieldsync.SignedURL) (publicURL string, err error)
}

// SignedURLUploader PUTs the local file to the server-issued signed URL.
// This is the default backend; the server owns storage layout and auth.
type SignedURLUploader struct {
	client *remote.Client
}

// NewSignedURLUploader creates the signed-URL backend.
func NewSignedURLUploader(client *remote.Client) *SignedURLUploader {
	return &SignedURLUploader{client: client}
}

func (u *SignedURLUploader) Upload(ctx context.Context, asset *store.MediaAsset, target fieldsync.SignedURL) (string, error) {
	if target.UploadURL == "" {
		return "", ErrNoTarget
	}

	f, err := os.Open(asset.LocalPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", asset.LocalPath, store.ErrMediaNotLocal)
	}
	defer f.Close()

	if err := u.client.UploadFile(ctx, target.UploadURL, asset.MimeType, f, asset.FileSize); err != nil {
		return "", err
	}
	return target.PublicURL, nil
}

// S3Uploader writes assets straight to S3-compatible storage, bypassing the
// signing endpoint. Used by self-hosted deployments that expose a bucket to
// field devices directly.
type S3Uploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewS3Uploader creates the direct-S3 backend from config.
func NewS3Uploader(cfg config.S3UploadConfig) (*S3Uploader, error) {
	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	scheme := "https"
	if !useSSL {
		scheme = "http"
	}
	return &S3Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, asset *store.MediaAsset, _ fieldsync.SignedURL) (string, error) {
	key := objectKey(asset)
	_, err := u.client.FPutObject(ctx, u.bucket, key, asset.LocalPath, minio.PutObjectOptions{
		ContentType: asset.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}
	return u.publicURL + "/" + key, nil
}

// NoopUploader is used when media uploads are disabled. The pipeline skips
// its passes entirely and assets stay queued on the device.
type NoopUploader struct{}

func (u *NoopUploader) Upload(ctx context.Context, asset *store.MediaAsset, _ fieldsync.SignedURL) (string, error) {
	return "", ErrUploadsDisabled
}

// NewUploader selects the backend from config: noop when uploads are
// disabled, direct S3 when a bucket is set, signed URLs otherwise.
func NewUploader(cfg config.MediaConfig, client *remote.Client) (Uploader, error) {
	if cfg.Disabled {
		return &NoopUploader{}, nil
	}
	if cfg.S3.Bucket != "" {
		return NewS3Uploader(cfg.S3)
	}
	return NewSignedURLUploader(client), nil
}

// objectKey returns the storage key for an asset.
// Convention: {inspection_id}/{asset_id}{ext}
func objectKey(asset *store.MediaAsset) string {
	prefix := asset.InspectionID
	if prefix == "" {
		prefix = "unattached"
	}
	return prefix + "/" + asset.ID + path.Ext(asset.FileName)
}
