package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"medialib/internal/ids"
	"medialib/internal/models"
	"medialib/internal/storage"
	"medialib/internal/upload"
)

// ObjectStore is the part of storage.ObjectStore the upload issuer needs.
type ObjectStore interface {
	Bucket() string
	PresignPut(ctx context.Context, bucket, key string) (*url.URL, time.Time, error)
	Size(ctx context.Context, bucket, key string) (int64, error)
	PublicURL(bucket, key string) string
}

// AssetStore is the reservation side of repository.AssetRepository.
type AssetStore interface {
	Reserve(ctx context.Context, asset models.Asset, tagIDs []string) error
	Replace(ctx context.Context, id, filename, mimeType string, sizeBytes int64, width, height *int) error
	GetByID(ctx context.Context, id string) (models.Asset, error)
	MarkReady(ctx context.Context, id string) (models.Asset, error)
}

var ErrTransferIncomplete = errors.New("stored object does not match reservation")

// ErrReplaceTypeChange rejects an in-place overwrite whose image type would
// not match the extension of the existing object key.
var ErrReplaceTypeChange = errors.New("replacement must keep the stored image type")

// UploadIssuer implements upload.Issuer on Postgres records and presigned
// object store URLs.
type UploadIssuer struct {
	assets AssetStore
	store  ObjectStore
	now    func() time.Time
}

var _ upload.Issuer = (*UploadIssuer)(nil)

func NewUploadIssuer(assets AssetStore, store ObjectStore) *UploadIssuer {
	return &UploadIssuer{assets: assets, store: store, now: time.Now}
}

func (s *UploadIssuer) ReserveUpload(ctx context.Context, req upload.ReserveRequest) (upload.Reservation, error) {
	if req.ReplaceAssetID != "" {
		return s.reserveReplacement(ctx, req)
	}

	assetID := ids.New()
	bucket := s.store.Bucket()
	objectKey := s.buildObjectKey(assetID, req.MimeType)

	asset := models.Asset{
		ID:        assetID,
		Filename:  req.Filename,
		URL:       s.store.PublicURL(bucket, objectKey),
		MimeType:  req.MimeType,
		SizeBytes: req.SizeBytes,
		Width:     optionalDim(req.Width),
		Height:    optionalDim(req.Height),
		FolderID:  req.FolderID,
		Status:    models.AssetStatusReserved,
		Bucket:    bucket,
		ObjectKey: objectKey,
	}
	if err := s.assets.Reserve(ctx, asset, req.TagIDs); err != nil {
		return upload.Reservation{}, fmt.Errorf("save reservation: %w", err)
	}

	target, err := s.target(ctx, bucket, objectKey)
	if err != nil {
		return upload.Reservation{}, err
	}
	return upload.Reservation{
		AssetID:   assetID,
		URL:       asset.URL,
		Target:    target,
		MimeType:  req.MimeType,
		SizeBytes: req.SizeBytes,
		State:     upload.StateReserved,
	}, nil
}

// reserveReplacement points the write target at the existing asset's object
// so confirmed bytes overwrite it in place. The key is reused, so the type
// must stay the same.
func (s *UploadIssuer) reserveReplacement(ctx context.Context, req upload.ReserveRequest) (upload.Reservation, error) {
	existing, err := s.assets.GetByID(ctx, req.ReplaceAssetID)
	if err != nil {
		return upload.Reservation{}, fmt.Errorf("load asset to replace: %w", err)
	}
	if ext := path.Ext(existing.ObjectKey); ext != "" && ext != extensionFor(req.MimeType) {
		return upload.Reservation{}, fmt.Errorf("%w: %s holds %s, got %s", ErrReplaceTypeChange, existing.ID, existing.MimeType, req.MimeType)
	}
	if err := s.assets.Replace(ctx, existing.ID, req.Filename, req.MimeType, req.SizeBytes, optionalDim(req.Width), optionalDim(req.Height)); err != nil {
		return upload.Reservation{}, fmt.Errorf("update asset %s: %w", existing.ID, err)
	}

	target, err := s.target(ctx, existing.Bucket, existing.ObjectKey)
	if err != nil {
		return upload.Reservation{}, err
	}
	return upload.Reservation{
		AssetID:   existing.ID,
		URL:       s.store.PublicURL(existing.Bucket, existing.ObjectKey),
		Target:    target,
		MimeType:  req.MimeType,
		SizeBytes: req.SizeBytes,
		State:     upload.StateReserved,
	}, nil
}

func (s *UploadIssuer) ReissueTarget(ctx context.Context, assetID string) (upload.Target, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return upload.Target{}, err
	}
	return s.target(ctx, asset.Bucket, asset.ObjectKey)
}

// ConfirmUpload checks that the object holds the reserved number of bytes
// before the record becomes visible.
func (s *UploadIssuer) ConfirmUpload(ctx context.Context, assetID string) (models.Asset, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return models.Asset{}, err
	}
	size, err := s.store.Size(ctx, asset.Bucket, asset.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return models.Asset{}, ErrTransferIncomplete
		}
		return models.Asset{}, err
	}
	if size != asset.SizeBytes {
		return models.Asset{}, fmt.Errorf("%w: stored %d bytes, reserved %d", ErrTransferIncomplete, size, asset.SizeBytes)
	}
	return s.assets.MarkReady(ctx, assetID)
}

func (s *UploadIssuer) target(ctx context.Context, bucket, objectKey string) (upload.Target, error) {
	u, expiresAt, err := s.store.PresignPut(ctx, bucket, objectKey)
	if err != nil {
		return upload.Target{}, err
	}
	return upload.Target{URL: u.String(), Method: http.MethodPut, ExpiresAt: expiresAt}, nil
}

func (s *UploadIssuer) buildObjectKey(assetID, mimeType string) string {
	datePrefix := s.now().UTC().Format("2006/01/02")
	return path.Join(datePrefix, assetID+extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func optionalDim(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
