package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"medialib/internal/config"
	"medialib/internal/media/pipeline"
	"medialib/internal/media/sniffer"
	"medialib/internal/media/watermark"
	"medialib/internal/metrics"
	"medialib/internal/models"
	"medialib/internal/upload"
)

type AssetReader interface {
	GetByID(ctx context.Context, id string) (models.Asset, error)
}

type SourceStore interface {
	Get(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, req upload.ReserveRequest, payload []byte) (models.Asset, error)
	Resume(ctx context.Context, res upload.Reservation, payload []byte) (models.Asset, error)
}

type LogoSource interface {
	Load(ctx context.Context, s watermark.Settings) (image.Image, error)
}

// DeriveRequest renders an existing asset through an EditSpec and stores the
// result as a new asset, or over the source when ReplaceSource is set.
type DeriveRequest struct {
	SourceAssetID string            `json:"sourceAssetId"`
	Spec          pipeline.EditSpec `json:"spec"`
	// ApplyStoredWatermark uses the current watermark settings when the edit
	// spec carries none.
	ApplyStoredWatermark bool     `json:"applyStoredWatermark"`
	OutputMimeType       string   `json:"outputMimeType,omitempty"`
	Filename             string   `json:"filename,omitempty"`
	FolderID             *string  `json:"folderId,omitempty"`
	TagIDs               []string `json:"tagIds,omitempty"`
	ReplaceSource        bool     `json:"replaceSource"`
}

// ResumeRequest retries the transfer of an earlier derivation. Request must
// be the resolved request returned with DerivationPendingError so the
// re-rendered bytes match the reservation.
type ResumeRequest struct {
	Request     DeriveRequest      `json:"request"`
	Reservation upload.Reservation `json:"reservation"`
}

// DerivationPendingError wraps a PartialUploadError with the request as it
// was resolved, watermark settings inlined.
type DerivationPendingError struct {
	Request DeriveRequest
	Upload  *upload.PartialUploadError
}

func (e *DerivationPendingError) Error() string {
	return "derivation pending: " + e.Upload.Error()
}

func (e *DerivationPendingError) Unwrap() error { return e.Upload }

type EditorService struct {
	assets  AssetReader
	sources SourceStore
	uploads Uploader
	marks   watermark.Store
	logos   LogoSource
	metrics *metrics.Metrics
	cfg     config.EditorConfig
	log     zerolog.Logger
	now     func() time.Time
}

func NewEditorService(
	assets AssetReader,
	sources SourceStore,
	uploads Uploader,
	marks watermark.Store,
	logos LogoSource,
	m *metrics.Metrics,
	cfg config.EditorConfig,
	log zerolog.Logger,
) *EditorService {
	return &EditorService{
		assets:  assets,
		sources: sources,
		uploads: uploads,
		marks:   marks,
		logos:   logos,
		metrics: m,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (s *EditorService) Derive(ctx context.Context, req DeriveRequest) (models.Asset, error) {
	start := s.now()

	req, err := s.resolveWatermark(ctx, req)
	if err != nil {
		s.observe(err, start)
		return models.Asset{}, err
	}
	source, payload, format, err := s.render(ctx, req)
	if err != nil {
		s.observe(err, start)
		return models.Asset{}, err
	}

	reserve := upload.ReserveRequest{
		Filename: derivedFilename(req, source, format),
		MimeType: format.MimeType(),
		Width:    req.Spec.Crop.Width,
		Height:   req.Spec.Crop.Height,
		FolderID: req.FolderID,
		TagIDs:   req.TagIDs,
	}
	if reserve.FolderID == nil {
		reserve.FolderID = source.FolderID
	}
	if req.ReplaceSource {
		reserve.ReplaceAssetID = source.ID
	}

	asset, err := s.uploads.Upload(ctx, reserve, payload)
	if err != nil {
		var partial *upload.PartialUploadError
		if errors.As(err, &partial) {
			err = &DerivationPendingError{Request: req, Upload: partial}
		}
		s.observe(err, start)
		return models.Asset{}, err
	}

	s.observe(nil, start)
	s.log.Info().
		Str("source_id", source.ID).
		Str("asset_id", asset.ID).
		Int("width", req.Spec.Crop.Width).
		Int("height", req.Spec.Crop.Height).
		Msg("derivation stored")
	return asset, nil
}

// Resume re-renders the request and retries only the transfer. Rendering is
// deterministic, so the payload matches the reserved size.
func (s *EditorService) Resume(ctx context.Context, req ResumeRequest) (models.Asset, error) {
	start := s.now()

	// Settings may have changed since the reservation; only inline ones count.
	req.Request.ApplyStoredWatermark = false

	_, payload, _, err := s.render(ctx, req.Request)
	if err != nil {
		s.observe(err, start)
		return models.Asset{}, err
	}

	asset, err := s.uploads.Resume(ctx, req.Reservation, payload)
	if err != nil {
		var partial *upload.PartialUploadError
		if errors.As(err, &partial) {
			err = &DerivationPendingError{Request: req.Request, Upload: partial}
		}
		s.observe(err, start)
		return models.Asset{}, err
	}
	s.observe(nil, start)
	return asset, nil
}

// Preview renders the request without storing anything.
func (s *EditorService) Preview(ctx context.Context, req DeriveRequest) ([]byte, pipeline.Format, error) {
	req, err := s.resolveWatermark(ctx, req)
	if err != nil {
		return nil, "", err
	}
	_, payload, format, err := s.render(ctx, req)
	return payload, format, err
}

func (s *EditorService) resolveWatermark(ctx context.Context, req DeriveRequest) (DeriveRequest, error) {
	if req.Spec.Watermark != nil || !req.ApplyStoredWatermark || s.marks == nil {
		return req, nil
	}
	settings, err := s.marks.Get(ctx)
	if err != nil {
		return req, fmt.Errorf("load watermark settings: %w", err)
	}
	if settings.Enabled {
		req.Spec.Watermark = &settings
	}
	req.ApplyStoredWatermark = false
	return req, nil
}

func (s *EditorService) render(ctx context.Context, req DeriveRequest) (models.Asset, []byte, pipeline.Format, error) {
	source, err := s.assets.GetByID(ctx, req.SourceAssetID)
	if err != nil {
		return models.Asset{}, nil, "", fmt.Errorf("load source asset: %w", err)
	}
	raw, err := s.sources.Get(ctx, source.Bucket, source.ObjectKey, s.cfg.MaxSourceBytes)
	if err != nil {
		return models.Asset{}, nil, "", fmt.Errorf("read source %s: %w", source.ID, err)
	}
	kind, err := sniffer.DetectRaster(raw)
	if err != nil {
		return models.Asset{}, nil, "", &pipeline.DecodeError{Err: err}
	}
	img, err := pipeline.Decode(bytes.NewReader(raw))
	if err != nil {
		return models.Asset{}, nil, "", err
	}

	var logo image.Image
	if req.Spec.Watermark != nil && s.logos != nil {
		if logo, err = s.logos.Load(ctx, *req.Spec.Watermark); err != nil {
			return models.Asset{}, nil, "", fmt.Errorf("load watermark logo: %w", err)
		}
	}

	out, err := pipeline.Derive(img, req.Spec, logo)
	if err != nil {
		return models.Asset{}, nil, "", err
	}

	format := outputFormat(req.OutputMimeType, kind)
	var buf bytes.Buffer
	if err := pipeline.Encode(&buf, out, format, s.cfg.JPEGQuality); err != nil {
		return models.Asset{}, nil, "", err
	}
	return source, buf.Bytes(), format, nil
}

func (s *EditorService) observe(err error, start time.Time) {
	var (
		outcome   = "ok"
		decodeErr *pipeline.DecodeError
		cropErr   *pipeline.InvalidCropError
		pending   *DerivationPendingError
		invalid   validation.Errors
	)
	switch {
	case err == nil:
	case errors.As(err, &pending):
		outcome = "pending"
	case errors.As(err, &decodeErr), errors.As(err, &cropErr), errors.As(err, &invalid):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	s.metrics.ObserveDerivation(outcome, s.now().Sub(start))
}

// outputFormat keeps PNG for sources that may carry transparency unless a
// type was requested.
func outputFormat(requested string, source sniffer.Result) pipeline.Format {
	if requested != "" {
		return pipeline.FormatForMime(requested)
	}
	if source.HasAlpha() {
		return pipeline.FormatPNG
	}
	return pipeline.FormatJPEG
}

func derivedFilename(req DeriveRequest, source models.Asset, format pipeline.Format) string {
	if req.Filename != "" {
		return req.Filename
	}
	stem := strings.TrimSuffix(source.Filename, path.Ext(source.Filename))
	if stem == "" {
		stem = source.ID
	}
	if req.ReplaceSource {
		return stem + format.Extension()
	}
	return stem + "-edited" + format.Extension()
}
