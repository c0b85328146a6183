package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"medialib/internal/metrics"
	"medialib/internal/models"
)

var ErrSizeMismatch = errors.New("payload size does not match reservation")

// Coordinator drives reserve → transfer. It never retries on its own; a
// failed transfer is reported as PartialUploadError for the caller to resume.
type Coordinator struct {
	issuer   Issuer
	transfer Transferer
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewCoordinator(issuer Issuer, transfer Transferer, m *metrics.Metrics, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		issuer:   issuer,
		transfer: transfer,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Upload reserves a record for payload and transfers it. The declared size is
// always len(payload).
func (c *Coordinator) Upload(ctx context.Context, req ReserveRequest, payload []byte) (models.Asset, error) {
	req.SizeBytes = int64(len(payload))
	if err := req.Validate(); err != nil {
		return models.Asset{}, err
	}

	res, err := c.issuer.ReserveUpload(ctx, req)
	if err != nil {
		c.metrics.IncUploadFailure("reserve")
		return models.Asset{}, fmt.Errorf("reserve upload: %w", err)
	}
	res.State = StateReserved

	c.log.Debug().
		Str("asset_id", res.AssetID).
		Str("mime", res.MimeType).
		Int64("size", res.SizeBytes).
		Msg("upload reserved")

	return c.complete(ctx, res, payload)
}

// Resume retries only the transfer phase of an earlier reservation. An
// expired write target is reissued first.
func (c *Coordinator) Resume(ctx context.Context, res Reservation, payload []byte) (models.Asset, error) {
	if res.AssetID == "" {
		return models.Asset{}, errors.New("resume: reservation has no asset id")
	}
	if int64(len(payload)) != res.SizeBytes {
		return models.Asset{}, fmt.Errorf("resume %s: %w (%d != %d)", res.AssetID, ErrSizeMismatch, len(payload), res.SizeBytes)
	}

	if res.Target.Expired(c.now()) {
		target, err := c.issuer.ReissueTarget(ctx, res.AssetID)
		if err != nil {
			c.metrics.IncUploadFailure("reissue")
			return models.Asset{}, &PartialUploadError{AssetID: res.AssetID, Reservation: res, Err: err}
		}
		res.Target = target
	}
	res.State = StateReserved

	return c.complete(ctx, res, payload)
}

func (c *Coordinator) complete(ctx context.Context, res Reservation, payload []byte) (models.Asset, error) {
	if err := c.transfer.Put(ctx, res.Target, res.MimeType, payload); err != nil {
		c.metrics.IncUploadFailure("transfer")
		c.log.Warn().Err(err).Str("asset_id", res.AssetID).Msg("upload transfer failed")
		return models.Asset{}, &PartialUploadError{AssetID: res.AssetID, Reservation: res, Err: err}
	}
	res.State = StateTransferred

	asset, err := c.issuer.ConfirmUpload(ctx, res.AssetID)
	if err != nil {
		c.metrics.IncUploadFailure("confirm")
		return models.Asset{}, &PartialUploadError{AssetID: res.AssetID, Reservation: res, Err: fmt.Errorf("confirm: %w", err)}
	}

	c.log.Info().
		Str("asset_id", asset.ID).
		Int64("size", res.SizeBytes).
		Msg("upload completed")
	return asset, nil
}
