// Package upload persists new assets in two phases: reserve a metadata record
// and a write target, then transfer the bytes to that target.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"medialib/internal/models"
)

type State string

const (
	StateReserved    State = "reserved"
	StateTransferred State = "transferred"
)

// Target is a pre-authorised location the payload is written to.
type Target struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

func (t Target) Expired(now time.Time) bool {
	return t.URL == "" || (!t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt))
}

type ReserveRequest struct {
	Filename  string   `json:"filename"`
	MimeType  string   `json:"mimeType"`
	SizeBytes int64    `json:"sizeBytes"`
	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	FolderID  *string  `json:"folderId,omitempty"`
	TagIDs    []string `json:"tagIds,omitempty"`
	// ReplaceAssetID reuses an existing asset's record and object key so the
	// new bytes overwrite it in place.
	ReplaceAssetID string `json:"replaceAssetId,omitempty"`
}

func (r ReserveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.MimeType, validation.Required, validation.By(func(v interface{}) error {
			if s, _ := v.(string); !strings.HasPrefix(s, "image/") {
				return errors.New("must be an image type")
			}
			return nil
		})),
		validation.Field(&r.SizeBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Width, validation.Min(0)),
		validation.Field(&r.Height, validation.Min(0)),
	)
}

// Reservation is the outcome of the reserve phase. It carries everything
// needed to retry the transfer later.
type Reservation struct {
	AssetID string `json:"assetId"`
	// URL is the public reference the asset is served from once confirmed.
	URL       string `json:"url"`
	Target    Target `json:"target"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	State     State  `json:"state"`
}

// Issuer is the metadata side of the protocol.
type Issuer interface {
	ReserveUpload(ctx context.Context, req ReserveRequest) (Reservation, error)
	// ReissueTarget returns a fresh write target for a reserved asset.
	ReissueTarget(ctx context.Context, assetID string) (Target, error)
	// ConfirmUpload marks the asset ready once its bytes are in place.
	ConfirmUpload(ctx context.Context, assetID string) (models.Asset, error)
}

// Transferer writes payload bytes to a Target.
type Transferer interface {
	Put(ctx context.Context, target Target, mimeType string, payload []byte) error
}

// PartialUploadError means the record was reserved but the bytes did not
// land. Reservation can be handed to Coordinator.Resume.
type PartialUploadError struct {
	AssetID     string
	Reservation Reservation
	Err         error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("asset %s reserved but transfer failed: %v", e.AssetID, e.Err)
}

func (e *PartialUploadError) Unwrap() error { return e.Err }
