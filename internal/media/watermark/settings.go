// Package watermark overlays a text or logo mark on a rendered image.
package watermark

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Type string

const (
	TypeText Type = "text"
	TypeLogo Type = "logo"
)

type Position string

const (
	TopLeft      Position = "top-left"
	TopCenter    Position = "top-center"
	TopRight     Position = "top-right"
	CenterLeft   Position = "center-left"
	Center       Position = "center"
	CenterRight  Position = "center-right"
	BottomLeft   Position = "bottom-left"
	BottomCenter Position = "bottom-center"
	BottomRight  Position = "bottom-right"
)

var positions = []interface{}{
	TopLeft, TopCenter, TopRight,
	CenterLeft, Center, CenterRight,
	BottomLeft, BottomCenter, BottomRight,
}

type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Multiplier is the fraction of the output width used for the mark's font
// size (text) or longer side (logo).
func (s Size) Multiplier() float64 {
	switch s {
	case SizeSmall:
		return 0.04
	case SizeLarge:
		return 0.10
	default:
		return 0.06
	}
}

// DefaultReferenceWidth is assumed for settings authored without one.
const DefaultReferenceWidth = 1000

// Settings is the single current watermark configuration. It is replaced
// whole; renderers read one snapshot per image.
type Settings struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Type           Type     `json:"type" yaml:"type"`
	Text           string   `json:"text,omitempty" yaml:"text,omitempty"`
	LogoURL        string   `json:"logoUrl,omitempty" yaml:"logoUrl,omitempty"`
	Position       Position `json:"position" yaml:"position"`
	Size           Size     `json:"size" yaml:"size"`
	OpacityPercent int      `json:"opacityPercent" yaml:"opacityPercent"`
	PaddingPx      float64  `json:"paddingPx" yaml:"paddingPx"`
	// ReferenceWidth is the output width PaddingPx was authored against.
	ReferenceWidth int `json:"referenceWidth,omitempty" yaml:"referenceWidth,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:        false,
		Type:           TypeText,
		Position:       BottomRight,
		Size:           SizeMedium,
		OpacityPercent: 60,
		PaddingPx:      24,
		ReferenceWidth: DefaultReferenceWidth,
	}
}

func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required, validation.In(TypeText, TypeLogo)),
		validation.Field(&s.Text, validation.When(s.Enabled && s.Type == TypeText, validation.Required)),
		validation.Field(&s.LogoURL, validation.When(s.Enabled && s.Type == TypeLogo, validation.Required)),
		validation.Field(&s.Position, validation.Required, validation.In(positions...)),
		validation.Field(&s.Size, validation.Required, validation.In(SizeSmall, SizeMedium, SizeLarge)),
		validation.Field(&s.OpacityPercent, validation.Min(0), validation.Max(100)),
		validation.Field(&s.PaddingPx, validation.Min(0.0)),
		validation.Field(&s.ReferenceWidth, validation.Min(0)),
	)
}

func (s Settings) referenceWidth() float64 {
	if s.ReferenceWidth <= 0 {
		return DefaultReferenceWidth
	}
	return float64(s.ReferenceWidth)
}

// Padding scales PaddingPx to an output of the given width.
func (s Settings) Padding(width int) float64 {
	return s.PaddingPx * float64(width) / s.referenceWidth()
}

// MarkSize is the font size or logo budget for an output of the given width.
func (s Settings) MarkSize(width int) float64 {
	return float64(width) * s.Size.Multiplier()
}
