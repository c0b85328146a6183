// Package pipeline renders derived images: crop and rotate in one affine
// pass, then photometric adjustments, a filter preset and an optional
// watermark.
package pipeline

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"medialib/internal/media/watermark"
)

// Crop is a rectangle in the coordinate space of the rotated canvas. With no
// rotation that is the source image itself.
type Crop struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type Preset string

const (
	PresetNone      Preset = "none"
	PresetGrayscale Preset = "grayscale"
	PresetSepia     Preset = "sepia"
	PresetVintage   Preset = "vintage"
	PresetWarm      Preset = "warm"
	PresetCool      Preset = "cool"
	PresetDramatic  Preset = "dramatic"
	PresetFade      Preset = "fade"
	PresetNoir      Preset = "noir"
)

// EditSpec describes one derivation. Adjustments are percentages in
// [-100, 100] applied as 100%+value.
type EditSpec struct {
	Crop            Crop                `json:"crop" yaml:"crop"`
	RotationDegrees float64             `json:"rotationDegrees" yaml:"rotationDegrees"`
	Brightness      int                 `json:"brightness" yaml:"brightness"`
	Contrast        int                 `json:"contrast" yaml:"contrast"`
	Saturation      int                 `json:"saturation" yaml:"saturation"`
	Filter          Preset              `json:"filter" yaml:"filter"`
	Watermark       *watermark.Settings `json:"watermark,omitempty" yaml:"watermark,omitempty"`
}

// Identity returns a spec that reproduces a width×height source unchanged.
func Identity(width, height int) EditSpec {
	return EditSpec{
		Crop:   Crop{Width: width, Height: height},
		Filter: PresetNone,
	}
}

var errNotFinite = errors.New("must be a finite number")

func (s EditSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Crop),
		validation.Field(&s.RotationDegrees, validation.By(func(v interface{}) error {
			f, _ := v.(float64)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return errNotFinite
			}
			return nil
		})),
		validation.Field(&s.Brightness, validation.Min(-100), validation.Max(100)),
		validation.Field(&s.Contrast, validation.Min(-100), validation.Max(100)),
		validation.Field(&s.Saturation, validation.Min(-100), validation.Max(100)),
		validation.Field(&s.Filter, validation.In(
			PresetNone, PresetGrayscale, PresetSepia, PresetVintage, PresetWarm,
			PresetCool, PresetDramatic, PresetFade, PresetNoir,
		)),
		// A disabled mark is a no-op and may be left incomplete.
		validation.Field(&s.Watermark, validation.Skip.When(s.Watermark == nil || !s.Watermark.Enabled)),
	)
}

// Validate checks only the crop's shape. Whether it fits the canvas depends
// on the source and is reported by Derive as InvalidCropError.
func (c Crop) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Width, validation.Required, validation.Min(1)),
		validation.Field(&c.Height, validation.Required, validation.Min(1)),
	)
}
