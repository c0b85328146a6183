package pipeline

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"

	"medialib/internal/media/watermark"
)

// Derive renders spec against src. The output is exactly Crop.Width ×
// Crop.Height. logo is used only when spec carries an enabled logo watermark.
// Derive never modifies src.
func Derive(src image.Image, spec EditSpec, logo image.Image) (*image.NRGBA, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := checkCrop(src.Bounds().Dx(), src.Bounds().Dy(), spec); err != nil {
		return nil, err
	}

	out := rotateCrop(imaging.Clone(src), spec.Crop, spec.RotationDegrees)
	applyOps(out, adjustments(spec))

	if spec.Watermark != nil {
		if err := watermark.Composite(out, *spec.Watermark, logo); err != nil {
			return nil, err
		}
	}
	return out, nil
}
