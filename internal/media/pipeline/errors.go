package pipeline

import (
	"fmt"
	"image"
)

// DecodeError means the source bytes are not a decodable raster.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode source image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidCropError means the crop rectangle does not fit inside the canvas.
// Crops are never clamped.
type InvalidCropError struct {
	Crop   Crop
	Canvas image.Rectangle
}

func (e *InvalidCropError) Error() string {
	return fmt.Sprintf("crop %dx%d+%d+%d outside canvas %dx%d",
		e.Crop.Width, e.Crop.Height, e.Crop.X, e.Crop.Y, e.Canvas.Dx(), e.Canvas.Dy())
}
