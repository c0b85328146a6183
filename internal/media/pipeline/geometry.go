package pipeline

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// normalizeDegrees maps any angle into [0, 360).
func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// quarterTurns reports how many clockwise quarter turns deg is, if it is an
// exact multiple of 90.
func quarterTurns(deg float64) (int, bool) {
	deg = normalizeDegrees(deg)
	if math.Mod(deg, 90) != 0 {
		return 0, false
	}
	return int(deg / 90), true
}

// RotatedBounds is the axis-aligned size of a w×h rectangle rotated by deg
// degrees clockwise.
func RotatedBounds(w, h int, deg float64) (int, int) {
	if q, ok := quarterTurns(deg); ok {
		if q%2 == 1 {
			return h, w
		}
		return w, h
	}
	theta := normalizeDegrees(deg) * math.Pi / 180
	cos, sin := math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta))
	fw, fh := float64(w), float64(h)
	return int(math.Round(fw*cos + fh*sin)), int(math.Round(fw*sin + fh*cos))
}

func checkCrop(srcW, srcH int, spec EditSpec) error {
	rotW, rotH := RotatedBounds(srcW, srcH, spec.RotationDegrees)
	c := spec.Crop
	if c.X < 0 || c.Y < 0 || c.Width < 1 || c.Height < 1 || c.X+c.Width > rotW || c.Y+c.Height > rotH {
		return &InvalidCropError{Crop: c, Canvas: image.Rect(0, 0, rotW, rotH)}
	}
	return nil
}

// rotateCrop renders the crop window of src rotated by deg. src must have its
// origin at (0, 0).
func rotateCrop(src *image.NRGBA, crop Crop, deg float64) *image.NRGBA {
	q, ok := quarterTurns(deg)
	if !ok {
		return affineRotateCrop(src, crop, deg)
	}

	rotated := src
	switch q {
	case 1:
		rotated = imaging.Rotate270(src)
	case 2:
		rotated = imaging.Rotate180(src)
	case 3:
		rotated = imaging.Rotate90(src)
	}
	return imaging.Crop(rotated, image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height))
}

// affineRotateCrop maps src into the crop window with one transform:
// translate(-crop) · translate(rotated centre) · rotate(θ) · translate(-source centre).
func affineRotateCrop(src *image.NRGBA, crop Crop, deg float64) *image.NRGBA {
	theta := normalizeDegrees(deg) * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	w, h := float64(src.Bounds().Dx()), float64(src.Bounds().Dy())
	rotW, rotH := RotatedBounds(src.Bounds().Dx(), src.Bounds().Dy(), deg)
	cx, cy := float64(rotW)/2-float64(crop.X), float64(rotH)/2-float64(crop.Y)

	s2d := f64.Aff3{
		cos, -sin, cx - cos*w/2 + sin*h/2,
		sin, cos, cy - sin*w/2 - cos*h/2,
	}

	dst := image.NewNRGBA(image.Rect(0, 0, crop.Width, crop.Height))
	xdraw.BiLinear.Transform(dst, s2d, src, src.Bounds(), xdraw.Src, nil)
	return dst
}
