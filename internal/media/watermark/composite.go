package watermark

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var ErrLogoMissing = errors.New("watermark: logo mode without a logo image")

// Shadow geometry relative to the font size.
const (
	shadowOffset = 0.04
	shadowBlur   = 0.06
	shadowAlpha  = 0.55
)

var (
	boldOnce sync.Once
	bold     *opentype.Font
	boldErr  error
)

func boldFont() (*opentype.Font, error) {
	boldOnce.Do(func() {
		bold, boldErr = opentype.Parse(gobold.TTF)
	})
	return bold, boldErr
}

// Composite draws the mark described by s onto dst in place. A disabled
// setting leaves dst untouched. logo is only read in logo mode.
func Composite(dst *image.NRGBA, s Settings, logo image.Image) error {
	if !s.Enabled || s.OpacityPercent <= 0 {
		return nil
	}
	bounds := dst.Bounds()
	if bounds.Empty() {
		return nil
	}

	opacity := math.Min(float64(s.OpacityPercent), 100) / 100
	anchor := ResolveAnchor(bounds.Dx(), bounds.Dy(), s)
	size := s.MarkSize(bounds.Dx())

	switch s.Type {
	case TypeLogo:
		if logo == nil {
			return ErrLogoMissing
		}
		drawLogo(dst, logo, anchor, size, opacity)
		return nil
	case TypeText:
		if s.Text == "" {
			return nil
		}
		return drawText(dst, s.Text, anchor, size, opacity)
	default:
		return fmt.Errorf("watermark: unknown type %q", s.Type)
	}
}

func drawLogo(dst *image.NRGBA, logo image.Image, anchor Anchor, size, opacity float64) {
	lb := logo.Bounds()
	if lb.Empty() || size < 1 {
		return
	}

	w, h := size, size
	if lb.Dx() >= lb.Dy() {
		h = size * float64(lb.Dy()) / float64(lb.Dx())
	} else {
		w = size * float64(lb.Dx()) / float64(lb.Dy())
	}
	sw, sh := max(1, int(math.Round(w))), max(1, int(math.Round(h)))

	scaled := image.NewNRGBA(image.Rect(0, 0, sw, sh))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), logo, lb, xdraw.Src, nil)

	x, y := anchor.Place(float64(sw), float64(sh))
	at := image.Pt(int(math.Round(x)), int(math.Round(y))).Add(dst.Bounds().Min)
	blend(dst, scaled, at, opacity)
}

func drawText(dst *image.NRGBA, text string, anchor Anchor, size, opacity float64) error {
	if size < 1 {
		return nil
	}
	f, err := boldFont()
	if err != nil {
		return fmt.Errorf("watermark: load font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("watermark: font face: %w", err)
	}
	defer face.Close()

	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	textW := font.MeasureString(face, text).Ceil()
	textH := ascent + metrics.Descent.Ceil()

	offset := int(math.Round(size * shadowOffset))
	sigma := size * shadowBlur
	margin := int(math.Ceil(sigma*3)) + offset

	layerRect := image.Rect(0, 0, textW+2*margin, textH+2*margin)
	dot := fixed.P(margin, margin+ascent)

	shadow := image.NewNRGBA(layerRect)
	(&font.Drawer{Dst: shadow, Src: image.NewUniform(color.Black), Face: face, Dot: dot}).DrawString(text)
	blurred := imaging.Blur(shadow, sigma)

	fill := image.NewNRGBA(layerRect)
	(&font.Drawer{Dst: fill, Src: image.NewUniform(color.White), Face: face, Dot: dot}).DrawString(text)

	x, y := anchor.Place(float64(textW), float64(textH))
	origin := image.Pt(int(math.Round(x))-margin, int(math.Round(y))-margin).Add(dst.Bounds().Min)

	blend(dst, blurred, origin.Add(image.Pt(offset, offset)), opacity*shadowAlpha)
	blend(dst, fill, origin, opacity)
	return nil
}

// blend draws src over dst with its top-left at at, scaling src's own alpha
// by opacity.
func blend(dst *image.NRGBA, src image.Image, at image.Point, opacity float64) {
	r := src.Bounds().Sub(src.Bounds().Min).Add(at)
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	xdraw.DrawMask(dst, r, src, src.Bounds().Min, mask, image.Point{}, xdraw.Over)
}

// Preview renders s over a neutral canvas of the given size, regardless of
// whether s is enabled.
func Preview(width, height int, s Settings, logo image.Image) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("watermark: invalid preview size %dx%d", width, height)
	}
	canvas := imaging.New(width, height, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	s.Enabled = true
	if err := Composite(canvas, s, logo); err != nil {
		return nil, err
	}
	return canvas, nil
}
