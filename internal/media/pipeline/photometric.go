package pipeline

import (
	"image"
	"math"
)

// op transforms one pixel's colour channels on a 0..255 scale. Results are
// clamped after every op, the way stacked CSS filters behave.
type op func(r, g, b float64) (float64, float64, float64)

func brightness(amount float64) op {
	return func(r, g, b float64) (float64, float64, float64) {
		return r * amount, g * amount, b * amount
	}
}

func contrast(amount float64) op {
	return func(r, g, b float64) (float64, float64, float64) {
		return (r-127.5)*amount + 127.5, (g-127.5)*amount + 127.5, (b-127.5)*amount + 127.5
	}
}

type matrix [3][3]float64

func (m matrix) op() op {
	return func(r, g, b float64) (float64, float64, float64) {
		return m[0][0]*r + m[0][1]*g + m[0][2]*b,
			m[1][0]*r + m[1][1]*g + m[1][2]*b,
			m[2][0]*r + m[2][1]*g + m[2][2]*b
	}
}

func saturate(s float64) op {
	return matrix{
		{0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s},
	}.op()
}

func grayscale(amount float64) op {
	a := 1 - math.Min(amount, 1)
	return matrix{
		{0.2126 + 0.7874*a, 0.7152 - 0.7152*a, 0.0722 - 0.0722*a},
		{0.2126 - 0.2126*a, 0.7152 + 0.2848*a, 0.0722 - 0.0722*a},
		{0.2126 - 0.2126*a, 0.7152 - 0.7152*a, 0.0722 + 0.9278*a},
	}.op()
}

func sepia(amount float64) op {
	a := 1 - math.Min(amount, 1)
	return matrix{
		{0.393 + 0.607*a, 0.769 - 0.769*a, 0.189 - 0.189*a},
		{0.349 - 0.349*a, 0.686 + 0.314*a, 0.168 - 0.168*a},
		{0.272 - 0.272*a, 0.534 - 0.534*a, 0.131 + 0.869*a},
	}.op()
}

func hueRotate(deg float64) op {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return matrix{
		{0.213 + c*0.787 - s*0.213, 0.715 - c*0.715 - s*0.715, 0.072 - c*0.072 + s*0.928},
		{0.213 - c*0.213 + s*0.143, 0.715 + c*0.285 + s*0.140, 0.072 - c*0.072 - s*0.283},
		{0.213 - c*0.213 - s*0.787, 0.715 - c*0.715 + s*0.715, 0.072 + c*0.928 + s*0.072},
	}.op()
}

// presets are fixed filter chains layered over the manual adjustments.
var presets = map[Preset][]op{
	PresetGrayscale: {grayscale(1)},
	PresetSepia:     {sepia(1)},
	PresetVintage:   {sepia(0.5), contrast(1.1), brightness(0.9), saturate(0.8)},
	PresetWarm:      {sepia(0.3), saturate(1.4), hueRotate(-10)},
	PresetCool:      {saturate(0.9), hueRotate(20), brightness(1.05)},
	PresetDramatic:  {contrast(1.5), saturate(1.2), brightness(0.9)},
	PresetFade:      {contrast(0.8), brightness(1.1), saturate(0.7)},
	PresetNoir:      {grayscale(1), contrast(1.4), brightness(0.9)},
}

// adjustments returns the ops for spec in application order: brightness,
// contrast, saturation, then the preset chain. Zero adjustments are skipped.
func adjustments(spec EditSpec) []op {
	var ops []op
	if spec.Brightness != 0 {
		ops = append(ops, brightness(1+float64(spec.Brightness)/100))
	}
	if spec.Contrast != 0 {
		ops = append(ops, contrast(1+float64(spec.Contrast)/100))
	}
	if spec.Saturation != 0 {
		ops = append(ops, saturate(1+float64(spec.Saturation)/100))
	}
	return append(ops, presets[spec.Filter]...)
}

// applyOps runs ops over every pixel of img in place. Alpha is untouched.
func applyOps(img *image.NRGBA, ops []op) {
	if len(ops) == 0 {
		return
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			r, g, bl := float64(row[i]), float64(row[i+1]), float64(row[i+2])
			for _, o := range ops {
				r, g, bl = o(r, g, bl)
				r, g, bl = clamp(r), clamp(g), clamp(bl)
			}
			row[i], row[i+1], row[i+2] = uint8(math.Round(r)), uint8(math.Round(g)), uint8(math.Round(bl))
		}
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
