package watermark

import "strings"

type Align int

const (
	AlignStart Align = iota
	AlignCenter
	AlignEnd
)

type Baseline int

const (
	BaselineTop Baseline = iota
	BaselineMiddle
	BaselineBottom
)

// Anchor is the reference point of the mark. Align says which horizontal edge
// of the mark sits on X, Baseline which vertical edge sits on Y.
type Anchor struct {
	X, Y     float64
	Align    Align
	Baseline Baseline
}

// ResolveAnchor maps s.Position onto an output of width×height.
func ResolveAnchor(width, height int, s Settings) Anchor {
	pad := s.Padding(width)
	vertical, horizontal := split(s.Position)

	var a Anchor
	switch horizontal {
	case "left":
		a.X, a.Align = pad, AlignStart
	case "right":
		a.X, a.Align = float64(width)-pad, AlignEnd
	default:
		a.X, a.Align = float64(width)/2, AlignCenter
	}
	switch vertical {
	case "top":
		a.Y, a.Baseline = pad, BaselineTop
	case "bottom":
		a.Y, a.Baseline = float64(height)-pad, BaselineBottom
	default:
		a.Y, a.Baseline = float64(height)/2, BaselineMiddle
	}
	return a
}

// split turns "bottom-right" into ("bottom", "right") and "center" into
// ("center", "center").
func split(p Position) (vertical, horizontal string) {
	v, h, ok := strings.Cut(string(p), "-")
	if !ok {
		return v, v
	}
	return v, h
}

// Place returns the top-left corner of a w×h box positioned on the anchor.
func (a Anchor) Place(w, h float64) (x, y float64) {
	switch a.Align {
	case AlignStart:
		x = a.X
	case AlignCenter:
		x = a.X - w/2
	case AlignEnd:
		x = a.X - w
	}
	switch a.Baseline {
	case BaselineTop:
		y = a.Y
	case BaselineMiddle:
		y = a.Y - h/2
	case BaselineBottom:
		y = a.Y - h
	}
	return x, y
}
