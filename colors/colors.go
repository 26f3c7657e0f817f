// Package colors provides the color parsing and interpolation
// primitives shared by both expression compiler backends.
//
// Colors are passed around as []float64{r, g, b, a} with r, g, b in
// 0-255 and a in 0-1. Interpolation between colors happens in LCH
// space so that ramps are perceptually smooth; hue takes the shortest
// arc around the color wheel.
package colors

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mazznoer/csscolorparser"
)

// FromString parses a CSS color string (named color, hex, rgb(),
// hsl(), ...) and returns it as []float64{r, g, b, a}.
func FromString(s string) ([]float64, error) {
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parsing color %q: %w", s, err)
	}
	return []float64{c.R * 255, c.G * 255, c.B * 255, c.A}, nil
}

// InterpolateNumber interpolates between the two stops (in1, out1) and
// (in2, out2) at the position value. With base == 1 the interpolation
// is linear; otherwise the factor follows an exponential ease with the
// base as exponent. A degenerate stop pair (in1 == in2) returns out1.
func InterpolateNumber(base, value, in1, out1, in2, out2 float64) float64 {
	delta := in2 - in1
	if delta == 0 {
		return out1
	}
	along := value - in1
	var factor float64
	if base == 1 {
		factor = along / delta
	} else {
		factor = (math.Pow(base, along) - 1) / (math.Pow(base, delta) - 1)
	}
	return out1 + factor*(out2-out1)
}

// InterpolateColor interpolates between two colors at the position
// value, by converting both endpoints to LCH, interpolating lightness,
// chroma, hue and alpha independently, and converting back. The hue
// delta is wrapped to the shortest arc so that hues near the 0/360
// boundary interpolate through it rather than across the wheel.
// Endpoints may omit the alpha component and are then opaque; both
// endpoints need at least the three rgb components.
func InterpolateColor(base, value, in1 float64, rgba1 []float64, in2 float64, rgba2 []float64) []float64 {
	l1, c1, h1, a1 := toLCH(rgba1)
	l2, c2, h2, a2 := toLCH(rgba2)

	deltaHue := h2 - h1
	if deltaHue > 180 {
		deltaHue -= 360
	} else if deltaHue < -180 {
		deltaHue += 360
	}

	l := InterpolateNumber(base, value, in1, l1, in2, l2)
	c := InterpolateNumber(base, value, in1, c1, in2, c2)
	h := InterpolateNumber(base, value, in1, h1, in2, h1+deltaHue)
	a := InterpolateNumber(base, value, in1, a1, in2, a2)

	return fromLCH(l, c, h, a)
}

// toLCH converts a color to lightness, chroma, hue (degrees) and
// alpha. A color without an alpha component is opaque.
func toLCH(rgba []float64) (l, c, h, a float64) {
	col := colorful.Color{R: rgba[0] / 255, G: rgba[1] / 255, B: rgba[2] / 255}
	h, c, l = col.Hcl()
	a = 1
	if len(rgba) > 3 {
		a = rgba[3]
	}
	return l, c, h, a
}

// fromLCH converts back to []float64{r, g, b, a}, clamping to the
// displayable RGB range.
func fromLCH(l, c, h, a float64) []float64 {
	col := colorful.Hcl(h, c, l).Clamped()
	return []float64{
		clampChannel(col.R * 255),
		clampChannel(col.G * 255),
		clampChannel(col.B * 255),
		math.Max(0, math.Min(1, a)),
	}
}

func clampChannel(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}
