package gpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vebgen/styleexpr"
)

// numberToGLSL formats a number as a GLSL float literal. GLSL is picky
// about int/float promotion, so the literal always carries a decimal
// point: 5 becomes "5.0".
func numberToGLSL(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// arrayToGLSL formats a number array of length 2 to 4 as a vecN
// constructor.
func arrayToGLSL(v []float64) (string, error) {
	if len(v) < 2 || len(v) > 4 {
		return "", fmt.Errorf("%w: arrays must have 2 to 4 components, got %d",
			styleexpr.ErrInvalidExpression, len(v))
	}
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = numberToGLSL(n)
	}
	return fmt.Sprintf("vec%d(%s)", len(v), strings.Join(parts, ", ")), nil
}

// colorToGLSL formats a color as a normalized, alpha-premultiplied
// vec4 literal, the form the blending pipeline expects.
func colorToGLSL(rgba []float64) (string, error) {
	if len(rgba) < 3 {
		return "", fmt.Errorf("%w: colors need at least 3 components, got %d",
			styleexpr.ErrInvalidExpression, len(rgba))
	}
	a := 1.0
	if len(rgba) > 3 {
		a = rgba[3]
	}
	return arrayToGLSL([]float64{
		rgba[0] / 255 * a,
		rgba[1] / 255 * a,
		rgba[2] / 255 * a,
		a,
	})
}

// stringToGLSL encodes a string through the table and formats the
// resulting id as a float literal.
func (cc *CompilationContext) stringToGLSL(s string) string {
	return numberToGLSL(cc.Strings.Float(s))
}
