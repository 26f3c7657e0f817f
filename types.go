package styleexpr

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a value produced by an expression.
// Kind is a bitmask: a single expression may satisfy several kinds at
// once (a literal array can be both a NumberArray and a Color), so
// compatibility is tested with Overlaps rather than equality.
type Kind uint8

const (
	// None is the empty kind; no value satisfies it.
	None Kind = 0

	// Boolean is a true/false value.
	Boolean Kind = 1 << iota

	// Number is a float64 value.
	Number

	// String is a string value.
	String

	// Color is a color value, represented as []float64{r, g, b, a}
	// with r, g, b in 0-255 and a in 0-1.
	Color

	// NumberArray is a []float64 value.
	NumberArray

	// Any is the union of all kinds.
	Any = Boolean | Number | String | Color | NumberArray
)

// Overlaps reports whether a value of the actual kind can be used where
// the expected kind is required. Because kinds are bitmasks, any common
// bit is a match.
func Overlaps(expected, actual Kind) bool {
	return expected&actual > 0
}

var kindNames = []struct {
	kind Kind
	name string
}{
	{Boolean, "boolean"},
	{Number, "number"},
	{String, "string"},
	{Color, "color"},
	{NumberArray, "number[]"},
}

// String returns the names of all kinds in the mask, for use in
// error messages and diagnostics.
func (k Kind) String() string {
	if k == None {
		return "none"
	}
	names := make([]string, 0, len(kindNames))
	for _, kn := range kindNames {
		if k&kn.kind > 0 {
			names = append(names, kn.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseKind parses a string representation of a kind and returns the
// kind. Kind names are the lower-case names used by Kind.String;
// unions are separated by |. Example: "number|color".
func ParseKind(s string) (Kind, error) {
	k := None
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		switch part {
		case "boolean":
			k |= Boolean
		case "number":
			k |= Number
		case "string":
			k |= String
		case "color":
			k |= Color
		case "number[]":
			k |= NumberArray
		case "any":
			k |= Any
		default:
			return None, fmt.Errorf("unrecognized kind: %s", part)
		}
	}
	return k, nil
}
