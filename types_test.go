package styleexpr_test

import (
	"testing"

	"github.com/vebgen/styleexpr"
)

func TestParseKind(t *testing.T) {

	cases := map[string]struct {
		str       string
		wantError bool
		wantKind  styleexpr.Kind
	}{
		"number": {
			str:      "number",
			wantKind: styleexpr.Number,
		},
		"boolean": {
			str:      "boolean",
			wantKind: styleexpr.Boolean,
		},
		"color": {
			str:      "color",
			wantKind: styleexpr.Color,
		},
		"array": {
			str:      "number[]",
			wantKind: styleexpr.NumberArray,
		},
		"union": {
			str:      "number|color",
			wantKind: styleexpr.Number | styleexpr.Color,
		},
		"union_spaces": {
			str:      "string | number",
			wantKind: styleexpr.String | styleexpr.Number,
		},
		"any": {
			str:      "any",
			wantKind: styleexpr.Any,
		},
		"unknown": {
			str:       "vector",
			wantError: true,
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			k, err := styleexpr.ParseKind(c.str)
			if c.wantError {
				if err == nil {
					t.Fatalf("wanted error parsing %q, got %v", c.str, k)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsing %q: %v", c.str, err)
			}
			if k != c.wantKind {
				t.Errorf("parsing %q: got %v, wanted %v", c.str, k, c.wantKind)
			}
		})
	}
}

func TestOverlaps(t *testing.T) {

	cases := map[string]struct {
		expected styleexpr.Kind
		actual   styleexpr.Kind
		want     bool
	}{
		"same":           {styleexpr.Number, styleexpr.Number, true},
		"disjoint":       {styleexpr.Number, styleexpr.String, false},
		"mask_member":    {styleexpr.Color, styleexpr.Color | styleexpr.NumberArray, true},
		"any":            {styleexpr.Any, styleexpr.Boolean, true},
		"none_expected":  {styleexpr.None, styleexpr.Number, false},
		"none_actual":    {styleexpr.Number, styleexpr.None, false},
		"distinct_masks": {styleexpr.Number | styleexpr.String, styleexpr.Color | styleexpr.Boolean, false},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if got := styleexpr.Overlaps(c.expected, c.actual); got != c.want {
				t.Errorf("Overlaps(%v, %v) = %v, wanted %v", c.expected, c.actual, got, c.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	cases := map[styleexpr.Kind]string{
		styleexpr.None:                     "none",
		styleexpr.Number:                   "number",
		styleexpr.Color | styleexpr.Number: "number|color",
		styleexpr.Any:                      "boolean|number|string|color|number[]",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, wanted %q", k, got, want)
		}
	}
}
