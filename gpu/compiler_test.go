package gpu_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/vebgen/styleexpr"
	"github.com/vebgen/styleexpr/gpu"
)

func lit(kind styleexpr.Kind, v any) *styleexpr.Literal {
	return styleexpr.NewLiteral(kind, v)
}

func num(v float64) *styleexpr.Literal  { return lit(styleexpr.Number, v) }
func str(v string) *styleexpr.Literal   { return lit(styleexpr.String, v) }
func boolean(v bool) *styleexpr.Literal { return lit(styleexpr.Boolean, v) }

func get(name string, kind styleexpr.Kind) *styleexpr.Call {
	return styleexpr.NewCall(kind, styleexpr.OpGet, str(name))
}

func compile(t *testing.T, e styleexpr.Expr, kind styleexpr.Kind, cc *gpu.CompilationContext) string {
	t.Helper()
	if cc == nil {
		cc = gpu.NewCompilationContext()
	}
	glsl, err := gpu.Compile(e, kind, cc)
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	return glsl
}

func TestLiterals(t *testing.T) {

	cases := map[string]struct {
		expr styleexpr.Expr
		kind styleexpr.Kind
		want string
	}{
		// numbers always carry a decimal point
		"integral_number": {num(5), styleexpr.Number, "5.0"},
		"decimal_number":  {num(2.5), styleexpr.Number, "2.5"},
		"negative_number": {num(-0.75), styleexpr.Number, "-0.75"},
		"bool_true":       {boolean(true), styleexpr.Boolean, "true"},
		"bool_false":      {boolean(false), styleexpr.Boolean, "false"},
		"vec2": {
			lit(styleexpr.NumberArray, []float64{1, 2}),
			styleexpr.NumberArray,
			"vec2(1.0, 2.0)",
		},
		"vec4": {
			lit(styleexpr.NumberArray, []float64{1, 2, 3, 4}),
			styleexpr.NumberArray,
			"vec4(1.0, 2.0, 3.0, 4.0)",
		},
		// colors are normalized and alpha-premultiplied
		"color_string": {
			lit(styleexpr.Color, "red"),
			styleexpr.Color,
			"vec4(1.0, 0.0, 0.0, 1.0)",
		},
		"color_array_with_alpha": {
			lit(styleexpr.Color, []float64{255, 0, 0, 0.5}),
			styleexpr.Color,
			"vec4(0.5, 0.0, 0.0, 0.5)",
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(compile(t, c.expr, c.kind, nil), c.want)
		})
	}
}

func TestLiteralErrors(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()

	// requested kind does not overlap the declared kind
	_, err := gpu.Compile(num(5), styleexpr.String, cc)
	is.True(errors.Is(err, styleexpr.ErrTypeMismatch))

	// arrays must fit a vecN
	_, err = gpu.Compile(lit(styleexpr.NumberArray, []float64{1, 2, 3, 4, 5}),
		styleexpr.NumberArray, cc)
	is.True(errors.Is(err, styleexpr.ErrInvalidExpression))

	_, err = gpu.Compile(lit(styleexpr.Color, "no-such-color"), styleexpr.Color, cc)
	is.True(errors.Is(err, styleexpr.ErrInvalidExpression))
}

// String literals travel through the table; equal strings produce
// equal float literals, distinct strings distinct ones.
func TestStringEncoding(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()

	a1 := compile(t, str("residential"), styleexpr.String, cc)
	b := compile(t, str("motorway"), styleexpr.String, cc)
	a2 := compile(t, str("residential"), styleexpr.String, cc)

	is.Equal(a1, a2)
	is.True(a1 != b)
	is.True(strings.Contains(a1, "."))
}

func TestOperatorTemplates(t *testing.T) {

	cases := map[string]struct {
		expr styleexpr.Expr
		kind styleexpr.Kind
		want string
	}{
		"add": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpAdd, num(1), num(2), num(3)),
			styleexpr.Number,
			"(1.0 + 2.0 + 3.0)",
		},
		"multiply": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpMultiply, num(2), num(3)),
			styleexpr.Number,
			"(2.0 * 3.0)",
		},
		"clamp": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpClamp, num(5), num(0), num(10)),
			styleexpr.Number,
			"clamp(5.0, 0.0, 10.0)",
		},
		"mod": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpMod, num(10), num(3)),
			styleexpr.Number,
			"mod(10.0, 3.0)",
		},
		"pow": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpPow, num(2), num(8)),
			styleexpr.Number,
			"pow(2.0, 8.0)",
		},
		"round": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpRound, num(4.5)),
			styleexpr.Number,
			"floor(4.5 + 0.5)",
		},
		"atan_unary": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpAtan, num(1)),
			styleexpr.Number,
			"atan(1.0)",
		},
		"atan_binary": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpAtan, num(1), num(2)),
			styleexpr.Number,
			"atan(1.0, 2.0)",
		},
		"comparison": {
			styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpGreaterThan, num(1), num(2)),
			styleexpr.Boolean,
			"(1.0 > 2.0)",
		},
		"any": {
			styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpAny, boolean(true), boolean(false)),
			styleexpr.Boolean,
			"(true || false)",
		},
		"all": {
			styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpAll, boolean(true), boolean(false)),
			styleexpr.Boolean,
			"(true && false)",
		},
		"not": {
			styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpNot, boolean(false)),
			styleexpr.Boolean,
			"(!false)",
		},
		"resolution": {
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpResolution),
			styleexpr.Number,
			"u_resolution",
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(compile(t, c.expr, c.kind, nil), c.want)
		})
	}
}

// Compiling get twice for the same property registers exactly one
// entry; the stage decides the emitted name.
func TestPropertyRegistration(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()

	name1 := compile(t, get("elevation", styleexpr.Number), styleexpr.Number, cc)
	name2 := compile(t, get("elevation", styleexpr.Number), styleexpr.Number, cc)

	is.Equal(name1, "a_prop_elevation")
	is.Equal(name1, name2)
	is.Equal(len(cc.Properties), 1)
	is.Equal(cc.Properties["elevation"].Kind, styleexpr.Number)

	fragment := gpu.NewCompilationContext(gpu.ForFragmentShader(true))
	is.Equal(compile(t, get("elevation", styleexpr.Number), styleexpr.Number, fragment), "v_prop_elevation")
}

func TestVariableRegistration(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()
	e := styleexpr.NewCall(styleexpr.Number, styleexpr.OpVar, str("minYear"))

	is.Equal(compile(t, e, styleexpr.Number, cc), "u_var_minYear")
	is.Equal(len(cc.Variables), 1)
	is.Equal(cc.Variables["minYear"].Name, "minYear")
}

// geometry-type is a derived pseudo-property: the attribute is
// populated on the host through the registered evaluator, which
// encodes the type through the same string table the shader literals
// use.
func TestGeometryType(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()

	name := compile(t, styleexpr.NewCall(styleexpr.String, styleexpr.OpGeometryType), styleexpr.String, cc)
	is.Equal(name, "a_prop_geometryType")

	p, ok := cc.Properties["geometryType"]
	is.True(ok)
	is.True(p.Evaluator != nil)

	ctx := styleexpr.NewEvaluationContext()
	ctx.GeometryType = "Polygon"
	v, err := p.Evaluator(ctx)
	is.NoErr(err)
	is.Equal(v, cc.Strings.Float("Polygon"))
}

// Equality on a string-typed expression compiles to float equality on
// the encoded ids.
func TestStringComparison(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()
	e := styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpEqual,
		styleexpr.NewCall(styleexpr.String, styleexpr.OpGeometryType),
		str("Polygon"))

	glsl, err := gpu.Compile(e, styleexpr.Boolean, cc)
	is.NoErr(err)
	is.Equal(glsl, "(a_prop_geometryType == 0.0)")
}

func TestCaseTernaryChain(t *testing.T) {
	is := is.New(t)

	e := styleexpr.NewCall(styleexpr.Number, styleexpr.OpCase,
		boolean(false), num(1),
		boolean(true), num(2),
		num(3))

	is.Equal(compile(t, e, styleexpr.Number, nil),
		"(false ? 1.0 : (true ? 2.0 : 3.0))")
}

func TestMatchTernaryChain(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()
	e := styleexpr.NewCall(styleexpr.Number, styleexpr.OpMatch,
		get("lanes", styleexpr.Number),
		num(1), num(10),
		num(2), num(20),
		num(0))

	is.Equal(compile(t, e, styleexpr.Number, cc),
		"(a_prop_lanes == 1.0 ? 10.0 : (a_prop_lanes == 2.0 ? 20.0 : 0.0))")
}

func TestInterpolateMixFold(t *testing.T) {
	is := is.New(t)

	// linear base: plain ratio, no pow
	e := styleexpr.NewCall(styleexpr.Number, styleexpr.OpInterpolate,
		num(1), get("v", styleexpr.Number),
		num(0), num(0),
		num(10), num(100))
	glsl := compile(t, e, styleexpr.Number, nil)
	is.Equal(glsl, "mix(0.0, 100.0, clamp((a_prop_v - 0.0) / (10.0 - 0.0), 0.0, 1.0))")

	// exponential base uses the pow form
	e = styleexpr.NewCall(styleexpr.Number, styleexpr.OpInterpolate,
		num(2), get("v", styleexpr.Number),
		num(0), num(0),
		num(10), num(100))
	glsl = compile(t, e, styleexpr.Number, nil)
	is.True(strings.Contains(glsl, "pow(2.0,"))

	// two segments nest two mix calls
	e = styleexpr.NewCall(styleexpr.Number, styleexpr.OpInterpolate,
		num(1), get("v", styleexpr.Number),
		num(0), num(0),
		num(10), num(100),
		num(20), num(300))
	glsl = compile(t, e, styleexpr.Number, nil)
	is.Equal(strings.Count(glsl, "mix("), 2)

	// the base must be a literal
	e = styleexpr.NewCall(styleexpr.Number, styleexpr.OpInterpolate,
		get("base", styleexpr.Number), num(5),
		num(0), num(0),
		num(10), num(100))
	_, err := gpu.Compile(e, styleexpr.Number, gpu.NewCompilationContext())
	is.True(errors.Is(err, styleexpr.ErrInvalidExpression))
}

func TestInterpolateColorOutputs(t *testing.T) {
	is := is.New(t)

	e := styleexpr.NewCall(styleexpr.Color, styleexpr.OpInterpolate,
		num(1), get("depth", styleexpr.Number),
		num(0), lit(styleexpr.Color, "black"),
		num(100), lit(styleexpr.Color, "white"))

	glsl := compile(t, e, styleexpr.Color, nil)
	is.True(strings.Contains(glsl, "vec4(0.0, 0.0, 0.0, 1.0)"))
	is.True(strings.Contains(glsl, "vec4(1.0, 1.0, 1.0, 1.0)"))
}

// Repeated in tests with the same haystack share one generated
// function; a different haystack gets its own.
func TestInFunctionDedup(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()

	e := styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpIn,
		get("class", styleexpr.Number), num(1), num(2), num(3))

	call1 := compile(t, e, styleexpr.Boolean, cc)
	call2 := compile(t, e, styleexpr.Boolean, cc)
	is.Equal(call1, call2)
	is.Equal(len(cc.Functions), 1)
	is.True(strings.Contains(call1, "operator_in_0(a_prop_class)"))

	other := styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpIn,
		get("class", styleexpr.Number), num(7), num(8))
	call3 := compile(t, other, styleexpr.Boolean, cc)
	is.Equal(len(cc.Functions), 2)
	is.True(strings.Contains(call3, "operator_in_1(a_prop_class)"))

	body := cc.Functions["operator_in_0"]
	is.True(strings.Contains(body, "if (inputValue == 1.0) { return true; }"))
	is.True(strings.Contains(body, "return false;"))
}

// String haystacks scan over encoded floats.
func TestInWithStrings(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()
	e := styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpIn,
		styleexpr.NewCall(styleexpr.String, styleexpr.OpGeometryType),
		str("Point"), str("MultiPoint"))

	glsl := compile(t, e, styleexpr.Boolean, cc)
	is.True(strings.Contains(glsl, "operator_in_0"))

	// string ids are assigned in encounter order
	body := cc.Functions["operator_in_0"]
	is.True(strings.Contains(body, "inputValue == 0.0"))
	is.True(strings.Contains(body, "inputValue == 1.0"))
}

// One shared band reading function per style, sized by the band
// count, regardless of how many band calls the style contains.
func TestBand(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext(gpu.WithBandCount(3))

	e := styleexpr.NewCall(styleexpr.Number, styleexpr.OpBand, num(1))
	glsl := compile(t, e, styleexpr.Number, cc)
	is.Equal(glsl, "getBandValue(1.0, 0.0, 0.0)")

	withOffsets := styleexpr.NewCall(styleexpr.Number, styleexpr.OpBand, num(2), num(1), num(-1))
	glsl = compile(t, withOffsets, styleexpr.Number, cc)
	is.Equal(glsl, "getBandValue(2.0, 1.0, -1.0)")

	is.Equal(len(cc.Functions), 1)
	body := cc.Functions["getBandValue"]
	is.Equal(strings.Count(body, "if (band =="), 3)
	is.True(strings.Contains(body, "u_tileTextures[0]"))
}

func TestPalette(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext()

	e := styleexpr.NewCall(styleexpr.Color, styleexpr.OpPalette,
		styleexpr.NewCall(styleexpr.Number, styleexpr.OpBand, num(1)),
		lit(styleexpr.NumberArray, []any{"red", "green", "blue"}))

	glsl := compile(t, e, styleexpr.Color, cc)
	is.True(strings.Contains(glsl, "u_paletteTextures[0]"))
	is.True(strings.Contains(glsl, "/ 3.0"))

	is.Equal(len(cc.PaletteTextures), 1)
	is.Equal(len(cc.PaletteTextures[0].Data), 12)
	// first entry is red
	is.Equal(cc.PaletteTextures[0].Data[0], byte(255))
	is.Equal(cc.PaletteTextures[0].Data[1], byte(0))

	// a second palette gets the next texture slot
	glsl2 := compile(t, e, styleexpr.Color, cc)
	is.True(strings.Contains(glsl2, "u_paletteTextures[1]"))
	is.Equal(len(cc.PaletteTextures), 2)

	// fractional channels round to the nearest byte
	frac := styleexpr.NewCall(styleexpr.Color, styleexpr.OpPalette,
		num(0),
		lit(styleexpr.NumberArray, []any{[]float64{254.9, 0.6, 10.4, 1}}))
	compile(t, frac, styleexpr.Color, cc)
	data := cc.PaletteTextures[2].Data
	is.Equal(data[0], byte(255))
	is.Equal(data[1], byte(1))
	is.Equal(data[2], byte(10))
	is.Equal(data[3], byte(255))
}

// The assertion operators have no shader form; the compiler refuses
// them up front rather than emitting broken GLSL.
func TestUnsupportedOperators(t *testing.T) {

	cases := map[string]styleexpr.Expr{
		"number": styleexpr.NewCall(styleexpr.Number, styleexpr.OpNumber, num(1)),
		"string": styleexpr.NewCall(styleexpr.String, styleexpr.OpString, str("a")),
		"coalesce": styleexpr.NewCall(styleexpr.Number, styleexpr.OpCoalesce,
			get("a", styleexpr.Number), num(0)),
		"concat": styleexpr.NewCall(styleexpr.String, styleexpr.OpConcat, str("a"), str("b")),
		"id":     styleexpr.NewCall(styleexpr.String, styleexpr.OpID),
	}

	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := gpu.Compile(e, styleexpr.Any, gpu.NewCompilationContext())
			if !errors.Is(err, styleexpr.ErrUnsupportedOperator) {
				t.Fatalf("wanted unsupported operator error, got %v", err)
			}
		})
	}
}

func TestFunctionSourceOrder(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext(gpu.WithBandCount(1))

	compile(t, styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpIn,
		get("c", styleexpr.Number), num(1)), styleexpr.Boolean, cc)
	compile(t, styleexpr.NewCall(styleexpr.Number, styleexpr.OpBand, num(1)),
		styleexpr.Number, cc)

	src := cc.FunctionSource()
	is.True(strings.Index(src, "operator_in_0") < strings.Index(src, "getBandValue"))
}

func TestContextString(t *testing.T) {
	is := is.New(t)

	cc := gpu.NewCompilationContext(gpu.WithBandCount(1))
	compile(t, get("elevation", styleexpr.Number), styleexpr.Number, cc)
	compile(t, styleexpr.NewCall(styleexpr.Number, styleexpr.OpVar, str("exaggeration")),
		styleexpr.Number, cc)
	compile(t, styleexpr.NewCall(styleexpr.Color, styleexpr.OpPalette,
		num(0), lit(styleexpr.NumberArray, []any{"red"})), styleexpr.Color, cc)

	s := cc.String()
	is.True(strings.Contains(s, "a_prop_elevation"))
	is.True(strings.Contains(s, "u_var_exaggeration"))
	is.True(strings.Contains(s, "u_paletteTextures[0]"))
}
