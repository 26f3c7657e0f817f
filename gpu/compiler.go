package gpu

import (
	"fmt"
	"math"
	"strings"

	"github.com/vebgen/styleexpr"
	"github.com/vebgen/styleexpr/colors"
)

// compilerFunc compiles one call expression to a GLSL sub-expression,
// possibly registering properties, variables, functions or palette
// textures on the context.
type compilerFunc func(call *styleexpr.Call, cc *CompilationContext) (string, error)

// compilers maps each operator to its compiler. Populated in init to
// avoid an initialization cycle through compileArgs.
var compilers map[string]compilerFunc

func init() {
	compilers = map[string]compilerFunc{
		styleexpr.OpGet:          compileGet,
		styleexpr.OpVar:          compileVar,
		styleexpr.OpGeometryType: compileGeometryType,
		styleexpr.OpResolution: func(*styleexpr.Call, *CompilationContext) (string, error) {
			return "u_resolution", nil
		},

		styleexpr.OpAny: variadic("||", styleexpr.Boolean),
		styleexpr.OpAll: variadic("&&", styleexpr.Boolean),
		styleexpr.OpNot: template("(!%s)", styleexpr.Boolean),

		styleexpr.OpEqual:              template("(%s == %s)", styleexpr.Any),
		styleexpr.OpNotEqual:           template("(%s != %s)", styleexpr.Any),
		styleexpr.OpGreaterThan:        template("(%s > %s)", styleexpr.Number),
		styleexpr.OpGreaterThanOrEqual: template("(%s >= %s)", styleexpr.Number),
		styleexpr.OpLessThan:           template("(%s < %s)", styleexpr.Number),
		styleexpr.OpLessThanOrEqual:    template("(%s <= %s)", styleexpr.Number),

		styleexpr.OpMultiply: variadic("*", styleexpr.Number),
		styleexpr.OpAdd:      variadic("+", styleexpr.Number),
		styleexpr.OpDivide:   template("(%s / %s)", styleexpr.Number),
		styleexpr.OpSubtract: template("(%s - %s)", styleexpr.Number),
		styleexpr.OpClamp:    template("clamp(%s, %s, %s)", styleexpr.Number),
		styleexpr.OpMod:      template("mod(%s, %s)", styleexpr.Number),
		styleexpr.OpPow:      template("pow(%s, %s)", styleexpr.Number),
		styleexpr.OpAbs:      template("abs(%s)", styleexpr.Number),
		styleexpr.OpFloor:    template("floor(%s)", styleexpr.Number),
		styleexpr.OpCeil:     template("ceil(%s)", styleexpr.Number),
		styleexpr.OpRound:    template("floor(%s + 0.5)", styleexpr.Number),
		styleexpr.OpSin:      template("sin(%s)", styleexpr.Number),
		styleexpr.OpCos:      template("cos(%s)", styleexpr.Number),
		styleexpr.OpSqrt:     template("sqrt(%s)", styleexpr.Number),
		styleexpr.OpAtan:     compileAtan,

		styleexpr.OpCase:        compileCase,
		styleexpr.OpMatch:       compileMatch,
		styleexpr.OpInterpolate: compileInterpolate,
		styleexpr.OpIn:          compileIn,
		styleexpr.OpBand:        compileBand,
		styleexpr.OpPalette:     compilePalette,
	}
}

// Compile compiles the expression into a GLSL sub-expression producing
// a value of the returnType kind, accumulating referenced properties,
// variables, helper functions and palette textures on the context.
//
// GLSL has no exceptions, so everything that could fail does so here,
// at compile time; the generated source is always valid at draw time.
// The runtime assertion operators (number, string, coalesce) have no
// shader equivalent and are rejected, as are concat and id.
func Compile(e styleexpr.Expr, returnType styleexpr.Kind, cc *CompilationContext) (string, error) {
	if !styleexpr.Overlaps(returnType, e.ResultKind()) {
		return "", fmt.Errorf("%w: wanted %s, expression produces %s",
			styleexpr.ErrTypeMismatch, returnType, e.ResultKind())
	}

	switch v := e.(type) {
	case *styleexpr.Literal:
		return compileLiteral(v, returnType, cc)
	case *styleexpr.Call:
		compile, ok := compilers[v.Operator]
		if !ok {
			return "", fmt.Errorf("%w: %s", styleexpr.ErrUnsupportedOperator, v.Operator)
		}
		return compile(v, cc)
	default:
		return "", fmt.Errorf("%w: unknown expression node %T", styleexpr.ErrInvalidExpression, e)
	}
}

// compileLiteral formats a literal to GLSL literal syntax. The
// literal's kind mask may satisfy several kinds; the requested kind is
// tested in priority order and the first match decides the
// representation.
func compileLiteral(l *styleexpr.Literal, returnType styleexpr.Kind, cc *CompilationContext) (string, error) {
	kind := returnType & l.ResultKind()
	switch {
	case styleexpr.Overlaps(kind, styleexpr.Number):
		if n, ok := l.Value.(float64); ok {
			return numberToGLSL(n), nil
		}
	case styleexpr.Overlaps(kind, styleexpr.Boolean):
		if b, ok := l.Value.(bool); ok {
			if b {
				return "true", nil
			}
			return "false", nil
		}
	case styleexpr.Overlaps(kind, styleexpr.String):
		if s, ok := l.Value.(string); ok {
			return cc.stringToGLSL(s), nil
		}
	case styleexpr.Overlaps(kind, styleexpr.Color):
		switch v := l.Value.(type) {
		case string:
			rgba, err := colors.FromString(v)
			if err != nil {
				return "", fmt.Errorf("%w: %s", styleexpr.ErrInvalidExpression, err)
			}
			return colorToGLSL(rgba)
		case []float64:
			return colorToGLSL(v)
		}
	case styleexpr.Overlaps(kind, styleexpr.NumberArray):
		if a, ok := l.Value.([]float64); ok {
			return arrayToGLSL(a)
		}
	}
	return "", fmt.Errorf("%w: no GLSL form for literal %v as %s",
		styleexpr.ErrTypeMismatch, l.Value, returnType)
}

// compileArgs compiles all arguments of the call against the kind.
func compileArgs(call *styleexpr.Call, kind styleexpr.Kind, cc *CompilationContext) ([]string, error) {
	args := make([]string, len(call.Args))
	for i, a := range call.Args {
		compiled, err := Compile(a, kind, cc)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, call.Operator, err)
		}
		args[i] = compiled
	}
	return args, nil
}

// template builds a compiler that interpolates the compiled arguments
// into a fmt format string. Covers every operator with a direct GLSL
// counterpart.
func template(format string, argKind styleexpr.Kind) compilerFunc {
	return func(call *styleexpr.Call, cc *CompilationContext) (string, error) {
		args, err := compileArgs(call, argKind, cc)
		if err != nil {
			return "", err
		}
		anyArgs := make([]any, len(args))
		for i, a := range args {
			anyArgs[i] = a
		}
		return fmt.Sprintf(format, anyArgs...), nil
	}
}

// variadic builds a compiler joining all compiled arguments with an
// infix operator: add becomes (a + b + c).
func variadic(operator string, argKind styleexpr.Kind) compilerFunc {
	return func(call *styleexpr.Call, cc *CompilationContext) (string, error) {
		args, err := compileArgs(call, argKind, cc)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(args, " "+operator+" ") + ")", nil
	}
}

// compileAtan covers both the one-argument and two-argument forms;
// GLSL's atan accepts both.
func compileAtan(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	args, err := compileArgs(call, styleexpr.Number, cc)
	if err != nil {
		return "", err
	}
	return "atan(" + strings.Join(args, ", ") + ")", nil
}

func (cc *CompilationContext) propertyName(name string) string {
	if cc.InFragmentShader {
		return "v_prop_" + name
	}
	return "a_prop_" + name
}

func uniformName(name string) string {
	return "u_var_" + name
}

// compileGet registers the property on first occurrence and emits the
// deterministic attribute (or varying) name. Repeated access to the
// same property registers exactly one entry.
func compileGet(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	name, err := literalString(call, 0)
	if err != nil {
		return "", err
	}
	cc.Properties[name] = Property{Name: name, Kind: call.ResultKind()}
	return cc.propertyName(name), nil
}

func compileVar(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	name, err := literalString(call, 0)
	if err != nil {
		return "", err
	}
	cc.Variables[name] = Variable{Name: name, Kind: call.ResultKind()}
	return uniformName(name), nil
}

// compileGeometryType registers a derived pseudo-property carrying a
// host-side evaluator: the geometry type is computed on the host and
// handed to the shader as an encoded string attribute.
func compileGeometryType(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	const name = "geometryType"
	if _, ok := cc.Properties[name]; !ok {
		strs := cc.Strings
		cc.Properties[name] = Property{
			Name: name,
			Kind: styleexpr.String,
			Evaluator: func(ctx *styleexpr.EvaluationContext) (any, error) {
				return strs.Float(ctx.GeometryType), nil
			},
		}
	}
	return cc.propertyName(name), nil
}

// compileCase builds a nested ternary chain from the fallback
// backwards, so the first true condition (in source order) decides the
// value, mirroring the cpu backend without branch instructions.
func compileCase(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	n := len(call.Args)
	expr, err := Compile(call.Args[n-1], call.ResultKind(), cc)
	if err != nil {
		return "", fmt.Errorf("fallback of case: %w", err)
	}
	for i := n - 3; i >= 0; i -= 2 {
		condition, err := Compile(call.Args[i], styleexpr.Boolean, cc)
		if err != nil {
			return "", fmt.Errorf("condition %d of case: %w", i/2, err)
		}
		output, err := Compile(call.Args[i+1], call.ResultKind(), cc)
		if err != nil {
			return "", fmt.Errorf("result %d of case: %w", i/2, err)
		}
		expr = fmt.Sprintf("(%s ? %s : %s)", condition, output, expr)
	}
	return expr, nil
}

// compileMatch compiles the probe once and reuses the sub-expression
// in each equality test of a right-to-left ternary chain.
func compileMatch(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	n := len(call.Args)
	probe, err := Compile(call.Args[0], call.Args[0].ResultKind(), cc)
	if err != nil {
		return "", fmt.Errorf("input of match: %w", err)
	}
	expr, err := Compile(call.Args[n-1], call.ResultKind(), cc)
	if err != nil {
		return "", fmt.Errorf("fallback of match: %w", err)
	}
	for i := n - 3; i >= 1; i -= 2 {
		value, err := Compile(call.Args[i], call.Args[0].ResultKind(), cc)
		if err != nil {
			return "", fmt.Errorf("match value %d: %w", (i-1)/2, err)
		}
		output, err := Compile(call.Args[i+1], call.ResultKind(), cc)
		if err != nil {
			return "", fmt.Errorf("match result %d: %w", (i-1)/2, err)
		}
		expr = fmt.Sprintf("(%s == %s ? %s : %s)", probe, value, output, expr)
	}
	return expr, nil
}

// compileInterpolate builds a left fold of mix() calls, one per stop
// segment, each with a ratio clamped to its segment. The exponential
// ratio mirrors the cpu backend; a literal base of 1 uses the linear
// form, since the exponential form divides by pow(1, d) - 1 = 0.
func compileInterpolate(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	baseLit, ok := call.Args[0].(*styleexpr.Literal)
	if !ok {
		return "", fmt.Errorf("%w: interpolate base must be a number literal",
			styleexpr.ErrInvalidExpression)
	}
	base, ok := baseLit.Value.(float64)
	if !ok {
		return "", fmt.Errorf("%w: interpolate base must be a number literal, got %T",
			styleexpr.ErrInvalidExpression, baseLit.Value)
	}
	value, err := Compile(call.Args[1], styleexpr.Number, cc)
	if err != nil {
		return "", fmt.Errorf("input of interpolate: %w", err)
	}

	outputKind := styleexpr.Number
	if styleexpr.Overlaps(call.ResultKind(), styleexpr.Color) {
		outputKind = styleexpr.Color
	}

	n := len(call.Args)
	expr, err := Compile(call.Args[3], outputKind, cc)
	if err != nil {
		return "", fmt.Errorf("output 0 of interpolate: %w", err)
	}
	for i := 2; i < n-2; i += 2 {
		stop1, err := Compile(call.Args[i], styleexpr.Number, cc)
		if err != nil {
			return "", fmt.Errorf("stop %d of interpolate: %w", (i-2)/2, err)
		}
		stop2, err := Compile(call.Args[i+2], styleexpr.Number, cc)
		if err != nil {
			return "", fmt.Errorf("stop %d of interpolate: %w", i/2, err)
		}
		output2, err := Compile(call.Args[i+3], outputKind, cc)
		if err != nil {
			return "", fmt.Errorf("output %d of interpolate: %w", i/2, err)
		}

		var ratio string
		if base == 1 {
			ratio = fmt.Sprintf("(%s - %s) / (%s - %s)", value, stop1, stop2, stop1)
		} else {
			b := numberToGLSL(base)
			ratio = fmt.Sprintf("(pow(%s, (%s - %s)) - 1.0) / (pow(%s, (%s - %s)) - 1.0)",
				b, value, stop1, b, stop2, stop1)
		}
		expr = fmt.Sprintf("mix(%s, %s, clamp(%s, 0.0, 1.0))", expr, output2, ratio)
	}
	return expr, nil
}

// compileIn generates a small reusable scan function for the haystack
// and emits a call to it, so a recurring membership test costs one
// function instead of repeated inline chains. Identical haystacks
// reuse the already generated function.
func compileIn(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	needleKind := call.Args[0].ResultKind() & (styleexpr.Number | styleexpr.String)
	if needleKind == styleexpr.None {
		return "", fmt.Errorf("%w: in needle must be a number or string, got %s",
			styleexpr.ErrTypeMismatch, call.Args[0].ResultKind())
	}
	needle, err := Compile(call.Args[0], needleKind, cc)
	if err != nil {
		return "", fmt.Errorf("needle of in: %w", err)
	}
	haystack := make([]string, len(call.Args)-1)
	for i, a := range call.Args[1:] {
		compiled, err := Compile(a, needleKind, cc)
		if err != nil {
			return "", fmt.Errorf("haystack value %d of in: %w", i, err)
		}
		haystack[i] = compiled
	}

	// Reuse an existing function whose body matches this haystack.
	for _, name := range cc.functionNames {
		if cc.Functions[name] == inFunctionBody(name, haystack) {
			return fmt.Sprintf("%s(%s)", name, needle), nil
		}
	}
	name := fmt.Sprintf("operator_in_%d", len(cc.Functions))
	cc.addFunction(name, inFunctionBody(name, haystack))
	return fmt.Sprintf("%s(%s)", name, needle), nil
}

func inFunctionBody(name string, haystack []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "bool %s(float inputValue) {\n", name)
	for _, h := range haystack {
		fmt.Fprintf(&sb, "  if (inputValue == %s) { return true; }\n", h)
	}
	sb.WriteString("  return false;\n}")
	return sb.String()
}

// compileBand generates one shared band reading function per style and
// emits a call to it. The function branches over the band index to
// read the right texture and channel; its size is proportional to the
// configured band count. Bands are packed four per texture.
func compileBand(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	const name = "getBandValue"
	if _, ok := cc.Functions[name]; !ok {
		var sb strings.Builder
		fmt.Fprintf(&sb, "float %s(float band, float xOffset, float yOffset) {\n", name)
		sb.WriteString("  float dx = xOffset / u_texturePixelWidth;\n")
		sb.WriteString("  float dy = yOffset / u_texturePixelHeight;\n")
		for band := 0; band < cc.BandCount; band++ {
			texture := band / 4
			channel := band % 4
			fmt.Fprintf(&sb, "  if (band == %s) { return texture2D(u_tileTextures[%d], v_textureCoord + vec2(dx, dy))[%d]; }\n",
				numberToGLSL(float64(band+1)), texture, channel)
		}
		sb.WriteString("  return 0.0;\n}")
		cc.addFunction(name, sb.String())
	}

	args, err := compileArgs(call, styleexpr.Number, cc)
	if err != nil {
		return "", err
	}
	xOffset, yOffset := "0.0", "0.0"
	if len(args) > 1 {
		xOffset = args[1]
	}
	if len(args) > 2 {
		yOffset = args[2]
	}
	return fmt.Sprintf("%s(%s, %s, %s)", name, args[0], xOffset, yOffset), nil
}

// compilePalette allocates the next palette texture slot, stores the
// raw RGBA bytes for the host to upload, and emits the sampling
// expression with the slot index baked in.
func compilePalette(call *styleexpr.Call, cc *CompilationContext) (string, error) {
	index, err := Compile(call.Args[0], styleexpr.Number, cc)
	if err != nil {
		return "", fmt.Errorf("index of palette: %w", err)
	}
	lit, ok := call.Args[1].(*styleexpr.Literal)
	if !ok {
		return "", fmt.Errorf("%w: palette colors must be a literal array",
			styleexpr.ErrInvalidExpression)
	}
	entries, ok := lit.Value.([]any)
	if !ok {
		return "", fmt.Errorf("%w: palette colors must be a literal array, got %T",
			styleexpr.ErrInvalidExpression, lit.Value)
	}

	data := make([]byte, 0, len(entries)*4)
	for i, entry := range entries {
		var rgba []float64
		switch v := entry.(type) {
		case string:
			rgba, err = colors.FromString(v)
			if err != nil {
				return "", fmt.Errorf("%w: palette color %d: %s", styleexpr.ErrInvalidExpression, i, err)
			}
		case []float64:
			rgba = v
		default:
			return "", fmt.Errorf("%w: palette color %d must be a string or color array, got %T",
				styleexpr.ErrInvalidExpression, i, entry)
		}
		if len(rgba) < 3 {
			return "", fmt.Errorf("%w: palette color %d needs at least 3 components",
				styleexpr.ErrInvalidExpression, i)
		}
		a := 1.0
		if len(rgba) > 3 {
			a = rgba[3]
		}
		data = append(data,
			byte(math.Round(rgba[0])),
			byte(math.Round(rgba[1])),
			byte(math.Round(rgba[2])),
			byte(math.Round(a*255)))
	}

	textureName := fmt.Sprintf("u_paletteTextures[%d]", len(cc.PaletteTextures))
	cc.PaletteTextures = append(cc.PaletteTextures, PaletteTexture{Name: textureName, Data: data})
	return fmt.Sprintf("texture2D(%s, vec2((%s + 0.5) / %s, 0.5))",
		textureName, index, numberToGLSL(float64(len(entries)))), nil
}

// literalString extracts a string literal argument at compile time.
func literalString(call *styleexpr.Call, i int) (string, error) {
	if i >= len(call.Args) {
		return "", fmt.Errorf("%w: %s is missing argument %d",
			styleexpr.ErrInvalidExpression, call.Operator, i)
	}
	lit, ok := call.Args[i].(*styleexpr.Literal)
	if !ok {
		return "", fmt.Errorf("%w: argument %d of %s must be a literal",
			styleexpr.ErrInvalidExpression, i, call.Operator)
	}
	s, ok := lit.Value.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d of %s must be a string, got %T",
			styleexpr.ErrInvalidExpression, i, call.Operator, lit.Value)
	}
	return s, nil
}
