// Package cpu compiles typed expressions into native closures.
//
// Compilation walks the expression tree exactly once, producing a tree
// of evaluators that mirrors it. No tree walking occurs at evaluation
// time: each evaluator directly invokes the pre-built evaluators for
// its arguments, so a compiled expression can be invoked once per
// feature per frame without re-dispatching on operators.
package cpu

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vebgen/styleexpr"
	"github.com/vebgen/styleexpr/colors"
)

// Compile compiles the expression into an evaluator producing a value
// of the returnType kind. Compilation fails if the expression's
// declared kind does not overlap returnType, or if it uses an operator
// this backend does not support. The only error an evaluator itself
// can return is a failed "number", "string" or "coalesce" assertion.
func Compile(e styleexpr.Expr, returnType styleexpr.Kind) (styleexpr.Evaluator, error) {
	if !styleexpr.Overlaps(returnType, e.ResultKind()) {
		return nil, fmt.Errorf("%w: wanted %s, expression produces %s",
			styleexpr.ErrTypeMismatch, returnType, e.ResultKind())
	}

	switch v := e.(type) {
	case *styleexpr.Literal:
		return compileLiteral(v)
	case *styleexpr.Call:
		return compileCall(v)
	default:
		return nil, fmt.Errorf("%w: unknown expression node %T", styleexpr.ErrInvalidExpression, e)
	}
}

// compileLiteral returns a constant evaluator. A string literal
// declared as a color is parsed into its numeric representation here,
// at compile time, not at every evaluation.
func compileLiteral(l *styleexpr.Literal) (styleexpr.Evaluator, error) {
	value := l.Value
	if s, ok := value.(string); ok && styleexpr.Overlaps(l.ResultKind(), styleexpr.Color) {
		color, err := colors.FromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", styleexpr.ErrInvalidExpression, err)
		}
		value = color
	}
	return func(*styleexpr.EvaluationContext) (any, error) {
		return value, nil
	}, nil
}

func compileCall(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	switch call.Operator {

	case styleexpr.OpNumber, styleexpr.OpString:
		return compileAssertion(call)
	case styleexpr.OpCoalesce:
		return compileCoalesce(call)

	case styleexpr.OpGet:
		return compileAccessor(call, func(ctx *styleexpr.EvaluationContext, name string) any {
			return ctx.Properties[name]
		})
	case styleexpr.OpVar:
		return compileAccessor(call, func(ctx *styleexpr.EvaluationContext, name string) any {
			return ctx.Variables[name]
		})

	case styleexpr.OpID:
		return func(ctx *styleexpr.EvaluationContext) (any, error) {
			return ctx.FeatureID, nil
		}, nil
	case styleexpr.OpGeometryType:
		return func(ctx *styleexpr.EvaluationContext) (any, error) {
			return ctx.GeometryType, nil
		}, nil
	case styleexpr.OpResolution:
		return func(ctx *styleexpr.EvaluationContext) (any, error) {
			return ctx.Resolution, nil
		}, nil

	case styleexpr.OpConcat:
		return compileConcat(call)

	case styleexpr.OpAny, styleexpr.OpAll:
		return compileLogical(call)
	case styleexpr.OpNot:
		return compileNot(call)

	case styleexpr.OpEqual, styleexpr.OpNotEqual, styleexpr.OpGreaterThan,
		styleexpr.OpGreaterThanOrEqual, styleexpr.OpLessThan, styleexpr.OpLessThanOrEqual:
		return compileComparison(call)

	case styleexpr.OpMultiply, styleexpr.OpAdd:
		return compileFold(call)
	case styleexpr.OpDivide, styleexpr.OpSubtract, styleexpr.OpMod, styleexpr.OpPow:
		return compileBinaryMath(call)
	case styleexpr.OpAbs, styleexpr.OpFloor, styleexpr.OpCeil, styleexpr.OpRound,
		styleexpr.OpSin, styleexpr.OpCos, styleexpr.OpSqrt:
		return compileUnaryMath(call)
	case styleexpr.OpAtan:
		if len(call.Args) == 2 {
			return compileBinaryMath(call)
		}
		return compileUnaryMath(call)
	case styleexpr.OpClamp:
		return compileClamp(call)

	case styleexpr.OpCase:
		return compileCase(call)
	case styleexpr.OpMatch:
		return compileMatch(call)
	case styleexpr.OpInterpolate:
		return compileInterpolate(call)
	case styleexpr.OpIn:
		return compileIn(call)

	default:
		// band and palette are raster operators that only exist in
		// shader form; anything else is an operator the parser should
		// never have produced.
		return nil, fmt.Errorf("%w: %s", styleexpr.ErrUnsupportedOperator, call.Operator)
	}
}

// compileArgs compiles all arguments of the call, each against the
// given kind.
func compileArgs(call *styleexpr.Call, kind styleexpr.Kind) ([]styleexpr.Evaluator, error) {
	args := make([]styleexpr.Evaluator, len(call.Args))
	for i, a := range call.Args {
		compiled, err := Compile(a, kind)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, call.Operator, err)
		}
		args[i] = compiled
	}
	return args, nil
}

// compileAssertion handles "number" and "string": the arguments are
// evaluated left to right and the first whose runtime type matches the
// assertion wins. Static typing cannot guarantee a match, so this is
// the one check that stays at evaluation time.
func compileAssertion(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Any)
	if err != nil {
		return nil, err
	}
	op := call.Operator
	wantNumber := op == styleexpr.OpNumber
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		for _, arg := range args {
			v, err := arg(ctx)
			if err != nil {
				return nil, err
			}
			if wantNumber {
				if n, ok := toNumber(v); ok {
					return n, nil
				}
			} else if s, ok := v.(string); ok {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%w: no argument of the %s operator evaluated to a %s",
			styleexpr.ErrAssertionFailed, op, op)
	}, nil
}

func compileCoalesce(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Any)
	if err != nil {
		return nil, err
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		for _, arg := range args {
			v, err := arg(ctx)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%w: all arguments of coalesce evaluated to nil",
			styleexpr.ErrAssertionFailed)
	}, nil
}

// compileAccessor captures the accessed name at compile time so that
// evaluation is a single map lookup.
func compileAccessor(call *styleexpr.Call, lookup func(*styleexpr.EvaluationContext, string) any) (styleexpr.Evaluator, error) {
	name, err := literalString(call, 0)
	if err != nil {
		return nil, err
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		return lookup(ctx, name), nil
	}, nil
}

func compileConcat(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Any)
	if err != nil {
		return nil, err
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		var sb strings.Builder
		for _, arg := range args {
			v, err := arg(ctx)
			if err != nil {
				return nil, err
			}
			sb.WriteString(toString(v))
		}
		return sb.String(), nil
	}, nil
}

// compileLogical handles "any" and "all" with left-to-right
// short-circuit evaluation.
func compileLogical(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Boolean)
	if err != nil {
		return nil, err
	}
	stopOn := call.Operator == styleexpr.OpAny // any stops on true, all stops on false
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		for _, arg := range args {
			v, err := arg(ctx)
			if err != nil {
				return nil, err
			}
			if b, ok := v.(bool); ok && b == stopOn {
				return stopOn, nil
			}
		}
		return !stopOn, nil
	}, nil
}

func compileNot(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Boolean)
	if err != nil {
		return nil, err
	}
	arg := args[0]
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		v, err := arg(ctx)
		if err != nil {
			return nil, err
		}
		b, _ := v.(bool)
		return !b, nil
	}, nil
}

func compileComparison(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Any)
	if err != nil {
		return nil, err
	}
	left, right := args[0], args[1]
	op := call.Operator
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		lv, err := left(ctx)
		if err != nil {
			return nil, err
		}
		rv, err := right(ctx)
		if err != nil {
			return nil, err
		}
		switch op {
		case styleexpr.OpEqual:
			return strictEqual(lv, rv), nil
		case styleexpr.OpNotEqual:
			return !strictEqual(lv, rv), nil
		}
		// Ordering comparisons are numeric only.
		ln, lok := toNumber(lv)
		rn, rok := toNumber(rv)
		if !lok || !rok {
			return false, nil
		}
		switch op {
		case styleexpr.OpGreaterThan:
			return ln > rn, nil
		case styleexpr.OpGreaterThanOrEqual:
			return ln >= rn, nil
		case styleexpr.OpLessThan:
			return ln < rn, nil
		default:
			return ln <= rn, nil
		}
	}, nil
}

// compileFold handles "*" and "+": all arguments folded left to right
// over the operator's identity (1 and 0 respectively).
func compileFold(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Number)
	if err != nil {
		return nil, err
	}
	multiply := call.Operator == styleexpr.OpMultiply
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		acc := 0.0
		if multiply {
			acc = 1.0
		}
		for _, arg := range args {
			n, err := evalNumber(arg, ctx)
			if err != nil {
				return nil, err
			}
			if multiply {
				acc *= n
			} else {
				acc += n
			}
		}
		return acc, nil
	}, nil
}

func compileBinaryMath(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Number)
	if err != nil {
		return nil, err
	}
	left, right := args[0], args[1]
	var f func(a, b float64) float64
	switch call.Operator {
	case styleexpr.OpDivide:
		f = func(a, b float64) float64 { return a / b }
	case styleexpr.OpSubtract:
		f = func(a, b float64) float64 { return a - b }
	case styleexpr.OpMod:
		f = math.Mod
	case styleexpr.OpPow:
		f = math.Pow
	case styleexpr.OpAtan:
		f = math.Atan2
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		a, err := evalNumber(left, ctx)
		if err != nil {
			return nil, err
		}
		b, err := evalNumber(right, ctx)
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}, nil
}

func compileUnaryMath(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Number)
	if err != nil {
		return nil, err
	}
	arg := args[0]
	var f func(float64) float64
	switch call.Operator {
	case styleexpr.OpAbs:
		f = math.Abs
	case styleexpr.OpFloor:
		f = math.Floor
	case styleexpr.OpCeil:
		f = math.Ceil
	case styleexpr.OpRound:
		f = math.Round
	case styleexpr.OpSin:
		f = math.Sin
	case styleexpr.OpCos:
		f = math.Cos
	case styleexpr.OpAtan:
		f = math.Atan
	case styleexpr.OpSqrt:
		f = math.Sqrt
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		n, err := evalNumber(arg, ctx)
		if err != nil {
			return nil, err
		}
		return f(n), nil
	}, nil
}

// compileClamp checks the bounds in a fixed order: below min wins over
// above max. This is not min/max composition.
func compileClamp(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Number)
	if err != nil {
		return nil, err
	}
	value, lo, hi := args[0], args[1], args[2]
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		v, err := evalNumber(value, ctx)
		if err != nil {
			return nil, err
		}
		min, err := evalNumber(lo, ctx)
		if err != nil {
			return nil, err
		}
		max, err := evalNumber(hi, ctx)
		if err != nil {
			return nil, err
		}
		if v < min {
			return min, nil
		}
		if v > max {
			return max, nil
		}
		return v, nil
	}, nil
}

// compileCase evaluates condition/result pairs left to right and
// returns the result of the first true condition, falling back to the
// last argument.
func compileCase(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	n := len(call.Args)
	conditions := make([]styleexpr.Evaluator, 0, n/2)
	results := make([]styleexpr.Evaluator, 0, n/2)
	for i := 0; i < n-1; i += 2 {
		c, err := Compile(call.Args[i], styleexpr.Boolean)
		if err != nil {
			return nil, fmt.Errorf("condition %d of case: %w", i/2, err)
		}
		r, err := Compile(call.Args[i+1], styleexpr.Any)
		if err != nil {
			return nil, fmt.Errorf("result %d of case: %w", i/2, err)
		}
		conditions = append(conditions, c)
		results = append(results, r)
	}
	fallback, err := Compile(call.Args[n-1], styleexpr.Any)
	if err != nil {
		return nil, fmt.Errorf("fallback of case: %w", err)
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		for i, c := range conditions {
			v, err := c(ctx)
			if err != nil {
				return nil, err
			}
			if b, ok := v.(bool); ok && b {
				return results[i](ctx)
			}
		}
		return fallback(ctx)
	}, nil
}

// compileMatch compares the probe against each match value in order
// with strict equality; the first match wins.
func compileMatch(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	n := len(call.Args)
	probe, err := Compile(call.Args[0], styleexpr.Any)
	if err != nil {
		return nil, fmt.Errorf("input of match: %w", err)
	}
	values := make([]styleexpr.Evaluator, 0, n/2)
	results := make([]styleexpr.Evaluator, 0, n/2)
	for i := 1; i < n-1; i += 2 {
		v, err := Compile(call.Args[i], styleexpr.Any)
		if err != nil {
			return nil, fmt.Errorf("match value %d: %w", (i-1)/2, err)
		}
		r, err := Compile(call.Args[i+1], styleexpr.Any)
		if err != nil {
			return nil, fmt.Errorf("match result %d: %w", (i-1)/2, err)
		}
		values = append(values, v)
		results = append(results, r)
	}
	fallback, err := Compile(call.Args[n-1], styleexpr.Any)
	if err != nil {
		return nil, fmt.Errorf("fallback of match: %w", err)
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		pv, err := probe(ctx)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			mv, err := v(ctx)
			if err != nil {
				return nil, err
			}
			if strictEqual(pv, mv) {
				return results[i](ctx)
			}
		}
		return fallback(ctx)
	}, nil
}

// compileInterpolate scans the stops in order and interpolates between
// the bracketing pair. A value at or before the first stop returns the
// first output; past the last stop, the last output. Color outputs are
// interpolated through LCH, numeric outputs directly.
func compileInterpolate(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	n := len(call.Args)
	base, err := Compile(call.Args[0], styleexpr.Number)
	if err != nil {
		return nil, fmt.Errorf("base of interpolate: %w", err)
	}
	value, err := Compile(call.Args[1], styleexpr.Number)
	if err != nil {
		return nil, fmt.Errorf("input of interpolate: %w", err)
	}
	color := styleexpr.Overlaps(call.ResultKind(), styleexpr.Color)
	outputKind := styleexpr.Number
	if color {
		outputKind = styleexpr.Color
	}
	stops := make([]styleexpr.Evaluator, 0, (n-2)/2)
	outputs := make([]styleexpr.Evaluator, 0, (n-2)/2)
	for i := 2; i < n; i += 2 {
		s, err := Compile(call.Args[i], styleexpr.Number)
		if err != nil {
			return nil, fmt.Errorf("stop %d of interpolate: %w", (i-2)/2, err)
		}
		o, err := Compile(call.Args[i+1], outputKind)
		if err != nil {
			return nil, fmt.Errorf("output %d of interpolate: %w", (i-2)/2, err)
		}
		stops = append(stops, s)
		outputs = append(outputs, o)
	}
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		b, err := evalNumber(base, ctx)
		if err != nil {
			return nil, err
		}
		v, err := evalNumber(value, ctx)
		if err != nil {
			return nil, err
		}
		prevStop := 0.0
		var prevOutput any
		for i := range stops {
			stop, err := evalNumber(stops[i], ctx)
			if err != nil {
				return nil, err
			}
			if v <= stop {
				output, err := outputs[i](ctx)
				if err != nil {
					return nil, err
				}
				if i == 0 {
					return output, nil
				}
				if color {
					c1, ok1 := prevOutput.([]float64)
					c2, ok2 := output.([]float64)
					if !ok1 || len(c1) < 3 || !ok2 || len(c2) < 3 {
						return nil, fmt.Errorf("%w: interpolate output at stop %d is not a color",
							styleexpr.ErrAssertionFailed, i)
					}
					return colors.InterpolateColor(b, v, prevStop, c1, stop, c2), nil
				}
				o1, _ := toNumber(prevOutput)
				o2, _ := toNumber(output)
				return colors.InterpolateNumber(b, v, prevStop, o1, stop, o2), nil
			}
			prevStop = stop
			prevOutput, err = outputs[i](ctx)
			if err != nil {
				return nil, err
			}
		}
		return prevOutput, nil
	}, nil
}

func compileIn(call *styleexpr.Call) (styleexpr.Evaluator, error) {
	args, err := compileArgs(call, styleexpr.Any)
	if err != nil {
		return nil, err
	}
	needle, haystack := args[0], args[1:]
	return func(ctx *styleexpr.EvaluationContext) (any, error) {
		nv, err := needle(ctx)
		if err != nil {
			return nil, err
		}
		for _, h := range haystack {
			hv, err := h(ctx)
			if err != nil {
				return nil, err
			}
			if strictEqual(nv, hv) {
				return true, nil
			}
		}
		return false, nil
	}, nil
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

// evalNumber evaluates to a float64. A non-numeric value, such as a
// missing property feeding a math operator, coerces to 0 rather than
// failing the evaluation; the comparison operators handle the same
// situation by reporting a non-match.
func evalNumber(e styleexpr.Evaluator, ctx *styleexpr.EvaluationContext) (float64, error) {
	v, err := e(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := toNumber(v)
	return n, nil
}

// toNumber normalizes the numeric types a host may put in a property
// map to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// strictEqual compares two values without coercion, except that
// numeric types are normalized first so an int property equals a
// float64 literal.
func strictEqual(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok || bok {
		return aok && bok && an == bn
	}
	return a == b
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case []float64:
		parts := make([]string, len(s))
		for i, f := range s {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		if n, ok := toNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	}
}
