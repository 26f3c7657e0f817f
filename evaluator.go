package styleexpr

import "errors"

// Evaluator is a compiled expression, ready to be invoked once per
// feature. All walking of the expression tree happens at compile time;
// an evaluator only calls the pre-built evaluators for its arguments.
//
// The returned value is one of float64, string, bool or []float64
// (colors are []float64{r, g, b, a} with rgb in 0-255 and a in 0-1).
type Evaluator func(ctx *EvaluationContext) (any, error)

var (
	// ErrTypeMismatch is returned at compile time when the requested
	// return kind does not overlap the expression's declared kind.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnsupportedOperator is returned at compile time when no
	// compiler is registered for an operator. This is a contract
	// violation by the parser, not a user error.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrInvalidExpression is returned at compile time when an
	// expression is structurally unusable, for example a "get" whose
	// name argument is not a string literal.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrAssertionFailed is returned at evaluation time when a runtime
	// value does not satisfy what an operator requires: a "number",
	// "string" or "coalesce" operator finds no matching argument, or a
	// color interpolation receives an output that is not a color. This
	// is the only error class that can occur after a successful
	// compilation.
	ErrAssertionFailed = errors.New("assertion failed")
)
