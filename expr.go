package styleexpr

import (
	"fmt"
	"strings"
)

// Operators understood by the compilers. The set is closed: the parser
// that produces the expression tree only emits these, and both backends
// fail compilation on anything else.
const (
	OpGet          = "get"
	OpVar          = "var"
	OpConcat       = "concat"
	OpGeometryType = "geometry-type"
	OpResolution   = "resolution"
	OpID           = "id"

	OpAny = "any"
	OpAll = "all"
	OpNot = "!"

	OpEqual              = "=="
	OpNotEqual           = "!="
	OpGreaterThan        = ">"
	OpGreaterThanOrEqual = ">="
	OpLessThan           = "<"
	OpLessThanOrEqual    = "<="

	OpMultiply = "*"
	OpDivide   = "/"
	OpAdd      = "+"
	OpSubtract = "-"
	OpClamp    = "clamp"
	OpMod      = "%"
	OpPow      = "^"
	OpAbs      = "abs"
	OpFloor    = "floor"
	OpCeil     = "ceil"
	OpRound    = "round"
	OpSin      = "sin"
	OpCos      = "cos"
	OpAtan     = "atan"
	OpSqrt     = "sqrt"

	OpMatch       = "match"
	OpCase        = "case"
	OpIn          = "in"
	OpNumber      = "number"
	OpString      = "string"
	OpCoalesce    = "coalesce"
	OpInterpolate = "interpolate"

	OpBand    = "band"
	OpPalette = "palette"
)

// Expr is a node in a typed expression tree. Trees are produced by an
// external parser/type-checker and consumed by the cpu and gpu
// compilers. A tree must not be modified once handed to a compiler.
type Expr interface {
	// ResultKind is the kind (or kinds) of value the expression
	// produces, as determined by the type-checker. The compilers
	// trust this tag.
	ResultKind() Kind
}

// Literal is a constant value in an expression tree.
type Literal struct {
	kind Kind

	// The constant value: float64, string, bool or []float64.
	Value any
}

// NewLiteral returns a literal expression with the value and kind.
func NewLiteral(kind Kind, value any) *Literal {
	return &Literal{kind: kind, Value: value}
}

func (l *Literal) ResultKind() Kind { return l.kind }

// Call is an operator applied to an ordered list of argument
// expressions. Argument arity is validated by the parser; the compilers
// do not re-check it.
type Call struct {
	kind Kind

	// One of the Op constants.
	Operator string

	// The arguments, in source order.
	Args []Expr
}

// NewCall returns a call expression for the operator with the result
// kind and arguments.
func NewCall(kind Kind, operator string, args ...Expr) *Call {
	return &Call{kind: kind, Operator: operator, Args: args}
}

func (c *Call) ResultKind() Kind { return c.kind }

// Tree returns a tree representation of the expression using
// box-drawing characters to show the argument structure.
//
// Example output:
//
//	interpolate → color
//	├── 1
//	├── get → number
//	│   └── elevation
//	└── ...
func Tree(e Expr) string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(nodeLabel(e))
	sb.WriteString("\n")
	buildTree(e, &sb, "", 0)
	return sb.String()
}

func nodeLabel(e Expr) string {
	switch v := e.(type) {
	case *Literal:
		return fmt.Sprintf("%v", v.Value)
	case *Call:
		return fmt.Sprintf("%s → %s", v.Operator, v.ResultKind())
	default:
		return fmt.Sprintf("%T", e)
	}
}

// buildTree recursively renders call arguments with proper indentation
// and tree characters (├──, └──, │).
// depth limits recursion to a maximum of 20 levels.
func buildTree(e Expr, sb *strings.Builder, prefix string, depth int) {
	if depth >= 20 {
		return
	}
	call, ok := e.(*Call)
	if !ok {
		return
	}
	for i, arg := range call.Args {
		isLast := i == len(call.Args)-1
		var connector, childPrefix string
		if isLast {
			connector = "└── "
			childPrefix = "    "
		} else {
			connector = "├── "
			childPrefix = "│   "
		}
		sb.WriteString(prefix)
		sb.WriteString(connector)
		sb.WriteString(nodeLabel(arg))
		sb.WriteString("\n")
		buildTree(arg, sb, prefix+childPrefix, depth+1)
	}
}
