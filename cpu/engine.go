package cpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vebgen/styleexpr"
)

// ErrExpressionNotFound is returned by Evaluate when no expression
// with the given id has been added.
var ErrExpressionNotFound = errors.New("expression not found")

// Engine holds compiled expressions keyed by id, so that a style's
// expressions are compiled once and evaluated once per feature per
// frame. Adding and evaluating are safe for concurrent use; the
// EvaluationContext passed to Evaluate is not shared by the engine.
type Engine struct {
	mu         sync.RWMutex
	evaluators map[string]styleexpr.Evaluator
}

// NewEngine initializes an empty engine.
func NewEngine() *Engine {
	return &Engine{
		evaluators: make(map[string]styleexpr.Evaluator),
	}
}

// Add compiles the expression and stores it under the id, ready to be
// evaluated. A compilation error means the style definition is broken;
// nothing is stored in that case.
func (e *Engine) Add(id string, expr styleexpr.Expr, returnType styleexpr.Kind) error {
	if id == "" {
		return fmt.Errorf("required expression id")
	}
	ev, err := Compile(expr, returnType)
	if err != nil {
		return fmt.Errorf("compiling expression %s: %w", id, err)
	}
	e.mu.Lock()
	e.evaluators[id] = ev
	e.mu.Unlock()
	return nil
}

// Evaluate invokes the compiled expression with the id against the
// evaluation context.
func (e *Engine) Evaluate(id string, ctx *styleexpr.EvaluationContext) (any, error) {
	e.mu.RLock()
	ev, ok := e.evaluators[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExpressionNotFound, id)
	}
	return ev(ctx)
}

// Count is the number of compiled expressions in the engine.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.evaluators)
}
