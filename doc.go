// Package styleexpr compiles typed map-styling expressions for two
// very different execution targets.
//
// An expression arrives as a typed tree (see Expr), produced by an
// external parser and type-checker. The cpu subpackage compiles the
// tree into a closure that evaluates directly against an in-memory
// feature; the gpu subpackage compiles the same tree into a fragment of
// GLSL source text, accumulating the attributes, uniforms, helper
// functions and palette textures the surrounding shader assembler must
// declare and bind.
//
// Typical use is as follows:
//
//  1. Obtain a typed expression tree from the parser
//  2. Compile it with cpu.Compile or gpu.Compile, stating the kind of
//     value you need
//  3. CPU: invoke the returned Evaluator once per feature, reusing one
//     EvaluationContext
//  4. GPU: insert the returned GLSL fragment into your shader and
//     declare everything accumulated in the CompilationContext
//
// # Expression Ownership
//
// The calling application owns the expression tree. A tree must not be
// modified during or after compilation; compiled evaluators may retain
// references to literal values in the tree.
//
// Compilation is synchronous and single-threaded. CPU evaluators are
// safe for concurrent use only if each goroutine uses its own
// EvaluationContext. A failed compilation means the style definition is
// broken and must be rejected before first render; the only error that
// can occur after a successful compilation is a runtime type assertion
// (see ErrAssertionFailed).
package styleexpr
