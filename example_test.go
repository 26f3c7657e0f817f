package styleexpr_test

import (
	"fmt"

	"github.com/vebgen/styleexpr"
	"github.com/vebgen/styleexpr/cpu"
	"github.com/vebgen/styleexpr/gpu"
)

// Example showing host-side evaluation of a style expression with the
// cpu backend.
func Example() {

	// Step 1: Build the expression tree:
	// lanes > 4 ? "wide" : "narrow"
	e := styleexpr.NewCall(styleexpr.String, styleexpr.OpCase,
		styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpGreaterThan,
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpGet,
				styleexpr.NewLiteral(styleexpr.String, "lanes")),
			styleexpr.NewLiteral(styleexpr.Number, 4.0)),
		styleexpr.NewLiteral(styleexpr.String, "wide"),
		styleexpr.NewLiteral(styleexpr.String, "narrow"))

	// Step 2: Compile it to an evaluator
	eval, err := cpu.Compile(e, styleexpr.String)
	if err != nil {
		fmt.Println(err)
		return
	}

	// Step 3: Evaluate against a feature
	ctx := styleexpr.NewEvaluationContext()
	ctx.Properties = map[string]any{"lanes": 6.0}

	v, err := eval(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(v)
	// Output: wide
}

// Example showing the same expression language compiled to a GLSL
// fragment with the gpu backend.
func Example_gpu() {

	// A color ramp over a feature property
	e := styleexpr.NewCall(styleexpr.Color, styleexpr.OpInterpolate,
		styleexpr.NewLiteral(styleexpr.Number, 1.0),
		styleexpr.NewCall(styleexpr.Number, styleexpr.OpGet,
			styleexpr.NewLiteral(styleexpr.String, "depth")),
		styleexpr.NewLiteral(styleexpr.Number, 0.0),
		styleexpr.NewLiteral(styleexpr.Color, "blue"),
		styleexpr.NewLiteral(styleexpr.Number, 100.0),
		styleexpr.NewLiteral(styleexpr.Color, "red"))

	cc := gpu.NewCompilationContext()
	glsl, err := gpu.Compile(e, styleexpr.Color, cc)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(glsl)
	fmt.Println("properties:", len(cc.Properties))
	// Output:
	// mix(vec4(0.0, 0.0, 1.0, 1.0), vec4(1.0, 0.0, 0.0, 1.0), clamp((a_prop_depth - 0.0) / (100.0 - 0.0), 0.0, 1.0))
	// properties: 1
}

// Example showing the tree rendering of an expression, useful when
// debugging why a style produces unexpected values.
func ExampleTree() {
	e := styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpAll,
		styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpGreaterThan,
			styleexpr.NewCall(styleexpr.Number, styleexpr.OpGet,
				styleexpr.NewLiteral(styleexpr.String, "lanes")),
			styleexpr.NewLiteral(styleexpr.Number, 2.0)),
		styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpNot,
			styleexpr.NewCall(styleexpr.Boolean, styleexpr.OpGet,
				styleexpr.NewLiteral(styleexpr.String, "tunnel"))))

	fmt.Println(styleexpr.Tree(e))
	// Output:
	// all → boolean
	// ├── > → boolean
	// │   ├── get → number
	// │   │   └── lanes
	// │   └── 2
	// └── ! → boolean
	//     └── get → boolean
	//         └── tunnel
}
