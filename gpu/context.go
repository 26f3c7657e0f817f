// Package gpu compiles typed expressions into GLSL source fragments.
//
// Unlike the cpu backend, compilation here has side effects: sibling
// expressions within one style must agree on attribute and uniform
// names, share generated helper functions and allocate from a single
// palette texture index space. All of that shared state accumulates in
// a CompilationContext, one instance per compiled style, consumed by
// the surrounding shader assembler and then discarded.
package gpu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/vebgen/styleexpr"
)

// Property is a feature property referenced by a compiled expression.
// The shader assembler must declare a matching attribute (vertex
// stage) or varying (fragment stage) and populate it per feature.
type Property struct {
	Name string
	Kind styleexpr.Kind

	// For derived pseudo-properties (geometry-type), the host-side
	// evaluator that produces the attribute value from a feature.
	// Nil for plain properties.
	Evaluator styleexpr.Evaluator
}

// Variable is a style variable referenced by a compiled expression,
// to be bound as a uniform.
type Variable struct {
	Name string
	Kind styleexpr.Kind
}

// PaletteTexture holds the raw RGBA bytes of a palette allocated by a
// "palette" operator. The index of the texture in the compilation
// context is embedded in the generated sampling expression; uploading
// the bytes is the host's job.
type PaletteTexture struct {
	Name string
	Data []byte
}

// CompilationContext accumulates everything the shader assembler must
// declare for the GLSL fragments compiled against it: referenced
// properties and variables, generated helper functions (a dedup set
// keyed by generated name) and palette textures. One instance per
// compiled style.
type CompilationContext struct {
	// InFragmentShader selects varying (v_prop_) over attribute
	// (a_prop_) naming for property access.
	InFragmentShader bool

	// BandCount is the number of raster bands available to the "band"
	// operator; it determines the size of the generated band reading
	// function.
	BandCount int

	Properties      map[string]Property
	Variables       map[string]Variable
	Functions       map[string]string
	PaletteTextures []PaletteTexture

	// Strings encodes string literals to floats. Inject a shared
	// table with WithStringTable when several styles must agree on
	// the encoding.
	Strings *StringTable

	// functionNames preserves generation order so FunctionSource is
	// deterministic.
	functionNames []string
}

// Option configures a CompilationContext.
type Option func(*CompilationContext)

// ForFragmentShader selects fragment-stage naming (v_prop_ varyings)
// for property access. Default: vertex stage.
func ForFragmentShader(b bool) Option {
	return func(cc *CompilationContext) {
		cc.InFragmentShader = b
	}
}

// WithBandCount sets the number of raster bands available to the
// "band" operator.
func WithBandCount(n int) Option {
	return func(cc *CompilationContext) {
		cc.BandCount = n
	}
}

// WithStringTable injects a shared string table. Without this option
// the context gets its own table, which is only correct if nothing
// outside the style compares encoded strings.
func WithStringTable(t *StringTable) Option {
	return func(cc *CompilationContext) {
		cc.Strings = t
	}
}

// NewCompilationContext initializes a compilation context for one
// style.
func NewCompilationContext(opts ...Option) *CompilationContext {
	cc := &CompilationContext{
		Properties: make(map[string]Property),
		Variables:  make(map[string]Variable),
		Functions:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(cc)
	}
	if cc.Strings == nil {
		cc.Strings = NewStringTable()
	}
	return cc
}

// addFunction registers a generated helper function under the name,
// preserving generation order. Registering the same name twice keeps
// the first body.
func (cc *CompilationContext) addFunction(name, body string) {
	if _, ok := cc.Functions[name]; ok {
		return
	}
	cc.Functions[name] = body
	cc.functionNames = append(cc.functionNames, name)
}

// FunctionSource returns the source of all generated helper functions
// in generation order, ready to be inserted before main().
func (cc *CompilationContext) FunctionSource() string {
	var sb strings.Builder
	for _, name := range cc.functionNames {
		sb.WriteString(cc.Functions[name])
		sb.WriteString("\n")
	}
	return sb.String()
}

// String summarizes everything accumulated in the context: the
// attributes, uniforms, helper functions and palette textures the
// shader assembler must provide.
func (cc *CompilationContext) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nSHADER COMPILATION CONTEXT\n")
	tw.AppendHeader(table.Row{"Entry", "Name", "Detail"})

	for _, name := range sortedKeys(cc.Properties) {
		p := cc.Properties[name]
		detail := p.Kind.String()
		if p.Evaluator != nil {
			detail += ", host-evaluated"
		}
		tw.AppendRow(table.Row{"property", cc.propertyName(name), detail})
	}
	for _, name := range sortedKeys(cc.Variables) {
		v := cc.Variables[name]
		tw.AppendRow(table.Row{"uniform", uniformName(name), v.Kind.String()})
	}
	for _, name := range cc.functionNames {
		lines := strings.Count(cc.Functions[name], "\n") + 1
		tw.AppendRow(table.Row{"function", name, fmt.Sprintf("%d lines", lines)})
	}
	for _, pt := range cc.PaletteTextures {
		tw.AppendRow(table.Row{"palette", pt.Name, humanize.Bytes(uint64(len(pt.Data)))})
	}

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
