package styleexpr

// EvaluationContext carries the per-feature state an evaluator reads.
// One context is typically created per rendering session and mutated
// for each feature: the maps are swapped in, the scalar fields set in
// place. The evaluators never modify the context.
type EvaluationContext struct {
	// Properties of the feature being evaluated, read by the "get"
	// operator. Missing keys evaluate to nil, not an error.
	Properties map[string]any

	// Style variables, read by the "var" operator.
	Variables map[string]any

	// The current map resolution, read by the "resolution" operator.
	Resolution float64

	// The id of the feature being evaluated, read by the "id"
	// operator.
	FeatureID any

	// The geometry type of the feature being evaluated
	// (e.g. "Point", "LineString", "Polygon"), read by the
	// "geometry-type" operator.
	GeometryType string
}

// NewEvaluationContext returns an evaluation context with empty
// property and variable maps.
func NewEvaluationContext() *EvaluationContext {
	return &EvaluationContext{
		Properties: map[string]any{},
		Variables:  map[string]any{},
	}
}
