package rebind

import "errors"

// Sentinel errors for schema and configuration failures.
// These are construction-time errors: a TypeGraph is never returned in a
// partially valid state, so any of these from NewTypeGraph means no graph
// exists. Error messages name the offending type and the exact rule
// violated so misconfiguration is diagnosable without reading source.
//
// Use the Is*Err helpers (or errors.Is) to classify failures.
var (
	// ErrConfig is returned for malformed raw configuration shapes:
	// empty names, empty values, unknown YAML fields. Fatal at startup,
	// not recoverable at runtime.
	ErrConfig = errors.New("rebind: invalid configuration")

	// ErrUnknownParent is returned when a type's parents list names a
	// type that is not declared in the graph.
	ErrUnknownParent = errors.New("rebind: unknown parent type")

	// ErrParentCycle is returned when the parent graph is not a DAG.
	// Covers cycles of any length, including self-parenting.
	ErrParentCycle = errors.New("rebind: parent cycle")

	// ErrUnknownSubject is returned when a relation's subject reference
	// names a type that is not declared in the graph.
	ErrUnknownSubject = errors.New("rebind: unknown relation subject type")

	// ErrInvalidExpression is returned when a permission expression
	// references a token that is neither a relation nor a permission
	// declared on the same type.
	ErrInvalidExpression = errors.New("rebind: invalid permission expression")

	// ErrInvalidBinding is returned when a binding targets an undeclared
	// relation or uses an unknown binding kind.
	ErrInvalidBinding = errors.New("rebind: invalid binding")

	// ErrEvaluation is returned when the adapter is unreachable or fails
	// during a check or lookup. It is never silently mapped to a
	// permission decision: fail-open versus fail-closed is an explicit
	// caller choice.
	ErrEvaluation = errors.New("rebind: evaluation unavailable")
)

// IsConfigErr returns true if err is or wraps ErrConfig.
func IsConfigErr(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsUnknownParentErr returns true if err is or wraps ErrUnknownParent.
func IsUnknownParentErr(err error) bool {
	return errors.Is(err, ErrUnknownParent)
}

// IsParentCycleErr returns true if err is or wraps ErrParentCycle.
func IsParentCycleErr(err error) bool {
	return errors.Is(err, ErrParentCycle)
}

// IsUnknownSubjectErr returns true if err is or wraps ErrUnknownSubject.
func IsUnknownSubjectErr(err error) bool {
	return errors.Is(err, ErrUnknownSubject)
}

// IsInvalidExpressionErr returns true if err is or wraps ErrInvalidExpression.
func IsInvalidExpressionErr(err error) bool {
	return errors.Is(err, ErrInvalidExpression)
}

// IsInvalidBindingErr returns true if err is or wraps ErrInvalidBinding.
func IsInvalidBindingErr(err error) bool {
	return errors.Is(err, ErrInvalidBinding)
}

// IsEvaluationErr returns true if err is or wraps ErrEvaluation.
func IsEvaluationErr(err error) bool {
	return errors.Is(err, ErrEvaluation)
}
