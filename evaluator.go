package rebind

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// evalKey uniquely identifies a check within one evaluator instance.
// All fields participate: different contexts or consistency modes are
// never conflated in the cache.
type evalKey struct {
	relation    string
	object      string
	consistency Consistency
	context     string // frozen by freezeContext
}

// Evaluator is a request-scoped facade that turns (subject, relation,
// object) into adapter check and lookup calls with in-request caching.
//
// Evaluators are cheap to create and intended to live for one request.
// The cache is scoped to the instance: identical Can inputs within one
// evaluator never issue a second network call. Evaluators are not safe
// for concurrent use; create one per request/goroutine.
type Evaluator struct {
	adapter    Adapter
	graph      *TypeGraph
	subjectRef string
	defaultCtx map[string]any
	cache      map[evalKey]bool
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithDefaultContext sets caveat context values merged into every call.
// A per-call context overrides these on key collision.
func WithDefaultContext(ctx map[string]any) EvaluatorOption {
	return func(e *Evaluator) {
		e.defaultCtx = ctx
	}
}

// NewEvaluator creates an evaluator for the given subject.
func NewEvaluator(adapter Adapter, graph *TypeGraph, subject SubjectLike, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		adapter:    adapter,
		graph:      graph,
		subjectRef: subject.RebacSubject().String(),
		cache:      make(map[evalKey]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckOption configures a single Can or LookupResources call.
type CheckOption func(*CheckRequest)

// WithContext sets caveat context for this call, overriding the
// evaluator's default context on key collision.
func WithContext(ctx map[string]any) CheckOption {
	return func(req *CheckRequest) {
		req.Context = ctx
	}
}

// WithConsistency selects the read freshness mode for this call.
func WithConsistency(c Consistency) CheckOption {
	return func(req *CheckRequest) {
		req.Consistency = c
	}
}

// Can reports whether the evaluator's subject holds relation on obj.
//
// Results are cached per (relation, object, consistency, context) within
// this evaluator instance. Adapter failures are returned wrapped in
// ErrEvaluation and are not cached; mapping them to allow or deny is the
// caller's decision, never done here.
func (e *Evaluator) Can(ctx context.Context, relation string, obj ObjectLike, opts ...CheckOption) (bool, error) {
	var req CheckRequest
	for _, opt := range opts {
		opt(&req)
	}

	objectRef := obj.RebacObject().String()
	merged := mergeContext(req.Context, e.defaultCtx)
	key := evalKey{
		relation:    relation,
		object:      objectRef,
		consistency: req.Consistency,
		context:     freezeContext(merged),
	}
	if allowed, ok := e.cache[key]; ok {
		return allowed, nil
	}

	allowed, err := e.adapter.Check(ctx, e.subjectRef, relation, objectRef, CheckRequest{
		Context:     merged,
		Consistency: req.Consistency,
	})
	if err != nil {
		return false, fmt.Errorf("%w: check %s %s %s: %v", ErrEvaluation, e.subjectRef, relation, objectRef, err)
	}
	e.cache[key] = allowed
	return allowed, nil
}

// LookupResources returns the ids of all objects of the given type on
// which the subject holds relation. typeName must be declared in the
// graph. Lookup results are not cached: they are id sets, not booleans,
// and typically drive query filters evaluated once per request.
func (e *Evaluator) LookupResources(ctx context.Context, relation string, typeName string, opts ...CheckOption) ([]string, error) {
	var req CheckRequest
	for _, opt := range opts {
		opt(&req)
	}

	if _, ok := e.graph.Type(typeName); !ok {
		return nil, fmt.Errorf("%w: lookup on undeclared type %q", ErrConfig, typeName)
	}

	ids, err := e.adapter.LookupResources(ctx, e.subjectRef, relation, typeName, CheckRequest{
		Context:     mergeContext(req.Context, e.defaultCtx),
		Consistency: req.Consistency,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s %s %s: %v", ErrEvaluation, e.subjectRef, relation, typeName, err)
	}
	return ids, nil
}

// mergeContext overlays the per-call context on the default context.
// The override wins on key collision.
func mergeContext(override, defaults map[string]any) map[string]any {
	if len(override) == 0 {
		return defaults
	}
	if len(defaults) == 0 {
		return override
	}
	merged := make(map[string]any, len(defaults)+len(override))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// freezeContext renders context items sorted by key, so that equal
// contexts always produce the same cache key. Keys and values are
// quoted so that separators inside a value cannot produce the same
// encoding as a different context.
func freezeContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%q=%q;", k, fmt.Sprint(ctx[k]))
	}
	return sb.String()
}
