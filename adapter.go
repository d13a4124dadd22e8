package rebind

import "context"

// TupleKey identifies one tuple in the authorization store.
// Object and Subject use the "type:id" reference format; Subject may
// additionally carry a "#relation" suffix for userset references.
type TupleKey struct {
	Object   string
	Relation string
	Subject  string
}

// TupleWrite is a tuple to be written, optionally carrying a caveat
// condition understood by the store.
type TupleWrite struct {
	Key       TupleKey
	Condition *TupleCondition
}

// TupleCondition names a store-side caveat and its context values.
type TupleCondition struct {
	Name    string
	Context map[string]any
}

// Consistency controls read freshness of the authorization store.
// The zero value lets the store pick its default.
type Consistency string

const (
	// ConsistencyFull requires the check to observe all preceding writes.
	ConsistencyFull Consistency = "fully_consistent"

	// ConsistencyMinimizeLatency allows the store to serve from its
	// fastest available snapshot.
	ConsistencyMinimizeLatency Consistency = "minimize_latency"
)

// AtLeastAsFresh returns a consistency mode pinned to a version token
// previously returned by the store (for example from PublishSchema).
func AtLeastAsFresh(token string) Consistency {
	return Consistency(token)
}

// CheckRequest carries the optional parameters of a check or lookup.
type CheckRequest struct {
	// Context passes caveat context values through to the store.
	Context map[string]any

	// Consistency selects the read freshness mode. Empty means the
	// store default.
	Consistency Consistency
}

// Adapter is the contract to the external authorization store.
// The store itself (check/lookup evaluation, relation-rewrite algebra)
// is a black box; rebind only produces schema text and tuple operations
// for it and consumes booleans and id sequences from it.
//
// All methods are idempotent where the store allows it: WriteTuples has
// touch (upsert) semantics and DeleteTuples ignores missing tuples.
// Adapter errors are returned as-is; rebind never retries internally and
// never maps an evaluation error to a permission decision.
type Adapter interface {
	// PublishSchema applies compiled schema text and returns an opaque
	// version token.
	PublishSchema(ctx context.Context, schema string) (string, error)

	// WriteTuples upserts the given tuples. A no-op on empty input.
	WriteTuples(ctx context.Context, tuples []TupleWrite) error

	// DeleteTuples removes the given tuples. Deleting a tuple that does
	// not exist is not an error. A no-op on empty input.
	DeleteTuples(ctx context.Context, keys []TupleKey) error

	// Check reports whether subject holds relation on object.
	Check(ctx context.Context, subject, relation, object string, req CheckRequest) (bool, error)

	// LookupResources returns the ids of all resources of resourceType
	// on which subject holds relation.
	LookupResources(ctx context.Context, subject, relation, resourceType string, req CheckRequest) ([]string, error)
}
