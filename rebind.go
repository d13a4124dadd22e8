// Package rebind maps an application's relational data onto a
// relationship-based access control (ReBAC) store.
//
// # Overview
//
// rebind has two halves. The type graph compiles a declarative schema of
// object types, relations, and permissions into a validated in-memory
// graph and a canonical schema text that can be published to a
// SpiceDB-compatible store. The synchronization engine (package gormsync)
// observes mutations to bound application records and derives the minimal
// set of tuple writes and deletes needed to keep the store consistent,
// deferred until the surrounding transaction commits.
//
// # Core Concepts
//
// Objects represent typed resources. Both "users" and "documents" are
// objects - there is no special subject type.
//
//	user := rebind.Object{Type: "user", ID: "123"}
//	doc := rebind.Object{Type: "document", ID: "456"}
//
// A Tuple is one fact in the authorization store: subject holds relation
// on object. Subjects may carry a relation suffix ("group:12#member"),
// meaning the set of subjects holding that relation on that object.
//
// # Basic Usage
//
//	graph, err := rebind.NewTypeGraph(configs)
//	if err != nil { ... }            // schema errors abort construction
//	text := graph.CompileSchema()     // deterministic, byte-identical per build
//	token, err := adapter.PublishSchema(ctx, text)
//
// # Permission Checks
//
// The Evaluator is a request-scoped facade over the adapter's check and
// lookup calls with in-request caching:
//
//	ev := rebind.NewEvaluator(adapter, graph, user)
//	ok, err := ev.Can(ctx, "view", doc)
//
// TenantEvaluator wraps an Evaluator with a hard cross-tenant isolation
// boundary that denies without reaching the store.
package rebind

import "strings"

// ObjectType represents the type of an object.
type ObjectType string

// String returns the string representation of the object type.
func (ot ObjectType) String() string {
	return string(ot)
}

// Object represents a typed resource identifier.
// Objects are value types and safe to copy. The canonical string format
// is "type:id", which is also the wire format used in tuples.
type Object struct {
	Type ObjectType
	ID   string
}

// String returns the canonical reference "type:id".
func (o Object) String() string {
	return o.Type.String() + ":" + o.ID
}

// RebacObject returns the object itself, implementing ObjectLike.
func (o Object) RebacObject() Object {
	return o
}

// RebacSubject returns the object itself, implementing SubjectLike.
// Subjects are also objects - this allows Object to be used in either
// position of a check.
func (o Object) RebacSubject() Object {
	return o
}

// ParseObject parses a "type:id" reference into an Object.
// Returns false if the reference has no type/id separator.
func ParseObject(ref string) (Object, bool) {
	typ, id, ok := strings.Cut(ref, ":")
	if !ok || typ == "" || id == "" {
		return Object{}, false
	}
	return Object{Type: ObjectType(typ), ID: id}, true
}

// ObjectLike defines an interface for types that can be converted to
// Objects. Domain models implement it so they can be passed directly to
// permission checks without importing the domain layer into rebind.
//
// Example:
//
//	type Document struct{ ID uint }
//	func (d Document) RebacObject() rebind.Object {
//	    return rebind.Object{Type: "document", ID: fmt.Sprint(d.ID)}
//	}
type ObjectLike interface {
	RebacObject() Object
}

// SubjectLike defines an interface for types that can be used as the
// subject of a check - the "who" in "who holds what relation on what".
//
// Note: Object implements both SubjectLike and ObjectLike, allowing
// rebind.Object values to be used directly in either position.
type SubjectLike interface {
	RebacSubject() Object
}

// TenantScoped is implemented by objects that belong to a tenant.
// RebacTenant returns the tenant identifier, or "" for tenant-agnostic
// objects, which pass through tenant isolation unchecked.
type TenantScoped interface {
	RebacTenant() string
}
