package rebind

import (
	"context"
	"fmt"
	"sync"
)

// FakeAdapter is an in-memory recording adapter that mimics store
// behaviour closely enough for tests: written tuples satisfy Check and
// LookupResources directly, with no relation-rewrite evaluation.
//
// It is safe for concurrent use. The zero value is not usable; create
// one with NewFakeAdapter.
type FakeAdapter struct {
	mu sync.Mutex

	// CheckErr / LookupErr, when set, are returned by Check and
	// LookupResources to exercise failure paths.
	CheckErr  error
	LookupErr error

	// ForcedChecks maps "subject relation object" to a fixed answer,
	// overriding tuple lookup. Used to prove short-circuit paths never
	// reach the adapter.
	ForcedChecks map[string]bool

	schemas       []string
	written       []TupleWrite
	deleted       []TupleKey
	checkCalls    int
	lookupCalls   int
	schemaCounter int
}

// NewFakeAdapter creates an empty recording adapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{ForcedChecks: make(map[string]bool)}
}

// PublishSchema records the schema text and returns a synthetic token.
func (f *FakeAdapter) PublishSchema(_ context.Context, schema string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas = append(f.schemas, schema)
	f.schemaCounter++
	return fmt.Sprintf("fake-schema-%d", f.schemaCounter), nil
}

// WriteTuples records the writes.
func (f *FakeAdapter) WriteTuples(_ context.Context, tuples []TupleWrite) error {
	if len(tuples) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, tuples...)
	return nil
}

// DeleteTuples records the deletes and drops matching written tuples.
func (f *FakeAdapter) DeleteTuples(_ context.Context, keys []TupleKey) error {
	if len(keys) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	for _, key := range keys {
		kept := f.written[:0]
		for _, w := range f.written {
			if w.Key != key {
				kept = append(kept, w)
			}
		}
		f.written = kept
	}
	return nil
}

// Check reports whether a matching tuple was written (or forced).
func (f *FakeAdapter) Check(_ context.Context, subject, relation, object string, _ CheckRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if f.CheckErr != nil {
		return false, f.CheckErr
	}
	if allowed, ok := f.ForcedChecks[subject+" "+relation+" "+object]; ok {
		return allowed, nil
	}
	want := TupleKey{Object: object, Relation: relation, Subject: subject}
	for _, w := range f.written {
		if w.Key == want {
			return true, nil
		}
	}
	return false, nil
}

// LookupResources returns object ids of written tuples matching the
// subject, relation, and resource type.
func (f *FakeAdapter) LookupResources(_ context.Context, subject, relation, resourceType string, _ CheckRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	prefix := resourceType + ":"
	var ids []string
	for _, w := range f.written {
		if w.Key.Subject == subject && w.Key.Relation == relation &&
			len(w.Key.Object) > len(prefix) && w.Key.Object[:len(prefix)] == prefix {
			ids = append(ids, w.Key.Object[len(prefix):])
		}
	}
	return ids, nil
}

// PublishedSchemas returns all schema texts published so far.
func (f *FakeAdapter) PublishedSchemas() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.schemas...)
}

// WrittenTuples returns the currently held tuple writes.
func (f *FakeAdapter) WrittenTuples() []TupleWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TupleWrite(nil), f.written...)
}

// DeletedTuples returns every delete recorded, in order.
func (f *FakeAdapter) DeletedTuples() []TupleKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TupleKey(nil), f.deleted...)
}

// CheckCalls returns how many Check calls reached the adapter.
func (f *FakeAdapter) CheckCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkCalls
}

// LookupCalls returns how many LookupResources calls reached the adapter.
func (f *FakeAdapter) LookupCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupCalls
}
