// Package gormsync keeps relationship tuples in the authorization store
// consistent with mutations to GORM-managed application records.
//
// The host registers its bound models explicitly at startup, then routes
// mutations through a UnitOfWork. For each create, update, or delete of
// a bound record the engine computes the tuple write-set and delete-set
// from the type graph's bindings and defers them until the surrounding
// transaction commits. Operations queued in a rolled-back transaction
// never reach the store.
//
//	engine, err := gormsync.New(db, adapter, graph, gormsync.Models{
//	    "document": &Document{},
//	    "user":     &User{},
//	})
//	err = engine.Transaction(ctx, func(uow *gormsync.UnitOfWork) error {
//	    doc.OwnerID = newOwner.ID
//	    return uow.Save(&doc)
//	})
package gormsync

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormschema "gorm.io/gorm/schema"

	"github.com/rebind-io/rebind"
)

// FailurePolicy says what happens when the adapter fails during a
// post-commit flush. The two observed policies in this domain differ in
// what they sacrifice; an engine picks exactly one, deliberately.
type FailurePolicy int

const (
	// PolicyPropagate returns the adapter error to the Transaction
	// caller. Tuple-store consistency wins over availability: the host
	// sees the failure and can retry or alert. This is the default.
	PolicyPropagate FailurePolicy = iota

	// PolicyLogAndContinue logs the adapter error and reports success,
	// accepting temporary authorization drift to preserve application
	// availability. Drift is bounded by the next write or backfill.
	PolicyLogAndContinue
)

// Models maps type names (as declared in the graph) to a zero-value
// prototype of the GORM model realizing that type.
type Models map[string]any

// Engine dispatches record mutations to tuple operations.
//
// The handler registry is read-mostly process-wide state: Refresh builds
// a complete new registry and swaps it in one step, so concurrent
// units of work observe either the old or the new handler set, never a
// mixture with both firing.
type Engine struct {
	db      *gorm.DB
	adapter rebind.Adapter
	log     *zap.Logger
	policy  FailurePolicy

	mu       sync.RWMutex
	handlers map[reflect.Type]*handler
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithFailurePolicy sets the post-commit flush failure policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// New builds an engine for the given graph and model registrations.
// Every registered type must be declared in the graph; models without
// bindings are accepted and simply produce no operations.
func New(db *gorm.DB, adapter rebind.Adapter, graph *rebind.TypeGraph, models Models, opts ...Option) (*Engine, error) {
	e := &Engine{
		db:      db,
		adapter: adapter,
		log:     zap.NewNop(),
		policy:  PolicyPropagate,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Refresh(graph, models); err != nil {
		return nil, err
	}
	return e, nil
}

// Refresh rebuilds the handler registry from a new graph, atomically
// replacing the old one. Intended for schema configuration changes; the
// new registry is fully built before the swap, so no mutation ever sees
// a partially refreshed handler set.
func (e *Engine) Refresh(graph *rebind.TypeGraph, models Models) error {
	handlers := make(map[reflect.Type]*handler, len(models))

	for typeName, model := range models {
		cfg, ok := graph.Type(typeName)
		if !ok {
			return fmt.Errorf("gormsync: model registered for undeclared type %q", typeName)
		}
		h, err := newHandler(typeName, cfg, model, e.namer())
		if err != nil {
			return fmt.Errorf("gormsync: type %q: %w", typeName, err)
		}
		handlers[h.modelType] = h
	}

	e.mu.Lock()
	e.handlers = handlers
	e.mu.Unlock()
	return nil
}

// Transaction runs fn inside a database transaction, collecting tuple
// operations on the UnitOfWork. If fn returns an error the transaction
// rolls back and every queued operation is discarded. On commit the
// queued deletes then writes are flushed to the adapter, on the calling
// goroutine, preserving the order they were generated in.
func (e *Engine) Transaction(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	var uow *UnitOfWork
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow = &UnitOfWork{engine: e, ctx: ctx, tx: tx}
		return fn(uow)
	})
	if err != nil {
		return err
	}
	return e.flush(ctx, uow)
}

// flush sends queued operations to the adapter after a successful
// commit. Deletes go before writes so an FK reassignment never leaves a
// window where both old and new tuples are absent of the new grant.
func (e *Engine) flush(ctx context.Context, uow *UnitOfWork) error {
	if uow == nil || (len(uow.deletes) == 0 && len(uow.writes) == 0) {
		return nil
	}

	e.log.Debug("flushing tuple operations",
		zap.Int("deletes", len(uow.deletes)),
		zap.Int("writes", len(uow.writes)),
	)

	err := func() error {
		if len(uow.deletes) > 0 {
			if err := e.adapter.DeleteTuples(ctx, uow.deletes); err != nil {
				return fmt.Errorf("gormsync: delete tuples: %w", err)
			}
		}
		if len(uow.writes) > 0 {
			if err := e.adapter.WriteTuples(ctx, uow.writes); err != nil {
				return fmt.Errorf("gormsync: write tuples: %w", err)
			}
		}
		return nil
	}()
	if err != nil {
		if e.policy == PolicyLogAndContinue {
			e.log.Error("tuple sync failed, continuing per policy", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// handlerFor looks up the handler for a record's model type. Records of
// unregistered models are passed through with no tuple operations.
func (e *Engine) handlerFor(rec any) *handler {
	t := reflect.TypeOf(rec)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handlers[t]
}

// namer returns the naming strategy used to parse model schemas,
// matching whatever the host's gorm session uses.
func (e *Engine) namer() gormschema.Namer {
	if e.db != nil && e.db.Config != nil && e.db.Config.NamingStrategy != nil {
		return e.db.Config.NamingStrategy
	}
	return gormschema.NamingStrategy{}
}
