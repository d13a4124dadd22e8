package gormsync

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

// snapshot holds the prior values of a record's bound fields, captured
// immediately before a mutation is persisted and discarded once the
// mutation has been handled. Only fully resolved (subject, object)
// pairs are present: a relation that was null before the mutation has
// no entry, so no delete is ever generated for a never-written tuple.
type snapshot struct {
	fk map[string]pair // relation name -> prior pair
}

// captureFKState reads the durable prior values of every fk-bound field
// for rec from the backing store. It deliberately does not read the
// in-memory record: by the time an update is being handled the struct
// fields already hold the pending new values, and diffing against them
// would always show "no change".
//
// A record not present in the store (first save) yields an empty
// snapshot.
func (h *handler) captureFKState(ctx context.Context, db *gorm.DB, rec any) (*snapshot, error) {
	snap := &snapshot{fk: make(map[string]pair, len(h.fks))}
	if len(h.fks) == 0 {
		return snap, nil
	}

	pk := h.schema.PrioritizedPrimaryField
	pkv, zero := pk.ValueOf(ctx, reflect.Indirect(reflect.ValueOf(rec)))
	if zero {
		return snap, nil
	}

	durable := reflect.New(h.modelType).Interface()
	err := db.Session(&gorm.Session{NewDB: true}).WithContext(ctx).
		Where(fmt.Sprintf("%s = ?", pk.DBName), pkv).
		Take(durable).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return snap, nil
		}
		return nil, fmt.Errorf("gormsync: reading prior state of %s: %w", h.typeName, err)
	}

	for _, b := range h.fks {
		if p, ok := h.resolveFK(ctx, db, b, durable); ok {
			snap.fk[b.relation] = p
		}
	}
	return snap, nil
}

// captureMembership reads the full current membership id set of an m2m
// relation, before a bulk-clear operation removes it. A clear does not
// otherwise expose which ids were removed.
func (h *handler) captureMembership(ctx context.Context, db *gorm.DB, b m2mBinding, rec any) ([]string, error) {
	slicePtr := reflect.New(reflect.SliceOf(reflect.PointerTo(b.relatedSchema.ModelType)))

	err := db.Session(&gorm.Session{NewDB: true}).WithContext(ctx).
		Model(rec).
		Association(b.fieldName).
		Find(slicePtr.Interface())
	if err != nil {
		return nil, fmt.Errorf("gormsync: reading %s.%s membership: %w", h.typeName, b.relation, err)
	}

	slice := slicePtr.Elem()
	ids := make([]string, 0, slice.Len())
	for i := 0; i < slice.Len(); i++ {
		if id, ok := b.subjectID(ctx, slice.Index(i).Interface()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
