package gormsync

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/rebind-io/rebind"
)

// UnitOfWork is the mutation boundary for one database transaction.
// It persists records through the wrapped transaction and queues the
// tuple operations each mutation implies. Queued operations are flushed
// by the engine only after the transaction commits; a rollback discards
// them, so a failed mutation can never leave phantom tuples granting
// access to data that was never persisted.
//
// Per mutation the flow is snapshot, persist, diff, queue. A UnitOfWork
// is bound to its transaction and goroutine; do not share or retain it.
type UnitOfWork struct {
	engine *Engine
	ctx    context.Context
	tx     *gorm.DB

	deletes []rebind.TupleKey
	writes  []rebind.TupleWrite
}

// Tx exposes the underlying transaction for reads or mutations of
// unbound models within the same unit of work.
func (u *UnitOfWork) Tx() *gorm.DB {
	return u.tx
}

// Create inserts a new record and queues writes for every bound relation
// that resolves on it, including memberships GORM persists from populated
// many-to-many fields. Creation queues writes only - there is nothing to
// delete for a record that did not exist.
func (u *UnitOfWork) Create(rec any) error {
	if err := u.tx.Create(rec).Error; err != nil {
		return fmt.Errorf("gormsync: create: %w", err)
	}
	if h := u.engine.handlerFor(rec); h != nil {
		u.writes = append(u.writes, h.fkWrites(u.ctx, u.tx, rec)...)
		u.writes = append(u.writes, h.m2mWrites(u.ctx, rec)...)
	}
	return nil
}

// Save persists an update to an existing record (or inserts it when not
// yet persisted), diffing bound foreign-key fields against their durable
// prior values. A reassigned FK queues one delete of the old tuple and
// one write of the new; a null-to-value transition queues only a write;
// an unchanged field queues nothing.
func (u *UnitOfWork) Save(rec any) error {
	h := u.engine.handlerFor(rec)
	if h == nil {
		if err := u.tx.Save(rec).Error; err != nil {
			return fmt.Errorf("gormsync: save: %w", err)
		}
		return nil
	}

	snap, err := h.captureFKState(u.ctx, u.tx, rec)
	if err != nil {
		return err
	}

	if err := u.tx.Save(rec).Error; err != nil {
		return fmt.Errorf("gormsync: save %s: %w", h.typeName, err)
	}

	for _, b := range h.fks {
		now, ok := h.resolveFK(u.ctx, u.tx, b, rec)
		old, hadOld := snap.fk[b.relation]

		if hadOld && ok && old == now {
			// Saved unchanged: no operations.
			continue
		}
		if hadOld {
			u.deletes = append(u.deletes, h.fkTupleKey(b, old))
		}
		if ok {
			u.writes = append(u.writes, rebind.TupleWrite{Key: h.fkTupleKey(b, now)})
		}
	}
	// Members present on a populated m2m field are upserted alongside
	// the save; touch semantics make re-queuing held members harmless.
	u.writes = append(u.writes, h.m2mWrites(u.ctx, rec)...)
	return nil
}

// Delete removes a record and queues deletes for every bound relation
// that was resolvable at the moment just before deletion. Resolution
// reads only in-memory identifiers: related rows may already be gone by
// cascade order, so no store round-trips are made.
func (u *UnitOfWork) Delete(rec any) error {
	var keys []rebind.TupleKey
	h := u.engine.handlerFor(rec)
	if h != nil {
		keys = h.fkKeys(u.ctx, nil, rec)
	}

	if err := u.tx.Delete(rec).Error; err != nil {
		return fmt.Errorf("gormsync: delete: %w", err)
	}

	u.deletes = append(u.deletes, keys...)
	return nil
}

// AppendAssociation adds members to a many-to-many bound relation and
// queues one tuple write per added member.
func (u *UnitOfWork) AppendAssociation(rec any, relation string, related ...any) error {
	h, b, err := u.m2m(rec, relation)
	if err != nil {
		return err
	}

	if err := u.tx.Model(rec).Association(b.fieldName).Append(related...); err != nil {
		return fmt.Errorf("gormsync: append %s.%s: %w", h.typeName, relation, err)
	}

	objectID, ok := h.m2mObjectID(u.ctx, b, rec)
	if !ok {
		return nil
	}
	for _, r := range related {
		if subjectID, ok := b.subjectID(u.ctx, r); ok {
			u.writes = append(u.writes, rebind.TupleWrite{Key: h.m2mTupleKey(b, objectID, subjectID)})
		}
	}
	return nil
}

// RemoveAssociation removes members from a many-to-many bound relation
// and queues one tuple delete per removed member.
func (u *UnitOfWork) RemoveAssociation(rec any, relation string, related ...any) error {
	h, b, err := u.m2m(rec, relation)
	if err != nil {
		return err
	}

	if err := u.tx.Model(rec).Association(b.fieldName).Delete(related...); err != nil {
		return fmt.Errorf("gormsync: remove %s.%s: %w", h.typeName, relation, err)
	}

	objectID, ok := h.m2mObjectID(u.ctx, b, rec)
	if !ok {
		return nil
	}
	for _, r := range related {
		if subjectID, ok := b.subjectID(u.ctx, r); ok {
			u.deletes = append(u.deletes, h.m2mTupleKey(b, objectID, subjectID))
		}
	}
	return nil
}

// ClearAssociation removes all members of a many-to-many bound relation.
// The membership id set is captured before the clear - the live set is
// already empty by delete-generation time - and one delete is queued per
// previously held member.
func (u *UnitOfWork) ClearAssociation(rec any, relation string) error {
	h, b, err := u.m2m(rec, relation)
	if err != nil {
		return err
	}

	ids, err := h.captureMembership(u.ctx, u.tx, b, rec)
	if err != nil {
		return err
	}

	if err := u.tx.Model(rec).Association(b.fieldName).Clear(); err != nil {
		return fmt.Errorf("gormsync: clear %s.%s: %w", h.typeName, relation, err)
	}

	objectID, ok := h.m2mObjectID(u.ctx, b, rec)
	if !ok {
		return nil
	}
	for _, id := range ids {
		u.deletes = append(u.deletes, h.m2mTupleKey(b, objectID, id))
	}
	return nil
}

func (u *UnitOfWork) m2m(rec any, relation string) (*handler, m2mBinding, error) {
	h := u.engine.handlerFor(rec)
	if h == nil {
		return nil, m2mBinding{}, fmt.Errorf("gormsync: no registered type for %T", rec)
	}
	b, ok := h.m2ms[relation]
	if !ok {
		return nil, m2mBinding{}, fmt.Errorf("gormsync: %s has no m2m binding for relation %q", h.typeName, relation)
	}
	return h, b, nil
}
