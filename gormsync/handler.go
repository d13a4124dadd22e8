package gormsync

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"
	gormschema "gorm.io/gorm/schema"

	"github.com/rebind-io/rebind"
)

// handler holds the precomputed binding resolution for one bound model:
// which struct fields realize which relations, and how to read subject
// and object identifiers off a record.
type handler struct {
	typeName  string
	cfg       rebind.TypeConfig
	modelType reflect.Type
	schema    *gormschema.Schema

	fks  []fkBinding
	m2ms map[string]m2mBinding
}

// fkBinding is a resolved foreign-key (or through) binding.
type fkBinding struct {
	relation        string
	binding         rebind.Binding
	subjectType     string
	subjectRelation string

	assocField    *gormschema.Field // the association struct field
	fkField       *gormschema.Field // the FK value field on this schema
	relatedSchema *gormschema.Schema
	relatedPK     *gormschema.Field
	subjectField  *gormschema.Field // on related schema; nil means its PK
	objectFK      *gormschema.Field // on this schema; nil means own PK
}

// m2mBinding is a resolved many-to-many binding.
type m2mBinding struct {
	relation        string
	fieldName       string
	subjectType     string
	subjectRelation string

	relatedSchema *gormschema.Schema
	relatedPK     *gormschema.Field
	subjectField  *gormschema.Field // on related schema; nil means its PK
	objectFK      *gormschema.Field // on this schema; nil means own PK
}

func newHandler(typeName string, cfg rebind.TypeConfig, model any, namer gormschema.Namer) (*handler, error) {
	sch, err := gormschema.Parse(model, &sync.Map{}, namer)
	if err != nil {
		return nil, fmt.Errorf("parsing model schema: %w", err)
	}

	h := &handler{
		typeName:  typeName,
		cfg:       cfg,
		modelType: sch.ModelType,
		schema:    sch,
		m2ms:      make(map[string]m2mBinding),
	}

	for relation, binding := range cfg.Bindings {
		subjectType, subjectRelation := splitSubjectRef(cfg.Relations[relation])

		switch binding.Kind {
		case rebind.BindingManual:
			// Maintained by application code.
			continue

		case rebind.BindingFK, rebind.BindingThrough:
			fk, err := h.buildFKBinding(relation, binding, subjectType, subjectRelation)
			if err != nil {
				return nil, err
			}
			h.fks = append(h.fks, fk)

		case rebind.BindingM2M:
			m2m, err := h.buildM2MBinding(relation, binding, subjectType, subjectRelation)
			if err != nil {
				return nil, err
			}
			h.m2ms[relation] = m2m
		}
	}

	return h, nil
}

func (h *handler) buildFKBinding(relation string, binding rebind.Binding, subjectType, subjectRelation string) (fkBinding, error) {
	rel, ok := h.schema.Relationships.Relations[binding.Field]
	if !ok {
		return fkBinding{}, fmt.Errorf("relation %q: no association field %q on %s",
			relation, binding.Field, h.modelType.Name())
	}

	fk := fkBinding{
		relation:        relation,
		binding:         binding,
		subjectType:     subjectType,
		subjectRelation: subjectRelation,
		assocField:      rel.Field,
		relatedSchema:   rel.FieldSchema,
	}
	if fk.relatedSchema != nil {
		fk.relatedPK = fk.relatedSchema.PrioritizedPrimaryField
	}

	// The FK value field lives on this schema for belongs-to style
	// associations; that is the field the binding tracks.
	for _, ref := range rel.References {
		if !ref.OwnPrimaryKey && ref.ForeignKey != nil && ref.ForeignKey.Schema == h.schema {
			fk.fkField = ref.ForeignKey
			break
		}
	}
	if fk.fkField == nil {
		return fkBinding{}, fmt.Errorf("relation %q: association %q holds no foreign key on %s",
			relation, binding.Field, h.modelType.Name())
	}

	if binding.SubjectField != "" {
		field, ok := fk.relatedSchema.FieldsByName[binding.SubjectField]
		if !ok {
			return fkBinding{}, fmt.Errorf("relation %q: subject_field %q not found on %s",
				relation, binding.SubjectField, fk.relatedSchema.Name)
		}
		fk.subjectField = field
	}

	objectFK, err := h.resolveObjectField(relation, binding.ObjectField)
	if err != nil {
		return fkBinding{}, err
	}
	fk.objectFK = objectFK

	return fk, nil
}

func (h *handler) buildM2MBinding(relation string, binding rebind.Binding, subjectType, subjectRelation string) (m2mBinding, error) {
	rel, ok := h.schema.Relationships.Relations[binding.Field]
	if !ok || rel.Type != gormschema.Many2Many {
		return m2mBinding{}, fmt.Errorf("relation %q: %q is not a many-to-many association on %s",
			relation, binding.Field, h.modelType.Name())
	}

	m2m := m2mBinding{
		relation:        relation,
		fieldName:       binding.Field,
		subjectType:     subjectType,
		subjectRelation: subjectRelation,
		relatedSchema:   rel.FieldSchema,
		relatedPK:       rel.FieldSchema.PrioritizedPrimaryField,
	}

	if binding.SubjectField != "" {
		field, ok := m2m.relatedSchema.FieldsByName[binding.SubjectField]
		if !ok {
			return m2mBinding{}, fmt.Errorf("relation %q: subject_field %q not found on %s",
				relation, binding.SubjectField, m2m.relatedSchema.Name)
		}
		m2m.subjectField = field
	}

	objectFK, err := h.resolveObjectField(relation, binding.ObjectField)
	if err != nil {
		return m2mBinding{}, err
	}
	m2m.objectFK = objectFK

	return m2m, nil
}

// resolveObjectField maps an object_field name to the field whose value
// becomes the tuple's object id. An association name resolves to its
// foreign-key field (join-table pattern); a plain field resolves to
// itself; empty means the record's own primary identifier.
func (h *handler) resolveObjectField(relation, name string) (*gormschema.Field, error) {
	if name == "" {
		return nil, nil
	}
	if rel, ok := h.schema.Relationships.Relations[name]; ok {
		for _, ref := range rel.References {
			if !ref.OwnPrimaryKey && ref.ForeignKey != nil && ref.ForeignKey.Schema == h.schema {
				return ref.ForeignKey, nil
			}
		}
		return nil, fmt.Errorf("relation %q: object_field %q holds no foreign key on %s",
			relation, name, h.modelType.Name())
	}
	if field, ok := h.schema.FieldsByName[name]; ok {
		return field, nil
	}
	return nil, fmt.Errorf("relation %q: object_field %q not found on %s",
		relation, name, h.modelType.Name())
}

// ----------------------------------------------------------- resolution

// pair is a fully resolved (subject, object) identifier pair.
type pair struct {
	subject string
	object  string
}

// resolveFK reads the current (subject, object) pair for one fk binding
// off rec. A missing or null intermediate value returns ok=false and the
// relation is skipped - never an error, since not every relation need be
// populated on every record.
//
// db may be nil, in which case resolution uses only in-memory values
// (delete cascades read cached identifiers; related rows may already be
// gone).
func (h *handler) resolveFK(ctx context.Context, db *gorm.DB, b fkBinding, rec any) (pair, bool) {
	rv := reflect.Indirect(reflect.ValueOf(rec))

	subject, ok := h.resolveSubject(ctx, db, b, rv)
	if !ok {
		return pair{}, false
	}
	object, ok := h.resolveObject(ctx, b.objectFK, rv)
	if !ok {
		return pair{}, false
	}
	return pair{subject: subject, object: object}, true
}

func (h *handler) resolveSubject(ctx context.Context, db *gorm.DB, b fkBinding, rv reflect.Value) (string, bool) {
	if b.subjectField == nil {
		v, zero := b.fkField.ValueOf(ctx, rv)
		if zero {
			return "", false
		}
		return fieldString(v)
	}

	// subject_field set: read the attribute off the related record,
	// loading it from the backing store when not already in memory.
	assoc, zero := b.assocField.ValueOf(ctx, rv)
	if !zero && assoc != nil {
		v, vzero := b.subjectField.ValueOf(ctx, reflect.Indirect(reflect.ValueOf(assoc)))
		if vzero {
			return "", false
		}
		return fieldString(v)
	}

	if db == nil {
		return "", false
	}
	fkv, fkzero := b.fkField.ValueOf(ctx, rv)
	if fkzero {
		return "", false
	}
	related := reflect.New(b.relatedSchema.ModelType).Interface()
	err := db.Session(&gorm.Session{NewDB: true}).WithContext(ctx).
		Where(fmt.Sprintf("%s = ?", b.relatedPK.DBName), fkv).
		Take(related).Error
	if err != nil {
		// An unreadable related row behaves like a null value.
		return "", false
	}
	v, vzero := b.subjectField.ValueOf(ctx, reflect.Indirect(reflect.ValueOf(related)))
	if vzero {
		return "", false
	}
	return fieldString(v)
}

func (h *handler) resolveObject(ctx context.Context, objectFK *gormschema.Field, rv reflect.Value) (string, bool) {
	field := objectFK
	if field == nil {
		field = h.schema.PrioritizedPrimaryField
	}
	v, zero := field.ValueOf(ctx, rv)
	if zero {
		return "", false
	}
	return fieldString(v)
}

// subjectID extracts the subject identifier from a related record for an
// m2m binding.
func (b m2mBinding) subjectID(ctx context.Context, related any) (string, bool) {
	rv := reflect.Indirect(reflect.ValueOf(related))
	field := b.subjectField
	if field == nil {
		field = b.relatedPK
	}
	v, zero := field.ValueOf(ctx, rv)
	if zero {
		return "", false
	}
	return fieldString(v)
}

// fieldString renders a field value as a tuple identifier. ValueOf
// returns pointer fields as the pointer itself, so indirect first; a
// nil pointer behaves like a null value.
func fieldString(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "", false
	}
	return fmt.Sprint(rv.Interface()), true
}

// objectID extracts the tuple object identifier from the owning record
// for an m2m binding.
func (h *handler) m2mObjectID(ctx context.Context, b m2mBinding, rec any) (string, bool) {
	return h.resolveObject(ctx, b.objectFK, reflect.Indirect(reflect.ValueOf(rec)))
}

// fkWrites gathers tuple writes for every resolvable fk binding on rec.
func (h *handler) fkWrites(ctx context.Context, db *gorm.DB, rec any) []rebind.TupleWrite {
	var writes []rebind.TupleWrite
	for _, b := range h.fks {
		p, ok := h.resolveFK(ctx, db, b, rec)
		if !ok {
			continue
		}
		writes = append(writes, rebind.TupleWrite{Key: h.fkTupleKey(b, p)})
	}
	return writes
}

// m2mWrites gathers tuple writes for members held in memory on
// many-to-many bound fields. GORM upserts those join rows when the
// owning record is persisted, so the queued tuples mirror what the
// upsert stored.
func (h *handler) m2mWrites(ctx context.Context, rec any) []rebind.TupleWrite {
	var writes []rebind.TupleWrite
	rv := reflect.Indirect(reflect.ValueOf(rec))
	for _, b := range h.m2ms {
		field, ok := h.schema.FieldsByName[b.fieldName]
		if !ok {
			continue
		}
		v, zero := field.ValueOf(ctx, rv)
		if zero {
			continue
		}
		members := reflect.ValueOf(v)
		if members.Kind() != reflect.Slice || members.Len() == 0 {
			continue
		}
		objectID, ok := h.m2mObjectID(ctx, b, rec)
		if !ok {
			continue
		}
		for i := 0; i < members.Len(); i++ {
			if subjectID, ok := b.subjectID(ctx, members.Index(i).Interface()); ok {
				writes = append(writes, rebind.TupleWrite{Key: h.m2mTupleKey(b, objectID, subjectID)})
			}
		}
	}
	return writes
}

// fkKeys gathers tuple keys for every resolvable fk binding on rec.
func (h *handler) fkKeys(ctx context.Context, db *gorm.DB, rec any) []rebind.TupleKey {
	var keys []rebind.TupleKey
	for _, w := range h.fkWrites(ctx, db, rec) {
		keys = append(keys, w.Key)
	}
	return keys
}

func (h *handler) fkTupleKey(b fkBinding, p pair) rebind.TupleKey {
	return rebind.TupleKey{
		Object:   h.typeName + ":" + p.object,
		Relation: b.relation,
		Subject:  formatSubject(b.subjectType, p.subject, b.subjectRelation),
	}
}

func (h *handler) m2mTupleKey(b m2mBinding, objectID, subjectID string) rebind.TupleKey {
	return rebind.TupleKey{
		Object:   h.typeName + ":" + objectID,
		Relation: b.relation,
		Subject:  formatSubject(b.subjectType, subjectID, b.subjectRelation),
	}
}

// splitSubjectRef splits "<type>" or "<type>#<relation>".
func splitSubjectRef(target string) (string, string) {
	for i := 0; i < len(target); i++ {
		if target[i] == '#' {
			return target[:i], target[i+1:]
		}
	}
	return target, ""
}

func formatSubject(subjectType, subjectID, relation string) string {
	ref := subjectType + ":" + subjectID
	if relation != "" {
		ref += "#" + relation
	}
	return ref
}
