package rebind

import (
	"fmt"
	"os"
	"sort"

	"sigs.k8s.io/yaml"
)

// BindingKind says how a relation is realized on an application record.
type BindingKind string

const (
	// BindingFK binds a relation to a foreign-key field.
	BindingFK BindingKind = "fk"

	// BindingM2M binds a relation to a many-to-many association.
	BindingM2M BindingKind = "m2m"

	// BindingThrough binds a relation realized by an explicit join model.
	BindingThrough BindingKind = "through"

	// BindingManual declares a relation whose tuples are maintained by
	// application code; the synchronization engine ignores it.
	BindingManual BindingKind = "manual"
)

// valid reports whether the kind is one of the four allowed kinds.
// Unknown kinds fail graph construction: a typo here would otherwise
// silently stop synchronization for the relation.
func (k BindingKind) valid() bool {
	switch k {
	case BindingFK, BindingM2M, BindingThrough, BindingManual:
		return true
	}
	return false
}

// Binding maps a relation to the concrete record field(s) that realize it.
type Binding struct {
	// Field is the record field realizing the relation: a foreign-key
	// association for fk/through bindings, a many-to-many association
	// for m2m bindings. Ignored for manual bindings.
	Field string `json:"field,omitempty"`

	// Kind is one of fk, m2m, through, manual.
	Kind BindingKind `json:"kind"`

	// SubjectField names the attribute of the related record to use as
	// the tuple's subject id. Empty means the related record's primary
	// identifier.
	SubjectField string `json:"subject_field,omitempty"`

	// ObjectField names the attribute of this record whose identifier
	// becomes the tuple's object id. Empty means this record's own
	// primary identifier. Setting it enables join-table patterns where
	// the tuple is written against a different record than the one
	// mutated.
	ObjectField string `json:"object_field,omitempty"`
}

// TypeSpec is the raw, pre-validation declaration of one object type.
// It is the shape consumed from YAML files, database rows, or host code;
// rebind is agnostic to the source.
type TypeSpec struct {
	// Relations maps relation name to its subject reference: "<type>"
	// or "<type>#<relation>" for userset subjects.
	Relations map[string]string `json:"relations,omitempty"`

	// Permissions maps permission name to a boolean expression over
	// relation and permission names using | & ! parentheses and
	// parent->X inherited-permission references.
	Permissions map[string]string `json:"permissions,omitempty"`

	// Parents lists type names this type may inherit permissions from
	// through a parent relation.
	Parents []string `json:"parents,omitempty"`

	// Bindings maps relation names to the record fields realizing them.
	Bindings map[string]Binding `json:"bindings,omitempty"`

	// Model names the application model bound to this type. Free-form;
	// the synchronization engine matches it against registered models.
	Model string `json:"model,omitempty"`
}

// Config is the full raw configuration: type name to declaration.
type Config map[string]TypeSpec

// ParseConfig parses YAML (or JSON) configuration bytes.
// Unknown fields are rejected so that a misspelled section fails at load
// time instead of being silently ignored.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, nil
}

// LoadConfigFile reads and parses a YAML configuration file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return ParseConfig(data)
}

// TypeConfig is the validated, normalized form of one declared type as
// owned by a TypeGraph. Maps are never nil and Parents is sorted.
type TypeConfig struct {
	Name        string
	Relations   map[string]string
	Permissions map[string]string
	Parents     []string
	Bindings    map[string]Binding
	Model       string
}

// normalizeType copies a TypeSpec into a TypeConfig, rejecting malformed
// shapes. Empty names or values are configuration errors, never coerced.
func normalizeType(name string, spec TypeSpec) (TypeConfig, error) {
	if name == "" {
		return TypeConfig{}, fmt.Errorf("%w: type with empty name", ErrConfig)
	}

	cfg := TypeConfig{
		Name:        name,
		Relations:   make(map[string]string, len(spec.Relations)),
		Permissions: make(map[string]string, len(spec.Permissions)),
		Bindings:    make(map[string]Binding, len(spec.Bindings)),
		Model:       spec.Model,
	}

	for rel, subject := range spec.Relations {
		if rel == "" || subject == "" {
			return TypeConfig{}, fmt.Errorf(
				"%w: type %q: relation entries must be non-empty name and subject", ErrConfig, name)
		}
		cfg.Relations[rel] = subject
	}

	for perm, expr := range spec.Permissions {
		if perm == "" || expr == "" {
			return TypeConfig{}, fmt.Errorf(
				"%w: type %q: permission entries must be non-empty name and expression", ErrConfig, name)
		}
		cfg.Permissions[perm] = expr
	}

	seen := make(map[string]bool, len(spec.Parents))
	for _, parent := range spec.Parents {
		if parent == "" {
			return TypeConfig{}, fmt.Errorf("%w: type %q: empty parent name", ErrConfig, name)
		}
		if !seen[parent] {
			seen[parent] = true
			cfg.Parents = append(cfg.Parents, parent)
		}
	}
	sort.Strings(cfg.Parents)

	for rel, binding := range spec.Bindings {
		if rel == "" {
			return TypeConfig{}, fmt.Errorf("%w: type %q: binding with empty relation name", ErrConfig, name)
		}
		cfg.Bindings[rel] = binding
	}

	return cfg, nil
}
