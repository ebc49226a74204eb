// Package etl runs the import pipeline: per-kind importers driven by entity
// specs, the phase orchestrator, the relationship linker and the run report.
// The content of each kind lives in the content package; etl only knows the
// declarative shape of a kind.
package etl

import (
	"fmt"

	"github.com/characterforge/compendium/internal/source"
	"github.com/characterforge/compendium/internal/storage"
)

// Kind names an entity kind. It doubles as the storage table name.
type Kind string

// Entity is a transformed record: normalized field name to value.
type Entity map[string]any

// TransformFunc maps one raw record to zero or more entities. Variant and
// child records become separate entities. An unrecoverable shape mismatch is
// returned as a *TransformationError.
type TransformFunc func(item source.Item, notes *Notes) ([]Entity, error)

// EntitySpec declares one entity kind.
type EntitySpec struct {
	Kind        Kind
	Collections []source.Collection
	// KeyFields are the entity fields forming the natural key, in order.
	KeyFields []string
	// Required fields must be present and non-empty after transformation.
	Required []string
	// Rules are validator tags per field, e.g. "oneof=STR DEX CON".
	// A rule is skipped when the field is absent.
	Rules map[string]string
	// Include narrows the collection beyond provenance filtering. Records it
	// rejects are counted as skipped.
	Include   func(rec source.Record) bool
	Transform TransformFunc
}

func (s *EntitySpec) validate() error {
	if s.Kind == "" {
		return configErrorf("entity spec without kind")
	}
	if err := storage.ValidIdentifier(string(s.Kind)); err != nil {
		return configErrorf("entity spec %s: %v", s.Kind, err)
	}
	if len(s.Collections) == 0 {
		return configErrorf("entity spec %s: no collections", s.Kind)
	}
	if len(s.KeyFields) == 0 {
		return configErrorf("entity spec %s: no natural key fields", s.Kind)
	}
	for _, f := range s.KeyFields {
		if err := storage.ValidIdentifier(f); err != nil {
			return configErrorf("entity spec %s: %v", s.Kind, err)
		}
	}
	if s.Transform == nil {
		return configErrorf("entity spec %s: no transform", s.Kind)
	}
	return nil
}

// KeyOf builds the natural key of e. Every key field must be set.
func (s *EntitySpec) KeyOf(e Entity) (storage.Key, error) {
	key := storage.Key{Columns: s.KeyFields, Values: make([]any, len(s.KeyFields))}
	for i, f := range s.KeyFields {
		v, ok := e[f]
		if !ok || isEmpty(v) {
			return storage.Key{}, &ValidationError{Field: f, Reason: "natural key field is empty"}
		}
		key.Values[i] = v
	}
	return key, nil
}

// Ref is how an entity is named in the report: its natural key when it has
// one, else the raw record reference.
func (s *EntitySpec) Ref(e Entity, item source.Item) string {
	key, err := s.KeyOf(e)
	if err != nil {
		return item.Ref()
	}
	return key.String()
}

// LinkSpec declares one relationship resolved after all entities exist.
type LinkSpec struct {
	Name   string
	Source Kind
	Target Kind
	// Field on the source entity holding one target name or a list of them.
	Field       string
	Cardinality storage.Cardinality
	// Column is the foreign key column for ForeignKey links.
	Column string
	// JoinTable, SourceColumn and TargetColumn describe ManyToMany links.
	JoinTable    string
	SourceColumn string
	TargetColumn string
}

// Relation is the storage view of the link.
func (l LinkSpec) Relation() storage.Relation {
	return storage.Relation{
		Name:         l.Name,
		Cardinality:  l.Cardinality,
		Source:       string(l.Source),
		Target:       string(l.Target),
		Column:       l.Column,
		JoinTable:    l.JoinTable,
		SourceColumn: l.SourceColumn,
		TargetColumn: l.TargetColumn,
	}
}

func (l LinkSpec) validate() error {
	if l.Name == "" {
		return configErrorf("link spec without name")
	}
	if l.Field == "" {
		return configErrorf("link %s: no source field", l.Name)
	}
	if err := l.Relation().Validate(); err != nil {
		return &ConfigurationError{Message: err.Error()}
	}
	return nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}

func (e Entity) String(field string) string {
	s, _ := e[field].(string)
	return s
}

// Strings reads a field holding one name or a list of names.
func (e Entity) Strings(field string) []string {
	switch v := e[field].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			} else if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return nil
	}
}
