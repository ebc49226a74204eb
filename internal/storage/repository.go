package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a table or column name.
// Kinds, columns and relation tables are interpolated into SQL, so every
// backend checks them with this before building a statement.
func ValidIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// Outcome of an upsert.
type Outcome int

const (
	Created Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Key is a natural key: the columns that identify an entity of a kind and
// their values, in matching order.
type Key struct {
	Columns []string
	Values  []any
}

func NameKey(name string) Key {
	return Key{Columns: []string{"name"}, Values: []any{name}}
}

func (k Key) String() string {
	parts := make([]string, len(k.Values))
	for i, v := range k.Values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " / ")
}

func (k Key) Validate() error {
	if len(k.Columns) == 0 {
		return errors.New("natural key has no columns")
	}
	if len(k.Columns) != len(k.Values) {
		return fmt.Errorf("natural key has %d columns and %d values", len(k.Columns), len(k.Values))
	}
	for _, c := range k.Columns {
		if err := ValidIdentifier(c); err != nil {
			return err
		}
	}
	return nil
}

// Entity is a persisted row: its surrogate id and column values.
type Entity struct {
	ID     string
	Fields map[string]any
}

type Cardinality int

const (
	// ForeignKey stores the target id in a column of the source row.
	ForeignKey Cardinality = iota + 1
	// ManyToMany stores (source id, target id) pairs in a join table.
	ManyToMany
)

func (c Cardinality) String() string {
	switch c {
	case ForeignKey:
		return "foreign_key"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Relation describes where a resolved link is stored.
type Relation struct {
	Name        string
	Cardinality Cardinality
	Source      string
	Target      string
	// Column is the foreign key column on Source.
	Column string
	// JoinTable, SourceColumn and TargetColumn describe a many-to-many table.
	JoinTable    string
	SourceColumn string
	TargetColumn string
}

func (r Relation) Validate() error {
	names := []string{r.Source, r.Target}
	switch r.Cardinality {
	case ForeignKey:
		names = append(names, r.Column)
	case ManyToMany:
		names = append(names, r.JoinTable, r.SourceColumn, r.TargetColumn)
	default:
		return fmt.Errorf("relation %s: unknown cardinality %d", r.Name, r.Cardinality)
	}
	for _, n := range names {
		if err := ValidIdentifier(n); err != nil {
			return fmt.Errorf("relation %s: %w", r.Name, err)
		}
	}
	return nil
}

// Repository persists entities keyed by natural key. Each call is atomic on
// its own; WithTx groups calls into one transaction.
type Repository interface {
	// Upsert creates the entity identified by key or updates its fields.
	Upsert(ctx context.Context, kind string, key Key, fields map[string]any) (Outcome, error)
	DeleteAll(ctx context.Context, kind string) (int64, error)
	// FindByNaturalKey returns ErrNotFound when no entity has key.
	FindByNaturalKey(ctx context.Context, kind string, key Key) (Entity, error)
	// FindByName matches the name column case-insensitively.
	FindByName(ctx context.Context, kind string, name string) (Entity, error)
	List(ctx context.Context, kind string) ([]Entity, error)
	Count(ctx context.Context, kind string) (int64, error)

	// Link stores the relation between two entity ids and reports whether
	// anything changed.
	Link(ctx context.Context, rel Relation, sourceID, targetID string) (bool, error)
	Linked(ctx context.Context, rel Relation, sourceID, targetID string) (bool, error)
	CountLinks(ctx context.Context, rel Relation) (int64, error)
	// ClearLinks removes every stored link of rel: join rows are deleted and
	// foreign key columns set to NULL. It returns how many links were removed.
	ClearLinks(ctx context.Context, rel Relation) (int64, error)

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Close()
}
