package etl

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/characterforge/compendium/internal/source"
	"github.com/characterforge/compendium/internal/storage"
)

// fakeSource serves records by collection name. A collection it does not
// know is a missing source.
type fakeSource map[string][]source.Record

func (f fakeSource) Records(ctx context.Context, c source.Collection) iter.Seq2[source.Item, error] {
	return func(yield func(source.Item, error) bool) {
		recs, ok := f[c.Name]
		if !ok {
			yield(source.Item{}, &source.MissingSourceError{Collection: c.Name, Path: c.Pattern})
			return
		}
		for i, rec := range recs {
			item := source.Item{Record: rec, Collection: c.Name, File: c.Pattern, Index: i}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// failingStore rejects upserts of one natural key, inside or outside a
// transaction.
type failingStore struct {
	storage.Repository
	failKey string
}

var errConstraint = errors.New("constraint violation")

func (f *failingStore) Upsert(ctx context.Context, kind string, key storage.Key, fields map[string]any) (storage.Outcome, error) {
	if key.String() == f.failKey {
		return 0, errConstraint
	}
	return f.Repository.Upsert(ctx, kind, key, fields)
}

func (f *failingStore) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	return f.Repository.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		return fn(ctx, &failingStore{Repository: tx, failKey: f.failKey})
	})
}

func skillSpec() *EntitySpec {
	return &EntitySpec{
		Kind:        "skills",
		Collections: []source.Collection{{Name: "skill", Pattern: "skills.json", Key: "skill"}},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "associated_ability"},
		Rules:       map[string]string{"associated_ability": "oneof=STR DEX CON INT WIS CHA"},
		Transform: func(item source.Item, notes *Notes) ([]Entity, error) {
			ability := item.Record.String("ability")
			if ability == "" {
				return nil, Transformf("ability", "missing")
			}
			return []Entity{{
				"name":               item.Record.String("name"),
				"associated_ability": strings.ToUpper(ability),
			}}, nil
		},
	}
}

func classSpec() *EntitySpec {
	return &EntitySpec{
		Kind:        "classes",
		Collections: []source.Collection{{Name: "class", Pattern: "class/class-*.json", Key: "class"}},
		KeyFields:   []string{"name"},
		Required:    []string{"name"},
		Transform: func(item source.Item, notes *Notes) ([]Entity, error) {
			return []Entity{{"name": item.Record.String("name")}}, nil
		},
	}
}

func spellSpec() *EntitySpec {
	return &EntitySpec{
		Kind:        "spells",
		Collections: []source.Collection{{Name: "spell", Pattern: "spells/spells-*.json", Key: "spell"}},
		KeyFields:   []string{"name"},
		Required:    []string{"name"},
		Rules:       map[string]string{"spell_level": "min=0,max=9"},
		Transform: func(item source.Item, notes *Notes) ([]Entity, error) {
			level, ok := item.Record.Int("level")
			if !ok {
				level = 0
				notes.Fallback("spell_level", item.Record["level"], 0)
			}
			return []Entity{{
				"name":        item.Record.String("name"),
				"spell_level": level,
				"damage":      item.Record.String("damage"),
				"class_names": item.Record.Strings("classes"),
			}}, nil
		},
	}
}

var spellClassesLink = LinkSpec{
	Name:         "spell_classes",
	Source:       "spells",
	Target:       "classes",
	Field:        "class_names",
	Cardinality:  storage.ManyToMany,
	JoinTable:    "spell_classes",
	SourceColumn: "spell_id",
	TargetColumn: "class_id",
}

func testRegistry() (*Registry, error) {
	reg := NewRegistry()
	for _, spec := range []*EntitySpec{skillSpec(), classSpec(), spellSpec()} {
		if err := reg.Register(spec); err != nil {
			return nil, err
		}
	}
	if err := reg.RegisterLink(spellClassesLink); err != nil {
		return nil, err
	}
	return reg, nil
}
