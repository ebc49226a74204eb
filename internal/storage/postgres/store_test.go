package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/characterforge/compendium/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spellClasses = storage.Relation{
	Name: "spell_classes", Cardinality: storage.ManyToMany, Source: "spells", Target: "classes",
	JoinTable: "spell_classes", SourceColumn: "spell_id", TargetColumn: "class_id",
}

var subclassClass = storage.Relation{
	Name: "subclass_class", Cardinality: storage.ForeignKey, Source: "subclasses", Target: "classes", Column: "class_id",
}

func TestStore_Upsert(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	outcome, err := s.Upsert(ctx, "skills", storage.NameKey("Stealth"), map[string]any{"name": "Stealth", "associated_ability": "DEX", "source": "PHB"})
	require.NoError(t, err)
	assert.Equal(t, storage.Created, outcome)

	outcome, err = s.Upsert(ctx, "skills", storage.NameKey("Stealth"), map[string]any{"name": "Stealth", "associated_ability": "INT", "source": "PHB"})
	require.NoError(t, err)
	assert.Equal(t, storage.Updated, outcome)

	got, err := s.FindByNaturalKey(ctx, "skills", storage.NameKey("Stealth"))
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "INT", got.Fields["associated_ability"])
	assert.NotContains(t, got.Fields, "created_at")

	n, err := s.Count(ctx, "skills")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.FindByNaturalKey(ctx, "skills", storage.NameKey("Perception"))
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	byName, err := s.FindByName(ctx, "skills", "stealth")
	require.NoError(t, err)
	assert.Equal(t, got.ID, byName.ID)
}

func TestStore_UpsertStructuredColumns(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	fields := map[string]any{
		"name":          "Magic Initiate",
		"feat_type":     "origin",
		"description":   "You learn two cantrips.",
		"repeatable":    true,
		"prerequisites": map[string]any{"level": 4, "proficiency": []string{"Arcana"}},
		"benefits":      []string{"Two Cantrips: pick two."},
	}
	_, err := s.Upsert(ctx, "feats", storage.NameKey("Magic Initiate"), fields)
	require.NoError(t, err)

	got, err := s.FindByName(ctx, "feats", "Magic Initiate")
	require.NoError(t, err)
	assert.Equal(t, true, got.Fields["repeatable"])
	assert.Equal(t, map[string]any{"level": 4, "proficiency": []any{"Arcana"}}, got.Fields["prerequisites"])
	assert.Equal(t, []any{"Two Cantrips: pick two."}, got.Fields["benefits"])
	assert.Nil(t, got.Fields["ability_score_increase"])
}

func TestStore_CompositeKey(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	key := storage.Key{Columns: []string{"class_name", "name", "level"}, Values: []any{"Wizard", "Arcane Recovery", 1}}
	fields := map[string]any{"description": "Recover slots.", "feature_type": "feature"}

	outcome, err := s.Upsert(ctx, "class_features", key, fields)
	require.NoError(t, err)
	assert.Equal(t, storage.Created, outcome)

	outcome, err = s.Upsert(ctx, "class_features", key, fields)
	require.NoError(t, err)
	assert.Equal(t, storage.Updated, outcome)

	got, err := s.FindByNaturalKey(ctx, "class_features", key)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Fields["level"])
	assert.Equal(t, "Wizard", got.Fields["class_name"])
}

func TestStore_RejectsBadIdentifiers(t *testing.T) {
	s := setupStore(t)
	_, err := s.Upsert(context.Background(), "skills; --", storage.NameKey("x"), map[string]any{"name": "x"})
	assert.True(t, errors.Is(err, storage.ErrInvalidIdentifier))

	_, err = s.Upsert(context.Background(), "skills", storage.NameKey("x"), map[string]any{"name\"": "x"})
	assert.True(t, errors.Is(err, storage.ErrInvalidIdentifier))
}

func TestStore_WithTx(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.Upsert(ctx, "feats", storage.NameKey("Alert"), map[string]any{"name": "Alert", "feat_type": "origin", "description": "Always ready."})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if _, err := tx.DeleteAll(ctx, "feats"); err != nil {
			return err
		}
		if _, err := tx.Upsert(ctx, "feats", storage.NameKey("Lucky"), map[string]any{"name": "Lucky", "feat_type": "origin", "description": "Luck."}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := s.List(ctx, "feats")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Alert", all[0].Fields["name"])

	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if _, err := tx.DeleteAll(ctx, "feats"); err != nil {
			return err
		}
		_, err := tx.Upsert(ctx, "feats", storage.NameKey("Lucky"), map[string]any{"name": "Lucky", "feat_type": "origin", "description": "Luck."})
		return err
	})
	require.NoError(t, err)

	all, err = s.List(ctx, "feats")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Lucky", all[0].Fields["name"])
}

func TestStore_Link(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.Upsert(ctx, "classes", storage.NameKey("Wizard"), map[string]any{
		"name": "Wizard", "description": "Scholars.", "primary_ability": "INT", "difficulty": "moderate",
	})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "spells", storage.NameKey("Fire Bolt"), map[string]any{
		"name": "Fire Bolt", "spell_level": 0, "school": "evocation", "casting_time": "action",
		"range": "120_feet", "duration": "instantaneous", "description": "Fire.",
	})
	require.NoError(t, err)
	key := storage.Key{Columns: []string{"class_name", "name"}, Values: []any{"Wizard", "School of Evocation"}}
	_, err = s.Upsert(ctx, "subclasses", key, map[string]any{"description": "Blasters."})
	require.NoError(t, err)

	wizard, err := s.FindByName(ctx, "classes", "Wizard")
	require.NoError(t, err)
	spell, err := s.FindByName(ctx, "spells", "Fire Bolt")
	require.NoError(t, err)
	sub, err := s.FindByNaturalKey(ctx, "subclasses", key)
	require.NoError(t, err)

	linked, err := s.Linked(ctx, spellClasses, spell.ID, wizard.ID)
	require.NoError(t, err)
	assert.False(t, linked)

	created, err := s.Link(ctx, spellClasses, spell.ID, wizard.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Link(ctx, spellClasses, spell.ID, wizard.ID)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := s.CountLinks(ctx, spellClasses)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	created, err = s.Link(ctx, subclassClass, sub.ID, wizard.ID)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Link(ctx, subclassClass, sub.ID, wizard.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.Upsert(ctx, "subclasses", key, map[string]any{"description": "Blasters, again."})
	require.NoError(t, err)
	sub, err = s.FindByNaturalKey(ctx, "subclasses", key)
	require.NoError(t, err)
	assert.Equal(t, wizard.ID, sub.Fields["class_id"])

	_, err = s.Link(ctx, spellClasses, spell.ID, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = s.Link(ctx, spellClasses, spell.ID, "6f1c1f55-4ad4-4c8e-9a55-7d3f0e0e0e0e")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	cleared, err := s.ClearLinks(ctx, subclassClass)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)
	sub, err = s.FindByNaturalKey(ctx, "subclasses", key)
	require.NoError(t, err)
	assert.Nil(t, sub.Fields["class_id"])
	_, err = s.Link(ctx, subclassClass, sub.ID, wizard.ID)
	require.NoError(t, err)

	deleted, err := s.DeleteAll(ctx, "classes")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err = s.CountLinks(ctx, spellClasses)
	require.NoError(t, err)
	assert.Zero(t, n)
	sub, err = s.FindByNaturalKey(ctx, "subclasses", key)
	require.NoError(t, err)
	assert.Nil(t, sub.Fields["class_id"])
}

func TestVersion(t *testing.T) {
	setupStore(t)

	version, dirty, err := Version(sharedDBURL)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestSchemaVersion(t *testing.T) {
	version, err := SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
