package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/characterforge/compendium/internal/filter"
	"github.com/characterforge/compendium/internal/source"
	"github.com/characterforge/compendium/internal/storage"
	"github.com/characterforge/compendium/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSkillImporter(records RecordSource, store storage.Repository) *Importer {
	return NewImporter(skillSpec(), records, store, nil, zerolog.Nop())
}

func TestImporter_FiltersExcludedSources(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	records := fakeSource{"skill": {
		{"name": "Stealth", "ability": "dex", "source": "PHB"},
		{"name": "Perception", "ability": "wis", "source": "XPHB"},
	}}

	result, err := newSkillImporter(records, store).Run(ctx, ImportOptions{
		Rules: filter.NewRules(nil, []string{"XPHB"}, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Errored)

	all, err := store.List(ctx, "skills")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Stealth", all[0].Fields["name"])
	assert.Equal(t, "DEX", all[0].Fields["associated_ability"])
	assert.Equal(t, "PHB", all[0].Fields["source"])
}

func TestImporter_PriorityKeepsHigherRankedRecord(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		order    []source.Record
		priority []string
		want     string
	}{
		{
			name: "core first",
			order: []source.Record{
				{"name": "Fire Bolt", "level": 0, "damage": "1d10", "source": "PHB"},
				{"name": "Fire Bolt", "level": 0, "damage": "2d10", "source": "XGE"},
			},
			priority: []string{"PHB", "XGE"},
			want:     "1d10",
		},
		{
			name: "core last",
			order: []source.Record{
				{"name": "Fire Bolt", "level": 0, "damage": "2d10", "source": "XGE"},
				{"name": "Fire Bolt", "level": 0, "damage": "1d10", "source": "PHB"},
			},
			priority: []string{"PHB", "XGE"},
			want:     "1d10",
		},
		{
			name: "no priority means last wins",
			order: []source.Record{
				{"name": "Fire Bolt", "level": 0, "damage": "1d10", "source": "PHB"},
				{"name": "Fire Bolt", "level": 0, "damage": "2d10", "source": "XGE"},
			},
			want: "2d10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			imp := NewImporter(spellSpec(), fakeSource{"spell": tt.order}, store, nil, zerolog.Nop())

			result, err := imp.Run(ctx, ImportOptions{Priority: NewPriority(tt.priority)})
			require.NoError(t, err)
			assert.Equal(t, 1, result.Created)
			assert.Equal(t, 1, result.Skipped)

			got, err := store.FindByNaturalKey(ctx, "spells", storage.NameKey("Fire Bolt"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Fields["damage"])

			require.NotEmpty(t, result.Notes)
			assert.Equal(t, SeverityInfo, result.Notes[len(result.Notes)-1].Severity)
		})
	}
}

func TestImporter_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	records := fakeSource{"skill": {
		{"name": "Stealth", "ability": "dex", "source": "PHB"},
		{"name": "Arcana", "ability": "int", "source": "PHB"},
		{"name": "Athletics", "ability": "str", "source": "PHB"},
	}}
	imp := newSkillImporter(records, store)

	first, err := imp.Run(ctx, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)

	second, err := imp.Run(ctx, ImportOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 3, second.Updated)

	n, err := store.Count(ctx, "skills")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestImporter_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.Upsert(ctx, "skills", storage.NameKey("Stealth"), map[string]any{"name": "Stealth", "associated_ability": "DEX"})
	require.NoError(t, err)

	records := fakeSource{"skill": {
		{"name": "Stealth", "ability": "dex", "source": "PHB"},
		{"name": "Arcana", "ability": "int", "source": "PHB"},
	}}

	result, err := newSkillImporter(records, store).Run(ctx, ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)

	n, err := store.Count(ctx, "skills")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	result, err = newSkillImporter(records, store).Run(ctx, ImportOptions{DryRun: true, Clear: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)

	n, err = store.Count(ctx, "skills")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestImporter_RecordFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	records := fakeSource{"skill": {
		{"name": "Stealth", "ability": "dex"},
		{"ability": "wis"},
		{"name": "Arcana", "ability": "int"},
		{"name": "Insight"},
		{"name": "Religion", "ability": "faith"},
	}}

	result, err := newSkillImporter(records, store).Run(ctx, ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 3, result.Errored)
	require.Len(t, result.Errors, 3)

	assert.Equal(t, StageValidate, result.Errors[0].Stage)
	assert.Equal(t, "skills.json#1", result.Errors[0].Key)
	assert.Equal(t, StageTransform, result.Errors[1].Stage)
	assert.Equal(t, "Insight", result.Errors[1].Key)
	assert.Equal(t, StageValidate, result.Errors[2].Stage)
	assert.Contains(t, result.Errors[2].Message, "FAITH is not one of")
}

func TestImporter_PersistFailureRollsBackOneRecord(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Repository: memory.New(), failKey: "Arcana"}
	records := fakeSource{"skill": {
		{"name": "Stealth", "ability": "dex"},
		{"name": "Arcana", "ability": "int"},
		{"name": "Insight", "ability": "wis"},
	}}

	result, err := newSkillImporter(records, store).Run(ctx, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Errored)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, StagePersist, result.Errors[0].Stage)
	assert.Equal(t, "Arcana", result.Errors[0].Key)

	n, err := store.Count(ctx, "skills")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestImporter_Clear(t *testing.T) {
	ctx := context.Background()
	records := fakeSource{"skill": {
		{"name": "Stealth", "ability": "dex"},
		{"name": "Arcana", "ability": "int"},
	}}

	seed := func(t *testing.T, store storage.Repository) {
		t.Helper()
		for _, name := range []string{"Old One", "Old Two", "Old Three", "Stealth"} {
			_, err := store.Upsert(ctx, "skills", storage.NameKey(name), map[string]any{"name": name, "associated_ability": "STR"})
			require.NoError(t, err)
		}
	}

	t.Run("replaces everything", func(t *testing.T) {
		store := memory.New()
		seed(t, store)

		result, err := newSkillImporter(records, store).Run(ctx, ImportOptions{Clear: true})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Created)

		n, err := store.Count(ctx, "skills")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("first write fails", func(t *testing.T) {
		base := memory.New()
		seed(t, base)
		store := &failingStore{Repository: base, failKey: "Stealth"}

		result, err := newSkillImporter(records, store).Run(ctx, ImportOptions{Clear: true})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)
		assert.Equal(t, 1, result.Errored)

		all, err := base.List(ctx, "skills")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Arcana", all[0].Fields["name"])
	})

	t.Run("every write fails", func(t *testing.T) {
		base := memory.New()
		seed(t, base)
		store := &failingStore{Repository: base, failKey: "Stealth"}

		only := fakeSource{"skill": {{"name": "Stealth", "ability": "dex"}}}
		result, err := newSkillImporter(only, store).Run(ctx, ImportOptions{Clear: true})
		require.NoError(t, err)
		assert.Zero(t, result.Created)
		assert.Equal(t, 1, result.Errored)

		n, err := base.Count(ctx, "skills")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n, "a failed write must not leave the kind cleared")
	})

	t.Run("nothing to import", func(t *testing.T) {
		store := memory.New()
		seed(t, store)

		result, err := newSkillImporter(fakeSource{"skill": nil}, store).Run(ctx, ImportOptions{Clear: true})
		require.NoError(t, err)
		assert.Zero(t, result.Total())

		n, err := store.Count(ctx, "skills")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestImporter_PreservePriorityAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	imp := NewImporter(spellSpec(), fakeSource{"spell": {
		{"name": "Fire Bolt", "level": 0, "damage": "1d10", "source": "PHB"},
	}}, store, nil, zerolog.Nop())
	_, err := imp.Run(ctx, ImportOptions{})
	require.NoError(t, err)

	later := NewImporter(spellSpec(), fakeSource{"spell": {
		{"name": "Fire Bolt", "level": 0, "damage": "2d10", "source": "XGE"},
	}}, store, nil, zerolog.Nop())
	priority := NewPriority([]string{"PHB", "XGE"})

	result, err := later.Run(ctx, ImportOptions{Priority: priority, PreservePriority: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Updated)

	got, err := store.FindByNaturalKey(ctx, "spells", storage.NameKey("Fire Bolt"))
	require.NoError(t, err)
	assert.Equal(t, "1d10", got.Fields["damage"])

	// Without preservation the last write wins.
	result, err = later.Run(ctx, ImportOptions{Priority: priority})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	got, err = store.FindByNaturalKey(ctx, "spells", storage.NameKey("Fire Bolt"))
	require.NoError(t, err)
	assert.Equal(t, "2d10", got.Fields["damage"])
}

func TestImporter_IncludeAndEmptyTransforms(t *testing.T) {
	ctx := context.Background()
	spec := skillSpec()
	spec.Include = func(rec source.Record) bool { return !rec.Bool("srd_only") }

	records := fakeSource{"skill": {
		{"name": "Stealth", "ability": "dex"},
		{"name": "Hidden", "ability": "dex", "srd_only": true},
	}}
	result, err := NewImporter(spec, records, memory.New(), nil, zerolog.Nop()).Run(ctx, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestImporter_RecordsNotes(t *testing.T) {
	ctx := context.Background()
	imp := NewImporter(spellSpec(), fakeSource{"spell": {
		{"name": "Mystery", "level": "unknown"},
	}}, memory.New(), nil, zerolog.Nop())

	result, err := imp.Run(ctx, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, result.Notes, 1)
	assert.Equal(t, Note{Key: "Mystery", Field: "spell_level", Severity: SeverityFallback, Message: "unknown value unknown, using 0"}, result.Notes[0])
}

func TestImporter_SourceErrorsAreFatal(t *testing.T) {
	_, err := newSkillImporter(fakeSource{}, memory.New()).Run(context.Background(), ImportOptions{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	var srcErr *SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, Kind("skills"), srcErr.Kind)

	var missing *source.MissingSourceError
	assert.True(t, errors.As(err, &missing))
}

func TestImporter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := fakeSource{"skill": {{"name": "Stealth", "ability": "dex"}}}
	_, err := newSkillImporter(records, memory.New()).Run(ctx, ImportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsFatal(err))
}
