package content

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/characterforge/compendium/internal/config"
	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/filter"
	"github.com/characterforge/compendium/internal/source"
	"github.com/characterforge/compendium/internal/storage"
	"github.com/characterforge/compendium/internal/storage/memory"
	"github.com/characterforge/compendium/internal/storage/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Len(t, reg.Kinds(), 11)
	assert.Len(t, reg.Links(), 8)

	phases := etl.PhasesFromConfig(config.DefaultPipeline().Phases)
	assert.NoError(t, phases.Validate(reg))
}

func newPipeline(t *testing.T, store storage.Repository, opts etl.ImportOptions) *etl.Orchestrator {
	t.Helper()
	return newPipelineWith(t, store, etl.OrchestratorOptions{Import: opts})
}

func newPipelineWith(t *testing.T, store storage.Repository, opts etl.OrchestratorOptions) *etl.Orchestrator {
	t.Helper()
	reg, err := NewRegistry()
	require.NoError(t, err)
	loader, err := source.NewLoader("testdata/data")
	require.NoError(t, err)

	pipeline := config.DefaultPipeline()
	rules := pipeline.SourceRules
	opts.Import.Rules = filter.NewRules(rules.AllowedSources, rules.ExcludedSources, rules.ExcludedEditions)
	opts.Import.Priority = etl.NewPriority(pipeline.Priority)

	o, err := etl.NewOrchestrator(reg, etl.PhasesFromConfig(pipeline.Phases), loader, store, zerolog.Nop(), opts)
	require.NoError(t, err)
	return o
}

type counts struct {
	created, updated, skipped, errored int
}

func resultCounts(t *testing.T, report *etl.Report, name string, link bool) counts {
	t.Helper()
	res, ok := report.Result(name, link)
	require.True(t, ok, name)
	return counts{res.Created, res.Updated, res.Skipped, res.Errored}
}

func TestPipeline_FullRun(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	report, err := newPipeline(t, store, etl.ImportOptions{}).Run(ctx, etl.Selection{})
	require.NoError(t, err)

	imports := map[string]counts{
		"skills":         {created: 3, skipped: 1},
		"languages":      {created: 3},
		"species":        {created: 4, skipped: 1},
		"classes":        {created: 2},
		"feats":          {created: 2, skipped: 1},
		"species_traits": {created: 3, skipped: 1},
		"class_features": {created: 2, errored: 1},
		"subclasses":     {created: 1},
		"backgrounds":    {created: 2},
		"equipment":      {created: 3, skipped: 1},
		"spells":         {created: 2, errored: 1},
	}
	for kind, want := range imports {
		assert.Equal(t, want, resultCounts(t, report, kind, false), kind)
	}

	links := map[string]counts{
		"class_feature_class":    {created: 2},
		"subclass_class":         {created: 1},
		"species_trait_species":  {created: 3},
		"species_parent":         {created: 2},
		"background_origin_feat": {created: 1},
		"spell_classes":          {created: 3, errored: 1},
		"species_languages":      {created: 6},
		"background_skills":      {created: 3, errored: 1},
	}
	for name, want := range links {
		assert.Equal(t, want, resultCounts(t, report, name, true), name)
	}

	wizard, err := store.FindByName(ctx, "classes", "wizard")
	require.NoError(t, err)
	sub, err := store.FindByNaturalKey(ctx, "subclasses", storage.Key{
		Columns: []string{"class_name", "name"},
		Values:  []any{"Wizard", "School of Evocation"},
	})
	require.NoError(t, err)
	assert.Equal(t, wizard.ID, sub.Fields["class_id"])
	assert.Equal(t, 2, sub.Fields["level_available"])

	hill, err := store.FindByName(ctx, "species", "Dwarf (Hill)")
	require.NoError(t, err)
	dwarf, err := store.FindByName(ctx, "species", "Dwarf")
	require.NoError(t, err)
	assert.Equal(t, dwarf.ID, hill.Fields["parent_id"])
	assert.Equal(t, 25, dwarf.Fields["speed"])
	assert.Equal(t, "PHB", dwarf.Fields["source"])

	var unresolved []string
	for _, e := range report.Errors() {
		if e.Stage == etl.StageLink {
			unresolved = append(unresolved, e.Message)
		}
	}
	assert.ElementsMatch(t, []string{
		`spell_classes: "Shield" references unknown "Artificer"`,
		`background_skills: "Guide" references unknown "Survival"`,
	}, unresolved)
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := newPipeline(t, store, etl.ImportOptions{}).Run(ctx, etl.Selection{})
	require.NoError(t, err)
	report, err := newPipeline(t, store, etl.ImportOptions{}).Run(ctx, etl.Selection{})
	require.NoError(t, err)

	assert.Zero(t, report.Totals().Created)
	assert.Equal(t, counts{updated: 3, skipped: 1}, resultCounts(t, report, "skills", false))
	assert.Equal(t, counts{updated: 6}, resultCounts(t, report, "species_languages", true))

	n, err := store.Count(ctx, "equipment")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPipeline_SingleKindWithClear(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.Upsert(ctx, "spells", storage.NameKey("Stale Spell"), map[string]any{"name": "Stale Spell"})
	require.NoError(t, err)

	report, err := newPipeline(t, store, etl.ImportOptions{Clear: true}).Run(ctx, etl.Selection{Kind: "spells"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	all, err := store.List(ctx, "spells")
	require.NoError(t, err)
	var names []string
	for _, e := range all {
		names = append(names, e.Fields["name"].(string))
	}
	assert.ElementsMatch(t, []string{"Fire Bolt", "Shield"}, names)
}

func TestPipeline_ParallelMatchesSequential(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.Repository{
		"memory": func(t *testing.T) storage.Repository { return memory.New() },
		"sqlite": func(t *testing.T) storage.Repository {
			s, err := sqlite.Open(filepath.Join(t.TempDir(), "compendium.db"))
			require.NoError(t, err)
			t.Cleanup(s.Close)
			require.NoError(t, s.Migrate())
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seqStore := newStore(t)
			seq, err := newPipelineWith(t, seqStore, etl.OrchestratorOptions{}).Run(ctx, etl.Selection{})
			require.NoError(t, err)
			parStore := newStore(t)
			par, err := newPipelineWith(t, parStore, etl.OrchestratorOptions{Parallel: true}).Run(ctx, etl.Selection{})
			require.NoError(t, err)

			assert.Equal(t, seq.Totals(), par.Totals())
			require.Len(t, par.Results, len(seq.Results))
			for _, want := range seq.Results {
				assert.Equal(t,
					resultCounts(t, seq, want.Name, want.Link),
					resultCounts(t, par, want.Name, want.Link),
					want.Name)
			}
			assert.ElementsMatch(t, seq.Errors(), par.Errors())

			reg, err := NewRegistry()
			require.NoError(t, err)
			for _, kind := range reg.Kinds() {
				want, err := seqStore.Count(ctx, string(kind))
				require.NoError(t, err)
				got, err := parStore.Count(ctx, string(kind))
				require.NoError(t, err)
				assert.Equal(t, want, got, kind)
			}
		})
	}
}
