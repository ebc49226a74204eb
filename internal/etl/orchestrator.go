package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/characterforge/compendium/internal/config"
	"github.com/characterforge/compendium/internal/domain/ids"
	"github.com/characterforge/compendium/internal/metrics"
	"github.com/characterforge/compendium/internal/storage"
	"github.com/characterforge/compendium/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Phase is one row of the phase table. A link phase runs the relationship
// linker and names no kinds.
type Phase struct {
	ID    int
	Name  string
	Kinds []Kind
	Link  bool
}

// PhaseTable is the ordered list of phases a full run executes.
type PhaseTable []Phase

// PhasesFromConfig converts the pipeline file's phases.
func PhasesFromConfig(cfgs []config.PhaseConfig) PhaseTable {
	table := make(PhaseTable, 0, len(cfgs))
	for _, c := range cfgs {
		p := Phase{ID: c.ID, Name: c.Name, Link: c.Link}
		for _, k := range c.Kinds {
			p.Kinds = append(p.Kinds, Kind(k))
		}
		table = append(table, p)
	}
	return table
}

// Validate checks the table against the registry. Every problem is reported.
func (t PhaseTable) Validate(reg *Registry) error {
	var errs []string
	if len(t) == 0 {
		errs = append(errs, "phase table is empty")
	}

	seen := make(map[int]bool, len(t))
	owner := make(map[Kind]int)
	prev := 0
	for _, p := range t {
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("phase %d is defined twice", p.ID))
		}
		seen[p.ID] = true
		if p.ID <= prev {
			errs = append(errs, fmt.Sprintf("phase %d is out of order", p.ID))
		}
		prev = p.ID

		if !p.Link && len(p.Kinds) == 0 {
			errs = append(errs, fmt.Sprintf("phase %d has no entity kinds", p.ID))
		}
		if p.Link && len(p.Kinds) > 0 {
			errs = append(errs, fmt.Sprintf("phase %d is a link phase and cannot import kinds", p.ID))
		}
		for _, k := range p.Kinds {
			if _, ok := reg.Get(k); !ok {
				errs = append(errs, fmt.Sprintf("phase %d: unknown entity kind %q", p.ID, k))
				continue
			}
			if other, dup := owner[k]; dup {
				errs = append(errs, fmt.Sprintf("entity kind %q appears in phases %d and %d", k, other, p.ID))
				continue
			}
			owner[k] = p.ID
		}
	}

	if len(errs) > 0 {
		return &ConfigurationError{Message: strings.Join(errs, "; ")}
	}
	return nil
}

// Selection picks what a run covers. The zero value selects every phase.
// Phase and Kind are mutually exclusive.
type Selection struct {
	Phase int
	Kind  Kind
}

// OrchestratorOptions configure a run. Import applies to every importer of
// the run.
type OrchestratorOptions struct {
	Import ImportOptions
	// ClearLinks makes the link phase replace each relation instead of
	// adding to it.
	ClearLinks bool
	// Parallel runs the importers of one phase concurrently.
	Parallel bool
	// RunID labels the report; a ULID is generated when empty.
	RunID string
}

// Orchestrator runs phases in table order. A phase finishes before the next
// starts; only fatal errors stop the run.
type Orchestrator struct {
	registry  *Registry
	phases    PhaseTable
	records   RecordSource
	store     storage.Repository
	validator *Validator
	logger    zerolog.Logger
	opts      OrchestratorOptions
}

// NewOrchestrator validates the phase table against reg and returns an
// orchestrator ready to run selections of it. records may be nil when only
// link phases will run.
func NewOrchestrator(reg *Registry, phases PhaseTable, records RecordSource, store storage.Repository, logger zerolog.Logger, opts OrchestratorOptions) (*Orchestrator, error) {
	if err := phases.Validate(reg); err != nil {
		return nil, err
	}
	return &Orchestrator{
		registry:  reg,
		phases:    phases,
		records:   records,
		store:     store,
		validator: NewValidator(),
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		opts:      opts,
	}, nil
}

// Phases returns a copy of the phase table.
func (o *Orchestrator) Phases() PhaseTable {
	return append(PhaseTable(nil), o.phases...)
}

// Plan resolves a selection to the phases to run. A kind selection runs that
// kind alone, without linking.
func (o *Orchestrator) Plan(sel Selection) ([]Phase, error) {
	switch {
	case sel.Phase != 0 && sel.Kind != "":
		return nil, configErrorf("select a phase or an entity kind, not both")
	case sel.Phase != 0:
		for _, p := range o.phases {
			if p.ID == sel.Phase {
				return []Phase{p}, nil
			}
		}
		known := make([]string, len(o.phases))
		for i, p := range o.phases {
			known[i] = fmt.Sprint(p.ID)
		}
		return nil, configErrorf("unknown phase %d (known phases: %s)", sel.Phase, strings.Join(known, ", "))
	case sel.Kind != "":
		if _, ok := o.registry.Get(sel.Kind); !ok {
			return nil, configErrorf("unknown entity kind %q (known kinds: %s)", sel.Kind, strings.Join(o.registry.SortedKinds(), ", "))
		}
		return []Phase{{Name: "kind " + string(sel.Kind), Kinds: []Kind{sel.Kind}}}, nil
	default:
		return o.Phases(), nil
	}
}

// Run executes the selection. The report is returned even when a fatal error
// stops the run, holding whatever completed before it.
func (o *Orchestrator) Run(ctx context.Context, sel Selection) (report *Report, err error) {
	plan, err := o.Plan(sel)
	if err != nil {
		return nil, err
	}

	runID := o.opts.RunID
	if runID == "" {
		runID, err = ids.NewULID()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
	}
	report = NewReport(runID, o.opts.Import.DryRun)
	defer report.finish()

	logger := o.logger.With().Str("run_id", runID).Logger()
	ctx, span := telemetry.StartSpan(ctx, "import run",
		attribute.String("run_id", runID),
		attribute.Bool("dry_run", o.opts.Import.DryRun),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	for _, phase := range plan {
		if err := o.runPhase(ctx, phase, report, logger); err != nil {
			logger.Error().Err(err).Int("phase", phase.ID).Msg("phase aborted")
			return report, err
		}
	}
	return report, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, phase Phase, report *Report, logger zerolog.Logger) (err error) {
	start := time.Now()
	logger = logger.With().Int("phase", phase.ID).Str("phase_name", phase.Name).Logger()
	logger.Info().Msg("phase started")

	ctx, span := telemetry.StartSpan(ctx, "phase "+phase.Name, attribute.Int("phase", phase.ID))
	defer func() {
		telemetry.EndSpan(span, err)
		metrics.PhaseDuration.WithLabelValues(phase.Name).Observe(time.Since(start).Seconds())
		if err == nil {
			logger.Info().Dur("duration", time.Since(start)).Msg("phase finished")
		}
	}()

	if phase.Link {
		linker := NewLinker(o.registry.Links(), o.store, logger)
		results, err := linker.Run(ctx, LinkOptions{DryRun: o.opts.Import.DryRun, Clear: o.opts.ClearLinks})
		for _, res := range results {
			report.Add(res)
		}
		return err
	}

	if !o.opts.Parallel {
		for _, kind := range phase.Kinds {
			if err := o.importKind(ctx, kind, report, logger); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range phase.Kinds {
		g.Go(func() error {
			return o.importKind(gctx, kind, report, logger)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) importKind(ctx context.Context, kind Kind, report *Report, logger zerolog.Logger) error {
	spec, ok := o.registry.Get(kind)
	if !ok {
		return configErrorf("unknown entity kind %q", kind)
	}
	if o.records == nil {
		return configErrorf("no source data configured to import %q", kind)
	}
	imp := NewImporter(spec, o.records, o.store, o.validator, logger)
	result, err := imp.Run(ctx, o.opts.Import)
	if err != nil {
		return err
	}
	report.Add(result)
	return nil
}
