package etl

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/characterforge/compendium/internal/filter"
	"github.com/characterforge/compendium/internal/metrics"
	"github.com/characterforge/compendium/internal/source"
	"github.com/characterforge/compendium/internal/storage"
	"github.com/characterforge/compendium/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// RecordSource yields the raw records of a collection. *source.Loader is the
// production implementation.
type RecordSource interface {
	Records(ctx context.Context, c source.Collection) iter.Seq2[source.Item, error]
}

// ImportOptions control how an importer writes. The zero value imports
// every record with last-write-wins collisions.
type ImportOptions struct {
	DryRun bool
	// Clear deletes every stored entity of the kind, atomically with the
	// first successful write of the run.
	Clear bool
	Rules filter.Rules
	// Priority ranks provenance codes for records colliding on a natural key
	// within the run.
	Priority Priority
	// PreservePriority also keeps a stored entity whose provenance outranks
	// the incoming record.
	PreservePriority bool
}

// errOutranked rolls back a write that would replace a higher priority entity.
var errOutranked = errors.New("stored entity has higher priority")

// Importer runs one entity kind through filter, transform, validate and
// persist.
type Importer struct {
	spec      *EntitySpec
	records   RecordSource
	store     storage.Repository
	validator *Validator
	logger    zerolog.Logger
}

// NewImporter creates an importer for spec. A nil validator gets a fresh
// one.
func NewImporter(spec *EntitySpec, records RecordSource, store storage.Repository, validator *Validator, logger zerolog.Logger) *Importer {
	if validator == nil {
		validator = NewValidator()
	}
	return &Importer{
		spec:      spec,
		records:   records,
		store:     store,
		validator: validator,
		logger:    logger.With().Str("kind", string(spec.Kind)).Logger(),
	}
}

// Run imports the kind. Per-record failures are recorded in the result; only
// source errors and cancellation are returned.
func (im *Importer) Run(ctx context.Context, opts ImportOptions) (result *RunResult, err error) {
	start := time.Now()
	kind := string(im.spec.Kind)
	result = newResult(kind, false)

	ctx, span := telemetry.StartSpan(ctx, "import "+kind,
		attribute.String("kind", kind),
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Bool("clear", opts.Clear),
	)
	defer func() {
		result.Duration = time.Since(start)
		telemetry.EndSpan(span, err)
		observe(result)
	}()

	im.logger.Debug().Bool("dry_run", opts.DryRun).Bool("clear", opts.Clear).Msg("import started")

	candidates := newArena(opts.Priority)
	for _, c := range im.spec.Collections {
		for item, err := range im.records.Records(ctx, c) {
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return result, err
				}
				return result, &SourceError{Kind: im.spec.Kind, Err: err}
			}
			im.stage(item, opts, candidates, result)
		}
	}

	if err := im.flush(ctx, opts, candidates, result); err != nil {
		return result, err
	}

	im.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errored", result.Errored).
		Dur("duration", time.Since(start)).
		Msg("import finished")
	return result, nil
}

// stage takes one raw record through filter, transform and validate and
// offers the surviving entities to the arena.
func (im *Importer) stage(item source.Item, opts ImportOptions, candidates *arena, result *RunResult) {
	decision := filter.Evaluate(item.Record, opts.Rules)
	if !decision.Included {
		result.Skipped++
		im.logger.Debug().Str("record", item.Ref()).Str("reason", string(decision.Reason)).Msg("record filtered")
		return
	}
	if im.spec.Include != nil && !im.spec.Include(item.Record) {
		result.Skipped++
		return
	}

	var notes Notes
	entities, err := im.spec.Transform(item, &notes)
	if err != nil {
		result.fail(item.Ref(), StageTransform, err)
		im.logger.Debug().Err(err).Str("record", item.Ref()).Msg("transform failed")
		return
	}
	result.Notes = append(result.Notes, notes.All(item.Ref())...)
	if len(entities) == 0 {
		result.Skipped++
		return
	}

	for _, e := range entities {
		if _, ok := e["source"]; !ok {
			e["source"] = decision.Tag.Source
		}
		ref := im.spec.Ref(e, item)
		if err := im.validator.Check(im.spec, e); err != nil {
			result.fail(ref, StageValidate, err)
			im.logger.Debug().Err(err).Str("record", ref).Msg("validation failed")
			continue
		}
		key, err := im.spec.KeyOf(e)
		if err != nil {
			result.fail(ref, StageValidate, err)
			continue
		}

		c := &candidate{key: key, entity: e, ref: ref}
		if loser := candidates.offer(c); loser != nil {
			winner := candidates.byKey[arenaKey(key)]
			result.Skipped++
			result.Notes = append(result.Notes, Note{
				Key:      ref,
				Field:    "source",
				Severity: SeverityInfo,
				Message:  fmt.Sprintf("%s record superseded by %s record", loser.source(), winner.source()),
			})
		}
	}
}

// flush persists the arena, one transaction per candidate.
func (im *Importer) flush(ctx context.Context, opts ImportOptions, candidates *arena, result *RunResult) error {
	kind := string(im.spec.Kind)
	clearPending := opts.Clear && !opts.DryRun
	pending := candidates.candidates()

	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			outcome storage.Outcome
			err     error
		)
		if opts.DryRun {
			outcome, err = im.preview(ctx, c, opts)
		} else {
			outcome, err = im.persist(ctx, c, opts, clearPending)
		}

		switch {
		case errors.Is(err, errOutranked):
			result.Skipped++
			result.Notes = append(result.Notes, Note{
				Key:      c.ref,
				Field:    "source",
				Severity: SeverityInfo,
				Message:  fmt.Sprintf("kept stored entity, it outranks %s", c.source()),
			})
		case err != nil:
			result.fail(c.ref, StagePersist, &PersistenceError{Err: err})
			im.logger.Debug().Err(err).Str("record", c.ref).Msg("persist failed")
		default:
			clearPending = false
			if outcome == storage.Created {
				result.Created++
			} else {
				result.Updated++
			}
		}
	}

	// Clearing on its own is only allowed when there was nothing to write.
	// If every write failed the stored entities stay.
	if clearPending && len(pending) == 0 {
		deleted, err := im.store.DeleteAll(ctx, kind)
		if err != nil {
			result.fail(kind, StagePersist, &PersistenceError{Err: fmt.Errorf("clear %s: %w", kind, err)})
			return nil
		}
		im.logger.Info().Int64("deleted", deleted).Msg("cleared kind with nothing to import")
	}
	return nil
}

func (im *Importer) persist(ctx context.Context, c *candidate, opts ImportOptions, clear bool) (storage.Outcome, error) {
	kind := string(im.spec.Kind)
	var outcome storage.Outcome

	err := im.store.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if clear {
			deleted, err := tx.DeleteAll(ctx, kind)
			if err != nil {
				return fmt.Errorf("clear %s: %w", kind, err)
			}
			im.logger.Info().Int64("deleted", deleted).Msg("cleared existing entities")
		}
		if err := im.checkStored(ctx, tx, c, opts); err != nil {
			return err
		}
		var err error
		outcome, err = tx.Upsert(ctx, kind, c.key, map[string]any(c.entity))
		return err
	})
	return outcome, err
}

// preview answers what persist would do without writing.
func (im *Importer) preview(ctx context.Context, c *candidate, opts ImportOptions) (storage.Outcome, error) {
	if opts.Clear {
		return storage.Created, nil
	}
	if err := im.checkStored(ctx, im.store, c, opts); err != nil {
		return 0, err
	}
	_, err := im.store.FindByNaturalKey(ctx, string(im.spec.Kind), c.key)
	switch {
	case err == nil:
		return storage.Updated, nil
	case errors.Is(err, storage.ErrNotFound):
		return storage.Created, nil
	default:
		return 0, err
	}
}

// checkStored returns errOutranked when cross-run priority is enabled and the
// stored entity outranks c.
func (im *Importer) checkStored(ctx context.Context, repo storage.Repository, c *candidate, opts ImportOptions) error {
	if !opts.PreservePriority || !opts.Priority.Enabled() {
		return nil
	}
	stored, err := repo.FindByNaturalKey(ctx, string(im.spec.Kind), c.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	storedSource, _ := stored.Fields["source"].(string)
	if storedSource == "" {
		storedSource = filter.UnknownSource
	}
	if opts.Priority.Outranks(storedSource, c.source()) {
		return errOutranked
	}
	return nil
}

func observe(result *RunResult) {
	name := result.Name
	if result.Link {
		metrics.LinksResolved.WithLabelValues(name, "created").Add(float64(result.Created))
		metrics.LinksResolved.WithLabelValues(name, "updated").Add(float64(result.Updated))
		metrics.LinksResolved.WithLabelValues(name, "errored").Add(float64(result.Errored))
		return
	}
	metrics.RecordsProcessed.WithLabelValues(name, "created").Add(float64(result.Created))
	metrics.RecordsProcessed.WithLabelValues(name, "updated").Add(float64(result.Updated))
	metrics.RecordsProcessed.WithLabelValues(name, "skipped").Add(float64(result.Skipped))
	metrics.RecordsProcessed.WithLabelValues(name, "errored").Add(float64(result.Errored))
	for _, e := range result.Errors {
		metrics.RecordErrors.WithLabelValues(name, string(e.Stage)).Inc()
	}
	metrics.ImportDuration.WithLabelValues(name).Observe(result.Duration.Seconds())
}
