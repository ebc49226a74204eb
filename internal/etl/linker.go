package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/characterforge/compendium/internal/storage"
	"github.com/characterforge/compendium/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// LinkOptions control a linker run.
type LinkOptions struct {
	DryRun bool
	// Clear removes the stored links of each relation before resolving it
	// again, in the same transaction. References dropped from the source
	// data disappear instead of lingering.
	Clear bool
}

// errRelinkAborted rolls back a cleared relation when a link could not be
// stored.
var errRelinkAborted = errors.New("a link could not be stored")

// Linker resolves named references between stored entities into foreign keys
// and join rows. Targets are matched by name, case-insensitively.
type Linker struct {
	links  []LinkSpec
	store  storage.Repository
	logger zerolog.Logger
}

// NewLinker returns a linker for links, run in the order given.
func NewLinker(links []LinkSpec, store storage.Repository, logger zerolog.Logger) *Linker {
	return &Linker{
		links:  links,
		store:  store,
		logger: logger.With().Str("component", "linker").Logger(),
	}
}

// Run resolves every link spec in order and returns one result per spec.
// Unresolved references are recorded, not returned.
func (l *Linker) Run(ctx context.Context, opts LinkOptions) ([]*RunResult, error) {
	results := make([]*RunResult, 0, len(l.links))
	for _, link := range l.links {
		var (
			result *RunResult
			err    error
		)
		if opts.Clear && !opts.DryRun {
			result, err = l.relink(ctx, link, opts)
		} else {
			result, err = l.resolve(ctx, l.store, link, opts)
		}
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// relink clears a relation and resolves it again in one transaction. Any
// storage failure rolls both back and the stored links stay as they were.
func (l *Linker) relink(ctx context.Context, link LinkSpec, opts LinkOptions) (*RunResult, error) {
	var result *RunResult
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		cleared, err := tx.ClearLinks(ctx, link.Relation())
		if err != nil {
			return fmt.Errorf("clear %s: %w", link.Name, err)
		}
		l.logger.Info().Str("relation", link.Name).Int64("cleared", cleared).Msg("cleared relation")

		result, err = l.resolve(ctx, tx, link, opts)
		if err != nil {
			return err
		}
		if result.failedAt(StagePersist) {
			return errRelinkAborted
		}
		return nil
	})
	if err == nil {
		return result, nil
	}

	if result == nil {
		result = newResult(link.Name, true)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	result.Created, result.Updated = 0, 0
	result.fail(link.Name, StagePersist, &PersistenceError{Err: fmt.Errorf("relink %s rolled back: %w", link.Name, err)})
	l.logger.Warn().Err(err).Str("relation", link.Name).Msg("relink rolled back")
	return result, nil
}

// resolve links every source entity of one relation through repo.
func (l *Linker) resolve(ctx context.Context, repo storage.Repository, link LinkSpec, opts LinkOptions) (result *RunResult, err error) {
	start := time.Now()
	result = newResult(link.Name, true)
	logger := l.logger.With().Str("relation", link.Name).Logger()

	ctx, span := telemetry.StartSpan(ctx, "link "+link.Name,
		attribute.String("relation", link.Name),
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Bool("clear", opts.Clear),
	)
	defer func() {
		result.Duration = time.Since(start)
		telemetry.EndSpan(span, err)
		observe(result)
	}()

	rel := link.Relation()
	sources, err := repo.List(ctx, string(link.Source))
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.fail(string(link.Source), StagePersist, &PersistenceError{Err: err})
		logger.Warn().Err(err).Msg("list source entities failed")
		return result, nil
	}

	targets := make(map[string]string)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		fields := Entity(src.Fields)
		ref := fields.String("name")
		if ref == "" {
			ref = src.ID
		}

		names := uniqueNames(fields.Strings(link.Field))
		if link.Cardinality == storage.ForeignKey && len(names) > 1 {
			names = names[:1]
		}

		for _, name := range names {
			targetID, err := lookup(ctx, repo, link.Target, name, targets)
			if errors.Is(err, storage.ErrNotFound) {
				result.fail(ref, StageLink, &LinkResolutionError{Relation: link.Name, Key: ref, Target: name})
				logger.Debug().Str("source", ref).Str("target", name).Msg("unresolved reference")
				continue
			}
			if err != nil {
				result.fail(ref, StagePersist, &PersistenceError{Err: err})
				continue
			}

			var changed bool
			switch {
			case opts.DryRun && opts.Clear:
				changed = true
			case opts.DryRun:
				var linked bool
				linked, err = repo.Linked(ctx, rel, src.ID, targetID)
				changed = !linked
			default:
				changed, err = repo.Link(ctx, rel, src.ID, targetID)
			}
			if err != nil {
				result.fail(ref, StagePersist, &PersistenceError{Err: err})
				continue
			}
			if changed {
				result.Created++
			} else {
				result.Updated++
			}
		}
	}

	logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errored", result.Errored).
		Msg("relation linked")
	return result, nil
}

// lookup finds a target id by name. Misses are cached as "".
func lookup(ctx context.Context, repo storage.Repository, kind Kind, name string, cache map[string]string) (string, error) {
	k := strings.ToLower(name)
	if id, ok := cache[k]; ok {
		if id == "" {
			return "", storage.ErrNotFound
		}
		return id, nil
	}
	target, err := repo.FindByName(ctx, string(kind), name)
	if errors.Is(err, storage.ErrNotFound) {
		cache[k] = ""
		return "", err
	}
	if err != nil {
		return "", err
	}
	cache[k] = target.ID
	return target.ID, nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		n = strings.TrimSpace(n)
		k := strings.ToLower(n)
		if n == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}
