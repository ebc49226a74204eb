package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/characterforge/compendium/internal/config"
	"github.com/characterforge/compendium/internal/content"
	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/filter"
	"github.com/characterforge/compendium/internal/source"
	"github.com/characterforge/compendium/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	importPhase     int
	importKind      string
	importClear     bool
	importDryRun    bool
	importDataDir   string
	importPipeline  string
	importParallel  bool
	importVerbose   int
	importQuiet     bool
	importMaxErrors int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import source content into the store",
	Long: `Import source content into the store.

Without a selection every phase of the pipeline runs in order, ending with the
relationship phase. --phase runs one phase; --kind runs one entity kind and
skips linking.

Per-record problems never stop a run. They are counted in the report and the
record is skipped. A bad argument, an unknown phase or kind, or a missing or
malformed source file aborts with a non-zero exit.

Examples:
  # Full import from ./data
  compendium import

  # Re-import spells only, replacing what is stored
  compendium import --kind spells --clear

  # Preview phase 2 against another data directory
  compendium import --phase 2 --dry-run --data-dir ../5etools/data -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Phase ids start at 1, so an explicit 0 would read as no selection.
		if cmd.Flags().Changed("phase") && importPhase <= 0 {
			return &etl.ConfigurationError{Message: fmt.Sprintf("unknown phase %d (phase ids start at 1)", importPhase)}
		}
		return runPipeline(cmd, etl.Selection{Phase: importPhase, Kind: etl.Kind(importKind)}, runFlags{
			clear:     importClear,
			dryRun:    importDryRun,
			dataDir:   importDataDir,
			pipeline:  importPipeline,
			parallel:  importParallel,
			verbose:   importVerbose,
			quiet:     importQuiet,
			maxErrors: importMaxErrors,
		})
	},
}

func init() {
	importCmd.Flags().IntVar(&importPhase, "phase", 0, "run only this phase")
	importCmd.Flags().StringVar(&importKind, "kind", "", "run only this entity kind (no linking)")
	importCmd.Flags().BoolVar(&importClear, "clear", false, "delete stored entities of each imported kind first")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "run every stage except writes")
	importCmd.Flags().StringVar(&importDataDir, "data-dir", "", "source data root (default: DATA_DIR or ./data)")
	importCmd.Flags().StringVar(&importPipeline, "pipeline", "", "pipeline YAML file (default: PIPELINE_FILE or built-in)")
	importCmd.Flags().BoolVar(&importParallel, "parallel", false, "run the importers of a phase concurrently")
	importCmd.Flags().CountVarP(&importVerbose, "verbose", "v", "list every error and note")
	importCmd.Flags().BoolVar(&importQuiet, "quiet", false, "print the counts table only")
	importCmd.Flags().IntVar(&importMaxErrors, "max-errors", -1, "errors listed at default verbosity (default: IMPORT_MAX_ERRORS)")
	importCmd.MarkFlagsMutuallyExclusive("phase", "kind")
	importCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// runFlags are the per-invocation overrides shared by import and link.
type runFlags struct {
	linkOnly   bool
	clearLinks bool
	clear      bool
	dryRun     bool
	dataDir    string
	pipeline   string
	parallel   bool
	verbose    int
	quiet      bool
	maxErrors  int
}

func (f runFlags) apply(cfg *config.ImportConfig) {
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.pipeline != "" {
		cfg.PipelineFile = f.pipeline
	}
	if f.parallel {
		cfg.Parallel = true
	}
	switch {
	case f.quiet:
		cfg.Verbosity = 0
	case f.verbose > 0:
		cfg.Verbosity = 2
	}
	if f.maxErrors >= 0 {
		cfg.MaxErrors = f.maxErrors
	}
}

func runPipeline(cmd *cobra.Command, sel etl.Selection, flags runFlags) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	flags.apply(&sess.cfg.Import)
	opts := sess.cfg.Import
	logger := sess.logger

	pipeline, err := config.LoadPipeline(opts.PipelineFile)
	if err != nil {
		return &etl.ConfigurationError{Message: err.Error()}
	}
	registry, err := content.NewRegistry()
	if err != nil {
		return err
	}
	// The link phase reads only the store.
	var records etl.RecordSource
	if !flags.linkOnly {
		loader, err := source.NewLoader(opts.DataDir)
		if err != nil {
			return &etl.ConfigurationError{Message: err.Error()}
		}
		records = loader
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitTracing(ctx, sess.cfg.Tracing, Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	store, err := sess.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	defer sess.finish(store)

	rules := pipeline.SourceRules
	orchestrator, err := etl.NewOrchestrator(registry, etl.PhasesFromConfig(pipeline.Phases), records, store, logger, etl.OrchestratorOptions{
		Import: etl.ImportOptions{
			DryRun:           flags.dryRun,
			Clear:            flags.clear,
			Rules:            filter.NewRules(rules.AllowedSources, rules.ExcludedSources, rules.ExcludedEditions),
			Priority:         etl.NewPriority(pipeline.Priority),
			PreservePriority: pipeline.PreservePriorityAcrossRuns,
		},
		ClearLinks: flags.clearLinks,
		Parallel:   opts.Parallel,
	})
	if err != nil {
		return err
	}

	if flags.linkOnly {
		id, ok := linkPhase(orchestrator.Phases())
		if !ok {
			return &etl.ConfigurationError{Message: "the pipeline has no link phase"}
		}
		sel = etl.Selection{Phase: id}
	}

	report, runErr := orchestrator.Run(ctx, sel)
	if report != nil {
		report.Print(cmd.OutOrStdout(), etl.PrintOptions{Verbosity: opts.Verbosity, MaxErrors: opts.MaxErrors})
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn().Msg("import interrupted")
		}
		return runErr
	}
	return nil
}

func linkPhase(phases etl.PhaseTable) (int, bool) {
	for _, p := range phases {
		if p.Link {
			return p.ID, true
		}
	}
	return 0, false
}
