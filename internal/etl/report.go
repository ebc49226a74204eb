package etl

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stage is where in the pipeline a record failed.
type Stage string

const (
	StageFilter    Stage = "filter"
	StageTransform Stage = "transform"
	StageValidate  Stage = "validate"
	StagePersist   Stage = "persist"
	StageLink      Stage = "link"
)

// ErrorRecord is one non-fatal per-record failure.
type ErrorRecord struct {
	// Key is the natural key when known, else the raw record reference.
	Key     string
	Stage   Stage
	Message string
}

// RunResult holds the counters of one importer or one link relation.
type RunResult struct {
	// Name is the entity kind, or the relation name for link results.
	Name     string
	Link     bool
	Created  int
	Updated  int
	Skipped  int
	Errored  int
	Errors   []ErrorRecord
	Notes    []Note
	Duration time.Duration
}

func newResult(name string, link bool) *RunResult {
	return &RunResult{Name: name, Link: link}
}

func (r *RunResult) fail(key string, stage Stage, err error) {
	r.Errored++
	r.Errors = append(r.Errors, ErrorRecord{Key: key, Stage: stage, Message: err.Error()})
}

func (r *RunResult) failedAt(stage Stage) bool {
	for _, e := range r.Errors {
		if e.Stage == stage {
			return true
		}
	}
	return false
}

func (r *RunResult) Total() int {
	return r.Created + r.Updated + r.Skipped + r.Errored
}

func (r *RunResult) label() string {
	if r.Link {
		return "link " + r.Name
	}
	return r.Name
}

// Report aggregates the results of one run. Add is safe for concurrent use;
// everything else is meant for after the run completes.
type Report struct {
	RunID      string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []*RunResult

	mu sync.Mutex
}

// NewReport starts an empty report for a run.
func NewReport(runID string, dryRun bool) *Report {
	return &Report{RunID: runID, DryRun: dryRun, StartedAt: time.Now()}
}

// Add appends a result. It is safe for concurrent use; nil results are
// ignored.
func (r *Report) Add(result *RunResult) {
	if result == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, result)
}

// Result returns the importer result for kind, or the link result for a
// relation name when link is set.
func (r *Report) Result(name string, link bool) (*RunResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.Results {
		if res.Name == name && res.Link == link {
			return res, true
		}
	}
	return nil, false
}

// Totals sums every result.
func (r *Report) Totals() RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := RunResult{Name: "TOTAL"}
	for _, res := range r.Results {
		total.Created += res.Created
		total.Updated += res.Updated
		total.Skipped += res.Skipped
		total.Errored += res.Errored
	}
	return total
}

// Errors returns every error record in result order.
func (r *Report) Errors() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ErrorRecord
	for _, res := range r.Results {
		out = append(out, res.Errors...)
	}
	return out
}

func (r *Report) ErrorCount() int {
	return len(r.Errors())
}

func (r *Report) finish() {
	r.FinishedAt = time.Now()
}

// PrintOptions controls how much of the report is printed.
//
//	0: the counts table only
//	1: plus the total error count and the first MaxErrors errors
//	2: plus every error and every note
type PrintOptions struct {
	Verbosity int
	MaxErrors int
}

// Print writes the counts table, then errors and notes as opts allow.
func (r *Report) Print(w io.Writer, opts PrintOptions) {
	title := "Import report"
	if r.DryRun {
		title += " (dry run, nothing was written)"
	}
	fmt.Fprintf(w, "%s  run %s\n", title, r.RunID)
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-34s %-8s %-8s %-8s %-8s\n", "KIND", "CREATED", "UPDATED", "SKIPPED", "ERRORED")
	r.mu.Lock()
	results := append([]*RunResult(nil), r.Results...)
	r.mu.Unlock()
	for _, res := range results {
		fmt.Fprintf(w, "%-34s %-8d %-8d %-8d %-8d\n",
			res.label(), res.Created, res.Updated, res.Skipped, res.Errored,
		)
	}
	total := r.Totals()
	fmt.Fprintf(w, "---\n")
	fmt.Fprintf(w, "%-34s %-8d %-8d %-8d %-8d\n",
		total.Name, total.Created, total.Updated, total.Skipped, total.Errored,
	)

	if opts.Verbosity <= 0 {
		return
	}

	errs := r.Errors()
	fmt.Fprintf(w, "\nerrors: %d\n", len(errs))
	shown := errs
	if opts.Verbosity == 1 && len(shown) > opts.MaxErrors {
		shown = shown[:max(opts.MaxErrors, 0)]
	}
	for _, e := range shown {
		fmt.Fprintf(w, "  [%s] %s: %s\n", e.Stage, e.Key, e.Message)
	}
	if hidden := len(errs) - len(shown); hidden > 0 {
		fmt.Fprintf(w, "  ... and %d more (use -v to list all)\n", hidden)
	}

	if opts.Verbosity < 2 {
		return
	}

	var notes []Note
	for _, res := range results {
		notes = append(notes, res.Notes...)
	}
	fmt.Fprintf(w, "\nnotes: %d\n", len(notes))
	for _, n := range notes {
		fmt.Fprintf(w, "  [%s] %s %s: %s\n", n.Severity, n.Key, n.Field, n.Message)
	}
}
