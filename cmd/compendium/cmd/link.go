package cmd

import (
	"github.com/characterforge/compendium/internal/etl"
	"github.com/spf13/cobra"
)

var (
	linkDryRun   bool
	linkClear    bool
	linkPipeline string
	linkVerbose  int
	linkQuiet    bool
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Resolve relationships between stored entities",
	Long: `Run only the relationship phase: every reference held by name (a subclass's
class, a spell's classes, a background's skills, ...) is looked up and stored
as a foreign key or a join row. Linking is idempotent; references that cannot be
resolved are reported and left out.

Linking only adds. --clear-relationships first removes the stored links of each
relation, in the same transaction as relinking it, so references dropped from
the source data go away. No source files are read.

Examples:
  # Link after importing kinds one at a time
  compendium link

  # Rebuild every relationship from the stored entities
  compendium link --clear-relationships -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, etl.Selection{}, runFlags{
			linkOnly:   true,
			clearLinks: linkClear,
			dryRun:     linkDryRun,
			pipeline:   linkPipeline,
			verbose:    linkVerbose,
			quiet:      linkQuiet,
			maxErrors:  -1,
		})
	},
}

func init() {
	linkCmd.Flags().BoolVar(&linkDryRun, "dry-run", false, "report what would be linked without writing")
	linkCmd.Flags().BoolVar(&linkClear, "clear-relationships", false, "remove stored links of each relation before relinking it")
	linkCmd.Flags().StringVar(&linkPipeline, "pipeline", "", "pipeline YAML file (default: PIPELINE_FILE or built-in)")
	linkCmd.Flags().CountVarP(&linkVerbose, "verbose", "v", "list every error")
	linkCmd.Flags().BoolVar(&linkQuiet, "quiet", false, "print the counts table only")
	linkCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}
