package cmd

import (
	"fmt"
	"strings"

	"github.com/characterforge/compendium/internal/config"
	"github.com/characterforge/compendium/internal/content"
	"github.com/characterforge/compendium/internal/etl"
	"github.com/spf13/cobra"
)

var phasesPipeline string

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "Print the resolved phase table",
	Long: `Print the phase table an import would run, after the pipeline file is applied
and checked against the registered entity kinds. No store is opened.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, err := config.LoadPipeline(pipelinePath(phasesPipeline))
		if err != nil {
			return &etl.ConfigurationError{Message: err.Error()}
		}
		registry, err := content.NewRegistry()
		if err != nil {
			return err
		}
		phases := etl.PhasesFromConfig(pipeline.Phases)
		if err := phases.Validate(registry); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-6s %-22s %s\n", "PHASE", "NAME", "RUNS")
		for _, p := range phases {
			runs := "relationship linking"
			if !p.Link {
				kinds := make([]string, len(p.Kinds))
				for i, k := range p.Kinds {
					kinds[i] = string(k)
				}
				runs = strings.Join(kinds, ", ")
			}
			fmt.Fprintf(out, "%-6d %-22s %s\n", p.ID, p.Name, runs)
		}
		if len(pipeline.Priority) > 0 {
			fmt.Fprintf(out, "\npriority: %s\n", strings.Join(pipeline.Priority, " > "))
		}
		return nil
	},
}

func init() {
	phasesCmd.Flags().StringVar(&phasesPipeline, "pipeline", "", "pipeline YAML file (default: PIPELINE_FILE or built-in)")
}
