package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/characterforge/compendium/internal/content"
	"github.com/characterforge/compendium/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the build version, the store schema version the binary migrates to and
the entity kinds it can import.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := postgres.SchemaVersion()
		if err != nil {
			return err
		}
		registry, err := content.NewRegistry()
		if err != nil {
			return err
		}
		kinds := registry.SortedKinds()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "compendium %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		fmt.Fprintf(out, "Schema:     %d\n", schema)
		fmt.Fprintf(out, "Kinds:      %d (%s)\n", len(kinds), strings.Join(kinds, ", "))
		fmt.Fprintf(out, "Go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}
