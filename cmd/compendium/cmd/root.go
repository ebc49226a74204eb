package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   "compendium",
		Short: "Import game reference content into the compendium store",
		Long: `compendium loads the reference content of a tabletop role-playing game from a
directory of JSON source files, normalizes it into the compendium schema and
stores it.

An import runs in ordered phases so that entities exist before the entities
that reference them:
- Core reference (skills, languages)
- Character options (species, classes, feats)
- Dependent options (traits, class features, subclasses, backgrounds)
- Equipment and spells
- Relationships, resolved by name once everything is stored

The store is chosen by DATABASE_URL: postgres://, sqlite://<path> or memory://.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "env file to load before reading the environment (default: .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(phasesCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
