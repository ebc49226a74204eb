package cmd

import (
	"fmt"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/storage/postgres"
	"github.com/characterforge/compendium/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the store schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, 0)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, migrateSteps)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

// runMigration applies every pending migration when down is zero, otherwise
// rolls back down steps.
func runMigration(cmd *cobra.Command, down int) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	kind, target, err := parseStoreURL(sess.cfg.Database.URL)
	if err != nil {
		return err
	}

	var version uint
	switch kind {
	case memoryStore:
		return &etl.ConfigurationError{Message: "the memory store has no schema to migrate"}
	case sqliteStore:
		store, err := sqlite.Open(target)
		if err != nil {
			return err
		}
		defer store.Close()
		if down > 0 {
			err = store.MigrateDown(down)
		} else {
			err = store.Migrate()
		}
		if err != nil {
			return err
		}
		if version, _, err = store.Version(); err != nil {
			return err
		}
	default:
		if down > 0 {
			err = postgres.MigrateDown(target, down)
		} else {
			err = postgres.MigrateUp(target)
		}
		if err != nil {
			return err
		}
		if version, _, err = postgres.Version(target); err != nil {
			return err
		}
	}

	sess.logger.Info().Uint("version", version).Msg("migrations applied")
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
