package main

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-pivot/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the static tables",
	Long: `Migrate applies the embedded migrations for the configured driver: the
samples, sample_measurements and experiment_measurements tables, their indexes
and the run ledger. Measurement columns are added by "run", not here.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.OpenSQL(cfg.Database.Driver, cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		return database.RunMigrations(cfg.Database.Driver, db, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
