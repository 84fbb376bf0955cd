package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/metrics"
	"github.com/ekaya-inc/ekaya-pivot/pkg/services"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pivot pipeline once",
	Long: `Run evolves the wide table's columns, creates missing wide records, pivots
measurement values of unresolved samples and resolves their root ancestors.
Every step is idempotent; an interrupted run is completed by the next one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		exec, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer exec.Close()

		recorder := metrics.NewRecorder(cfg.Metrics, logger)
		pipeline := services.NewPipelineService(exec, cfg.Pipeline, recorder, logger)

		run, err := pipeline.Run(ctx)
		if err != nil {
			return fmt.Errorf("pipeline run failed: %w", err)
		}

		logger.Info("Done",
			zap.String("run_id", run.ID.String()),
			zap.Duration("duration", run.Duration()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
