package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	_ "github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store/mssql"    // SQL Server adapter
	_ "github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store/postgres" // PostgreSQL adapter
	_ "github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store/sqlite"   // SQLite adapter
	"github.com/ekaya-inc/ekaya-pivot/pkg/config"
	"github.com/ekaya-inc/ekaya-pivot/pkg/logging"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ekaya-pivot",
	Short: "Pivot narrow sample measurements into a wide, ancestor-resolved table",
	Long: `ekaya-pivot turns the append-only sample_measurements log into the
experiment_measurements wide table, adding a column per measurement label and
resolving every sample's root ancestor with set-based SQL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath, Version)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		logger, err = logging.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		logger.Debug("Configuration loaded",
			zap.String("env", cfg.Env),
			zap.String("store", cfg.Database.Describe()),
			zap.String("version", cfg.Version))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", logging.SanitizeError(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// openStore opens the configured store through its registered adapter.
func openStore(ctx context.Context) (store.Executor, error) {
	exec, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.ConnectionString(), store.OpenOptions{
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Database.Describe(), err)
	}
	return exec, nil
}
