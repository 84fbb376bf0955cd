package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
	"github.com/ekaya-inc/ekaya-pivot/pkg/services"
	pivotsql "github.com/ekaya-inc/ekaya-pivot/pkg/sql"
)

var (
	catalogMin        int64
	catalogMax        int64
	catalogUnresolved bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List measurement labels and the columns they map to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		exec, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer exec.Close()

		filter := repositories.CatalogFilter{UnresolvedOnly: catalogUnresolved}
		if cmd.Flags().Changed("min") {
			filter.MinSampleID = &catalogMin
		}
		if cmd.Flags().Changed("max") {
			filter.MaxSampleID = &catalogMax
		}

		categories, err := services.NewCatalogService(repositories.NewCatalogRepository(exec), logger).Categories(ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tCOLUMN")
		for _, category := range categories {
			column, err := pivotsql.ColumnNameForCategory(category)
			if err != nil {
				column = "invalid: " + err.Error()
			}
			fmt.Fprintf(w, "%s\t%s\n", category, column)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().Int64Var(&catalogMin, "min", 0, "Lowest sample id to scan")
	catalogCmd.Flags().Int64Var(&catalogMax, "max", 0, "Highest sample id to scan")
	catalogCmd.Flags().BoolVar(&catalogUnresolved, "unresolved", false, "Only samples whose wide record is unresolved")
}
