package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/metrics"
)

var metricsOut string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Write Prometheus metrics for node_exporter",
	Long: `Writes the latest readings, consumption rates and monthly targets in the
node_exporter textfile format. The target file defaults to metrics.textfile from the config.`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().StringVar(&metricsOut, "out", "", "Output file (e.g. /var/lib/node_exporter/flowmeter.prom)")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	out := metricsOut
	if out == "" {
		out = appConfig.Metrics.Textfile
	}
	if out == "" {
		return fmt.Errorf("no output file, pass --out or set metrics.textfile in the config")
	}

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	exporter := metrics.New()
	if err := exporter.Collect(ctx, db); err != nil {
		return err
	}
	if err := exporter.WriteTextfile(out); err != nil {
		return err
	}

	fmt.Printf("✓ Wrote metrics to %s\n", out)
	return nil
}
