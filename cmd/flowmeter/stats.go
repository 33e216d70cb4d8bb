package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/provider"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var statsSeries bool

var statsCmd = &cobra.Command{
	Use:   "stats <electricity|gas>",
	Short: "Show consumption rate and contract targets",
	Long: `Shows the average consumption per hour between consecutive readings and, when a
contract is stored, the monthly target. --series prints the monthly target line from a
year ago to a year ahead.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsSeries, "series", false, "Print the monthly target series")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, err := models.ParseKind(args[0])
	if err != nil {
		return err
	}

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	svc := provider.New(db, logger.Named("provider"))
	unit := kind.Unit()

	c, err := svc.Consumption(ctx, kind)
	if err != nil {
		return fmt.Errorf("calculating %s consumption: %w", kind, err)
	}

	fmt.Printf("%s statistics\n", kind)
	fmt.Println("----------------------------------------")
	fmt.Printf("Readings:           %d\n", c.TotalEntries)
	if c.Sufficient() {
		fmt.Printf("Average:            %.4f %s/hour (%.2f %s/day over %d intervals)\n",
			*c.Average, unit, *c.Average*24, unit, len(c.Rates))
	} else {
		fmt.Printf("Average:            ⚠ %s\n", c.Message)
	}

	target, err := svc.MonthlyTarget(ctx, kind)
	if errors.Is(err, provider.ErrNotFound) {
		fmt.Println("Monthly target:     no contract stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting %s target: %w", kind, err)
	}
	fmt.Printf("Monthly target:     %.2f %s\n", target, unit)

	if !statsSeries {
		return nil
	}

	points, err := svc.MonthlySeries(ctx, kind, time.Now())
	if err != nil {
		return fmt.Errorf("building %s target series: %w", kind, err)
	}

	fmt.Println("\nMonthly target series:")
	fmt.Println("----------------------------------------")
	for _, p := range points {
		fmt.Printf("%s  %10.2f %s\n", p.Date.Format(models.DateLayout), p.Consumption, unit)
	}
	return nil
}
