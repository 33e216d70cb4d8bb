package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/meter"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var recordCmd = &cobra.Command{
	Use:   "record <electricity|gas> <value>",
	Short: "Record a meter reading",
	Long: `Validates a reading as shown on the meter display and stores it with the current time.
Electricity readings have 7 digits with 1 decimal (e.g. 123456.7), gas readings have
8 digits with 3 decimals (e.g. 12345.678). A reading may not be lower than the last one.`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
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

	m, err := newMeter(kind, db)
	if err != nil {
		return err
	}

	reading, err := m.RecordText(ctx, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("✓ Recorded %s reading %s %s at %s (id %d)\n",
		kind, meter.Format(kind, reading.Value), kind.Unit(),
		reading.Timestamp.Format(models.TimestampLayout), reading.ID)
	return nil
}
