package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/meter"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var lastCmd = &cobra.Command{
	Use:   "last <electricity|gas>",
	Short: "Show the latest reading",
	Args:  cobra.ExactArgs(1),
	RunE:  runLast,
}

func init() {
	rootCmd.AddCommand(lastCmd)
}

func runLast(cmd *cobra.Command, args []string) error {
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

	last, err := m.Last(ctx)
	if err != nil {
		return fmt.Errorf("getting last %s reading: %w", kind, err)
	}
	if last == nil {
		fmt.Printf("No %s readings yet (display starts at %s)\n", kind, meter.Format(kind, 0))
		return nil
	}

	fmt.Printf("%s  %s %s  (id %d)\n", last.Timestamp.Format(models.TimestampLayout), meter.Format(kind, last.Value), kind.Unit(), last.ID)
	return nil
}
