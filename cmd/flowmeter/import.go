package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/csvio"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var importCmd = &cobra.Command{
	Use:   "import <electricity|gas> <file.csv>",
	Short: "Import readings from CSV",
	Long: `Reads a CSV file with the header "timestamp,value" (timestamps as 2006-01-02 15:04:05)
and records the rows oldest first. Rows that fail to parse or validate are reported and skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, err := models.ParseKind(args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[1], err)
	}
	defer f.Close()

	readings, parseErr := csvio.ParseReadings(f, kind)
	if parseErr != nil && len(readings) == 0 {
		return fmt.Errorf("parsing %s: %w", args[1], parseErr)
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

	stored, importErr := csvio.Import(ctx, m, readings)
	fmt.Printf("✓ Imported %d/%d %s readings from %s\n", len(stored), len(readings), kind, args[1])

	if err := errors.Join(parseErr, importErr); err != nil {
		fmt.Printf("⚠ Some rows were skipped:\n%v\n", err)
		return fmt.Errorf("%s: not every row was imported", args[1])
	}
	return nil
}
