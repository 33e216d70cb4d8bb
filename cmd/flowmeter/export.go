package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/csvio"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var exportCmd = &cobra.Command{
	Use:   "export <electricity|gas> [file.csv]",
	Short: "Export readings as CSV",
	Long:  `Writes every reading of a meter as CSV to the given file, or to stdout.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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
	readings, err := m.All(ctx)
	if err != nil {
		return fmt.Errorf("listing %s readings: %w", kind, err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if len(args) == 2 {
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[1], err)
		}
		defer f.Close()
		w = f
	}

	if err := csvio.WriteReadings(w, kind, readings); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}

	if len(args) == 2 {
		fmt.Printf("✓ Exported %d %s readings to %s\n", len(readings), kind, args[1])
	}
	return nil
}
