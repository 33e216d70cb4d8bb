package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/meter"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var listKind string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored readings",
	Long:  `Displays the stored meter readings, oldest first.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listKind, "kind", "", "Filter by meter kind (electricity or gas)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kinds, err := selectedKinds(listKind)
	if err != nil {
		return err
	}

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	for _, kind := range kinds {
		m, err := newMeter(kind, db)
		if err != nil {
			return err
		}

		readings, err := m.All(ctx)
		if err != nil {
			return fmt.Errorf("listing %s readings: %w", kind, err)
		}

		if len(readings) == 0 {
			fmt.Printf("No readings found for %s\n", kind)
			continue
		}

		fmt.Printf("\n%s readings (%s):\n", kind, kind.Unit())
		fmt.Println("----------------------------------------")
		fmt.Printf("%6s  %-19s  %10s\n", "ID", "Timestamp", "Value")
		fmt.Println("----------------------------------------")

		for _, r := range readings {
			fmt.Printf("%6d  %-19s  %10s\n", r.ID, r.Timestamp.Format(models.TimestampLayout), meter.Format(kind, r.Value))
		}

		fmt.Println("----------------------------------------")
		first, last := readings[0], readings[len(readings)-1]
		fmt.Printf("Consumed: %.*f %s (%d readings)\n", kind.Decimals(), last.Value-first.Value, kind.Unit(), len(readings))
	}

	return nil
}
