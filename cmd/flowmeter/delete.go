package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/pkg/models"
)

var (
	deleteAll bool
	deleteYes bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete [<electricity|gas> <id>]",
	Short: "Delete readings",
	Long: `Deletes a single reading by id, or every electricity and gas reading with --all.
Deleting everything requires --yes.`,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "Delete every reading of every meter")
	deleteCmd.Flags().BoolVar(&deleteYes, "yes", false, "Confirm deleting every reading")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if deleteAll {
		if len(args) > 0 {
			return fmt.Errorf("--all takes no arguments")
		}
		if !deleteYes {
			return fmt.Errorf("refusing to delete all readings without --yes")
		}
	} else if len(args) != 2 {
		return fmt.Errorf("usage: flowmeter delete <electricity|gas> <id> or flowmeter delete --all --yes")
	}

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if deleteAll {
		if err := db.DeleteAllReadings(ctx); err != nil {
			return fmt.Errorf("deleting all readings: %w", err)
		}
		fmt.Println("✓ Deleted all electricity and gas readings")
		return nil
	}

	kind, err := models.ParseKind(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid reading id %q: %w", args[1], err)
	}

	m, err := newMeter(kind, db)
	if err != nil {
		return err
	}
	if err := m.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Printf("✓ Deleted %s reading %d\n", kind, id)
	return nil
}
