package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/database"
)

var initCheck bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or repair the database",
	Long: `Creates the database file from the schema definition. Tables, triggers and views
are recreated when any of them cannot be queried. With --check only reports their state.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initCheck, "check", false, "Only report whether every table and view is queryable")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if initCheck {
		return runInitCheck(cmd)
	}

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	fmt.Printf("✓ Database ready at %s\n", db.Path())
	return nil
}

func runInitCheck(cmd *cobra.Command) error {
	path := getDBPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("database %s does not exist, run 'flowmeter init'", path)
	}

	s, err := loadSchema()
	if err != nil {
		return err
	}

	db, err := database.Open(path, s, logger.Named("database"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	failed := 0
	for _, status := range db.Check(cmd.Context()) {
		if status.OK() {
			fmt.Printf("✓ %s\n", status.Name)
			continue
		}
		failed++
		fmt.Printf("⚠ %s: %v\n", status.Name, status.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%d schema objects are missing or broken, run 'flowmeter init' to repair", failed)
	}
	fmt.Printf("Database %s matches schema %s\n", path, s.Source())
	return nil
}
