package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/provider"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var (
	providerAnnual int64
	providerStart  string
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage energy provider contracts",
	Long:  `Stores one contract per energy type: the annual energy budget and the date it starts.`,
}

var providerSetCmd = &cobra.Command{
	Use:   "set <electricity|gas>",
	Short: "Add or replace the contract for an energy type",
	Args:  cobra.ExactArgs(1),
	RunE:  runProviderSave(false),
}

var providerUpdateCmd = &cobra.Command{
	Use:   "update <electricity|gas>",
	Short: "Change an existing contract",
	Args:  cobra.ExactArgs(1),
	RunE:  runProviderSave(true),
}

var providerShowCmd = &cobra.Command{
	Use:   "show <electricity|gas>",
	Short: "Show the contract for an energy type",
	Args:  cobra.ExactArgs(1),
	RunE:  runProviderShow,
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every contract",
	Args:  cobra.NoArgs,
	RunE:  runProviderList,
}

var providerDeleteCmd = &cobra.Command{
	Use:   "delete <electricity|gas>",
	Short: "Delete the contract for an energy type",
	Args:  cobra.ExactArgs(1),
	RunE:  runProviderDelete,
}

func init() {
	for _, c := range []*cobra.Command{providerSetCmd, providerUpdateCmd} {
		c.Flags().Int64Var(&providerAnnual, "annual", 0, "Annual energy budget (kWh or m³)")
		c.Flags().StringVar(&providerStart, "start", "", "Contract start date (YYYY-MM-DD)")
		_ = c.MarkFlagRequired("annual")
		_ = c.MarkFlagRequired("start")
	}

	providerCmd.AddCommand(providerSetCmd, providerUpdateCmd, providerShowCmd, providerListCmd, providerDeleteCmd)
	rootCmd.AddCommand(providerCmd)
}

func runProviderSave(mustExist bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}
		start, err := provider.ParseDate(providerStart)
		if err != nil {
			return err
		}

		db, err := openDB(ctx)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		svc := provider.New(db, logger.Named("provider"))
		p := models.Provider{EnergyType: kind, AnnualEnergy: providerAnnual, StartDate: start}

		if mustExist {
			err = svc.Update(ctx, p)
		} else {
			err = svc.Add(ctx, p)
		}
		if errors.Is(err, provider.ErrNotFound) {
			return fmt.Errorf("no %s contract stored yet, use 'flowmeter provider set'", kind)
		}
		if err != nil {
			return err
		}

		fmt.Printf("✓ Saved %s contract: %d %s per year from %s (%.2f %s per month)\n",
			kind, p.AnnualEnergy, kind.Unit(), p.StartDate.Format(models.DateLayout), p.MonthlyTarget(), kind.Unit())
		return nil
	}
}

func runProviderShow(cmd *cobra.Command, args []string) error {
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

	p, err := provider.New(db, logger.Named("provider")).Get(ctx, kind)
	if err != nil {
		return fmt.Errorf("getting %s contract: %w", kind, err)
	}
	if p == nil {
		fmt.Printf("No %s contract stored\n", kind)
		return nil
	}

	printProvider(*p)
	return nil
}

func runProviderList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	providers, err := provider.New(db, logger.Named("provider")).List(ctx)
	if err != nil {
		return fmt.Errorf("listing contracts: %w", err)
	}
	if len(providers) == 0 {
		fmt.Println("No contracts stored")
		return nil
	}

	for _, p := range providers {
		printProvider(p)
	}
	return nil
}

func runProviderDelete(cmd *cobra.Command, args []string) error {
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

	err = provider.New(db, logger.Named("provider")).Delete(ctx, kind)
	if errors.Is(err, provider.ErrNotFound) {
		return fmt.Errorf("no %s contract stored", kind)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Deleted %s contract\n", kind)
	return nil
}

func printProvider(p models.Provider) {
	unit := p.EnergyType.Unit()
	fmt.Printf("%-12s  %8d %s/year  %8.2f %s/month  since %s\n",
		p.EnergyType, p.AnnualEnergy, unit, p.MonthlyTarget(), unit, p.StartDate.Format(models.DateLayout))
}
