package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/flowmeter/internal/publisher"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var (
	publishKind  string
	publishSince string
	publishUntil string
	publishAll   bool
	publishLimit int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish readings to Home Assistant, MQTT and InfluxDB",
	Long: `Reads stored meter readings and sends them to every target enabled in the config.
By default only the latest reading of each meter is sent; --all backfills the history.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishKind, "kind", "", "Meter to publish (electricity or gas, default: all meters)")
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only publish readings since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().StringVar(&publishUntil, "until", "", "Only publish readings until this date (YYYY-MM-DD)")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Publish every stored reading instead of only the latest")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Limit number of readings to publish per meter (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	kinds, err := selectedKinds(publishKind)
	if err != nil {
		return err
	}

	// Parse date filters if provided
	var sinceDate, untilDate *time.Time
	if publishSince != "" {
		since, err := parseDate(publishSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		sinceDate = &since
	}
	if publishUntil != "" {
		until, err := parseDate(publishUntil)
		if err != nil {
			return fmt.Errorf("parsing --until date: %w", err)
		}
		// Include the whole day
		until = until.AddDate(0, 0, 1).Add(-time.Second)
		untilDate = &until
	}

	pub, err := publisher.New(appConfig, logger.Named("publisher"))
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()
	fmt.Printf("Targets: %v\n", pub.Sinks())

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	totalSent := 0
	failed := false
	for _, kind := range kinds {
		m, err := newMeter(kind, db)
		if err != nil {
			return err
		}

		var readings []models.Reading
		if publishAll || sinceDate != nil || untilDate != nil {
			readings, err = m.All(ctx)
		} else {
			var last *models.Reading
			last, err = m.Last(ctx)
			if last != nil {
				readings = []models.Reading{*last}
			}
		}
		if err != nil {
			return fmt.Errorf("listing %s readings: %w", kind, err)
		}

		filtered := filterReadings(readings, sinceDate, untilDate)
		if len(filtered) == 0 {
			fmt.Printf("No readings to publish for %s\n", kind)
			continue
		}

		if publishLimit > 0 && len(filtered) > publishLimit {
			filtered = filtered[:publishLimit]
			fmt.Printf("Limiting to %d readings (--limit flag)\n", publishLimit)
		}

		fmt.Printf("Publishing %d %s readings... ", len(filtered), kind)
		sent, err := pub.Publish(ctx, filtered...)
		totalSent += sent
		if err != nil {
			failed = true
			fmt.Printf("FAILED:\n%v\n", err)
			continue
		}
		fmt.Printf("✓\n")
	}

	fmt.Printf("\nTotal messages sent: %d\n", totalSent)
	if failed {
		return fmt.Errorf("some readings could not be published")
	}
	return nil
}

func filterReadings(readings []models.Reading, since, until *time.Time) []models.Reading {
	if since == nil && until == nil {
		return readings
	}
	var out []models.Reading
	for _, r := range readings {
		if since != nil && r.Timestamp.Before(*since) {
			continue
		}
		if until != nil && r.Timestamp.After(*until) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	// Try absolute date format first
	t, err := time.ParseInLocation(models.DateLayout, dateStr, time.Local)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		daysStr := dateStr[:len(dateStr)-1]
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err == nil {
			return time.Now().AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}
