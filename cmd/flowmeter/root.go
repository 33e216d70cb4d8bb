package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jgoulah/flowmeter/internal/config"
	"github.com/jgoulah/flowmeter/internal/database"
	"github.com/jgoulah/flowmeter/internal/logging"
	"github.com/jgoulah/flowmeter/internal/meter"
	"github.com/jgoulah/flowmeter/internal/schema"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var (
	cfgFile    string
	dbPath     string
	schemaPath string
	logLevel   string

	appConfig *config.Config
	logger    = zap.NewNop()
	closeLog  = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "flowmeter",
	Short: "Record household electricity and gas meter readings",
	Long: `FlowMeter records periodic electricity and gas meter readings in a local SQLite database.
Readings are checked against the meter display format and may never go backwards.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "schema definition file (default is the built-in schema)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default is info)")
}

// setup loads the config and builds the logger before any command runs
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	appConfig = cfg

	level := cfg.GetLogLevel()
	if logLevel != "" {
		level = logLevel
	}

	l, closeFn, err := logging.New(logging.Options{Level: level, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	logger, closeLog = l, closeFn
	return nil
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path, preferring the --db flag
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if appConfig != nil {
		return appConfig.GetDBPath()
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// loadSchema returns the schema from --schema, the config, or the built-in one
func loadSchema() (*schema.Schema, error) {
	path := schemaPath
	if path == "" && appConfig != nil {
		path = appConfig.SchemaPath
	}
	if path == "" {
		return schema.Default()
	}
	return schema.Load(path)
}

// openDB opens the database connection and brings it in line with the schema
func openDB(ctx context.Context) (*database.DB, error) {
	s, err := loadSchema()
	if err != nil {
		return nil, err
	}

	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(ctx, path, s, logger.Named("database"))
}

// newMeter creates the meter for a kind backed by db
func newMeter(kind models.Kind, db *database.DB) (*meter.Meter, error) {
	return meter.New(kind, db, logger.Named("meter"))
}

// selectedKinds returns the kind named by a flag, or every kind when empty
func selectedKinds(name string) ([]models.Kind, error) {
	if name == "" {
		return models.Kinds, nil
	}
	kind, err := models.ParseKind(name)
	if err != nil {
		return nil, err
	}
	return []models.Kind{kind}, nil
}
