package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jgoulah/flowmeter/pkg/models"
)

// Config holds the application configuration
type Config struct {
	DBPath        string         `yaml:"db_path,omitempty" env:"FLOWMETER_DB_PATH"`         // fallback: data.db
	SchemaPath    string         `yaml:"schema_path,omitempty" env:"FLOWMETER_SCHEMA_PATH"` // Empty uses the embedded schema
	LogLevel      string         `yaml:"log_level,omitempty" env:"FLOWMETER_LOG_LEVEL"`     // debug, info, warn, error
	LogFile       string         `yaml:"log_file,omitempty" env:"FLOWMETER_LOG_FILE"`       // e.g., "flowmeter.log"
	HomeAssistant HAConfig       `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig     `yaml:"mqtt,omitempty"`
	InfluxDB      InfluxDBConfig `yaml:"influxdb,omitempty"`
	Metrics       MetricsConfig  `yaml:"metrics,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled           bool   `yaml:"enabled"`
	URL               string `yaml:"url"`                            // e.g., "http://yourdomain.local:5050"
	Token             string `yaml:"token" env:"FLOWMETER_HA_TOKEN"` // Long-lived access token
	ElectricityEntity string `yaml:"electricity_entity"`             // e.g., "sensor.electricity_meter"
	GasEntity         string `yaml:"gas_entity"`                     // e.g., "sensor.gas_meter"
}

// EntityID returns the configured entity for a meter kind
func (c HAConfig) EntityID(kind models.Kind) string {
	switch kind {
	case models.Electricity:
		return c.ElectricityEntity
	case models.Gas:
		return c.GasEntity
	default:
		return ""
	}
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty" env:"FLOWMETER_MQTT_PASSWORD"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // fallback: flowmeter
	ClientID    string `yaml:"client_id,omitempty"`
}

// InfluxDBConfig holds InfluxDB v2 write configuration
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token" env:"FLOWMETER_INFLUXDB_TOKEN"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// MetricsConfig holds Prometheus textfile export configuration
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // e.g., "/var/lib/node_exporter/flowmeter.prom"
}

// Load reads the config file. FLOWMETER_* environment variables override
// values from the file.
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Missing file means an empty config
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetDBPath returns the database path with a default of data.db
func (c *Config) GetDBPath() string {
	if c.DBPath == "" {
		return "data.db"
	}
	return c.DBPath
}

// GetLogLevel returns the log level with a default of info
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// GetTopicPrefix returns the MQTT topic prefix with a default of flowmeter
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "flowmeter"
	}
	return c.MQTT.TopicPrefix
}

// GetClientID returns the MQTT client id with a default of flowmeter
func (c *Config) GetClientID() string {
	if c.MQTT.ClientID == "" {
		return "flowmeter"
	}
	return c.MQTT.ClientID
}
