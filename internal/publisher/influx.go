package publisher

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/jgoulah/flowmeter/internal/config"
	"github.com/jgoulah/flowmeter/pkg/models"
)

const measurement = "meter_reading"

// Influx writes readings as points at their own timestamp
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInflux creates the sink for the server in cfg
func NewInflux(cfg config.InfluxDBConfig) (*Influx, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("InfluxDB URL is required when enabled")
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("InfluxDB org and bucket are required when enabled")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Point converts a reading to an InfluxDB point
func Point(reading models.Reading) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{"kind": reading.Kind.String()},
		map[string]interface{}{"value": reading.Value},
		reading.Timestamp,
	)
}

func (i *Influx) Name() string { return "influxdb" }

// Publish writes a reading and waits for the server to accept it
func (i *Influx) Publish(ctx context.Context, reading models.Reading) error {
	if err := i.writeAPI.WritePoint(ctx, Point(reading)); err != nil {
		return fmt.Errorf("writing point: %w", err)
	}
	return nil
}

func (i *Influx) Close() {
	i.client.Close()
}
