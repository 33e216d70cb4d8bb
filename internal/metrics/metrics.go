package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jgoulah/flowmeter/internal/provider"
	"github.com/jgoulah/flowmeter/pkg/models"
)

// Source provides readings and contracts; implemented by database.DB
type Source interface {
	ListReadings(ctx context.Context, kind models.Kind) ([]models.Reading, error)
	GetProvider(ctx context.Context, kind models.Kind) (*models.Provider, error)
}

// Exporter holds the meter gauges in a dedicated registry
type Exporter struct {
	registry *prometheus.Registry

	readingValue     *prometheus.GaugeVec
	readingTimestamp *prometheus.GaugeVec
	readingsTotal    *prometheus.GaugeVec
	monthlyTarget    *prometheus.GaugeVec
	consumptionRate  *prometheus.GaugeVec
}

// New creates an exporter with every gauge registered
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		readingValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowmeter_reading_value",
				Help: "Latest recorded meter value.",
			},
			[]string{"kind", "unit"},
		),
		readingTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowmeter_reading_timestamp_seconds",
				Help: "Unix time of the latest recorded reading.",
			},
			[]string{"kind"},
		),
		readingsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowmeter_readings",
				Help: "Number of stored readings.",
			},
			[]string{"kind"},
		),
		monthlyTarget: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowmeter_monthly_target",
				Help: "Contracted consumption per month.",
			},
			[]string{"kind", "unit"},
		),
		consumptionRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowmeter_consumption_per_hour",
				Help: "Average consumption per hour between consecutive readings.",
			},
			[]string{"kind", "unit"},
		),
	}

	e.registry.MustRegister(e.readingValue, e.readingTimestamp, e.readingsTotal, e.monthlyTarget, e.consumptionRate)
	return e
}

// Registry returns the registry holding the gauges
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Collect refreshes the gauges of every meter kind from src
func (e *Exporter) Collect(ctx context.Context, src Source) error {
	for _, kind := range models.Kinds {
		if err := e.collectKind(ctx, src, kind); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) collectKind(ctx context.Context, src Source, kind models.Kind) error {
	readings, err := src.ListReadings(ctx, kind)
	if err != nil {
		return fmt.Errorf("collecting %s readings: %w", kind, err)
	}

	e.readingsTotal.WithLabelValues(kind.String()).Set(float64(len(readings)))
	if n := len(readings); n > 0 {
		last := readings[n-1]
		e.readingValue.WithLabelValues(kind.String(), kind.Unit()).Set(last.Value)
		e.readingTimestamp.WithLabelValues(kind.String()).Set(float64(last.Timestamp.Unix()))
	}

	if c := provider.Rates(readings); c.Sufficient() {
		e.consumptionRate.WithLabelValues(kind.String(), kind.Unit()).Set(*c.Average)
	}

	p, err := src.GetProvider(ctx, kind)
	if err != nil {
		return fmt.Errorf("collecting %s provider: %w", kind, err)
	}
	if p != nil {
		e.monthlyTarget.WithLabelValues(kind.String(), kind.Unit()).Set(p.MonthlyTarget())
	}
	return nil
}

// WriteTextfile writes the gauges in the node_exporter textfile format
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
