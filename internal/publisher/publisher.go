package publisher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jgoulah/flowmeter/internal/config"
	"github.com/jgoulah/flowmeter/pkg/models"
)

// ErrNoSinks is returned when no publishing target is enabled in config
var ErrNoSinks = errors.New("no publishing targets enabled (home_assistant, mqtt, influxdb)")

// Sink receives meter readings
type Sink interface {
	Name() string
	Publish(ctx context.Context, reading models.Reading) error
	Close()
}

// Publisher fans readings out to every configured sink
type Publisher struct {
	sinks  []Sink
	logger *zap.Logger
}

// New creates a publisher for the sinks enabled in cfg
func New(cfg *config.Config, logger *zap.Logger) (*Publisher, error) {
	var sinks []Sink

	if cfg.HomeAssistant.Enabled {
		ha, err := NewHomeAssistant(cfg.HomeAssistant)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ha)
	}

	if cfg.MQTT.Enabled {
		m, err := NewMQTT(cfg.MQTT, cfg.GetTopicPrefix(), cfg.GetClientID())
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, m)
	}

	if cfg.InfluxDB.Enabled {
		in, err := NewInflux(cfg.InfluxDB)
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, in)
	}

	if len(sinks) == 0 {
		return nil, ErrNoSinks
	}
	return WithSinks(logger, sinks...), nil
}

// WithSinks creates a publisher for explicit sinks
func WithSinks(logger *zap.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{sinks: sinks, logger: logger}
}

// Sinks returns the names of the active sinks
func (p *Publisher) Sinks() []string {
	names := make([]string, 0, len(p.sinks))
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Publish sends each reading to every sink. A failing sink does not stop the
// others; all failures are returned joined.
func (p *Publisher) Publish(ctx context.Context, readings ...models.Reading) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, r := range readings {
		for _, s := range p.sinks {
			if err := ctx.Err(); err != nil {
				return sent, err
			}
			if err := s.Publish(ctx, r); err != nil {
				p.logger.Warn("publish failed",
					zap.String("sink", s.Name()),
					zap.Stringer("kind", r.Kind),
					zap.Int64("id", r.ID),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s: %s reading %d: %w", s.Name(), r.Kind, r.ID, err))
				continue
			}
			sent++
		}
	}
	p.logger.Info("readings published", zap.Int("readings", len(readings)), zap.Int("sent", sent))
	return sent, errors.Join(errs...)
}

// Close releases every sink
func (p *Publisher) Close() {
	closeAll(p.sinks)
}

func closeAll(sinks []Sink) {
	for _, s := range sinks {
		s.Close()
	}
}
