package meter

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/flowmeter/pkg/models"
	"go.uber.org/zap"
)

// Store persists readings; implemented by database.DB
type Store interface {
	InsertReading(ctx context.Context, kind models.Kind, ts time.Time, value float64) (int64, error)
	LastReading(ctx context.Context, kind models.Kind) (*models.Reading, error)
	ListReadings(ctx context.Context, kind models.Kind) ([]models.Reading, error)
	DeleteReading(ctx context.Context, kind models.Kind, id int64) error
	DeleteAllReadings(ctx context.Context) error
}

// Meter validates and records readings of one kind
type Meter struct {
	kind   models.Kind
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Meter
type Option func(*Meter)

// WithClock overrides the time source used to stamp new readings
func WithClock(now func() time.Time) Option {
	return func(m *Meter) {
		m.now = now
	}
}

// New creates a meter of the given kind backed by store
func New(kind models.Kind, store Store, logger *zap.Logger, opts ...Option) (*Meter, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown meter kind %d", int(kind))
	}
	if store == nil {
		return nil, fmt.Errorf("%s meter: nil store", kind)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Meter{
		kind:   kind,
		store:  store,
		logger: logger.With(zap.Stringer("kind", kind)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Kind returns the meter kind
func (m *Meter) Kind() models.Kind {
	return m.kind
}

// Record validates a value and stores it with the current time
func (m *Meter) Record(ctx context.Context, value float64) (models.Reading, error) {
	return m.RecordAt(ctx, m.now(), value)
}

// RecordText parses a value typed on the meter display and stores it
func (m *Meter) RecordText(ctx context.Context, text string) (models.Reading, error) {
	value, err := ParseText(m.kind, text)
	if err != nil {
		m.logger.Warn("reading rejected", zap.String("input", text), zap.Error(err))
		return models.Reading{}, err
	}
	return m.Record(ctx, value)
}

// RecordAt validates a value and stores it with an explicit timestamp. The
// timestamp may not precede the last stored reading.
func (m *Meter) RecordAt(ctx context.Context, ts time.Time, value float64) (models.Reading, error) {
	ts = ts.Truncate(time.Second)

	if err := Validate(m.kind, value); err != nil {
		m.logger.Warn("reading rejected", zap.Float64("value", value), zap.Error(err))
		return models.Reading{}, err
	}

	last, err := m.store.LastReading(ctx, m.kind)
	if err != nil {
		return models.Reading{}, err
	}

	previous := 0.0
	if last != nil {
		previous = last.Value
		if ts.Before(last.Timestamp) {
			err := &RangeError{
				Kind:     m.kind,
				Value:    value,
				Previous: previous,
				Reason:   "timestamp precedes the previous reading at " + last.Timestamp.Format(models.TimestampLayout),
			}
			m.logger.Warn("reading rejected", zap.Float64("value", value), zap.Error(err))
			return models.Reading{}, err
		}
	}

	if err := CheckMonotonic(m.kind, value, previous); err != nil {
		m.logger.Warn("reading rejected", zap.Float64("value", value), zap.Error(err))
		return models.Reading{}, err
	}

	id, err := m.store.InsertReading(ctx, m.kind, ts, value)
	if err != nil {
		return models.Reading{}, err
	}

	return models.Reading{ID: id, Kind: m.kind, Timestamp: ts, Value: value}, nil
}

// Last returns the most recent reading, or nil if none exists
func (m *Meter) Last(ctx context.Context) (*models.Reading, error) {
	return m.store.LastReading(ctx, m.kind)
}

// LastValue returns the most recent value, or 0 if none exists
func (m *Meter) LastValue(ctx context.Context) (float64, error) {
	last, err := m.Last(ctx)
	if err != nil || last == nil {
		return 0, err
	}
	return last.Value, nil
}

// All returns every reading, oldest first
func (m *Meter) All(ctx context.Context) ([]models.Reading, error) {
	return m.store.ListReadings(ctx, m.kind)
}

// Delete removes a single reading
func (m *Meter) Delete(ctx context.Context, id int64) error {
	if err := m.store.DeleteReading(ctx, m.kind, id); err != nil {
		return fmt.Errorf("deleting %s reading %d: %w", m.kind, id, err)
	}
	return nil
}

// DeleteAll removes the readings of every meter kind
func (m *Meter) DeleteAll(ctx context.Context) error {
	return m.store.DeleteAllReadings(ctx)
}
