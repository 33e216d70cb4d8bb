package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jgoulah/flowmeter/internal/database"
	"github.com/jgoulah/flowmeter/pkg/models"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no contract is stored for an energy type
var ErrNotFound = database.ErrNotFound

const (
	msgInsufficient = "insufficient data points for consumption calculation"
	msgNoIntervals  = "no valid consumption intervals"
)

// Store persists contracts and exposes reading history; implemented by database.DB
type Store interface {
	UpsertProvider(ctx context.Context, p models.Provider) error
	GetProvider(ctx context.Context, kind models.Kind) (*models.Provider, error)
	ListProviders(ctx context.Context) ([]models.Provider, error)
	DeleteProvider(ctx context.Context, kind models.Kind) error
	ListReadings(ctx context.Context, kind models.Kind) ([]models.Reading, error)
}

// Service manages energy contracts and derives consumption figures
type Service struct {
	store  Store
	logger *zap.Logger
}

// New creates a provider service backed by store
func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// ParseDate parses a contract start date in YYYY-MM-DD format
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

func validate(p models.Provider) error {
	if !p.EnergyType.Valid() {
		return fmt.Errorf("unknown energy type %d", int(p.EnergyType))
	}
	if p.AnnualEnergy < 0 {
		return fmt.Errorf("annual energy must not be negative, got %d", p.AnnualEnergy)
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("start date is required")
	}
	return nil
}

// Add stores a contract, replacing any existing one for its energy type
func (s *Service) Add(ctx context.Context, p models.Provider) error {
	if err := validate(p); err != nil {
		return err
	}
	if err := s.store.UpsertProvider(ctx, p); err != nil {
		return fmt.Errorf("saving %s provider: %w", p.EnergyType, err)
	}
	return nil
}

// Update replaces an existing contract
func (s *Service) Update(ctx context.Context, p models.Provider) error {
	if err := validate(p); err != nil {
		return err
	}

	existing, err := s.store.GetProvider(ctx, p.EnergyType)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%s provider: %w", p.EnergyType, ErrNotFound)
	}

	if err := s.store.UpsertProvider(ctx, p); err != nil {
		return fmt.Errorf("updating %s provider: %w", p.EnergyType, err)
	}
	return nil
}

// Get returns the contract for an energy type, or nil if none is stored
func (s *Service) Get(ctx context.Context, kind models.Kind) (*models.Provider, error) {
	return s.store.GetProvider(ctx, kind)
}

// List returns every stored contract
func (s *Service) List(ctx context.Context) ([]models.Provider, error) {
	return s.store.ListProviders(ctx)
}

// Delete removes the contract for an energy type
func (s *Service) Delete(ctx context.Context, kind models.Kind) error {
	return s.store.DeleteProvider(ctx, kind)
}

// MonthlyTarget returns annual energy / 12 for the stored contract
func (s *Service) MonthlyTarget(ctx context.Context, kind models.Kind) (float64, error) {
	p, err := s.mustGet(ctx, kind)
	if err != nil {
		return 0, err
	}
	return p.MonthlyTarget(), nil
}

// MonthlySeries returns the monthly target line from one year before now to
// one year after now, starting no earlier than the contract start date
func (s *Service) MonthlySeries(ctx context.Context, kind models.Kind, now time.Time) ([]models.TargetPoint, error) {
	p, err := s.mustGet(ctx, kind)
	if err != nil {
		return nil, err
	}
	return Series(*p, now), nil
}

func (s *Service) mustGet(ctx context.Context, kind models.Kind) (*models.Provider, error) {
	p, err := s.store.GetProvider(ctx, kind)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%s provider: %w", kind, ErrNotFound)
	}
	return p, nil
}

// Consumption computes the average hourly consumption between consecutive
// readings of a kind
func (s *Service) Consumption(ctx context.Context, kind models.Kind) (models.Consumption, error) {
	readings, err := s.store.ListReadings(ctx, kind)
	if err != nil {
		return models.Consumption{}, err
	}

	c := Rates(readings)
	if c.Sufficient() {
		s.logger.Debug("consumption calculated",
			zap.Stringer("kind", kind),
			zap.Float64("average", *c.Average),
			zap.Int("intervals", len(c.Rates)),
		)
	} else {
		s.logger.Info("consumption unavailable", zap.Stringer("kind", kind), zap.String("reason", c.Message))
	}
	return c, nil
}

// Series builds the monthly target points for a contract around now
func Series(p models.Provider, now time.Time) []models.TargetPoint {
	start := dateOf(now).AddDate(-1, 0, 0)
	end := dateOf(now).AddDate(1, 0, 0)
	contractStart := dateOf(p.StartDate)
	monthly := p.MonthlyTarget()

	var points []models.TargetPoint
	for i := 0; ; i++ {
		d := addMonths(start, i)
		if d.After(end) {
			break
		}
		if d.Before(contractStart) {
			continue
		}
		points = append(points, models.TargetPoint{Date: d, Consumption: monthly})
	}
	return points
}

// Rates computes the hourly consumption rate of each interval between
// consecutive readings with a positive duration
func Rates(readings []models.Reading) models.Consumption {
	c := models.Consumption{TotalEntries: len(readings)}
	if len(readings) < 2 {
		c.Message = msgInsufficient
		return c
	}

	sorted := make([]models.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var sum float64
	for i := 1; i < len(sorted); i++ {
		hours := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Hours()
		if hours <= 0 {
			continue
		}
		rate := (sorted[i].Value - sorted[i-1].Value) / hours
		c.Rates = append(c.Rates, rate)
		sum += rate
	}

	if len(c.Rates) == 0 {
		c.Message = msgNoIntervals
		return c
	}

	avg := sum / float64(len(c.Rates))
	c.Average = &avg
	return c
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addMonths steps whole calendar months, clamping the day to the month's end
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}
