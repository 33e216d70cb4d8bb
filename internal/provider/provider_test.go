package provider_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgoulah/flowmeter/internal/database"
	"github.com/jgoulah/flowmeter/internal/provider"
	"github.com/jgoulah/flowmeter/internal/schema"
	"github.com/jgoulah/flowmeter/pkg/models"
	"go.uber.org/zap/zaptest"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	s, err := schema.Default()
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"), s, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := provider.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	svc := provider.New(openTestDB(t), zaptest.NewLogger(t))

	if err := svc.Add(ctx, models.Provider{EnergyType: models.Gas, AnnualEnergy: 1500, StartDate: date(t, "2025-01-01")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := svc.Add(ctx, models.Provider{EnergyType: models.Gas, AnnualEnergy: 1800, StartDate: date(t, "2025-06-01")}); err != nil {
		t.Fatalf("second Add() error = %v", err)
	}

	p, err := svc.Get(ctx, models.Gas)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p == nil {
		t.Fatal("Get() = nil")
	}
	if p.AnnualEnergy != 1800 {
		t.Errorf("AnnualEnergy = %d, want 1800", p.AnnualEnergy)
	}
	if got := p.StartDate.Format(models.DateLayout); got != "2025-06-01" {
		t.Errorf("StartDate = %s, want 2025-06-01", got)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("len(List()) = %d, want 1", len(list))
	}

	missing, err := svc.Get(ctx, models.Electricity)
	if err != nil || missing != nil {
		t.Errorf("Get(electricity) = %v, %v, want nil, nil", missing, err)
	}
}

func TestAddInvalid(t *testing.T) {
	ctx := context.Background()
	svc := provider.New(openTestDB(t), nil)

	tests := []struct {
		name string
		p    models.Provider
	}{
		{"negative annual", models.Provider{EnergyType: models.Gas, AnnualEnergy: -1, StartDate: date(t, "2025-01-01")}},
		{"unknown type", models.Provider{EnergyType: models.Kind(9), AnnualEnergy: 1, StartDate: date(t, "2025-01-01")}},
		{"no start date", models.Provider{EnergyType: models.Gas, AnnualEnergy: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Add(ctx, tt.p); err == nil {
				t.Error("Add() error = nil")
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	if _, err := provider.ParseDate("2025-13-01"); err == nil {
		t.Error("ParseDate(2025-13-01) error = nil")
	}
	if _, err := provider.ParseDate("01/06/2025"); err == nil {
		t.Error("ParseDate(01/06/2025) error = nil")
	}
	if d := date(t, " 2025-06-01 "); d.Month() != time.June || d.Day() != 1 {
		t.Errorf("ParseDate() = %v", d)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := provider.New(openTestDB(t), zaptest.NewLogger(t))
	p := models.Provider{EnergyType: models.Electricity, AnnualEnergy: 3000, StartDate: date(t, "2025-01-01")}

	if err := svc.Update(ctx, p); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("Update() before Add error = %v, want ErrNotFound", err)
	}
	if err := svc.Add(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.AnnualEnergy = 3600
	if err := svc.Update(ctx, p); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	target, err := svc.MonthlyTarget(ctx, models.Electricity)
	if err != nil {
		t.Fatal(err)
	}
	if target != 300 {
		t.Errorf("MonthlyTarget() = %v, want 300", target)
	}

	if err := svc.Delete(ctx, models.Electricity); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, models.Electricity); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.MonthlyTarget(ctx, models.Electricity); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("MonthlyTarget() without provider error = %v, want ErrNotFound", err)
	}
}

func TestSeries(t *testing.T) {
	t.Run("starts at contract start", func(t *testing.T) {
		p := models.Provider{EnergyType: models.Gas, AnnualEnergy: 1200, StartDate: date(t, "2025-01-01")}
		now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.Local)

		points := provider.Series(p, now)
		// 2025-01-15 through 2026-06-15
		if len(points) != 18 {
			t.Fatalf("len(Series()) = %d, want 18", len(points))
		}
		if got := points[0].Date.Format(models.DateLayout); got != "2025-01-15" {
			t.Errorf("first point = %s, want 2025-01-15", got)
		}
		if got := points[len(points)-1].Date.Format(models.DateLayout); got != "2026-06-15" {
			t.Errorf("last point = %s, want 2026-06-15", got)
		}
		for _, pt := range points {
			if pt.Consumption != 100 {
				t.Errorf("Consumption at %s = %v, want 100", pt.Date.Format(models.DateLayout), pt.Consumption)
			}
		}
	})

	t.Run("clamps to month end", func(t *testing.T) {
		p := models.Provider{EnergyType: models.Electricity, AnnualEnergy: 1200, StartDate: date(t, "2000-01-01")}
		now := time.Date(2025, 1, 31, 9, 0, 0, 0, time.Local)

		points := provider.Series(p, now)
		if len(points) != 25 {
			t.Fatalf("len(Series()) = %d, want 25", len(points))
		}
		want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
		for i, w := range want {
			if got := points[i].Date.Format(models.DateLayout); got != w {
				t.Errorf("points[%d] = %s, want %s", i, got, w)
			}
		}
	})

	t.Run("contract in the future", func(t *testing.T) {
		p := models.Provider{EnergyType: models.Gas, AnnualEnergy: 1200, StartDate: date(t, "2030-01-01")}
		if points := provider.Series(p, time.Date(2025, 6, 15, 0, 0, 0, 0, time.Local)); len(points) != 0 {
			t.Errorf("len(Series()) = %d, want 0", len(points))
		}
	})
}

func TestMonthlySeriesFromStore(t *testing.T) {
	ctx := context.Background()
	svc := provider.New(openTestDB(t), zaptest.NewLogger(t))

	if _, err := svc.MonthlySeries(ctx, models.Gas, time.Now()); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("MonthlySeries() without provider error = %v, want ErrNotFound", err)
	}
	if err := svc.Add(ctx, models.Provider{EnergyType: models.Gas, AnnualEnergy: 1200, StartDate: date(t, "2025-01-01")}); err != nil {
		t.Fatal(err)
	}
	points, err := svc.MonthlySeries(ctx, models.Gas, time.Date(2025, 6, 15, 0, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 18 {
		t.Errorf("len(MonthlySeries()) = %d, want 18", len(points))
	}
}

func TestRates(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)

	t.Run("insufficient", func(t *testing.T) {
		c := provider.Rates([]models.Reading{{Timestamp: t0, Value: 1}})
		if c.Sufficient() {
			t.Error("Sufficient() = true with one reading")
		}
		if c.Message != "insufficient data points for consumption calculation" {
			t.Errorf("Message = %q", c.Message)
		}
		if c.TotalEntries != 1 {
			t.Errorf("TotalEntries = %d, want 1", c.TotalEntries)
		}
	})

	t.Run("no positive interval", func(t *testing.T) {
		c := provider.Rates([]models.Reading{{Timestamp: t0, Value: 1}, {Timestamp: t0, Value: 2}})
		if c.Average != nil {
			t.Errorf("Average = %v, want nil", *c.Average)
		}
		if c.Message != "no valid consumption intervals" {
			t.Errorf("Message = %q", c.Message)
		}
	})

	t.Run("average of intervals", func(t *testing.T) {
		// out of order on purpose; rates are computed on sorted readings
		readings := []models.Reading{
			{Timestamp: t0.Add(4 * time.Hour), Value: 119},
			{Timestamp: t0, Value: 100},
			{Timestamp: t0.Add(2 * time.Hour), Value: 110},
			{Timestamp: t0.Add(2 * time.Hour), Value: 111},
		}
		c := provider.Rates(readings)
		if !c.Sufficient() {
			t.Fatalf("Sufficient() = false: %s", c.Message)
		}
		if len(c.Rates) != 2 {
			t.Fatalf("Rates = %v, want 2 intervals", c.Rates)
		}
		if c.Rates[0] != 5 || c.Rates[1] != 4 {
			t.Errorf("Rates = %v, want [5 4]", c.Rates)
		}
		if *c.Average != 4.5 {
			t.Errorf("Average = %v, want 4.5", *c.Average)
		}
		if c.TotalEntries != 4 {
			t.Errorf("TotalEntries = %d, want 4", c.TotalEntries)
		}
	})
}

func TestConsumptionFromStore(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	svc := provider.New(db, zaptest.NewLogger(t))

	t0 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)
	for i, v := range []float64{100000.0, 100010.0, 100030.0} {
		if _, err := db.InsertReading(ctx, models.Electricity, t0.Add(time.Duration(i*10)*time.Hour), v); err != nil {
			t.Fatal(err)
		}
	}

	c, err := svc.Consumption(ctx, models.Electricity)
	if err != nil {
		t.Fatalf("Consumption() error = %v", err)
	}
	if !c.Sufficient() || *c.Average != 1.5 {
		t.Errorf("Consumption() = %+v, want average 1.5", c)
	}

	empty, err := svc.Consumption(ctx, models.Gas)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Sufficient() {
		t.Error("gas Consumption().Sufficient() = true with no readings")
	}
}
