package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgoulah/flowmeter/internal/schema"
	"github.com/jgoulah/flowmeter/pkg/models"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	s, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default() error = %v", err)
	}

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "flowmeter.db"), s, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew(t *testing.T) {
	t.Run("creates database file and objects", func(t *testing.T) {
		db := openTestDB(t)

		if _, err := os.Stat(db.Path()); err != nil {
			t.Fatalf("database file was not created: %v", err)
		}
		for _, status := range db.Check(context.Background()) {
			if !status.OK() {
				t.Errorf("object %s not queryable: %v", status.Name, status.Err)
			}
		}
	})

	t.Run("reopens an existing database without losing data", func(t *testing.T) {
		ctx := context.Background()
		s, _ := schema.Default()
		path := filepath.Join(t.TempDir(), "flowmeter.db")

		db, err := New(ctx, path, s, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := db.InsertReading(ctx, models.Electricity, baseTime, 123456.7); err != nil {
			t.Fatalf("InsertReading() error = %v", err)
		}
		db.Close()

		db, err = New(ctx, path, s, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("New() second open error = %v", err)
		}
		defer db.Close()

		readings, err := db.ListReadings(ctx, models.Electricity)
		if err != nil {
			t.Fatalf("ListReadings() error = %v", err)
		}
		if len(readings) != 1 {
			t.Errorf("len(readings) = %d, want 1", len(readings))
		}
	})

	t.Run("recreates a dropped view", func(t *testing.T) {
		ctx := context.Background()
		s, _ := schema.Default()
		path := filepath.Join(t.TempDir(), "flowmeter.db")

		db, err := New(ctx, path, s, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := db.conn.Exec("DROP VIEW latest_readings"); err != nil {
			t.Fatalf("dropping view: %v", err)
		}
		db.Close()

		db, err = New(ctx, path, s, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("New() reopen error = %v", err)
		}
		defer db.Close()

		for _, status := range db.Check(ctx) {
			if !status.OK() {
				t.Errorf("object %s not queryable after reinitialize: %v", status.Name, status.Err)
			}
		}
	})
}

func TestOpenNilSchema(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "x.db"), nil, nil); err == nil {
		t.Error("Open() with nil schema error = nil")
	}
}

func TestReadings(t *testing.T) {
	ctx := context.Background()

	t.Run("insert and retrieve electricity", func(t *testing.T) {
		db := openTestDB(t)

		id, err := db.InsertReading(ctx, models.Electricity, baseTime, 123456.7)
		if err != nil {
			t.Fatalf("InsertReading() error = %v", err)
		}

		readings, err := db.ListReadings(ctx, models.Electricity)
		if err != nil {
			t.Fatalf("ListReadings() error = %v", err)
		}
		if len(readings) != 1 {
			t.Fatalf("len(readings) = %d, want 1", len(readings))
		}
		got := readings[0]
		if got.ID != id || got.Value != 123456.7 || !got.Timestamp.Equal(baseTime) || got.Kind != models.Electricity {
			t.Errorf("reading = %+v, want id=%d value=123456.7 timestamp=%v", got, id, baseTime)
		}
	})

	t.Run("last reading of empty table is nil", func(t *testing.T) {
		db := openTestDB(t)

		last, err := db.LastReading(ctx, models.Gas)
		if err != nil {
			t.Fatalf("LastReading() error = %v", err)
		}
		if last != nil {
			t.Errorf("LastReading() = %+v, want nil", last)
		}
	})

	t.Run("last gas reading follows newest insert", func(t *testing.T) {
		db := openTestDB(t)

		if _, err := db.InsertReading(ctx, models.Gas, baseTime, 12345.678); err != nil {
			t.Fatal(err)
		}
		if _, err := db.InsertReading(ctx, models.Gas, baseTime.Add(time.Hour), 12346.678); err != nil {
			t.Fatal(err)
		}

		last, err := db.LastReading(ctx, models.Gas)
		if err != nil {
			t.Fatalf("LastReading() error = %v", err)
		}
		if last == nil || last.Value != 12346.678 {
			t.Errorf("LastReading() = %+v, want value 12346.678", last)
		}
	})

	t.Run("readings are listed oldest first", func(t *testing.T) {
		db := openTestDB(t)

		for i, v := range []float64{100.0, 200.0, 300.0} {
			if _, err := db.InsertReading(ctx, models.Electricity, baseTime.Add(time.Duration(i)*time.Hour), v); err != nil {
				t.Fatal(err)
			}
		}

		readings, err := db.ListReadings(ctx, models.Electricity)
		if err != nil {
			t.Fatal(err)
		}
		for i := 1; i < len(readings); i++ {
			if readings[i].Timestamp.Before(readings[i-1].Timestamp) {
				t.Errorf("readings out of order at %d: %v before %v", i, readings[i].Timestamp, readings[i-1].Timestamp)
			}
		}
	})

	t.Run("kinds are stored separately", func(t *testing.T) {
		db := openTestDB(t)

		if _, err := db.InsertReading(ctx, models.Electricity, baseTime, 123456.7); err != nil {
			t.Fatal(err)
		}

		gas, err := db.ListReadings(ctx, models.Gas)
		if err != nil {
			t.Fatal(err)
		}
		if len(gas) != 0 {
			t.Errorf("len(gas) = %d, want 0", len(gas))
		}
	})

	t.Run("delete single reading", func(t *testing.T) {
		db := openTestDB(t)

		id, err := db.InsertReading(ctx, models.Gas, baseTime, 12345.678)
		if err != nil {
			t.Fatal(err)
		}
		if err := db.DeleteReading(ctx, models.Gas, id); err != nil {
			t.Fatalf("DeleteReading() error = %v", err)
		}
		if err := db.DeleteReading(ctx, models.Gas, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteReading() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete all empties both tables", func(t *testing.T) {
		db := openTestDB(t)

		if _, err := db.InsertReading(ctx, models.Electricity, baseTime, 123456.7); err != nil {
			t.Fatal(err)
		}
		if _, err := db.InsertReading(ctx, models.Gas, baseTime, 12345.678); err != nil {
			t.Fatal(err)
		}

		if err := db.DeleteAllReadings(ctx); err != nil {
			t.Fatalf("DeleteAllReadings() error = %v", err)
		}

		for _, kind := range models.Kinds {
			readings, err := db.ListReadings(ctx, kind)
			if err != nil {
				t.Fatal(err)
			}
			if len(readings) != 0 {
				t.Errorf("%s: len(readings) = %d, want 0", kind, len(readings))
			}
		}
	})
}

func TestTriggersGuardReadings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := db.InsertReading(ctx, models.Electricity, baseTime, 123456.7); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		value float64
	}{
		{"below previous value", 123455.6},
		{"negative", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.InsertReading(ctx, models.Electricity, baseTime.Add(time.Hour), tt.value)
			var storageErr *StorageError
			if !errors.As(err, &storageErr) {
				t.Fatalf("InsertReading(%v) error = %v, want *StorageError", tt.value, err)
			}
		})
	}
}

func TestLatestReadingsView(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := db.InsertReading(ctx, models.Electricity, baseTime, 100000.0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertReading(ctx, models.Electricity, baseTime.Add(time.Hour), 100001.0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertReading(ctx, models.Gas, baseTime, 10000.5); err != nil {
		t.Fatal(err)
	}

	rows, err := db.conn.QueryContext(ctx, "SELECT kind, value FROM latest_readings ORDER BY kind")
	if err != nil {
		t.Fatalf("querying view: %v", err)
	}
	defer rows.Close()

	got := map[string]float64{}
	for rows.Next() {
		var kind string
		var value float64
		if err := rows.Scan(&kind, &value); err != nil {
			t.Fatal(err)
		}
		got[kind] = value
	}
	if got["electricity"] != 100001.0 || got["gas"] != 10000.5 || len(got) != 2 {
		t.Errorf("latest_readings = %v", got)
	}
}

func TestProviders(t *testing.T) {
	ctx := context.Background()
	date := func(s string) time.Time {
		d, err := time.ParseInLocation(models.DateLayout, s, time.Local)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	t.Run("upsert updates existing row", func(t *testing.T) {
		db := openTestDB(t)

		if err := db.UpsertProvider(ctx, models.Provider{EnergyType: models.Gas, AnnualEnergy: 1500, StartDate: date("2025-01-01")}); err != nil {
			t.Fatalf("UpsertProvider() error = %v", err)
		}
		if err := db.UpsertProvider(ctx, models.Provider{EnergyType: models.Gas, AnnualEnergy: 1800, StartDate: date("2025-06-01")}); err != nil {
			t.Fatalf("UpsertProvider() update error = %v", err)
		}

		p, err := db.GetProvider(ctx, models.Gas)
		if err != nil {
			t.Fatalf("GetProvider() error = %v", err)
		}
		if p == nil {
			t.Fatal("GetProvider() = nil")
		}
		if p.AnnualEnergy != 1800 || p.StartDate.Format(models.DateLayout) != "2025-06-01" {
			t.Errorf("GetProvider() = %+v, want annual_energy=1800 start_date=2025-06-01", p)
		}

		all, err := db.ListProviders(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 {
			t.Errorf("len(ListProviders()) = %d, want 1", len(all))
		}
	})

	t.Run("list is ordered by energy type", func(t *testing.T) {
		db := openTestDB(t)

		for _, p := range []models.Provider{
			{EnergyType: models.Gas, AnnualEnergy: 1500, StartDate: date("2025-01-01")},
			{EnergyType: models.Electricity, AnnualEnergy: 2000, StartDate: date("2025-01-01")},
		} {
			if err := db.UpsertProvider(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		all, err := db.ListProviders(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 || all[0].EnergyType != models.Electricity || all[1].EnergyType != models.Gas {
			t.Errorf("ListProviders() = %+v", all)
		}
	})

	t.Run("delete", func(t *testing.T) {
		db := openTestDB(t)

		if err := db.UpsertProvider(ctx, models.Provider{EnergyType: models.Electricity, AnnualEnergy: 2000, StartDate: date("2025-01-01")}); err != nil {
			t.Fatal(err)
		}
		if err := db.DeleteProvider(ctx, models.Electricity); err != nil {
			t.Fatalf("DeleteProvider() error = %v", err)
		}

		p, err := db.GetProvider(ctx, models.Electricity)
		if err != nil {
			t.Fatal(err)
		}
		if p != nil {
			t.Errorf("GetProvider() after delete = %+v, want nil", p)
		}
		if err := db.DeleteProvider(ctx, models.Electricity); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteProvider() of missing row error = %v, want ErrNotFound", err)
		}
	})

	t.Run("negative annual energy is rejected by the table", func(t *testing.T) {
		db := openTestDB(t)

		err := db.UpsertProvider(ctx, models.Provider{EnergyType: models.Gas, AnnualEnergy: -1, StartDate: date("2025-01-01")})
		var storageErr *StorageError
		if !errors.As(err, &storageErr) {
			t.Errorf("UpsertProvider() error = %v, want *StorageError", err)
		}
	})
}

func TestStorageErrorUnwrap(t *testing.T) {
	err := storageErr("querying", sql.ErrConnDone)
	if !errors.Is(err, sql.ErrConnDone) {
		t.Error("StorageError does not unwrap to its cause")
	}
}
