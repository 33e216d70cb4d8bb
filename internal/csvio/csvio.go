package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/flowmeter/internal/meter"
	"github.com/jgoulah/flowmeter/pkg/models"
)

var header = []string{"timestamp", "value"}

// ParseReadings parses readings of one kind from r.
//
// Expected header: timestamp,value
//
// Timestamps use layout "2006-01-02 15:04:05" in local time. Invalid rows are
// skipped and returned as a joined error (errors.Join).
func ParseReadings(r io.Reader, kind models.Kind) ([]models.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(head) < 2 || !strings.EqualFold(strings.TrimSpace(head[0]), header[0]) || !strings.EqualFold(strings.TrimSpace(head[1]), header[1]) {
		return nil, fmt.Errorf("unexpected header %q (want %q)", strings.Join(head, ","), strings.Join(header, ","))
	}

	var (
		readings []models.Reading
		rowErrs  []error
		rowNum   = 1
	)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: read: %w", rowNum, err))
			continue
		}
		if len(row) < 2 {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: expected 2 columns, got %d", rowNum, len(row)))
			continue
		}

		ts, err := time.ParseInLocation(models.TimestampLayout, strings.TrimSpace(row[0]), time.Local)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: parse timestamp %q: %w", rowNum, row[0], err))
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: parse value %q: %w", rowNum, row[1], err))
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: invalid value %v", rowNum, v))
			continue
		}

		readings = append(readings, models.Reading{Kind: kind, Timestamp: ts, Value: v})
	}

	if readings == nil {
		readings = []models.Reading{}
	}
	return readings, errors.Join(rowErrs...)
}

// WriteReadings writes readings as CSV with display-padded values
func WriteReadings(w io.Writer, kind models.Kind, readings []models.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range readings {
		if err := cw.Write([]string{r.Timestamp.Format(models.TimestampLayout), meter.Format(kind, r.Value)}); err != nil {
			return fmt.Errorf("write reading %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Recorder stores a reading at an explicit time; implemented by meter.Meter
type Recorder interface {
	RecordAt(ctx context.Context, ts time.Time, value float64) (models.Reading, error)
}

// Import records readings oldest first. Readings rejected by the recorder are
// skipped and returned as a joined error alongside the stored readings.
func Import(ctx context.Context, rec Recorder, readings []models.Reading) ([]models.Reading, error) {
	sorted := make([]models.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		stored []models.Reading
		errs   []error
	)
	for _, r := range sorted {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		saved, err := rec.RecordAt(ctx, r.Timestamp, r.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Timestamp.Format(models.TimestampLayout), err))
			continue
		}
		stored = append(stored, saved)
	}
	return stored, errors.Join(errs...)
}
