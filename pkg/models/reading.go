package models

import "time"

// Reading represents a single meter reading
type Reading struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Provider holds the energy contract for one energy type
type Provider struct {
	EnergyType   Kind      `json:"-"`
	AnnualEnergy int64     `json:"annual_energy"`
	StartDate    time.Time `json:"start_date"` // Date only
}

// MonthlyTarget returns the contracted energy per month
func (p Provider) MonthlyTarget() float64 {
	return float64(p.AnnualEnergy) / 12
}

// TargetPoint is one month on the contract target line
type TargetPoint struct {
	Date        time.Time `json:"date"`
	Consumption float64   `json:"consumption"`
}

// Consumption summarises the consumption rate between consecutive readings
type Consumption struct {
	Message      string    `json:"message,omitempty"`
	Average      *float64  `json:"average_consumption"` // Per hour; nil when no interval qualifies
	Rates        []float64 `json:"consumptions"`
	TotalEntries int       `json:"total_entries"`
}

// Sufficient reports whether an average could be computed
func (c Consumption) Sufficient() bool {
	return c.Average != nil
}
