package main

import (
	"time"
)

// CustomerRecord is a row from the CRM customers table (Postgres).
// updated_at is the change-tracking column; every writer that mutates a
// record must bump it.
type CustomerRecord struct {
	CustomerID string
	FullName   string
	Email      string
	Country    string
	UpdatedAt  time.Time
}

// TelemetryEvent is a raw event row from the warehouse telemetry_events table.
type TelemetryEvent struct {
	TS           time.Time
	CustomerID   string
	ProsthesisID string
	ResponseMS   float64
	IsError      uint8
	BatteryLevel float64
}

// CustomerDim is the latest CRM copy state for one customer, used to
// decorate mart rows. The warehouse collapses duplicates by updated_at so
// the dimension read always takes the newest version.
type CustomerDim struct {
	FullName string
	Country  string
}

// DailyMartRow is one row of the user_daily_telemetry mart: a single
// customer/prosthesis/day aggregation.
type DailyMartRow struct {
	EventDate       time.Time // date-truncated, UTC
	CustomerID      string
	ProsthesisID    string
	FullName        string
	Country         string
	Events          uint64
	ErrEvents       uint64
	AvgResponseMS   float64
	P95ResponseMS   float64
	AvgBatteryLevel float64
	LastUpdate      time.Time
}

// DateWindow is a half-open date range [Start, End) at day granularity.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the window.
func (w DateWindow) Contains(d time.Time) bool {
	return !d.Before(w.Start) && d.Before(w.End)
}

// RunnerStats is a snapshot of pipeline counters for the health endpoint.
type RunnerStats struct {
	RunsTotal         int64
	RunErrors         int64
	LastRunAt         time.Time
	LastRunDuration   time.Duration
	LastRowsExtracted int64
	LastMartRows      int64
	Watermark         time.Time
}
