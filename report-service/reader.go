package main

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DailyTelemetry is one pre-aggregated mart row scoped to a report response.
type DailyTelemetry struct {
	EventDate       string  `json:"event_date"`
	ProsthesisID    string  `json:"prosthesis_id"`
	Events          uint64  `json:"events"`
	ErrEvents       uint64  `json:"err_events"`
	AvgResponseMS   float64 `json:"avg_response_ms"`
	P95ResponseMS   float64 `json:"p95_response_ms"`
	AvgBatteryLevel float64 `json:"avg_battery_level"`
}

// UserReport is the full per-customer report payload.
type UserReport struct {
	CustomerID string           `json:"customer_id"`
	FullName   string           `json:"full_name"`
	Country    string           `json:"country"`
	Days       []DailyTelemetry `json:"days"`
}

// martRow is the raw shape read from user_daily_telemetry.
type martRow struct {
	EventDate       time.Time
	ProsthesisID    string
	Events          uint64
	ErrEvents       uint64
	AvgResponseMS   float64
	P95ResponseMS   float64
	AvgBatteryLevel float64
	FullName        string
	Country         string
}

// MartReader reads the pre-aggregated daily mart. The service never computes
// aggregates itself; the mart is read-only input.
type MartReader struct {
	conn driver.Conn
}

// NewMartReader creates a new mart reader
func NewMartReader(conn driver.Conn) *MartReader {
	return &MartReader{conn: conn}
}

// FetchUserDaily returns the mart rows for one customer, ordered by
// (event_date, prosthesis_id). FINAL collapses any not-yet-merged duplicate
// versions so repeated pipeline runs never show up as double rows.
func (mr *MartReader) FetchUserDaily(ctx context.Context, customerID string) ([]martRow, error) {
	rows, err := mr.conn.Query(ctx, `
		SELECT
			event_date,
			prosthesis_id,
			events,
			err_events,
			avg_response_ms,
			p95_response_ms,
			avg_battery_level,
			full_name,
			country
		FROM user_daily_telemetry FINAL
		WHERE customer_id = ?
		ORDER BY event_date, prosthesis_id
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []martRow
	for rows.Next() {
		var row martRow
		if err := rows.Scan(
			&row.EventDate,
			&row.ProsthesisID,
			&row.Events,
			&row.ErrEvents,
			&row.AvgResponseMS,
			&row.P95ResponseMS,
			&row.AvgBatteryLevel,
			&row.FullName,
			&row.Country,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
