package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const dateLayout = "2006-01-02"

// Warehouse executes parameterized reads and writes against the analytical
// store (ClickHouse). No business logic lives here; the extractor and the
// refresh engine decide what to read and write.
type Warehouse struct {
	conn driver.Conn
}

// NewWarehouse creates a new warehouse client
func NewWarehouse(conn driver.Conn) *Warehouse {
	return &Warehouse{conn: conn}
}

// InsertCustomers bulk-appends CRM customer copies. Duplicates across
// repeated extraction runs are expected; the ReplacingMergeTree collapses
// them by updated_at, so the pipeline never deduplicates on its own.
func (w *Warehouse) InsertCustomers(ctx context.Context, records []CustomerRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO crm_customers (customer_id, full_name, email, country, updated_at)
		VALUES
	`)
	if err != nil {
		return storeUnavailable("prepare customer batch", err)
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, rec := range records {
		if err := batch.Append(rec.CustomerID, rec.FullName, rec.Email, rec.Country, rec.UpdatedAt); err != nil {
			return storeUnavailable("append customer row", err)
		}
	}

	if err := batch.Send(); err != nil {
		return storeUnavailable("send customer batch", err)
	}

	return nil
}

// InsertTelemetry bulk-appends raw telemetry events (demo seeding path;
// production events arrive through the external ingestion pipeline).
func (w *Warehouse) InsertTelemetry(ctx context.Context, events []TelemetryEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO telemetry_events (ts, customer_id, prosthesis_id, response_ms, is_error, battery_level)
		VALUES
	`)
	if err != nil {
		return storeUnavailable("prepare telemetry batch", err)
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, ev := range events {
		if err := batch.Append(ev.TS, ev.CustomerID, ev.ProsthesisID, ev.ResponseMS, ev.IsError, ev.BatteryLevel); err != nil {
			return storeUnavailable("append telemetry row", err)
		}
	}

	if err := batch.Send(); err != nil {
		return storeUnavailable("send telemetry batch", err)
	}

	return nil
}

// FetchEventsBetween reads raw telemetry with start <= ts < end, ordered the
// same way the table is sorted so the refresh engine can aggregate in one
// streaming pass.
func (w *Warehouse) FetchEventsBetween(ctx context.Context, start, end time.Time) ([]TelemetryEvent, error) {
	rows, err := w.conn.Query(ctx, `
		SELECT ts, customer_id, prosthesis_id, response_ms, is_error, battery_level
		FROM telemetry_events
		WHERE ts >= ? AND ts < ?
		ORDER BY customer_id, prosthesis_id, ts
	`, start, end)
	if err != nil {
		return nil, storeUnavailable("query telemetry window", err)
	}
	defer rows.Close()

	var events []TelemetryEvent
	for rows.Next() {
		var ev TelemetryEvent
		if err := rows.Scan(&ev.TS, &ev.CustomerID, &ev.ProsthesisID, &ev.ResponseMS, &ev.IsError, &ev.BatteryLevel); err != nil {
			return nil, storeUnavailable("scan telemetry row", err)
		}
		ev.TS = ev.TS.UTC()
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, storeUnavailable("iterate telemetry rows", err)
	}

	return events, nil
}

// FetchCustomerDims returns the newest CRM-copy version per customer.
// argMax over updated_at collapses the append-only history the same way the
// ReplacingMergeTree would after a merge.
func (w *Warehouse) FetchCustomerDims(ctx context.Context) (map[string]CustomerDim, error) {
	rows, err := w.conn.Query(ctx, `
		SELECT
			customer_id,
			argMax(full_name, updated_at) AS full_name,
			argMax(country, updated_at) AS country
		FROM crm_customers
		GROUP BY customer_id
	`)
	if err != nil {
		return nil, storeUnavailable("query customer dims", err)
	}
	defer rows.Close()

	dims := make(map[string]CustomerDim)
	for rows.Next() {
		var id string
		var dim CustomerDim
		if err := rows.Scan(&id, &dim.FullName, &dim.Country); err != nil {
			return nil, storeUnavailable("scan customer dim", err)
		}
		dims[id] = dim
	}

	if err := rows.Err(); err != nil {
		return nil, storeUnavailable("iterate customer dims", err)
	}

	return dims, nil
}

// DeleteMartWindow removes every mart row with event_date inside the
// half-open window. Runs as a mutation; ClickHouse applies it
// asynchronously but the statement is accepted atomically.
func (w *Warehouse) DeleteMartWindow(ctx context.Context, window DateWindow) error {
	query := fmt.Sprintf(`
		ALTER TABLE user_daily_telemetry
		DELETE WHERE event_date >= toDate('%s') AND event_date < toDate('%s')
	`, window.Start.Format(dateLayout), window.End.Format(dateLayout))

	if err := w.conn.Exec(ctx, query); err != nil {
		return storeUnavailable("delete mart window", err)
	}

	return nil
}

// InsertMartRows bulk-appends recomputed mart rows
func (w *Warehouse) InsertMartRows(ctx context.Context, martRows []DailyMartRow) error {
	if len(martRows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO user_daily_telemetry
		(event_date, customer_id, prosthesis_id, full_name, country,
		 events, err_events, avg_response_ms, p95_response_ms, avg_battery_level, last_update)
		VALUES
	`)
	if err != nil {
		return storeUnavailable("prepare mart batch", err)
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, row := range martRows {
		if err := batch.Append(
			row.EventDate,
			row.CustomerID,
			row.ProsthesisID,
			row.FullName,
			row.Country,
			row.Events,
			row.ErrEvents,
			row.AvgResponseMS,
			row.P95ResponseMS,
			row.AvgBatteryLevel,
			row.LastUpdate,
		); err != nil {
			return storeUnavailable("append mart row", err)
		}
	}

	if err := batch.Send(); err != nil {
		return storeUnavailable("send mart batch", err)
	}

	return nil
}
