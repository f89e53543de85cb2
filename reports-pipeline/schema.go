package main

import (
	"context"
	"database/sql"
	"fmt"
)

// Warehouse DDL. ReplacingMergeTree gives last-write-wins collapse on the
// explicit tiebreaker column, so the pipeline can append freely and let the
// engine deduplicate.
var warehouseDDL = []string{
	`CREATE DATABASE IF NOT EXISTS %[1]s`,

	`CREATE TABLE IF NOT EXISTS %[1]s.crm_customers
	(
		customer_id String,
		full_name   String,
		email       String,
		country     String,
		updated_at  DateTime
	)
	ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (customer_id)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.telemetry_events
	(
		ts              DateTime,
		customer_id     String,
		prosthesis_id   String,
		response_ms     Float64,
		is_error        UInt8,
		battery_level   Float64
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(ts)
	ORDER BY (customer_id, prosthesis_id, ts)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.user_daily_telemetry
	(
		event_date        Date,
		customer_id       String,
		prosthesis_id     String,
		full_name         String,
		country           String,
		events            UInt64,
		err_events        UInt64,
		avg_response_ms   Float64,
		p95_response_ms   Float64,
		avg_battery_level Float64,
		last_update       DateTime
	)
	ENGINE = ReplacingMergeTree(last_update)
	PARTITION BY toYYYYMM(event_date)
	ORDER BY (event_date, customer_id, prosthesis_id)`,
}

// EnsureWarehouseSchema provisions the analytical database and its three
// tables. Idempotent; safe to run at the start of every cycle.
func (w *Warehouse) EnsureWarehouseSchema(ctx context.Context, database string) error {
	for _, ddl := range warehouseDDL {
		if err := w.conn.Exec(ctx, fmt.Sprintf(ddl, database)); err != nil {
			return schemaMissing("ensure warehouse schema", err)
		}
	}
	return nil
}

// EnsureCRMSchema provisions the CRM customers table and the pipeline's
// watermark table in the operational Postgres. The CRM table normally exists
// already (the CRM system owns it); creating it here keeps fresh
// environments bootable.
func EnsureCRMSchema(ctx context.Context, db *sql.DB, watermarkTable string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id  text PRIMARY KEY,
			full_name    text,
			email        text,
			country      text,
			updated_at   timestamp NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			pipeline   text PRIMARY KEY,
			watermark  timestamp NOT NULL,
			updated_at timestamp NOT NULL
		)`, watermarkTable),
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return schemaMissing("ensure crm schema", err)
		}
	}

	return nil
}
