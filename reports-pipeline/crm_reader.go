package main

import (
	"context"
	"database/sql"
	"time"
)

// CRMReader reads customer records from the operational store (CRM Postgres).
// Read-only: the pipeline never mutates CRM data outside of demo seeding.
type CRMReader struct {
	db *sql.DB
}

// NewCRMReader creates a new CRM reader
func NewCRMReader(db *sql.DB) *CRMReader {
	return &CRMReader{db: db}
}

// FetchChangedSince returns customers with since < updated_at <= until,
// ordered ascending by updated_at. The half-open bounds guarantee that a
// record is never skipped or double-counted when one run's upper bound
// becomes the next run's lower bound.
func (cr *CRMReader) FetchChangedSince(ctx context.Context, since, until time.Time) ([]CustomerRecord, error) {
	query := `
		SELECT customer_id, full_name, email, country, updated_at
		FROM customers
		WHERE updated_at > $1 AND updated_at <= $2
		ORDER BY updated_at ASC
	`

	rows, err := cr.db.QueryContext(ctx, query, since, until)
	if err != nil {
		return nil, storeUnavailable("query changed customers", err)
	}
	defer rows.Close()

	var records []CustomerRecord
	for rows.Next() {
		var rec CustomerRecord
		if err := rows.Scan(&rec.CustomerID, &rec.FullName, &rec.Email, &rec.Country, &rec.UpdatedAt); err != nil {
			return nil, storeUnavailable("scan customer row", err)
		}
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, storeUnavailable("iterate customer rows", err)
	}

	return records, nil
}

// ListCustomerIDs returns every customer id in the CRM, ordered.
// Used by the demo telemetry seeder.
func (cr *CRMReader) ListCustomerIDs(ctx context.Context) ([]string, error) {
	rows, err := cr.db.QueryContext(ctx, `SELECT customer_id FROM customers ORDER BY customer_id`)
	if err != nil {
		return nil, storeUnavailable("query customer ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeUnavailable("scan customer id", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, storeUnavailable("iterate customer ids", err)
	}

	return ids, nil
}
