package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// telemetrySource reads raw telemetry events from the warehouse.
type telemetrySource interface {
	FetchEventsBetween(ctx context.Context, start, end time.Time) ([]TelemetryEvent, error)
}

// dimensionSource reads the collapsed CRM copy for the mart join.
type dimensionSource interface {
	FetchCustomerDims(ctx context.Context) (map[string]CustomerDim, error)
}

// martStore is the derived aggregate table.
type martStore interface {
	DeleteMartWindow(ctx context.Context, window DateWindow) error
	InsertMartRows(ctx context.Context, rows []DailyMartRow) error
}

// MartRefresher recomputes the trailing daily aggregation window by
// deleting the stored overlap and re-inserting a fresh join+aggregate over
// raw telemetry and the synced CRM copy.
//
// Delete-then-insert is idempotent but deliberately not atomic: a crash
// between the two leaves the window empty until the next successful run
// repairs it. That trade keeps the warehouse free of cross-statement
// locking; the orchestration retry closes the gap.
type MartRefresher struct {
	telemetry telemetrySource
	dims      dimensionSource
	mart      martStore
	daysBack  int
	now       func() time.Time
}

// NewMartRefresher creates a new mart refresher
func NewMartRefresher(telemetry telemetrySource, dims dimensionSource, mart martStore, daysBack int) *MartRefresher {
	return &MartRefresher{
		telemetry: telemetry,
		dims:      dims,
		mart:      mart,
		daysBack:  daysBack,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RefreshWindow computes the half-open recomputation range
// [today-daysBack, today+1) for a given wall-clock instant.
func RefreshWindow(now time.Time, daysBack int) DateWindow {
	end := truncateToDay(now).AddDate(0, 0, 1)
	return DateWindow{
		Start: end.AddDate(0, 0, -daysBack-1),
		End:   end,
	}
}

// Run executes one refresh pass and returns the number of mart rows written
func (mr *MartRefresher) Run(ctx context.Context) (int64, error) {
	now := mr.now()
	window := RefreshWindow(now, mr.daysBack)

	events, err := mr.telemetry.FetchEventsBetween(ctx, window.Start, window.End)
	if err != nil {
		return 0, fmt.Errorf("failed to read telemetry window: %w", err)
	}

	dims, err := mr.dims.FetchCustomerDims(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read customer dimensions: %w", err)
	}

	rows := AggregateEvents(events, dims, now)

	// Recomputation must stay inside the requested window; a row outside it
	// would survive the next delete and go permanently stale.
	for _, row := range rows {
		if !window.Contains(row.EventDate) {
			return 0, invariantViolation("mart row for %s outside window [%s, %s)",
				row.EventDate.Format(dateLayout), window.Start.Format(dateLayout), window.End.Format(dateLayout))
		}
	}

	// Delete failure aborts before insert, leaving the old rows in place.
	if err := mr.mart.DeleteMartWindow(ctx, window); err != nil {
		return 0, fmt.Errorf("failed to delete mart window: %w", err)
	}

	if err := mr.mart.InsertMartRows(ctx, rows); err != nil {
		// The window is now empty until a retry succeeds. Accepted gap.
		return 0, fmt.Errorf("failed to insert mart rows: %w", err)
	}

	log.Printf("📊 Refreshed mart window [%s, %s): %d rows from %d events",
		window.Start.Format(dateLayout), window.End.Format(dateLayout), len(rows), len(events))
	return int64(len(rows)), nil
}
