package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// customerSource reads changed customer records from the operational store.
type customerSource interface {
	FetchChangedSince(ctx context.Context, since, until time.Time) ([]CustomerRecord, error)
}

// customerSink appends customer copies to the warehouse.
type customerSink interface {
	InsertCustomers(ctx context.Context, records []CustomerRecord) error
}

// watermarkStore is the persisted extraction cursor.
type watermarkStore interface {
	Get(ctx context.Context) (time.Time, error)
	Set(ctx context.Context, wm time.Time) error
}

// DeltaExtractor incrementally copies CRM customers into the warehouse.
//
// Each run reads the half-open window (watermark, now+overlap], appends the
// batch, and advances the watermark. The step is atomic from the watermark's
// point of view: either rows are written and the watermark matches them, or
// neither happens. On an empty window the watermark still jumps to the upper
// bound so quiet periods don't grow the window without bound. A source write
// whose updated_at lands inside the window but commits after the read is
// then permanently skipped — the overlap shrinks that race, it does not
// close it. Closing it needs a pre-commit-safe change-tracking discipline
// from the CRM side.
type DeltaExtractor struct {
	source     customerSource
	sink       customerSink
	watermarks watermarkStore
	overlap    time.Duration
	now        func() time.Time
}

// NewDeltaExtractor creates a new delta extractor
func NewDeltaExtractor(source customerSource, sink customerSink, watermarks watermarkStore, overlap time.Duration) *DeltaExtractor {
	return &DeltaExtractor{
		source:     source,
		sink:       sink,
		watermarks: watermarks,
		overlap:    overlap,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one extraction pass and returns the number of rows copied
func (de *DeltaExtractor) Run(ctx context.Context) (int64, error) {
	wm, err := de.watermarks.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load watermark: %w", err)
	}

	now := de.now()
	upper := now.Add(de.overlap)

	// A watermark past the window's upper bound means a clock defect or a
	// corrupted cursor. Extracting against it would produce an inverted
	// window and silently skip data, so refuse instead.
	if wm.After(upper) {
		return 0, invariantViolation("watermark %s is beyond upper bound %s", wm.Format(time.RFC3339), upper.Format(time.RFC3339))
	}

	records, err := de.source.FetchChangedSince(ctx, wm, upper)
	if err != nil {
		return 0, fmt.Errorf("failed to read CRM delta: %w", err)
	}

	if len(records) == 0 {
		// Advance past the empty window anyway; see the type comment for
		// the race this trades away.
		if err := de.watermarks.Set(ctx, upper); err != nil {
			return 0, fmt.Errorf("failed to advance watermark past empty window: %w", err)
		}
		log.Printf("📭 No CRM changes in (%s, %s]", wm.Format(time.RFC3339), upper.Format(time.RFC3339))
		return 0, nil
	}

	if err := de.sink.InsertCustomers(ctx, records); err != nil {
		// Watermark untouched: the failed interval is re-read next run and
		// the ReplacingMergeTree collapses any rows that did land.
		return 0, fmt.Errorf("failed to write customer copies: %w", err)
	}

	next := maxUpdatedAt(records)
	if err := de.watermarks.Set(ctx, next); err != nil {
		return 0, fmt.Errorf("failed to advance watermark: %w", err)
	}

	log.Printf("📦 Extracted %d CRM rows, watermark → %s", len(records), next.Format(time.RFC3339))
	return int64(len(records)), nil
}

// maxUpdatedAt returns the newest change timestamp in the batch. The batch
// is ordered ascending, but scanning all rows keeps the answer right even if
// a source stops guaranteeing order.
func maxUpdatedAt(records []CustomerRecord) time.Time {
	var max time.Time
	for _, rec := range records {
		if rec.UpdatedAt.After(max) {
			max = rec.UpdatedAt
		}
	}
	return max
}
