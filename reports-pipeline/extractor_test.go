package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeCRM serves a fixed customer set, filtering by the half-open window the
// way the real operational store query does.
type fakeCRM struct {
	records []CustomerRecord
	err     error
}

func (f *fakeCRM) FetchChangedSince(ctx context.Context, since, until time.Time) ([]CustomerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []CustomerRecord
	for _, rec := range f.records {
		if rec.UpdatedAt.After(since) && !rec.UpdatedAt.After(until) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeCustomerSink struct {
	inserted []CustomerRecord
	err      error
}

func (f *fakeCustomerSink) InsertCustomers(ctx context.Context, records []CustomerRecord) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, records...)
	return nil
}

type fakeWatermarks struct {
	value  time.Time
	getErr error
	setErr error
	sets   []time.Time
}

func (f *fakeWatermarks) Get(ctx context.Context) (time.Time, error) {
	if f.getErr != nil {
		return time.Time{}, f.getErr
	}
	return f.value, nil
}

func (f *fakeWatermarks) Set(ctx context.Context, wm time.Time) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.value = wm
	f.sets = append(f.sets, wm)
	return nil
}

func newTestExtractor(source customerSource, sink customerSink, wms watermarkStore, overlap time.Duration, now time.Time) *DeltaExtractor {
	de := NewDeltaExtractor(source, sink, wms, overlap)
	de.now = func() time.Time { return now }
	return de
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestDeltaExtractor_AdvancesToMaxUpdatedAt(t *testing.T) {
	now := ts("2025-06-01T12:00:00Z")
	source := &fakeCRM{records: []CustomerRecord{
		{CustomerID: "c1", UpdatedAt: ts("2025-06-01T11:10:00Z")},
		{CustomerID: "c2", UpdatedAt: ts("2025-06-01T11:45:00Z")},
	}}
	sink := &fakeCustomerSink{}
	wms := &fakeWatermarks{value: epochSentinel}

	de := newTestExtractor(source, sink, wms, 5*time.Minute, now)
	n, err := de.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows extracted, got %d", n)
	}
	if len(sink.inserted) != 2 {
		t.Errorf("Expected 2 rows in sink, got %d", len(sink.inserted))
	}

	want := ts("2025-06-01T11:45:00Z")
	if !wms.value.Equal(want) {
		t.Errorf("Expected watermark %v, got %v", want, wms.value)
	}
}

func TestDeltaExtractor_EmptyWindowAdvancesToUpper(t *testing.T) {
	now := ts("2025-06-01T12:00:00Z")
	source := &fakeCRM{}
	sink := &fakeCustomerSink{}
	wms := &fakeWatermarks{value: ts("2025-06-01T10:00:00Z")}

	de := newTestExtractor(source, sink, wms, 5*time.Minute, now)
	n, err := de.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 rows, got %d", n)
	}

	want := ts("2025-06-01T12:05:00Z")
	if !wms.value.Equal(want) {
		t.Errorf("Expected watermark to jump to upper bound %v, got %v", want, wms.value)
	}
	if len(sink.inserted) != 0 {
		t.Errorf("Expected no writes on empty window, got %d", len(sink.inserted))
	}
}

func TestDeltaExtractor_NoAdvanceOnReadFailure(t *testing.T) {
	now := ts("2025-06-01T12:00:00Z")
	initial := ts("2025-06-01T10:00:00Z")
	source := &fakeCRM{err: storeUnavailable("query changed customers", errors.New("connection refused"))}
	wms := &fakeWatermarks{value: initial}

	de := newTestExtractor(source, &fakeCustomerSink{}, wms, 5*time.Minute, now)
	if _, err := de.Run(context.Background()); err == nil {
		t.Fatal("Expected error on source read failure, got nil")
	}

	if !wms.value.Equal(initial) {
		t.Errorf("Watermark moved on read failure: %v → %v", initial, wms.value)
	}
	if len(wms.sets) != 0 {
		t.Errorf("Expected no watermark writes, got %d", len(wms.sets))
	}
}

func TestDeltaExtractor_NoAdvanceOnWriteFailure(t *testing.T) {
	now := ts("2025-06-01T12:00:00Z")
	initial := ts("2025-06-01T10:00:00Z")
	source := &fakeCRM{records: []CustomerRecord{
		{CustomerID: "c1", UpdatedAt: ts("2025-06-01T11:00:00Z")},
	}}
	sink := &fakeCustomerSink{err: storeUnavailable("send customer batch", errors.New("broken pipe"))}
	wms := &fakeWatermarks{value: initial}

	de := newTestExtractor(source, sink, wms, 5*time.Minute, now)
	if _, err := de.Run(context.Background()); err == nil {
		t.Fatal("Expected error on warehouse write failure, got nil")
	}

	if !wms.value.Equal(initial) {
		t.Errorf("Watermark moved on write failure: %v → %v", initial, wms.value)
	}
}

func TestDeltaExtractor_WatermarkMonotonic(t *testing.T) {
	source := &fakeCRM{records: []CustomerRecord{
		{CustomerID: "c1", UpdatedAt: ts("2025-06-01T09:30:00Z")},
		{CustomerID: "c2", UpdatedAt: ts("2025-06-01T10:30:00Z")},
		{CustomerID: "c3", UpdatedAt: ts("2025-06-01T11:30:00Z")},
	}}
	sink := &fakeCustomerSink{}
	wms := &fakeWatermarks{value: epochSentinel}

	runs := []time.Time{
		ts("2025-06-01T10:00:00Z"),
		ts("2025-06-01T11:00:00Z"),
		ts("2025-06-01T11:05:00Z"), // quiet period, empty window
		ts("2025-06-01T12:00:00Z"),
	}

	prev := epochSentinel
	for _, now := range runs {
		de := newTestExtractor(source, sink, wms, 5*time.Minute, now)
		if _, err := de.Run(context.Background()); err != nil {
			t.Fatalf("Run at %v failed: %v", now, err)
		}
		if wms.value.Before(prev) {
			t.Errorf("Watermark went backward: %v → %v", prev, wms.value)
		}
		prev = wms.value
	}
}

func TestDeltaExtractor_NoDoubleCountAcrossWindows(t *testing.T) {
	// Δ=0: two consecutive runs with no new data arriving between them must
	// extract exactly the union of records, each once.
	source := &fakeCRM{records: []CustomerRecord{
		{CustomerID: "c1", UpdatedAt: ts("2025-06-01T09:15:00Z")},
		{CustomerID: "c2", UpdatedAt: ts("2025-06-01T09:45:00Z")},
		{CustomerID: "c3", UpdatedAt: ts("2025-06-01T10:30:00Z")},
	}}
	sink := &fakeCustomerSink{}
	wms := &fakeWatermarks{value: epochSentinel}

	for _, now := range []time.Time{ts("2025-06-01T10:00:00Z"), ts("2025-06-01T11:00:00Z")} {
		de := newTestExtractor(source, sink, wms, 0, now)
		if _, err := de.Run(context.Background()); err != nil {
			t.Fatalf("Run at %v failed: %v", now, err)
		}
	}

	if len(sink.inserted) != 3 {
		t.Fatalf("Expected 3 rows total across both runs, got %d", len(sink.inserted))
	}
	seen := map[string]int{}
	for _, rec := range sink.inserted {
		seen[rec.CustomerID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("Customer %s extracted %d times, want exactly once", id, n)
		}
	}
}

func TestDeltaExtractor_FutureWatermarkIsInvariantViolation(t *testing.T) {
	now := ts("2025-06-01T12:00:00Z")
	wms := &fakeWatermarks{value: ts("2025-06-01T13:00:00Z")}

	de := newTestExtractor(&fakeCRM{}, &fakeCustomerSink{}, wms, 5*time.Minute, now)
	_, err := de.Run(context.Background())
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Expected ErrInvariantViolation, got: %v", err)
	}
}

func TestDeltaExtractor_WatermarkStoreFailureIsNotNoWatermark(t *testing.T) {
	wms := &fakeWatermarks{getErr: storeUnavailable("load watermark", errors.New("timeout"))}

	de := newTestExtractor(&fakeCRM{}, &fakeCustomerSink{}, wms, 5*time.Minute, ts("2025-06-01T12:00:00Z"))
	_, err := de.Run(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable, got: %v", err)
	}
}
