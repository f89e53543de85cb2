package main

import (
	"math"
	"testing"
	"time"
)

func TestAggregateEvents_GroupsByDayCustomerProsthesis(t *testing.T) {
	now := ts("2025-01-03T00:00:00Z")
	events := []TelemetryEvent{
		{TS: ts("2025-01-01T10:00:00Z"), CustomerID: "c1", ProsthesisID: "p1", ResponseMS: 100, BatteryLevel: 80},
		{TS: ts("2025-01-01T23:59:59Z"), CustomerID: "c1", ProsthesisID: "p1", ResponseMS: 200, BatteryLevel: 78},
		{TS: ts("2025-01-02T00:00:00Z"), CustomerID: "c1", ProsthesisID: "p1", ResponseMS: 300, BatteryLevel: 76},
		{TS: ts("2025-01-01T12:00:00Z"), CustomerID: "c1", ProsthesisID: "p2", ResponseMS: 150, BatteryLevel: 90},
		{TS: ts("2025-01-01T13:00:00Z"), CustomerID: "c2", ProsthesisID: "p1", ResponseMS: 180, IsError: 1, BatteryLevel: 85},
	}

	rows := AggregateEvents(events, nil, now)

	if len(rows) != 4 {
		t.Fatalf("Expected 4 mart rows, got %d", len(rows))
	}

	// Output is ordered by (event_date, customer_id, prosthesis_id).
	first := rows[0]
	if first.CustomerID != "c1" || first.ProsthesisID != "p1" || !first.EventDate.Equal(ts("2025-01-01T00:00:00Z")) {
		t.Errorf("Unexpected first row: %+v", first)
	}
	if first.Events != 2 {
		t.Errorf("Expected 2 events on day one for c1/p1, got %d", first.Events)
	}
	if first.AvgResponseMS != 150.0 {
		t.Errorf("Expected avg 150.0, got %f", first.AvgResponseMS)
	}

	last := rows[3]
	if !last.EventDate.Equal(ts("2025-01-02T00:00:00Z")) {
		t.Errorf("Expected day-two row last, got %+v", last)
	}
}

func TestAggregateEvents_Deterministic(t *testing.T) {
	now := ts("2025-01-03T00:00:00Z")
	events := []TelemetryEvent{
		{TS: ts("2025-01-01T10:00:00Z"), CustomerID: "c2", ProsthesisID: "p2", ResponseMS: 100},
		{TS: ts("2025-01-01T10:00:00Z"), CustomerID: "c1", ProsthesisID: "p1", ResponseMS: 100},
		{TS: ts("2025-01-02T10:00:00Z"), CustomerID: "c1", ProsthesisID: "p1", ResponseMS: 100},
	}

	a := AggregateEvents(events, nil, now)
	b := AggregateEvents(events, nil, now)

	if len(a) != len(b) {
		t.Fatalf("Row counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("Row %d differs across identical recomputations: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestAggregateEvents_EmptyInput(t *testing.T) {
	rows := AggregateEvents(nil, nil, ts("2025-01-01T00:00:00Z"))
	if len(rows) != 0 {
		t.Errorf("Expected no rows for no events, got %d", len(rows))
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		q       float64
		want    float64
	}{
		{"empty", nil, 0.95, 0},
		{"single", []float64{120}, 0.95, 120},
		{"two samples p95", []float64{100, 300}, 0.95, 290},
		{"median of three", []float64{10, 20, 30}, 0.5, 20},
		{"p95 of ascending run", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.95, 9.55},
		{"unsorted input", []float64{300, 100}, 0.95, 290},
		{"p100", []float64{1, 2, 3}, 1.0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := percentile(tt.samples, tt.q)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("percentile(%v, %v) = %v, want %v", tt.samples, tt.q, got, tt.want)
			}
		})
	}
}

func TestPercentile_DoesNotMutateInput(t *testing.T) {
	samples := []float64{300, 100, 200}
	percentile(samples, 0.95)
	if samples[0] != 300 || samples[1] != 100 || samples[2] != 200 {
		t.Errorf("percentile mutated its input: %v", samples)
	}
}

func TestTruncateToDay(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	in := time.Date(2025, 1, 2, 1, 30, 0, 0, loc) // 2025-01-01T22:30Z
	got := truncateToDay(in)
	want := ts("2025-01-01T00:00:00Z")
	if !got.Equal(want) {
		t.Errorf("truncateToDay(%v) = %v, want %v", in, got, want)
	}
}
