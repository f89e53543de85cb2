package main

import (
	"sort"
	"time"
)

// martKey identifies one customer/prosthesis/day triple.
type martKey struct {
	eventDate    time.Time
	customerID   string
	prosthesisID string
}

// dailyAccumulator folds telemetry events for one mart key.
type dailyAccumulator struct {
	events      uint64
	errEvents   uint64
	responseSum float64
	batterySum  float64
	responses   []float64
}

func (a *dailyAccumulator) add(ev TelemetryEvent) {
	a.events++
	if ev.IsError != 0 {
		a.errEvents++
	}
	a.responseSum += ev.ResponseMS
	a.batterySum += ev.BatteryLevel
	a.responses = append(a.responses, ev.ResponseMS)
}

// AggregateEvents recomputes mart rows from raw telemetry. Pure: the same
// events, dimensions, and timestamp always produce the same rows, which is
// what makes delete-then-insert idempotent. Customers missing from the CRM
// copy get empty name/country — copy lag is tolerated, not fatal.
func AggregateEvents(events []TelemetryEvent, dims map[string]CustomerDim, lastUpdate time.Time) []DailyMartRow {
	acc := make(map[martKey]*dailyAccumulator)
	for _, ev := range events {
		key := martKey{
			eventDate:    truncateToDay(ev.TS),
			customerID:   ev.CustomerID,
			prosthesisID: ev.ProsthesisID,
		}
		a, ok := acc[key]
		if !ok {
			a = &dailyAccumulator{}
			acc[key] = a
		}
		a.add(ev)
	}

	rows := make([]DailyMartRow, 0, len(acc))
	for key, a := range acc {
		dim := dims[key.customerID]
		rows = append(rows, DailyMartRow{
			EventDate:       key.eventDate,
			CustomerID:      key.customerID,
			ProsthesisID:    key.prosthesisID,
			FullName:        dim.FullName,
			Country:         dim.Country,
			Events:          a.events,
			ErrEvents:       a.errEvents,
			AvgResponseMS:   a.responseSum / float64(a.events),
			P95ResponseMS:   percentile(a.responses, 0.95),
			AvgBatteryLevel: a.batterySum / float64(a.events),
			LastUpdate:      lastUpdate,
		})
	}

	// Deterministic output order, matching the mart's sort key.
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.EventDate.Equal(b.EventDate) {
			return a.EventDate.Before(b.EventDate)
		}
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		return a.ProsthesisID < b.ProsthesisID
	})

	return rows
}

// percentile computes an exact quantile over the sample with linear
// interpolation between closest ranks. Daily per-device samples are small,
// so sorting beats a streaming estimator here.
func percentile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := q * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// truncateToDay drops the time-of-day component in UTC.
func truncateToDay(ts time.Time) time.Time {
	t := ts.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
