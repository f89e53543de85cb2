package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// epochSentinel is the watermark value before any extraction has run.
var epochSentinel = time.Unix(0, 0).UTC()

// WatermarkStore persists the extraction cursor in the CRM Postgres.
// One row per pipeline name; last writer wins. The store itself provides no
// locking: single-writer discipline comes from the runner's advisory-lock
// lease (see AcquireLease).
type WatermarkStore struct {
	db        *sql.DB
	tableName string
	pipeline  string

	mu        sync.Mutex
	leaseConn *sql.Conn
}

// NewWatermarkStore creates a new watermark store
func NewWatermarkStore(db *sql.DB, tableName, pipeline string) *WatermarkStore {
	return &WatermarkStore{
		db:        db,
		tableName: tableName,
		pipeline:  pipeline,
	}
}

// Get retrieves the persisted watermark, or the epoch sentinel if the
// pipeline has never run. A backing-store failure is ErrStoreUnavailable,
// never treated as "no watermark".
func (ws *WatermarkStore) Get(ctx context.Context) (time.Time, error) {
	query := fmt.Sprintf(`
		SELECT watermark
		FROM %s
		WHERE pipeline = $1
	`, ws.tableName)

	var wm time.Time
	err := ws.db.QueryRowContext(ctx, query, ws.pipeline).Scan(&wm)
	if err != nil {
		if err == sql.ErrNoRows {
			return epochSentinel, nil
		}
		return time.Time{}, storeUnavailable("load watermark", err)
	}

	return wm.UTC(), nil
}

// Set persists the watermark unconditionally
func (ws *WatermarkStore) Set(ctx context.Context, wm time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (pipeline, watermark, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (pipeline) DO UPDATE
		SET watermark = EXCLUDED.watermark,
		    updated_at = EXCLUDED.updated_at
	`, ws.tableName)

	if _, err := ws.db.ExecContext(ctx, query, ws.pipeline, wm.UTC()); err != nil {
		return storeUnavailable("save watermark", err)
	}

	return nil
}

// AcquireLease takes an advisory lock keyed by the pipeline name. Returns
// false if another run already holds it. The watermark has no
// compare-and-swap, so a second concurrent extractor reading a stale cursor
// would reprocess or skip a range; the lease is the mutual-exclusion the
// contract requires when no external single-flight scheduler is present.
//
// Postgres advisory locks are session-scoped, so the lock must live on one
// pinned connection for the whole lease: through the pooled *sql.DB the
// acquiring connection could be recycled mid-run (dropping the lock while
// the run still believes it holds it), and the unlock could land on a
// different session where it is a silent no-op. The lease therefore checks
// out a dedicated *sql.Conn and keeps it until ReleaseLease.
func (ws *WatermarkStore) AcquireLease(ctx context.Context) (bool, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.leaseConn != nil {
		return false, fmt.Errorf("pipeline lease already held by this process")
	}

	conn, err := ws.db.Conn(ctx)
	if err != nil {
		return false, storeUnavailable("acquire pipeline lease", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtext($1))`, ws.pipeline,
	).Scan(&acquired); err != nil {
		conn.Close()
		return false, storeUnavailable("acquire pipeline lease", err)
	}

	if !acquired {
		conn.Close()
		return false, nil
	}

	ws.leaseConn = conn
	return true, nil
}

// ReleaseLease unlocks on the same session that acquired the lease and
// returns the pinned connection to the pool. An unlock that reports false
// means the session no longer held the lock, which implies the run just
// executed without mutual exclusion, so it is surfaced as an error.
func (ws *WatermarkStore) ReleaseLease(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	conn := ws.leaseConn
	if conn == nil {
		return fmt.Errorf("pipeline lease not held")
	}
	ws.leaseConn = nil

	var released bool
	err := conn.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock(hashtext($1))`, ws.pipeline,
	).Scan(&released)
	closeErr := conn.Close()

	if err != nil {
		return storeUnavailable("release pipeline lease", err)
	}
	if !released {
		return fmt.Errorf("pipeline lease was not held by its session at unlock")
	}
	if closeErr != nil {
		return storeUnavailable("release pipeline lease", closeErr)
	}

	return nil
}
