package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Runner drives the pipeline on a fixed cadence with the step contract the
// orchestration platform would otherwise enforce: strict ordering
// schema → extract → refresh → completion marker, per-step retry, and at
// most one in-flight run (advisory-lock lease on the CRM Postgres).
type Runner struct {
	config     *Config
	crmDB      *sql.DB
	warehouse  *Warehouse
	watermarks *WatermarkStore
	extractor  *DeltaExtractor
	refresher  *MartRefresher
	seeder     *Seeder
	metrics    *Metrics
	stopChan   chan struct{}

	mu    sync.RWMutex
	stats RunnerStats
}

// NewRunner creates a new pipeline runner
func NewRunner(config *Config, crmDB *sql.DB, warehouse *Warehouse, watermarks *WatermarkStore,
	extractor *DeltaExtractor, refresher *MartRefresher, seeder *Seeder, metrics *Metrics) *Runner {
	return &Runner{
		config:     config,
		crmDB:      crmDB,
		warehouse:  warehouse,
		watermarks: watermarks,
		extractor:  extractor,
		refresher:  refresher,
		seeder:     seeder,
		metrics:    metrics,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the pipeline loop (blocks until Stop)
func (r *Runner) Start() error {
	log.Println("🚀 Starting BionicPRO reports pipeline")
	log.Printf("Poll interval: %v", r.config.PollInterval())
	log.Printf("Overlap window: %v, mart lookback: %d days", r.config.Overlap(), r.config.Pipeline.DaysBack)

	// Run immediately, then on the ticker.
	if err := r.RunCycle(); err != nil {
		log.Printf("❌ Pipeline run failed: %v", err)
	}

	ticker := time.NewTicker(r.config.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RunCycle(); err != nil {
				log.Printf("❌ Pipeline run failed: %v", err)
			}
		case <-r.stopChan:
			log.Println("🛑 Stopping pipeline...")
			return nil
		}
	}
}

// Stop gracefully stops the runner
func (r *Runner) Stop() {
	close(r.stopChan)
}

// RunCycle executes one full pipeline run under the single-flight lease
func (r *Runner) RunCycle() error {
	runID := uuid.NewString()
	startTime := time.Now()
	ctx := context.Background()

	acquired, err := r.watermarks.AcquireLease(ctx)
	if err != nil {
		r.recordFailure()
		return fmt.Errorf("run %s: %w", runID, err)
	}
	if !acquired {
		log.Printf("⏭️  Run %s skipped: another run holds the pipeline lease", runID)
		return nil
	}
	defer func() {
		if err := r.watermarks.ReleaseLease(ctx); err != nil {
			log.Printf("⚠️  Failed to release pipeline lease: %v", err)
		}
	}()

	log.Printf("▶️  Run %s starting", runID)

	var rowsExtracted, martRows int64

	runErr := func() error {
		if err := r.runStep(ctx, "ensure_schema", r.ensureSchema); err != nil {
			return err
		}

		if r.seeder != nil {
			if err := r.runStep(ctx, "seed_demo_data", r.seeder.Run); err != nil {
				return err
			}
		}

		if err := r.runStep(ctx, "extract_crm_delta", func(ctx context.Context) error {
			n, err := r.extractor.Run(ctx)
			rowsExtracted = n
			return err
		}); err != nil {
			return err
		}

		if err := r.runStep(ctx, "refresh_mart", func(ctx context.Context) error {
			n, err := r.refresher.Run(ctx)
			martRows = n
			return err
		}); err != nil {
			return err
		}

		return nil
	}()

	// Completion marker always runs, success or not, mirroring the
	// ALL_DONE trigger rule in the scheduling contract.
	r.completionMarker(runID, runErr)

	duration := time.Since(startTime)
	if runErr != nil {
		r.recordFailure()
		return fmt.Errorf("run %s: %w", runID, runErr)
	}

	r.recordSuccess(ctx, duration, rowsExtracted, martRows)
	log.Printf("✅ Run %s complete in %v (%d CRM rows, %d mart rows)", runID, duration, rowsExtracted, martRows)
	return nil
}

// runStep executes one step with the configured retry policy. Invariant
// violations are never retried: they signal a logic or clock defect that a
// retry would only repeat.
func (r *Runner) runStep(ctx context.Context, name string, step func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.Pipeline.StepRetries; attempt++ {
		if attempt > 0 {
			log.Printf("🔁 Retrying step %s in %v (attempt %d)", name, r.config.RetryDelay(), attempt+1)
			select {
			case <-time.After(r.config.RetryDelay()):
			case <-r.stopChan:
				return fmt.Errorf("step %s: cancelled during retry wait: %w", name, lastErr)
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout())
		err := step(stepCtx)
		cancel()

		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvariantViolation) {
			return fmt.Errorf("step %s: %w", name, err)
		}
		lastErr = err
		log.Printf("⚠️  Step %s failed: %v", name, err)
	}

	return fmt.Errorf("step %s: %w", name, lastErr)
}

func (r *Runner) ensureSchema(ctx context.Context) error {
	if err := EnsureCRMSchema(ctx, r.crmDB, r.config.Pipeline.WatermarkTable); err != nil {
		return err
	}
	return r.warehouse.EnsureWarehouseSchema(ctx, r.config.Warehouse.Database)
}

func (r *Runner) completionMarker(runID string, runErr error) {
	if runErr != nil {
		log.Printf("🏁 Run %s finished with errors", runID)
		return
	}
	log.Printf("🏁 Run %s finished clean", runID)
}

func (r *Runner) recordSuccess(ctx context.Context, duration time.Duration, rowsExtracted, martRows int64) {
	wm, err := r.watermarks.Get(ctx)
	if err != nil {
		wm = time.Time{}
	}

	r.mu.Lock()
	r.stats.RunsTotal++
	r.stats.LastRunAt = time.Now()
	r.stats.LastRunDuration = duration
	r.stats.LastRowsExtracted = rowsExtracted
	r.stats.LastMartRows = martRows
	r.stats.Watermark = wm
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveRun(duration, rowsExtracted, martRows)
	}
}

func (r *Runner) recordFailure() {
	r.mu.Lock()
	r.stats.RunsTotal++
	r.stats.RunErrors++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveError()
	}
}

// Stats returns a snapshot of runner statistics
func (r *Runner) Stats() RunnerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
