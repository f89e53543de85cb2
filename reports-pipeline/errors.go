package main

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by both stores and the pipeline steps. Callers match
// with errors.Is; wrapping sites add the operation that failed.
var (
	// ErrStoreUnavailable marks connection or timeout failures against
	// either database. Retryable by the runner's step retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSchemaMissing marks an absent target database/table that
	// auto-provisioning could not create.
	ErrSchemaMissing = errors.New("schema missing")

	// ErrInvariantViolation marks a logic or clock defect (watermark from
	// the future, mart row outside the requested window). Never retried
	// silently; it must surface to the operator.
	ErrInvariantViolation = errors.New("invariant violation")
)

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func schemaMissing(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrSchemaMissing, err)
}

func invariantViolation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
