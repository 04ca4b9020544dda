package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrife/xpquery/diagnostics"
	"github.com/jrife/xpquery/query/continuation"
)

var (
	// ErrMalformedContinuation is returned by Start when the
	// continuation cannot be decoded, was produced by a query
	// of a different shape or does not fit the topology
	ErrMalformedContinuation = continuation.ErrMalformedContinuation
	// ErrCanceled is the cause of a CanceledError caused
	// by Execution.Cancel
	ErrCanceled = fmt.Errorf("query execution canceled: %w", context.Canceled)
	// ErrTerminated is returned by Drain after an earlier
	// Drain failed or was canceled
	ErrTerminated = errors.New("query execution has terminated")
)

// CanceledError is returned by Drain when it was canceled
// before it could return a page
type CanceledError struct {
	// Cause is the reason the context was canceled
	Cause error
	// DeadlineExceeded is true if the context's deadline
	// had already passed
	DeadlineExceeded bool
	// Diagnostics describes everything the execution did
	// up to the cancellation, including the charge spent
	Diagnostics diagnostics.Snapshot
}

func (err *CanceledError) Error() string {
	reason := "query canceled"

	if err.DeadlineExceeded {
		reason = "query deadline exceeded"
	}

	return fmt.Sprintf("%s after %s: %s; diagnostics: %s", reason, err.Diagnostics.Elapsed, err.Cause, err.Diagnostics)
}

func (err *CanceledError) Unwrap() error {
	return err.Cause
}

// DrainError is returned by Drain when it failed for
// any reason other than cancellation. The items gathered
// before the failure are not returned.
type DrainError struct {
	Err error
	// Items is the number of items gathered before the failure
	Items int
	// RequestCharge is the charge spent by the failed Drain
	RequestCharge float64
}

func (err *DrainError) Error() string {
	return fmt.Sprintf("drain failed after %d items and %g request units: %s", err.Items, err.RequestCharge, err.Err)
}

func (err *DrainError) Unwrap() error {
	return err.Err
}
