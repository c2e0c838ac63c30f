// internal/replication/errors.go
package replication

import (
	"fmt"
	"time"
)

// SyncError reports a failed push of source state into the replicated store.
type SyncError struct {
	Unit      string
	Err       error
	Transient bool // network or store unreachable, safe to retry
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("replication: sync failed for unit %s: %v", e.Unit, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// RecoverError reports a failed pull of replicated state into a target
// environment.
type RecoverError struct {
	Unit      string
	Err       error
	Transient bool
}

func (e *RecoverError) Error() string {
	return fmt.Sprintf("replication: recover failed for unit %s: %v", e.Unit, e.Err)
}

func (e *RecoverError) Unwrap() error { return e.Err }

// TimeoutError reports that convergence was not observed within the wait
// window. Convergence waiting is best-effort; callers verify via the health
// engine rather than trusting timing.
type TimeoutError struct {
	Unit    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("replication: convergence not reached for unit %s within %s", e.Unit, e.Timeout)
}
