// internal/orchestrator/errors.go
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/FairForge/switchyard/internal/health"
	"github.com/FairForge/switchyard/internal/replication"
)

// ErrOperationInFlight means another cutover or failover holds the unit's
// advisory lock. Not retried automatically; surfaced to the caller.
var ErrOperationInFlight = errors.New("orchestrator: operation already in flight for unit")

// UsageError reports bad operator input. Non-retryable, immediate abort.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return "orchestrator: " + e.Msg
}

// HealthGateError reports a failed post-operation assessment. For a cutover
// it triggers automatic reversal; Reverted records whether that succeeded.
type HealthGateError struct {
	Unit     string
	Score    *health.Score
	Reverted bool
}

func (e *HealthGateError) Error() string {
	return fmt.Sprintf("orchestrator: health gate failed for unit %s (score %.2f, verdict %s, reverted=%t)",
		e.Unit, e.Score.Aggregate, e.Score.Verdict, e.Reverted)
}

// isTransient reports whether an error is retryable infrastructure trouble.
// Convergence timeouts are deliberately not transient: the state machine
// answers a timeout with rollback, not another wait.
func isTransient(err error) bool {
	var syncErr *replication.SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Transient
	}
	var recErr *replication.RecoverError
	if errors.As(err, &recErr) {
		return recErr.Transient
	}
	return false
}
