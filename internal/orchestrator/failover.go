// internal/orchestrator/failover.go
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/health"
	"github.com/FairForge/switchyard/internal/runtime"
	"github.com/FairForge/switchyard/internal/statestore"
)

// Failover statuses
const (
	FailoverCompleted = "completed"
	FailoverDegraded  = "degraded-success"
	FailoverFailed    = "failed"
)

// FailoverRequest is the external failure signal that triggers promotion of
// the standby environment.
type FailoverRequest struct {
	Unit       string
	FailedHost string
	TargetHost string
}

// FailoverResult reports the outcome, including the measured recovery time.
type FailoverResult struct {
	IncidentID string               `json:"incident_id"`
	Unit       string               `json:"unit"`
	From       endpoint.Environment `json:"from"`
	To         endpoint.Environment `json:"to"`
	Status     string               `json:"status"`
	Score      *health.Score        `json:"score,omitempty"`
	RTO        time.Duration        `json:"rto"`
	RTOSeconds int                  `json:"rto_seconds"`
	Recovery   RecoveryResult       `json:"-"`
}

// rtoSeconds reports a recovery duration in whole seconds, rounded up, never
// less than one. An exact 90s recovery reports 90; any fraction rounds up.
func rtoSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Failover promotes the standby environment after a host failure. It skips
// sync: the failed source cannot be quiesced, so recovery uses whatever
// last-converged replicated state exists — data written since the last
// successful replication round may be lost. Steps are not retried beyond
// the replication controller's idempotent-retry contract; failover is a
// human-escalation path and silent infinite retry is deliberately avoided.
func (o *Orchestrator) Failover(ctx context.Context, req FailoverRequest) (*FailoverResult, error) {
	started := time.Now()

	unit := o.cfg.Unit(req.Unit)
	if unit == nil {
		return nil, fmt.Errorf("%w: %s", statestore.ErrUnitNotFound, req.Unit)
	}

	release := o.locks.tryAcquire(req.Unit)
	if release == nil {
		return nil, fmt.Errorf("%w: %s", ErrOperationInFlight, req.Unit)
	}
	defer release()

	current, err := o.store.GetActive(ctx, req.Unit)
	if err != nil {
		return nil, err
	}
	target := current.Complement()

	incidentID := uuid.New().String()
	o.rto.StartIncident(incidentID, req.Unit, req.FailedHost, started)

	result := &FailoverResult{
		IncidentID: incidentID,
		Unit:       req.Unit,
		From:       current,
		To:         target,
		Status:     FailoverFailed,
	}

	log := o.logger.With(
		zap.String("unit", req.Unit),
		zap.String("incident", incidentID),
		zap.String("failed_host", req.FailedHost),
		zap.String("target_host", req.TargetHost),
		zap.String("promoting", target.String()))

	log.Warn("failover started")

	if err := retryTransient(ctx, log, "recover", o.retryWait, func() error {
		return o.repl.Recover(ctx, req.Unit, target)
	}); err != nil {
		return result, err
	}

	name := runtime.ContainerName(o.cfg.Service.Name, unit.ID, target)
	if err := o.runtime.Start(ctx, name); err != nil {
		return result, err
	}
	if err := o.waitRunning(ctx, name); err != nil {
		return result, err
	}

	if err := o.store.SetActive(ctx, req.Unit, target, current); err != nil {
		return result, err
	}

	if err := o.router.ApplyRouting(ctx, req.Unit); err != nil {
		return result, err
	}

	recovery, err := o.rto.ResolveIncident(incidentID, time.Now())
	if err != nil {
		return result, err
	}
	result.Recovery = recovery
	result.RTO = recovery.ActualRTO
	result.RTOSeconds = rtoSeconds(recovery.ActualRTO)
	if o.metrics != nil {
		o.metrics.FailoverRTO.Observe(recovery.ActualRTO.Seconds())
	}

	// Post-failover assessment decides how the outcome is reported. An
	// unhealthy verdict is never dressed up as success; the old host is
	// gone, so there is nothing to revert to — escalate instead.
	score := o.engine.Assess(ctx, req.Unit, target, o.checks(unit, target))
	result.Score = score

	switch score.Verdict {
	case health.VerdictHealthy:
		result.Status = FailoverCompleted
	case health.VerdictDegraded:
		result.Status = FailoverDegraded
	default:
		result.Status = FailoverFailed
		log.Error("failover health gate failed",
			zap.Float64("score", score.Aggregate),
			zap.Duration("rto", recovery.ActualRTO))
		return result, &HealthGateError{Unit: req.Unit, Score: score}
	}

	log.Info("failover finished",
		zap.String("status", result.Status),
		zap.Duration("rto", recovery.ActualRTO),
		zap.Bool("rto_met", recovery.RTOMet))
	return result, nil
}
