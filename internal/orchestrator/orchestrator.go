// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/config"
	"github.com/FairForge/switchyard/internal/configmgmt"
	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/health"
	"github.com/FairForge/switchyard/internal/metrics"
	"github.com/FairForge/switchyard/internal/replication"
	"github.com/FairForge/switchyard/internal/runtime"
	"github.com/FairForge/switchyard/internal/statestore"
)

// Result flags
const (
	FlagDegradedSuccess = "degraded-success"
	FlagAlreadyActive   = "already-active"
	FlagValidateOnly    = "validate-only"
)

// Replicator is the replication controller surface the orchestrator uses.
type Replicator interface {
	Sync(ctx context.Context, unitID string, source endpoint.Environment) (*replication.Job, error)
	AwaitConvergence(ctx context.Context, unitID string, timeout time.Duration) error
	Recover(ctx context.Context, unitID string, target endpoint.Environment) error
}

// Router applies routing for a unit.
type Router interface {
	ApplyRouting(ctx context.Context, unitID string) error
}

// Assessor runs health assessments.
type Assessor interface {
	Assess(ctx context.Context, unitID string, env endpoint.Environment, checks []health.Check) *health.Score
}

// Options modify a cutover.
type Options struct {
	SkipBackup   bool // skip sync+convergence, recover from last replicated state
	Restart      bool // restart the target instance even if already running
	ValidateOnly bool // assess both environments and return without mutating
}

// Result is the outcome of a cutover or validation.
type Result struct {
	Unit    string               `json:"unit"`
	From    endpoint.Environment `json:"from"`
	To      endpoint.Environment `json:"to"`
	Phase   Phase                `json:"-"`
	Flag    string               `json:"flag,omitempty"`
	Score   *health.Score        `json:"score,omitempty"`
	Elapsed time.Duration        `json:"elapsed"`
}

// Orchestrator sequences cutovers and failovers. All decisions about which
// environment is active flow through the state store's compare-and-swap;
// the per-unit advisory lock keeps a unit's operations sequential while
// different units proceed independently.
type Orchestrator struct {
	cfg     *config.Config
	store   statestore.Store
	repl    Replicator
	router  Router
	engine  Assessor
	runtime runtime.Runtime
	applier configmgmt.Applier
	checks  func(unit *config.UnitConfig, env endpoint.Environment) []health.Check
	metrics *metrics.Metrics
	rto     *RTOTracker
	logger  *zap.Logger
	locks   *unitLocks

	deployTimeout time.Duration
	pollInterval  time.Duration
	retryWait     time.Duration
}

// New creates an orchestrator. checks builds the assessment checks for a
// unit's environment; applier may be nil when no host-level configuration
// management is wanted.
func New(cfg *config.Config, store statestore.Store, repl Replicator, router Router, engine Assessor,
	rt runtime.Runtime, applier configmgmt.Applier,
	checks func(unit *config.UnitConfig, env endpoint.Environment) []health.Check,
	m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:           cfg,
		store:         store,
		repl:          repl,
		router:        router,
		engine:        engine,
		runtime:       rt,
		applier:       applier,
		checks:        checks,
		metrics:       m,
		rto:           NewRTOTracker(15 * time.Minute),
		logger:        logger,
		locks:         newUnitLocks(),
		deployTimeout: time.Minute,
		pollInterval:  time.Second,
		retryWait:     500 * time.Millisecond,
	}
}

// RTO returns the failover recovery-time tracker.
func (o *Orchestrator) RTO() *RTOTracker { return o.rto }

// Cutover performs a planned switch of a unit's active environment. On any
// failure before commit the state store is left at its pre-operation value
// and routing is untouched unless it had already been reached.
func (o *Orchestrator) Cutover(ctx context.Context, unitID string, target endpoint.Environment, opts Options) (*Result, error) {
	started := time.Now()

	unit := o.cfg.Unit(unitID)
	if unit == nil {
		return nil, fmt.Errorf("%w: %s", statestore.ErrUnitNotFound, unitID)
	}
	if !target.Valid() {
		return nil, &UsageError{Msg: fmt.Sprintf("invalid target environment %q", target)}
	}

	release := o.locks.tryAcquire(unitID)
	if release == nil {
		return nil, fmt.Errorf("%w: %s", ErrOperationInFlight, unitID)
	}
	defer release()

	current, err := o.store.GetActive(ctx, unitID)
	if err != nil {
		return nil, err
	}

	result := &Result{Unit: unitID, From: current, To: target, Phase: PhaseIdle}
	log := o.logger.With(
		zap.String("unit", unitID),
		zap.String("from", current.String()),
		zap.String("to", target.String()))

	if opts.ValidateOnly {
		result.Score = o.engine.Assess(ctx, unitID, target, o.checks(unit, target))
		result.Flag = FlagValidateOnly
		result.Elapsed = time.Since(started)
		return result, nil
	}

	if current == target {
		// Re-project routing so a drifted proxy converges, then stop.
		if err := o.router.ApplyRouting(ctx, unitID); err != nil {
			return result, err
		}
		result.Phase = PhaseCommitted
		result.Flag = FlagAlreadyActive
		result.Elapsed = time.Since(started)
		return result, nil
	}

	rollback := func(cause error) (*Result, error) {
		result.Phase = PhaseRolledBack
		result.Elapsed = time.Since(started)
		if o.metrics != nil {
			o.metrics.Cutovers.WithLabelValues("rolled_back").Inc()
		}
		log.Error("cutover rolled back",
			zap.String("phase", result.Phase.String()),
			zap.Error(cause))
		return result, cause
	}

	if !opts.SkipBackup {
		result.Phase = PhaseSyncing
		log.Info("cutover step", zap.String("phase", result.Phase.String()))
		if err := retryTransient(ctx, log, "sync", o.retryWait, func() error {
			_, err := o.repl.Sync(ctx, unitID, current)
			return err
		}); err != nil {
			return rollback(err)
		}

		result.Phase = PhaseAwaitingConvergence
		log.Info("cutover step", zap.String("phase", result.Phase.String()))
		if err := o.repl.AwaitConvergence(ctx, unitID, o.cfg.Replication.ConvergenceTimeout); err != nil {
			return rollback(err)
		}
	}

	result.Phase = PhaseRecovering
	log.Info("cutover step", zap.String("phase", result.Phase.String()))
	if err := retryTransient(ctx, log, "recover", o.retryWait, func() error {
		return o.repl.Recover(ctx, unitID, target)
	}); err != nil {
		return rollback(err)
	}

	result.Phase = PhaseDeploying
	log.Info("cutover step", zap.String("phase", result.Phase.String()))
	if err := o.deploy(ctx, unit, target, opts.Restart); err != nil {
		return rollback(err)
	}

	// Pre-commit gate: never point the store at an unverified environment.
	pre := o.engine.Assess(ctx, unitID, target, o.checks(unit, target))
	if !pre.Gates() {
		return rollback(&HealthGateError{Unit: unitID, Score: pre})
	}

	if err := o.store.SetActive(ctx, unitID, target, current); err != nil {
		return rollback(err)
	}

	result.Phase = PhaseRoutingUpdate
	log.Info("cutover step", zap.String("phase", result.Phase.String()))
	if err := o.router.ApplyRouting(ctx, unitID); err != nil {
		// Undo the state-store write; routing still points at the old
		// environment, so reverting the decision restores consistency.
		if revErr := o.store.SetActive(ctx, unitID, current, target); revErr != nil {
			log.Error("rollback of state-store write failed", zap.Error(revErr))
		}
		return rollback(err)
	}

	// Post-commit gate: cutover is optimistic but self-correcting.
	post := o.engine.Assess(ctx, unitID, target, o.checks(unit, target))
	result.Score = post
	if !post.Gates() {
		gateErr := &HealthGateError{Unit: unitID, Score: post}
		if err := o.reverse(ctx, unitID, current, target); err != nil {
			log.Error("automatic reversal failed", zap.Error(err))
		} else {
			gateErr.Reverted = true
		}
		if o.metrics != nil {
			o.metrics.Cutovers.WithLabelValues("reversed").Inc()
		}
		result.Phase = PhaseRolledBack
		result.Elapsed = time.Since(started)
		return result, gateErr
	}

	result.Phase = PhaseCommitted
	result.Elapsed = time.Since(started)
	outcome := "committed"
	if post.Verdict == health.VerdictDegraded {
		result.Flag = FlagDegradedSuccess
		outcome = "degraded"
	}
	if o.metrics != nil {
		o.metrics.Cutovers.WithLabelValues(outcome).Inc()
	}

	log.Info("cutover committed",
		zap.String("flag", result.Flag),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// reverse undoes a committed switch after a failed post-commit gate.
func (o *Orchestrator) reverse(ctx context.Context, unitID string, previous, current endpoint.Environment) error {
	if err := o.store.SetActive(ctx, unitID, previous, current); err != nil {
		return err
	}
	return o.router.ApplyRouting(ctx, unitID)
}

// deploy starts the target environment's instance and waits for it to run,
// then applies host-level configuration if an applier is configured.
func (o *Orchestrator) deploy(ctx context.Context, unit *config.UnitConfig, env endpoint.Environment, restart bool) error {
	name := runtime.ContainerName(o.cfg.Service.Name, unit.ID, env)

	status, err := o.runtime.Inspect(ctx, name)
	running := err == nil && status.Running

	if running && restart {
		if err := o.runtime.Stop(ctx, name); err != nil {
			return err
		}
		running = false
	}

	if !running {
		if err := o.runtime.Start(ctx, name); err != nil {
			return err
		}
		if err := o.waitRunning(ctx, name); err != nil {
			return err
		}
	}

	if o.applier != nil {
		return o.applier.Apply(ctx, map[string]string{
			"team_name":          unit.ID,
			"active_environment": env.String(),
		})
	}
	return nil
}

// waitRunning polls inspect until the instance runs or the deploy timeout
// elapses.
func (o *Orchestrator) waitRunning(ctx context.Context, name string) error {
	deadline := time.NewTimer(o.deployTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		status, err := o.runtime.Inspect(ctx, name)
		if err == nil && status.Running {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("orchestrator: instance %s not running after %s", name, o.deployTimeout)
		case <-ticker.C:
		}
	}
}
