// internal/health/engine.go
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/metrics"
)

// Check is a single assessment probe. Run returns pass/fail plus a detail
// string; it must respect its context, which carries the per-check timeout.
type Check struct {
	Name    string
	Weight  float64
	Timeout time.Duration
	Run     func(ctx context.Context) (bool, string)
}

// Policy is the per-unit verdict configuration.
type Policy struct {
	Healthy      float64 // score at or above is healthy
	Degraded     float64 // score at or above is degraded
	FailureCount int     // consecutive unhealthy verdicts before auto-heal
}

// HealSignal asks the external remediation collaborator to act. The engine
// never restarts anything itself; it only classifies and signals.
type HealSignal struct {
	Unit        string
	Environment endpoint.Environment
	Consecutive int
	LastScore   *Score
}

// Engine runs weighted assessments and classifies the results.
type Engine struct {
	defaultPolicy Policy
	checkTimeout  time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics

	mu          sync.RWMutex
	policies    map[string]Policy
	lastScores  map[string]*Score // key unit:env
	unhealthy   map[string]int    // consecutive unhealthy count per key
	healCh      chan HealSignal
	healLimiter *rate.Limiter
}

// NewEngine creates an assessment engine.
func NewEngine(defaultPolicy Policy, checkTimeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if defaultPolicy.Healthy == 0 {
		defaultPolicy.Healthy = 0.9
	}
	if defaultPolicy.Degraded == 0 {
		defaultPolicy.Degraded = 0.6
	}
	if defaultPolicy.FailureCount == 0 {
		defaultPolicy.FailureCount = 3
	}
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		defaultPolicy: defaultPolicy,
		checkTimeout:  checkTimeout,
		logger:        logger,
		metrics:       m,
		policies:      make(map[string]Policy),
		lastScores:    make(map[string]*Score),
		unhealthy:     make(map[string]int),
		healCh:        make(chan HealSignal, 16),
		// One heal signal per 30s steady-state, short burst allowed; a
		// flapping check must not storm the remediation collaborator.
		healLimiter: rate.NewLimiter(rate.Every(30*time.Second), 2),
	}
}

// SetPolicy overrides verdict thresholds for one unit.
func (e *Engine) SetPolicy(unitID string, p Policy) {
	if p.Healthy == 0 {
		p.Healthy = e.defaultPolicy.Healthy
	}
	if p.Degraded == 0 {
		p.Degraded = e.defaultPolicy.Degraded
	}
	if p.FailureCount == 0 {
		p.FailureCount = e.defaultPolicy.FailureCount
	}

	e.mu.Lock()
	e.policies[unitID] = p
	e.mu.Unlock()
}

func (e *Engine) policy(unitID string) Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.policies[unitID]; ok {
		return p
	}
	return e.defaultPolicy
}

// HealSignals returns the auto-heal channel consumed by the remediation
// collaborator.
func (e *Engine) HealSignals() <-chan HealSignal {
	return e.healCh
}

// LastScore returns the most recent score for a unit's environment, or nil.
func (e *Engine) LastScore(unitID string, env endpoint.Environment) *Score {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastScores[scoreKey(unitID, env)]
}

func scoreKey(unitID string, env endpoint.Environment) string {
	return unitID + ":" + env.String()
}

// Assess runs the checks and produces an immutable score. Each check times
// out independently; a timed-out check fails without blocking the rest of
// the assessment.
func (e *Engine) Assess(ctx context.Context, unitID string, env endpoint.Environment, checks []Check) *Score {
	results := make([]CheckResult, 0, len(checks))

	for _, check := range checks {
		timeout := check.Timeout
		if timeout <= 0 {
			timeout = e.checkTimeout
		}

		passed, detail := e.runCheck(ctx, check, timeout)
		results = append(results, CheckResult{
			Name:   check.Name,
			Weight: check.Weight,
			Passed: passed,
			Detail: detail,
		})
	}

	policy := e.policy(unitID)
	score := &Score{
		Unit:        unitID,
		Environment: env,
		Checks:      results,
		Aggregate:   aggregate(results),
		AssessedAt:  time.Now(),
	}
	score.Verdict = classify(score.Aggregate, policy.Healthy, policy.Degraded)

	e.record(score, policy)

	e.logger.Info("assessment complete",
		zap.String("unit", unitID),
		zap.String("environment", env.String()),
		zap.Float64("score", score.Aggregate),
		zap.String("verdict", string(score.Verdict)))

	return score
}

// runCheck executes one check under its own deadline. The check goroutine is
// left to finish on its own if it overruns; the assessment moves on.
func (e *Engine) runCheck(ctx context.Context, check Check, timeout time.Duration) (bool, string) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		passed bool
		detail string
	}
	done := make(chan outcome, 1)

	go func() {
		passed, detail := check.Run(cctx)
		done <- outcome{passed, detail}
	}()

	select {
	case o := <-done:
		return o.passed, o.detail
	case <-cctx.Done():
		return false, "check timed out after " + timeout.String()
	}
}

func (e *Engine) record(score *Score, policy Policy) {
	key := scoreKey(score.Unit, score.Environment)

	e.mu.Lock()
	e.lastScores[key] = score
	if score.Verdict == VerdictUnhealthy {
		e.unhealthy[key]++
	} else {
		e.unhealthy[key] = 0
	}
	consecutive := e.unhealthy[key]
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.HealthScore.WithLabelValues(score.Unit, score.Environment.String()).Set(score.Aggregate)
	}

	if consecutive >= policy.FailureCount && e.healLimiter.Allow() {
		signal := HealSignal{
			Unit:        score.Unit,
			Environment: score.Environment,
			Consecutive: consecutive,
			LastScore:   score,
		}
		select {
		case e.healCh <- signal:
			e.logger.Warn("auto-heal signal emitted",
				zap.String("unit", score.Unit),
				zap.String("environment", score.Environment.String()),
				zap.Int("consecutive_unhealthy", consecutive))
		default:
			// Consumer is behind; the next assessment will signal again.
		}
	}
}

// Monitor runs recurring assessments until the context is cancelled. observe
// is called on every tick and reports which environment to assess and with
// which checks, so a cutover in another process moves the monitor to the
// newly active environment on the next tick. Returning no checks skips the
// tick. An in-flight assessment completes or times out cleanly; cancellation
// only stops new ones from being scheduled.
func (e *Engine) Monitor(ctx context.Context, unitID string, interval time.Duration, observe func() (endpoint.Environment, []Check)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			env, checks := observe()
			if len(checks) == 0 {
				continue
			}
			// Detach from the monitor context so cancellation stops
			// scheduling without aborting an assessment mid-flight; the
			// per-check timeouts still bound it.
			e.Assess(context.WithoutCancel(ctx), unitID, env, checks)
		}
	}
}
