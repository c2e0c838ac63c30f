// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/config"
	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/health"
	"github.com/FairForge/switchyard/internal/replication"
	"github.com/FairForge/switchyard/internal/runtime"
	"github.com/FairForge/switchyard/internal/statestore"
)

// memStore is an in-memory state store with CAS semantics and optional
// fault injection on writes.
type memStore struct {
	mu          sync.Mutex
	active      map[string]endpoint.Environment
	failNextSet error
	setCalls    int
}

func newMemStore(units map[string]endpoint.Environment) *memStore {
	return &memStore{active: units}
}

func (s *memStore) GetActive(_ context.Context, unitID string) (endpoint.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.active[unitID]
	if !ok {
		return "", statestore.ErrUnitNotFound
	}
	return env, nil
}

func (s *memStore) SetActive(_ context.Context, unitID string, next, expectedPrev endpoint.Environment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.failNextSet != nil {
		err := s.failNextSet
		s.failNextSet = nil
		return err
	}
	actual, ok := s.active[unitID]
	if !ok {
		return statestore.ErrUnitNotFound
	}
	if actual != expectedPrev {
		return &statestore.ConflictError{Unit: unitID, Expected: expectedPrev, Actual: actual}
	}
	s.active[unitID] = next
	return nil
}

func (s *memStore) Units(_ context.Context) ([]statestore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]statestore.Record, 0, len(s.active))
	for id, env := range s.active {
		records = append(records, statestore.Record{UnitID: id, Active: env})
	}
	return records, nil
}

func (s *memStore) Ensure(_ context.Context, unitID string, env endpoint.Environment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[unitID]; !ok {
		s.active[unitID] = env
	}
	return nil
}

// fakeRepl records replication calls and pops errors from per-step queues.
type fakeRepl struct {
	mu            sync.Mutex
	syncErrs      []error
	convergeErr   error
	recoverErrs   []error
	syncCalls     int
	convergeCalls int
	recoverCalls  int
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (r *fakeRepl) Sync(_ context.Context, unitID string, source endpoint.Environment) (*replication.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncCalls++
	if err := popErr(&r.syncErrs); err != nil {
		return nil, err
	}
	return &replication.Job{}, nil
}

func (r *fakeRepl) AwaitConvergence(_ context.Context, unitID string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convergeCalls++
	return r.convergeErr
}

func (r *fakeRepl) Recover(_ context.Context, unitID string, target endpoint.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoverCalls++
	return popErr(&r.recoverErrs)
}

// fakeRouter counts applies and pops injected failures.
type fakeRouter struct {
	mu      sync.Mutex
	errs    []error
	applies int
}

func (r *fakeRouter) ApplyRouting(_ context.Context, unitID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applies++
	return popErr(&r.errs)
}

// fakeEngine returns a queue of scripted verdicts, defaulting to healthy.
type fakeEngine struct {
	mu       sync.Mutex
	verdicts []health.Verdict
}

func (e *fakeEngine) Assess(_ context.Context, unitID string, env endpoint.Environment, _ []health.Check) *health.Score {
	e.mu.Lock()
	defer e.mu.Unlock()

	verdict := health.VerdictHealthy
	if len(e.verdicts) > 0 {
		verdict = e.verdicts[0]
		e.verdicts = e.verdicts[1:]
	}

	aggregate := 1.0
	switch verdict {
	case health.VerdictDegraded:
		aggregate = 0.7
	case health.VerdictUnhealthy:
		aggregate = 0.3
	}
	return &health.Score{
		Unit:        unitID,
		Environment: env,
		Aggregate:   aggregate,
		Verdict:     verdict,
		AssessedAt:  time.Now(),
	}
}

// fakeRuntime tracks which instances run; Start flips them on.
type fakeRuntime struct {
	mu       sync.Mutex
	running  map[string]bool
	started  []string
	stopped  []string
	startErr error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{running: make(map[string]bool)}
}

func (r *fakeRuntime) Start(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.running[name] = true
	r.started = append(r.started, name)
	return nil
}

func (r *fakeRuntime) Stop(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[name] = false
	r.stopped = append(r.stopped, name)
	return nil
}

func (r *fakeRuntime) Inspect(_ context.Context, name string) (runtime.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return runtime.Status{Running: r.running[name]}, nil
}

// fakeApplier records the variables of each apply.
type fakeApplier struct {
	mu      sync.Mutex
	applied []map[string]string
}

func (a *fakeApplier) Apply(_ context.Context, vars map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, vars)
	return nil
}

type fixture struct {
	orch    *Orchestrator
	store   *memStore
	repl    *fakeRepl
	router  *fakeRouter
	engine  *fakeEngine
	runtime *fakeRuntime
	applier *fakeApplier
}

func newFixture(t *testing.T, active map[string]endpoint.Environment) *fixture {
	t.Helper()

	cfg := &config.Config{
		Service: config.ServiceConfig{Name: "jenkins"},
		Units: []config.UnitConfig{
			{ID: "devops", PrimaryHost: "node-1", StandbyHost: "node-2",
				Ports: endpoint.Ports{Web: 8080, Agent: 50000}},
			{ID: "platform", PrimaryHost: "node-1", StandbyHost: "node-2",
				Ports: endpoint.Ports{Web: 8081, Agent: 50001}},
		},
		Replication: config.ReplicationConfig{ConvergenceTimeout: 50 * time.Millisecond},
	}

	f := &fixture{
		store:   newMemStore(active),
		repl:    &fakeRepl{},
		router:  &fakeRouter{},
		engine:  &fakeEngine{},
		runtime: newFakeRuntime(),
		applier: &fakeApplier{},
	}

	checks := func(unit *config.UnitConfig, env endpoint.Environment) []health.Check { return nil }
	f.orch = New(cfg, f.store, f.repl, f.router, f.engine, f.runtime, f.applier, checks, nil, zap.NewNop())
	f.orch.retryWait = time.Millisecond
	f.orch.pollInterval = time.Millisecond
	f.orch.deployTimeout = 100 * time.Millisecond
	return f
}

func TestCutover_Committed(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, result.Phase)
	assert.Equal(t, endpoint.Blue, result.From)
	assert.Equal(t, endpoint.Green, result.To)
	assert.Empty(t, result.Flag)

	active, err := f.store.GetActive(context.Background(), "devops")
	require.NoError(t, err)
	assert.Equal(t, endpoint.Green, active)

	assert.Equal(t, 1, f.repl.syncCalls)
	assert.Equal(t, 1, f.repl.convergeCalls)
	assert.Equal(t, 1, f.repl.recoverCalls)
	assert.Equal(t, 1, f.router.applies)
	assert.Equal(t, []string{"jenkins-devops-green"}, f.runtime.started)

	require.Len(t, f.applier.applied, 1)
	assert.Equal(t, "devops", f.applier.applied[0]["team_name"])
	assert.Equal(t, "green", f.applier.applied[0]["active_environment"])
}

func TestCutover_UnknownUnit(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	_, err := f.orch.Cutover(context.Background(), "nonesuch", endpoint.Green, Options{})
	assert.ErrorIs(t, err, statestore.ErrUnitNotFound)
}

func TestCutover_InvalidTarget(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	_, err := f.orch.Cutover(context.Background(), "devops", endpoint.Environment("purple"), Options{})
	var usageErr *UsageError
	assert.ErrorAs(t, err, &usageErr)
}

func TestCutover_MissingStateRecord(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{})

	_, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	assert.ErrorIs(t, err, statestore.ErrUnitNotFound)
	assert.Zero(t, f.repl.syncCalls)
}

func TestCutover_AlreadyActive(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Green})

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.NoError(t, err)

	assert.Equal(t, FlagAlreadyActive, result.Flag)
	assert.Equal(t, PhaseCommitted, result.Phase)
	assert.Equal(t, 1, f.router.applies, "routing re-projected to converge a drifted proxy")
	assert.Zero(t, f.repl.syncCalls)
	assert.Empty(t, f.runtime.started)
}

func TestCutover_ValidateOnly(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{ValidateOnly: true})
	require.NoError(t, err)

	assert.Equal(t, FlagValidateOnly, result.Flag)
	require.NotNil(t, result.Score)

	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Blue, active, "validation must not mutate state")
	assert.Zero(t, f.repl.syncCalls)
	assert.Zero(t, f.router.applies)
	assert.Empty(t, f.runtime.started)
}

func TestCutover_SyncFailureRollsBack(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.repl.syncErrs = []error{&replication.SyncError{Unit: "devops", Err: errors.New("rsync exploded")}}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.Error(t, err)

	assert.Equal(t, PhaseRolledBack, result.Phase)
	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Blue, active)
	assert.Zero(t, f.router.applies)
	assert.Equal(t, 1, f.repl.syncCalls, "non-transient failures are not retried")
}

func TestCutover_ConvergenceTimeoutRollsBack(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.repl.convergeErr = &replication.TimeoutError{Unit: "devops", Timeout: 50 * time.Millisecond}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.Error(t, err)

	var timeoutErr *replication.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, PhaseRolledBack, result.Phase)
	assert.Zero(t, f.repl.recoverCalls, "timeout answers with rollback, not recovery")

	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Blue, active)
}

func TestCutover_TransientSyncRetried(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	transient := &replication.SyncError{Unit: "devops", Err: errors.New("peer briefly down"), Transient: true}
	f.repl.syncErrs = []error{transient, transient}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, result.Phase)
	assert.Equal(t, 3, f.repl.syncCalls)
}

func TestCutover_TransientExhaustedRollsBack(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	transient := &replication.SyncError{Unit: "devops", Err: errors.New("peer down"), Transient: true}
	f.repl.syncErrs = []error{transient, transient, transient}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.Error(t, err)

	assert.Equal(t, PhaseRolledBack, result.Phase)
	assert.Equal(t, 3, f.repl.syncCalls)
	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Blue, active)
}

func TestCutover_SkipBackup(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{SkipBackup: true})
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, result.Phase)
	assert.Zero(t, f.repl.syncCalls)
	assert.Zero(t, f.repl.convergeCalls)
	assert.Equal(t, 1, f.repl.recoverCalls)
}

func TestCutover_PreCommitGateRollsBack(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.engine.verdicts = []health.Verdict{health.VerdictUnhealthy}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.Error(t, err)

	var gateErr *HealthGateError
	require.ErrorAs(t, err, &gateErr)
	assert.False(t, gateErr.Reverted, "nothing committed, nothing to revert")

	assert.Equal(t, PhaseRolledBack, result.Phase)
	assert.Zero(t, f.router.applies, "traffic never pointed at an unverified environment")
	assert.Zero(t, f.store.setCalls)

	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Blue, active)
}

func TestCutover_CASConflictRollsBack(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.store.failNextSet = &statestore.ConflictError{
		Unit: "devops", Expected: endpoint.Blue, Actual: endpoint.Green,
	}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.Error(t, err)

	var conflict *statestore.ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, PhaseRolledBack, result.Phase)
	assert.Zero(t, f.router.applies)
}

func TestCutover_RoutingFailureRevertsState(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.router.errs = []error{errors.New("proxy reload failed")}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.Error(t, err)

	assert.Equal(t, PhaseRolledBack, result.Phase)
	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Blue, active, "state-store write undone when routing cannot follow")
}

func TestCutover_PostCommitUnhealthyReverses(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.engine.verdicts = []health.Verdict{health.VerdictHealthy, health.VerdictUnhealthy}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.Error(t, err)

	var gateErr *HealthGateError
	require.ErrorAs(t, err, &gateErr)
	assert.True(t, gateErr.Reverted)

	assert.Equal(t, PhaseRolledBack, result.Phase)
	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Blue, active)
	assert.Equal(t, 2, f.router.applies, "commit apply plus reversal apply")
}

func TestCutover_PostCommitDegradedCommitsFlagged(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.engine.verdicts = []health.Verdict{health.VerdictHealthy, health.VerdictDegraded}

	result, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, result.Phase)
	assert.Equal(t, FlagDegradedSuccess, result.Flag)

	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Green, active, "degraded gates, only unhealthy reverses")
}

func TestCutover_RestartStopsRunningInstance(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.runtime.running["jenkins-devops-green"] = true

	_, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{Restart: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"jenkins-devops-green"}, f.runtime.stopped)
	assert.Equal(t, []string{"jenkins-devops-green"}, f.runtime.started)
}

func TestCutover_OperationInFlight(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	release := f.orch.locks.tryAcquire("devops")
	require.NotNil(t, release)
	defer release()

	_, err := f.orch.Cutover(context.Background(), "devops", endpoint.Green, Options{})
	assert.ErrorIs(t, err, ErrOperationInFlight)
}

func TestCutover_IndependentUnitsProceed(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{
		"devops":   endpoint.Blue,
		"platform": endpoint.Blue,
	})

	release := f.orch.locks.tryAcquire("devops")
	require.NotNil(t, release)
	defer release()

	result, err := f.orch.Cutover(context.Background(), "platform", endpoint.Green, Options{})
	require.NoError(t, err)
	assert.Equal(t, PhaseCommitted, result.Phase)
}

func TestFailover_Completed(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	result, err := f.orch.Failover(context.Background(), FailoverRequest{
		Unit:       "devops",
		FailedHost: "node-1",
		TargetHost: "node-2",
	})
	require.NoError(t, err)

	assert.Equal(t, FailoverCompleted, result.Status)
	assert.Equal(t, endpoint.Blue, result.From)
	assert.Equal(t, endpoint.Green, result.To)
	assert.NotEmpty(t, result.IncidentID)
	assert.GreaterOrEqual(t, result.RTOSeconds, 1, "recovery time reports as a positive whole second count")

	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Green, active)

	assert.Zero(t, f.repl.syncCalls, "a failed host cannot be quiesced, so failover never syncs")
	assert.Equal(t, 1, f.repl.recoverCalls)
	assert.Equal(t, 1, f.router.applies)

	metrics := f.orch.RTO().Metrics()
	assert.Equal(t, 1, metrics.TotalIncidents)
	assert.Equal(t, 1, metrics.RTOCompliant)
}

func TestFailover_DegradedSuccess(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.engine.verdicts = []health.Verdict{health.VerdictDegraded}

	result, err := f.orch.Failover(context.Background(), FailoverRequest{Unit: "devops", FailedHost: "node-1"})
	require.NoError(t, err)

	assert.Equal(t, FailoverDegraded, result.Status)
	active, _ := f.store.GetActive(context.Background(), "devops")
	assert.Equal(t, endpoint.Green, active)
}

func TestFailover_UnhealthyNeverSilentlySucceeds(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})
	f.engine.verdicts = []health.Verdict{health.VerdictUnhealthy}

	result, err := f.orch.Failover(context.Background(), FailoverRequest{Unit: "devops", FailedHost: "node-1"})
	require.Error(t, err)

	var gateErr *HealthGateError
	require.ErrorAs(t, err, &gateErr)
	assert.False(t, gateErr.Reverted, "the failed host is gone, there is nothing to revert to")
	assert.Equal(t, FailoverFailed, result.Status)
}

func TestFailover_UnknownUnit(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	_, err := f.orch.Failover(context.Background(), FailoverRequest{Unit: "nonesuch", FailedHost: "node-1"})
	assert.ErrorIs(t, err, statestore.ErrUnitNotFound)
}

func TestFailover_OperationInFlight(t *testing.T) {
	f := newFixture(t, map[string]endpoint.Environment{"devops": endpoint.Blue})

	release := f.orch.locks.tryAcquire("devops")
	require.NotNil(t, release)
	defer release()

	_, err := f.orch.Failover(context.Background(), FailoverRequest{Unit: "devops", FailedHost: "node-1"})
	assert.ErrorIs(t, err, ErrOperationInFlight)
}

func TestRTOSeconds(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want int
	}{
		{"zero reports one", 0, 1},
		{"sub-second rounds up to one", 500 * time.Millisecond, 1},
		{"exact seconds stay exact", 90 * time.Second, 90},
		{"fraction rounds up", 90*time.Second + 200*time.Millisecond, 91},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rtoSeconds(tt.d))
		})
	}
}

func TestRTOTracker(t *testing.T) {
	t.Run("resolve unknown incident", func(t *testing.T) {
		tracker := NewRTOTracker(15 * time.Minute)
		_, err := tracker.ResolveIncident("nonesuch", time.Now())
		assert.Error(t, err)
	})

	t.Run("compliance accounting", func(t *testing.T) {
		tracker := NewRTOTracker(10 * time.Minute)
		base := time.Now()

		tracker.StartIncident("a", "devops", "node-1", base)
		fast, err := tracker.ResolveIncident("a", base.Add(5*time.Minute))
		require.NoError(t, err)
		assert.True(t, fast.RTOMet)

		tracker.StartIncident("b", "devops", "node-1", base)
		slow, err := tracker.ResolveIncident("b", base.Add(25*time.Minute))
		require.NoError(t, err)
		assert.False(t, slow.RTOMet)

		m := tracker.Metrics()
		assert.Equal(t, 2, m.TotalIncidents)
		assert.Equal(t, 1, m.RTOCompliant)
		assert.InDelta(t, 50.0, m.ComplianceRate, 0.01)
		assert.Equal(t, 15*time.Minute, m.AverageRTO)
		assert.Equal(t, 25*time.Minute, m.WorstRTO)
	})

	t.Run("empty history", func(t *testing.T) {
		tracker := NewRTOTracker(0)
		m := tracker.Metrics()
		assert.Zero(t, m.TotalIncidents)
		assert.InDelta(t, 100.0, m.ComplianceRate, 0.01)
	})
}

func TestRetryTransient_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryTransient(ctx, zap.NewNop(), "sync", time.Second, func() error {
		calls++
		return &replication.SyncError{Unit: "devops", Err: errors.New("down"), Transient: true}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation stops before the next attempt")
}
