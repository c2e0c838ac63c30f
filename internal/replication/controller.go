// internal/replication/controller.go
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// Job statuses
const (
	JobStatusSyncing    = "syncing"
	JobStatusConverging = "converging"
	JobStatusRecovering = "recovering"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// Job is the ephemeral record of one sync-then-recover operation. It lives
// only for the duration of a cutover or failover; after a crash the truth is
// re-derived from the store's own convergence signal, never from this record.
type Job struct {
	id        string
	unit      string
	source    endpoint.Environment
	target    endpoint.Environment
	startedAt time.Time
	status    string
	mu        sync.Mutex
}

// ID returns the job ID.
func (j *Job) ID() string { return j.id }

// Unit returns the unit the job belongs to.
func (j *Job) Unit() string { return j.unit }

// Status returns the current job status.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// StartedAt returns the job start time.
func (j *Job) StartedAt() time.Time { return j.startedAt }

func (j *Job) setStatus(s string) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// Filesystem is the replicated-filesystem collaborator. Push moves an
// environment's on-disk state into the replicated store, Pull moves it out,
// Converged reports whether the last write has propagated to all members.
type Filesystem interface {
	Push(ctx context.Context, unitID string, source endpoint.Environment) error
	Pull(ctx context.Context, unitID string, target endpoint.Environment) error
	Converged(ctx context.Context, unitID string) (bool, error)
}

// Controller drives service state into and out of the replicated store.
type Controller struct {
	fs           Filesystem
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewController creates a replication controller.
func NewController(fs Filesystem, pollInterval time.Duration, logger *zap.Logger) *Controller {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{fs: fs, pollInterval: pollInterval, logger: logger}
}

// Sync pushes the source environment's state into the replicated store and
// returns the job tracking it.
func (c *Controller) Sync(ctx context.Context, unitID string, source endpoint.Environment) (*Job, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("replication: invalid source environment %q", source)
	}

	job := &Job{
		id:        uuid.New().String(),
		unit:      unitID,
		source:    source,
		target:    source.Complement(),
		startedAt: time.Now(),
		status:    JobStatusSyncing,
	}

	c.logger.Info("sync started",
		zap.String("job", job.id),
		zap.String("unit", unitID),
		zap.String("source", source.String()))

	if err := c.fs.Push(ctx, unitID, source); err != nil {
		job.setStatus(JobStatusFailed)
		return job, &SyncError{Unit: unitID, Err: err, Transient: isTransient(err)}
	}

	job.setStatus(JobStatusConverging)
	return job, nil
}

// AwaitConvergence blocks until the replicated store reports convergence for
// the unit, the timeout elapses, or the context is cancelled. The wait is a
// conservative buffer on top of near-real-time replication, not a
// correctness mechanism.
func (c *Controller) AwaitConvergence(ctx context.Context, unitID string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.fs.Converged(ctx, unitID)
		if err != nil {
			c.logger.Warn("convergence probe failed",
				zap.String("unit", unitID), zap.Error(err))
		} else if ok {
			c.logger.Info("replication converged", zap.String("unit", unitID))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &TimeoutError{Unit: unitID, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// Recover pulls replicated state into the target environment's local
// storage. It is idempotent: a partially completed prior attempt is
// overwritten, so the orchestrator may retry freely.
func (c *Controller) Recover(ctx context.Context, unitID string, target endpoint.Environment) error {
	if !target.Valid() {
		return fmt.Errorf("replication: invalid target environment %q", target)
	}

	c.logger.Info("recover started",
		zap.String("unit", unitID),
		zap.String("target", target.String()))

	if err := c.fs.Pull(ctx, unitID, target); err != nil {
		return &RecoverError{Unit: unitID, Err: err, Transient: isTransient(err)}
	}
	return nil
}

// transienter lets collaborator errors mark themselves retryable.
type transienter interface {
	Transient() bool
}

func isTransient(err error) bool {
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
