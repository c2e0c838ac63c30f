// internal/replication/gluster.go
package replication

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// infraError marks a collaborator failure as retryable infrastructure
// trouble rather than a broken precondition.
type infraError struct {
	err error
}

func (e *infraError) Error() string   { return e.err.Error() }
func (e *infraError) Unwrap() error   { return e.err }
func (e *infraError) Transient() bool { return true }

// GlusterFilesystem talks to a GlusterFS deployment through the gluster and
// rsync CLIs. The volume's own replication moves data between hosts; this
// type only stages data into and out of the mounted volume and probes heal
// state as the convergence signal.
type GlusterFilesystem struct {
	volume    string
	mountPath string
	dataDir   string // local environment data lives at <dataDir>/<unit>-<env>
	run       CommandRunner
	logger    *zap.Logger
}

// NewGlusterFilesystem creates the collaborator. A nil runner uses os/exec.
func NewGlusterFilesystem(volume, mountPath, dataDir string, run CommandRunner, logger *zap.Logger) *GlusterFilesystem {
	if run == nil {
		run = defaultRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GlusterFilesystem{
		volume:    volume,
		mountPath: mountPath,
		dataDir:   dataDir,
		run:       run,
		logger:    logger,
	}
}

// EnvDir returns the local data directory for a unit's environment.
func (g *GlusterFilesystem) EnvDir(unitID string, env endpoint.Environment) string {
	return filepath.Join(g.dataDir, fmt.Sprintf("%s-%s", unitID, env))
}

// ReplicaDir returns the unit's directory inside the replicated volume.
func (g *GlusterFilesystem) ReplicaDir(unitID string) string {
	return filepath.Join(g.mountPath, unitID)
}

// Push stages the source environment's data into the replicated volume.
func (g *GlusterFilesystem) Push(ctx context.Context, unitID string, source endpoint.Environment) error {
	src := g.EnvDir(unitID, source)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source data directory %s: %w", src, err)
	}

	dst := g.ReplicaDir(unitID)
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return &infraError{fmt.Errorf("create replica directory: %w", err)}
	}

	out, err := g.run(ctx, "rsync", "-a", "--delete", src+"/", dst+"/")
	if err != nil {
		g.logger.Error("rsync push failed",
			zap.String("unit", unitID),
			zap.ByteString("output", out),
			zap.Error(err))
		return &infraError{fmt.Errorf("rsync to replica: %w", err)}
	}
	return nil
}

// Pull stages replicated data into the target environment's local storage.
// rsync --delete makes the pull idempotent over a partial earlier attempt.
func (g *GlusterFilesystem) Pull(ctx context.Context, unitID string, target endpoint.Environment) error {
	src := g.ReplicaDir(unitID)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("replica directory %s: %w", src, err)
	}

	dst := g.EnvDir(unitID, target)
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return &infraError{fmt.Errorf("create target directory: %w", err)}
	}

	out, err := g.run(ctx, "rsync", "-a", "--delete", src+"/", dst+"/")
	if err != nil {
		g.logger.Error("rsync pull failed",
			zap.String("unit", unitID),
			zap.ByteString("output", out),
			zap.Error(err))
		return &infraError{fmt.Errorf("rsync from replica: %w", err)}
	}
	return nil
}

// Converged reports whether the volume has no pending heal entries, meaning
// the last writes have propagated to every member brick.
func (g *GlusterFilesystem) Converged(ctx context.Context, unitID string) (bool, error) {
	out, err := g.run(ctx, "gluster", "volume", "heal", g.volume, "info")
	if err != nil {
		return false, &infraError{fmt.Errorf("gluster heal info: %w", err)}
	}
	return healEntriesZero(string(out)), nil
}

// healEntriesZero parses `gluster volume heal <vol> info` output and returns
// true when every brick reports zero pending entries.
func healEntriesZero(out string) bool {
	sawBrick := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Number of entries:") {
			continue
		}
		sawBrick = true
		count := strings.TrimSpace(strings.TrimPrefix(line, "Number of entries:"))
		if count != "0" {
			return false
		}
	}
	return sawBrick
}
