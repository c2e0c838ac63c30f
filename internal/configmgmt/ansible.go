// internal/configmgmt/ansible.go
package configmgmt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"go.uber.org/zap"
)

// PreconditionError reports a missing collaborator artifact (playbook,
// inventory). Non-retryable; the operator must fix the environment.
type PreconditionError struct {
	Artifact string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("configmgmt: required artifact missing: %s", e.Artifact)
}

// Applier renders and applies host-level configuration. The caller treats it
// as an opaque apply-and-wait step and inspects only the outcome.
type Applier interface {
	Apply(ctx context.Context, extraVars map[string]string) error
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// AnsibleApplier applies configuration by running a playbook.
type AnsibleApplier struct {
	playbook  string
	inventory string
	run       CommandRunner
	logger    *zap.Logger
}

// NewAnsibleApplier creates the collaborator. A nil runner uses os/exec.
func NewAnsibleApplier(playbook, inventory string, run CommandRunner, logger *zap.Logger) *AnsibleApplier {
	if run == nil {
		run = defaultRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnsibleApplier{playbook: playbook, inventory: inventory, run: run, logger: logger}
}

// Apply runs the playbook with the given extra vars and waits for it.
func (a *AnsibleApplier) Apply(ctx context.Context, extraVars map[string]string) error {
	if _, err := os.Stat(a.playbook); err != nil {
		return &PreconditionError{Artifact: a.playbook}
	}
	if a.inventory != "" {
		if _, err := os.Stat(a.inventory); err != nil {
			return &PreconditionError{Artifact: a.inventory}
		}
	}

	args := []string{a.playbook}
	if a.inventory != "" {
		args = append(args, "-i", a.inventory)
	}
	// Sort vars so the command line is stable across runs.
	keys := make([]string, 0, len(extraVars))
	for k := range extraVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+extraVars[k])
	}

	a.logger.Info("applying host configuration",
		zap.String("playbook", a.playbook),
		zap.Int("vars", len(extraVars)))

	out, err := a.run(ctx, "ansible-playbook", args...)
	if err != nil {
		a.logger.Error("playbook failed",
			zap.String("playbook", a.playbook),
			zap.ByteString("output", out),
			zap.Error(err))
		return fmt.Errorf("configmgmt: ansible-playbook %s: %w", a.playbook, err)
	}
	return nil
}
