// internal/runtime/runtime.go
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// Status is the structured state of a managed service instance.
type Status struct {
	Running   bool        `json:"running"`
	Health    string      `json:"health"` // healthy, unhealthy, starting, none
	Ports     map[int]int `json:"ports"`  // container port -> host port
	StartedAt time.Time   `json:"started_at"`
}

// Runtime is the container-runtime collaborator. Non-zero exit or a
// non-running inspect status is treated as failure by callers.
type Runtime interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Inspect(ctx context.Context, name string) (Status, error)
}

// ContainerName builds the conventional instance name for a unit's
// environment, e.g. "jenkins-devops-blue".
func ContainerName(service, unitID string, env endpoint.Environment) string {
	return fmt.Sprintf("%s-%s-%s", service, unitID, env)
}
