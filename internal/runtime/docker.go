// internal/runtime/docker.go
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DockerRuntime drives service instances through the docker CLI.
type DockerRuntime struct {
	run    CommandRunner
	logger *zap.Logger
}

// NewDockerRuntime creates a docker-backed runtime. A nil runner uses os/exec.
func NewDockerRuntime(run CommandRunner, logger *zap.Logger) *DockerRuntime {
	if run == nil {
		run = defaultRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerRuntime{run: run, logger: logger}
}

// Start starts a named container.
func (d *DockerRuntime) Start(ctx context.Context, name string) error {
	out, err := d.run(ctx, "docker", "start", name)
	if err != nil {
		d.logger.Error("docker start failed",
			zap.String("container", name),
			zap.ByteString("output", out),
			zap.Error(err))
		return fmt.Errorf("runtime: start %s: %w", name, err)
	}
	return nil
}

// Stop stops a named container.
func (d *DockerRuntime) Stop(ctx context.Context, name string) error {
	out, err := d.run(ctx, "docker", "stop", name)
	if err != nil {
		d.logger.Error("docker stop failed",
			zap.String("container", name),
			zap.ByteString("output", out),
			zap.Error(err))
		return fmt.Errorf("runtime: stop %s: %w", name, err)
	}
	return nil
}

// dockerInspect mirrors the fields we need from `docker inspect` output.
type dockerInspect struct {
	State struct {
		Running   bool   `json:"Running"`
		StartedAt string `json:"StartedAt"`
		Health    *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
	NetworkSettings struct {
		Ports map[string][]struct {
			HostPort string `json:"HostPort"`
		} `json:"Ports"`
	} `json:"NetworkSettings"`
}

// Inspect returns the structured status of a named container.
func (d *DockerRuntime) Inspect(ctx context.Context, name string) (Status, error) {
	out, err := d.run(ctx, "docker", "inspect", name)
	if err != nil {
		return Status{}, fmt.Errorf("runtime: inspect %s: %w", name, err)
	}

	var parsed []dockerInspect
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Status{}, fmt.Errorf("runtime: parse inspect output for %s: %w", name, err)
	}
	if len(parsed) == 0 {
		return Status{}, fmt.Errorf("runtime: container %s not found", name)
	}

	info := parsed[0]
	status := Status{
		Running: info.State.Running,
		Health:  "none",
		Ports:   make(map[int]int),
	}

	if info.State.Health != nil {
		status.Health = strings.ToLower(info.State.Health.Status)
	}
	if ts, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
		status.StartedAt = ts
	}

	for spec, bindings := range info.NetworkSettings.Ports {
		if len(bindings) == 0 {
			continue
		}
		containerPort, err := strconv.Atoi(strings.SplitN(spec, "/", 2)[0])
		if err != nil {
			continue
		}
		hostPort, err := strconv.Atoi(bindings[0].HostPort)
		if err != nil {
			continue
		}
		status.Ports[containerPort] = hostPort
	}

	return status, nil
}
