// internal/health/checks.go
package health

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/runtime"
)

// Default check weights; unit configuration may override any of them.
const (
	DefaultLivenessWeight  = 0.4
	DefaultReachableWeight = 0.3
	DefaultParityWeight    = 0.3
)

// Check names
const (
	CheckLiveness   = "container-liveness"
	CheckReachable  = "endpoint-reachable"
	CheckParity     = "functional-parity"
	CheckResources  = "resource-info"
	CheckProxyStats = "proxy-routing"
)

// ArtifactCounter reports counts of stateful artifacts (jobs, plugins,
// whatever the managed service considers state) for one environment.
type ArtifactCounter interface {
	Counts(ctx context.Context, unitID string, env endpoint.Environment) (map[string]int, error)
}

// CheckSet builds the standard checks for one unit's environment.
type CheckSet struct {
	Service string
	UnitID  string
	Host    string
	Ports   endpoint.Ports
	Runtime runtime.Runtime
	Counter ArtifactCounter
	Weights map[string]float64 // optional overrides keyed by check name

	// ProxyStats optionally fetches the reverse proxy's stats CSV; when set,
	// an informational check reports what the proxy sees for this unit.
	ProxyStats func(ctx context.Context) ([]byte, error)
}

func (s *CheckSet) weight(name string, def float64) float64 {
	if w, ok := s.Weights[name]; ok {
		return w
	}
	return def
}

// Checks returns the ordered standard checks for the environment: liveness,
// interface reachability, functional parity against the other environment,
// and an informational resource probe that never gates.
func (s *CheckSet) Checks(env endpoint.Environment) []Check {
	ep := endpoint.Resolve(s.Host, s.Ports, env)
	name := runtime.ContainerName(s.Service, s.UnitID, env)

	checks := []Check{
		{
			Name:   CheckLiveness,
			Weight: s.weight(CheckLiveness, DefaultLivenessWeight),
			Run: func(ctx context.Context) (bool, string) {
				status, err := s.Runtime.Inspect(ctx, name)
				if err != nil {
					return false, err.Error()
				}
				if !status.Running {
					return false, fmt.Sprintf("container %s not running", name)
				}
				if status.Health == "unhealthy" {
					return false, fmt.Sprintf("container %s reports unhealthy", name)
				}
				return true, fmt.Sprintf("container %s running (health=%s)", name, status.Health)
			},
		},
		{
			Name:   CheckReachable,
			Weight: s.weight(CheckReachable, DefaultReachableWeight),
			Run: func(ctx context.Context) (bool, string) {
				var d net.Dialer
				conn, err := d.DialContext(ctx, "tcp", ep.Addr())
				if err != nil {
					return false, fmt.Sprintf("dial %s: %v", ep.Addr(), err)
				}
				_ = conn.Close()
				return true, fmt.Sprintf("%s answers", ep.Addr())
			},
		},
	}

	if s.Counter != nil {
		checks = append(checks, Check{
			Name:   CheckParity,
			Weight: s.weight(CheckParity, DefaultParityWeight),
			Run: func(ctx context.Context) (bool, string) {
				return s.parity(ctx, env)
			},
		})
	}

	if s.ProxyStats != nil {
		checks = append(checks, Check{
			Name:   CheckProxyStats,
			Weight: 0, // informational, never gates
			Run: func(ctx context.Context) (bool, string) {
				return true, s.proxyView(ctx, env)
			},
		})
	}

	checks = append(checks, Check{
		Name:   CheckResources,
		Weight: 0, // informational, never gates
		Run: func(ctx context.Context) (bool, string) {
			status, err := s.Runtime.Inspect(ctx, name)
			if err != nil {
				return true, "resource info unavailable: " + err.Error()
			}
			uptime := time.Duration(0)
			if !status.StartedAt.IsZero() {
				uptime = time.Since(status.StartedAt).Round(time.Second)
			}
			return true, fmt.Sprintf("uptime=%s ports=%d", uptime, len(status.Ports))
		},
	})

	return checks
}

// parity compares stateful artifact counts between this environment and its
// complement. A standby that diverges from the active is not safe to serve.
func (s *CheckSet) parity(ctx context.Context, env endpoint.Environment) (bool, string) {
	mine, err := s.Counter.Counts(ctx, s.UnitID, env)
	if err != nil {
		return false, fmt.Sprintf("count %s artifacts: %v", env, err)
	}
	theirs, err := s.Counter.Counts(ctx, s.UnitID, env.Complement())
	if err != nil {
		return false, fmt.Sprintf("count %s artifacts: %v", env.Complement(), err)
	}

	for kind, n := range theirs {
		if mine[kind] != n {
			return false, fmt.Sprintf("%s mismatch: %d vs %d", kind, mine[kind], n)
		}
	}
	for kind := range mine {
		if _, ok := theirs[kind]; !ok {
			return false, fmt.Sprintf("%s present only in %s", kind, env)
		}
	}
	return true, fmt.Sprintf("%d artifact kinds in parity", len(mine))
}

// proxyView summarizes the proxy's stats rows for this unit's backend. The
// proxy trails a cutover briefly, so the view is reported, never gated on.
func (s *CheckSet) proxyView(ctx context.Context, env endpoint.Environment) string {
	out, err := s.ProxyStats(ctx)
	if err != nil {
		return "proxy stats unavailable: " + err.Error()
	}

	backend := s.UnitID + "_web,"
	server := fmt.Sprintf("%s-%s", s.UnitID, env)
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, backend) || !strings.Contains(line, server) {
			continue
		}
		if strings.Contains(line, "UP") {
			return fmt.Sprintf("proxy reports %s UP", server)
		}
		return fmt.Sprintf("proxy does not report %s UP yet", server)
	}
	return "no proxy stats row for " + s.UnitID
}

// FileArtifactCounter counts entries in well-known directories of an
// environment's data dir, e.g. jobs/ and plugins/ for a Jenkins master.
type FileArtifactCounter struct {
	EnvDir func(unitID string, env endpoint.Environment) string
	Kinds  []string
}

// Counts implements ArtifactCounter.
func (f *FileArtifactCounter) Counts(_ context.Context, unitID string, env endpoint.Environment) (map[string]int, error) {
	counts := make(map[string]int, len(f.Kinds))
	base := f.EnvDir(unitID, env)
	for _, kind := range f.Kinds {
		n, err := countDirEntries(base, kind)
		if err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, nil
}
