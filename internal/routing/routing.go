// internal/routing/routing.go
package routing

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/config"
	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/metrics"
	"github.com/FairForge/switchyard/internal/statestore"
)

// RouteError reports a failed routing apply.
type RouteError struct {
	Unit string
	Err  error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("routing: apply failed for unit %s: %v", e.Unit, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

// Proxy is the reverse-proxy collaborator: it accepts a regenerated
// configuration and reloads.
type Proxy interface {
	Apply(ctx context.Context, cfg []byte) error
	Reload(ctx context.Context) error
}

// Controller projects the state store's active-environment record into
// reverse-proxy configuration. It never decides which environment should be
// active; decision lives in the store, this is only effect.
type Controller struct {
	store   statestore.Store
	units   []config.UnitConfig
	routing config.RoutingConfig
	proxy   Proxy
	metrics *metrics.Metrics
	logger  *zap.Logger

	// The proxy config is one file covering all units; two units racing to
	// regenerate it is a real hazard, so apply+reload is serialized.
	mu          sync.Mutex
	lastApplied []byte
}

// NewController creates a routing controller.
func NewController(store statestore.Store, units []config.UnitConfig, routing config.RoutingConfig, proxy Proxy, m *metrics.Metrics, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:   store,
		units:   units,
		routing: routing,
		proxy:   proxy,
		metrics: m,
		logger:  logger,
	}
}

// ApplyRouting regenerates proxy configuration consistent with the store's
// current committed state and applies it. The configuration covers all
// units, so any unit's change regenerates the whole file; unitID only names
// the unit on whose behalf the apply runs for error reporting. Re-applying
// unchanged state skips the proxy reload entirely.
func (c *Controller) ApplyRouting(ctx context.Context, unitID string) error {
	if c.unit(unitID) == nil {
		return &RouteError{Unit: unitID, Err: fmt.Errorf("unknown unit")}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rendered, err := c.renderLocked(ctx)
	if err != nil {
		return &RouteError{Unit: unitID, Err: err}
	}

	if bytes.Equal(rendered, c.lastApplied) {
		c.logger.Debug("routing unchanged, skipping reload", zap.String("unit", unitID))
		return nil
	}

	if err := c.proxy.Apply(ctx, rendered); err != nil {
		return &RouteError{Unit: unitID, Err: err}
	}
	if err := c.proxy.Reload(ctx); err != nil {
		return &RouteError{Unit: unitID, Err: err}
	}

	c.lastApplied = rendered
	if c.metrics != nil {
		c.metrics.ProxyReloads.Inc()
	}
	c.logger.Info("routing applied", zap.String("unit", unitID), zap.Int("bytes", len(rendered)))
	return nil
}

// Render returns the configuration that would be applied for the current
// committed state. Deterministic: identical state renders identical bytes.
func (c *Controller) Render(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderLocked(ctx)
}

func (c *Controller) unit(id string) *config.UnitConfig {
	for i := range c.units {
		if c.units[i].ID == id {
			return &c.units[i]
		}
	}
	return nil
}

func (c *Controller) renderLocked(ctx context.Context) ([]byte, error) {
	type unitRoute struct {
		unit   config.UnitConfig
		active endpoint.Environment
	}

	routes := make([]unitRoute, 0, len(c.units))
	for _, u := range c.units {
		active, err := c.store.GetActive(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve active environment for %s: %w", u.ID, err)
		}
		routes = append(routes, unitRoute{unit: u, active: active})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].unit.ID < routes[j].unit.ID })

	var b bytes.Buffer
	b.WriteString("# managed by switchyard - do not edit\n")
	b.WriteString("global\n    daemon\n\n")
	b.WriteString("defaults\n    mode http\n    timeout connect 5s\n    timeout client 60s\n    timeout server 60s\n\n")

	fmt.Fprintf(&b, "listen stats\n    bind *:%d\n    stats enable\n    stats uri /stats\n\n", c.routing.StatsPort)

	fmt.Fprintf(&b, "frontend web_in\n    bind *:%d\n", c.routing.FrontendPort)
	for _, r := range routes {
		fmt.Fprintf(&b, "    acl host_%s hdr_beg(host) -i %s.\n", r.unit.ID, r.unit.ID)
	}
	for _, r := range routes {
		fmt.Fprintf(&b, "    use_backend %s_web if host_%s\n", r.unit.ID, r.unit.ID)
	}
	b.WriteString("\n")

	for _, r := range routes {
		primary := endpoint.Resolve(r.unit.PrimaryHost, r.unit.Ports, r.active)
		fmt.Fprintf(&b, "backend %s_web\n", r.unit.ID)
		fmt.Fprintf(&b, "    server %s-%s-primary %s check\n", r.unit.ID, r.active, primary.Addr())
		if r.unit.StandbyHost != "" {
			standby := endpoint.Resolve(r.unit.StandbyHost, r.unit.Ports, r.active)
			fmt.Fprintf(&b, "    server %s-%s-standby %s check backup\n", r.unit.ID, r.active, standby.Addr())
		}
		b.WriteString("\n")
	}

	return b.Bytes(), nil
}
