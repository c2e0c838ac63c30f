// cmd/switchyard/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FairForge/switchyard/internal/api"
	"github.com/FairForge/switchyard/internal/config"
	"github.com/FairForge/switchyard/internal/configmgmt"
	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/health"
	"github.com/FairForge/switchyard/internal/metrics"
	"github.com/FairForge/switchyard/internal/orchestrator"
	"github.com/FairForge/switchyard/internal/replication"
	"github.com/FairForge/switchyard/internal/routing"
	"github.com/FairForge/switchyard/internal/runtime"
	"github.com/FairForge/switchyard/internal/statestore"
)

// Exit codes
const (
	exitOK          = 0
	exitOperational = 1
	exitUsage       = 2
	exitNotFound    = 3
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: switchyard [-config path] <command> [flags]

Commands:
  switch    planned cutover of a unit to the other environment
  failover  promote a unit's standby environment after a host failure
  status    print unit deployment state
  monitor   run continuous health assessment for all units
  serve     run the status API and health monitoring

Run 'switchyard <command> -h' for command flags.
`)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("switchyard", flag.ContinueOnError)
	configPath := global.String("config",
		config.GetEnvOrDefault("SWITCHYARD_CONFIG", "/etc/switchyard/config.yaml"),
		"path to the configuration file (env SWITCHYARD_CONFIG)")
	global.Usage = usage

	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	logger, err := newLogger(cfg.Service.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	app, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return exitOperational
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command, rest := global.Arg(0), global.Args()[1:]
	switch command {
	case "switch":
		return app.cmdSwitch(ctx, rest)
	case "failover":
		return app.cmdFailover(ctx, rest)
	case "status":
		return app.cmdStatus(ctx, rest)
	case "monitor":
		return app.cmdMonitor(ctx, rest)
	case "serve":
		return app.cmdServe(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		return exitUsage
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// app holds the wired collaborators for one invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    statestore.Store
	engine   *health.Engine
	orch     *orchestrator.Orchestrator
	runtime  runtime.Runtime
	registry *prometheus.Registry
	closers  []func() error
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	a := &app{cfg: cfg, logger: logger, registry: registry}

	switch cfg.Store.Backend {
	case "postgres":
		pg, err := statestore.NewPostgresStore(cfg.Store.DSN, logger)
		if err != nil {
			return nil, err
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
	default:
		a.store = statestore.NewFileStore(cfg.Store.Path, cfg.Store.KeepBackups, logger)
	}

	gluster := replication.NewGlusterFilesystem(
		cfg.Replication.Volume, cfg.Replication.MountPath, cfg.Replication.DataDir, nil, logger)
	repl := replication.NewController(gluster, cfg.Replication.PollInterval, logger)

	proxy := routing.NewHAProxy(cfg.Routing.ConfigPath, cfg.Routing.ReloadCmd,
		fmt.Sprintf("http://localhost:%d/stats", cfg.Routing.StatsPort), logger)
	router := routing.NewController(a.store, cfg.Units, cfg.Routing, proxy, m, logger)

	rt := runtime.NewDockerRuntime(nil, logger)
	a.runtime = rt

	var applier configmgmt.Applier
	if cfg.ConfigMgmt.Playbook != "" {
		applier = configmgmt.NewAnsibleApplier(cfg.ConfigMgmt.Playbook, cfg.ConfigMgmt.Inventory, nil, logger)
	}

	a.engine = health.NewEngine(health.Policy{
		Healthy:      cfg.Health.HealthyThreshold,
		Degraded:     cfg.Health.DegradedThreshold,
		FailureCount: cfg.Health.FailureCount,
	}, cfg.Health.CheckTimeout, m, logger)
	for _, u := range cfg.Units {
		healthy, degraded := cfg.Thresholds(&u)
		a.engine.SetPolicy(u.ID, health.Policy{
			Healthy:      healthy,
			Degraded:     degraded,
			FailureCount: cfg.Health.FailureCount,
		})
	}

	counter := &health.FileArtifactCounter{
		EnvDir: gluster.EnvDir,
		Kinds:  []string{"jobs", "plugins"},
	}
	checks := func(unit *config.UnitConfig, env endpoint.Environment) []health.Check {
		set := &health.CheckSet{
			Service:    cfg.Service.Name,
			UnitID:     unit.ID,
			Host:       unit.PrimaryHost,
			Ports:      unit.Ports,
			Runtime:    rt,
			Counter:    counter,
			Weights:    cfg.Health.Weights,
			ProxyStats: proxy.Stats,
		}
		return set.Checks(env)
	}

	a.orch = orchestrator.New(cfg, a.store, repl, router, a.engine, rt, applier, checks, m, logger)

	// Seed state records so first-run units start on blue.
	ctx := context.Background()
	for _, u := range cfg.Units {
		if err := a.store.Ensure(ctx, u.ID, endpoint.Blue); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var usageErr *orchestrator.UsageError
	switch {
	case errors.Is(err, statestore.ErrUnitNotFound):
		return exitNotFound
	case errors.As(err, &usageErr):
		return exitUsage
	default:
		return exitOperational
	}
}

func (a *app) cmdSwitch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("switch", flag.ContinueOnError)
	unit := fs.String("unit", "", "unit to switch")
	target := fs.String("target", "", "target environment (blue or green); empty switches to the complement")
	skipBackup := fs.Bool("skip-backup", false, "skip sync and convergence, recover from last replicated state")
	restart := fs.Bool("restart", false, "restart the target instance even if running")
	validate := fs.Bool("validate-only", false, "assess the target environment and exit without changes")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *unit == "" {
		fmt.Fprintln(os.Stderr, "switch: -unit is required")
		return exitUsage
	}

	env, err := a.resolveTarget(ctx, *unit, *target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}

	result, err := a.orch.Cutover(ctx, *unit, env, orchestrator.Options{
		SkipBackup:   *skipBackup,
		Restart:      *restart,
		ValidateOnly: *validate,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "switch failed: %v\n", err)
		return exitCodeFor(err)
	}

	printJSON(result)
	return exitOK
}

// resolveTarget parses an explicit target or derives the complement of the
// unit's active environment.
func (a *app) resolveTarget(ctx context.Context, unitID, target string) (endpoint.Environment, error) {
	if target != "" {
		env, err := endpoint.Parse(target)
		if err != nil {
			return "", &orchestrator.UsageError{Msg: err.Error()}
		}
		return env, nil
	}
	current, err := a.store.GetActive(ctx, unitID)
	if err != nil {
		return "", err
	}
	return current.Complement(), nil
}

func (a *app) cmdFailover(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("failover", flag.ContinueOnError)
	unit := fs.String("unit", "", "unit to fail over")
	failedHost := fs.String("failed-host", "", "host that failed")
	targetHost := fs.String("target-host", "", "host to promote (defaults to the unit's standby host)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *unit == "" || *failedHost == "" {
		fmt.Fprintln(os.Stderr, "failover: -unit and -failed-host are required")
		return exitUsage
	}

	host := *targetHost
	if host == "" {
		if u := a.cfg.Unit(*unit); u != nil {
			host = u.StandbyHost
		}
	}

	result, err := a.orch.Failover(ctx, orchestrator.FailoverRequest{
		Unit:       *unit,
		FailedHost: *failedHost,
		TargetHost: host,
	})
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failover: %v\n", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func (a *app) cmdStatus(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	unit := fs.String("unit", "", "limit output to one unit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	records, err := a.store.Units(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}

	found := false
	for _, r := range records {
		if *unit != "" && r.UnitID != *unit {
			continue
		}
		found = true
		u := a.cfg.Unit(r.UnitID)
		if u == nil {
			continue
		}
		ep := endpoint.Resolve(u.PrimaryHost, u.Ports, r.Active)
		fmt.Printf("%-16s active=%-6s web=%s agent=%d last_transition=%s\n",
			r.UnitID, r.Active, ep.Addr(), ep.Agent, r.LastTransition.Format("2006-01-02T15:04:05Z07:00"))
	}
	if *unit != "" && !found {
		fmt.Fprintf(os.Stderr, "unknown unit %q\n", *unit)
		return exitNotFound
	}
	return exitOK
}

func (a *app) cmdMonitor(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	a.runMonitors(ctx)
	return exitOK
}

func (a *app) cmdServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	server := api.NewServer(a.cfg, a.store, a.engine, a.orch.RTO(), a.registry, a.logger)

	go a.runMonitors(ctx)

	if err := server.Start(ctx); err != nil {
		a.logger.Error("status API failed", zap.Error(err))
		return exitOperational
	}
	return exitOK
}

// runMonitors assesses every unit's active environment on the configured
// interval until the context is cancelled. Auto-heal signals restart the
// instance; routing and state are never touched from here.
func (a *app) runMonitors(ctx context.Context) {
	rt := a.runtime

	if a.cfg.Store.Backend == "file" {
		watcher, err := statestore.NewWatcher(a.cfg.Store.Path, a.logger, func(op string) {
			a.logger.Warn("state file changed outside this process", zap.String("op", op))
		})
		if err != nil {
			a.logger.Warn("state file watch unavailable", zap.Error(err))
		} else {
			go func() { _ = watcher.Run(ctx) }()
		}
	}

	go func() {
		for sig := range a.engine.HealSignals() {
			a.logger.Warn("auto-heal: restarting instance",
				zap.String("unit", sig.Unit),
				zap.String("environment", sig.Environment.String()),
				zap.Int("consecutive_failures", sig.Consecutive))
			if err := healInstance(ctx, rt, a.cfg.Service.Name, sig); err != nil {
				a.logger.Error("auto-heal restart failed", zap.Error(err))
			}
		}
	}()

	var wg sync.WaitGroup
	for _, u := range a.cfg.Units {
		unit := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			// The active environment is re-read on every tick: a cutover or
			// failover commits from a separate CLI process, and the monitor
			// must follow it rather than assess the slot seen at startup.
			a.engine.Monitor(ctx, unit.ID, a.cfg.Health.MonitorInterval, func() (endpoint.Environment, []health.Check) {
				env, err := a.store.GetActive(ctx, unit.ID)
				if err != nil {
					a.logger.Error("monitor: no state record", zap.String("unit", unit.ID), zap.Error(err))
					return endpoint.Blue, nil
				}
				set := &health.CheckSet{
					Service: a.cfg.Service.Name,
					UnitID:  unit.ID,
					Host:    unit.PrimaryHost,
					Ports:   unit.Ports,
					Runtime: rt,
					Weights: a.cfg.Health.Weights,
				}
				return env, set.Checks(env)
			})
		}()
	}
	wg.Wait()
}

// healInstance restarts the instance behind an auto-heal signal. Starting a
// container that is already running is a no-op, and the signal usually fires
// with the container up but failing its checks, so a running instance is
// stopped first.
func healInstance(ctx context.Context, rt runtime.Runtime, service string, sig health.HealSignal) error {
	name := runtime.ContainerName(service, sig.Unit, sig.Environment)

	status, err := rt.Inspect(ctx, name)
	if err == nil && status.Running {
		if err := rt.Stop(ctx, name); err != nil {
			return err
		}
	}
	return rt.Start(ctx, name)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(out))
}
