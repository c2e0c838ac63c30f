// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// Config is the top-level switchyard configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Units       []UnitConfig      `yaml:"units"`
	Health      HealthConfig      `yaml:"health"`
	Replication ReplicationConfig `yaml:"replication"`
	Routing     RoutingConfig     `yaml:"routing"`
	Store       StoreConfig       `yaml:"store"`
	ConfigMgmt  ConfigMgmtConfig  `yaml:"config_mgmt"`
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`      // managed service name, used in container names
	APIPort  int    `yaml:"api_port"`  // status API listen port
	LogLevel string `yaml:"log_level"` // info by default
}

// UnitConfig describes one logical deployment unit (a team).
type UnitConfig struct {
	ID          string         `yaml:"id"`
	PrimaryHost string         `yaml:"primary_host"`
	StandbyHost string         `yaml:"standby_host"`
	Ports       endpoint.Ports `yaml:"ports"`

	// Per-unit health overrides; zero values fall back to Health defaults.
	HealthyThreshold  float64 `yaml:"healthy_threshold"`
	DegradedThreshold float64 `yaml:"degraded_threshold"`
	FailureCount      int     `yaml:"failure_count"`
}

// HealthConfig holds assessment defaults shared by all units.
type HealthConfig struct {
	HealthyThreshold  float64            `yaml:"healthy_threshold"`
	DegradedThreshold float64            `yaml:"degraded_threshold"`
	CheckTimeout      time.Duration      `yaml:"check_timeout"`
	MonitorInterval   time.Duration      `yaml:"monitor_interval"`
	FailureCount      int                `yaml:"failure_count"`
	Weights           map[string]float64 `yaml:"weights"`
}

// ReplicationConfig configures the replicated-filesystem collaborator.
type ReplicationConfig struct {
	Volume             string        `yaml:"volume"`
	MountPath          string        `yaml:"mount_path"`
	DataDir            string        `yaml:"data_dir"` // per-environment data dirs live here
	ConvergenceTimeout time.Duration `yaml:"convergence_timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
}

// ConfigMgmtConfig configures the host-level configuration-management
// collaborator. Empty playbook disables it.
type ConfigMgmtConfig struct {
	Playbook  string `yaml:"playbook"`
	Inventory string `yaml:"inventory"`
}

// RoutingConfig configures the reverse-proxy collaborator.
type RoutingConfig struct {
	ConfigPath   string        `yaml:"config_path"`
	ReloadCmd    []string      `yaml:"reload_cmd"`
	FrontendPort int           `yaml:"frontend_port"`
	StatsPort    int           `yaml:"stats_port"`
	ReloadWait   time.Duration `yaml:"reload_wait"`
}

// StoreConfig selects and configures the environment state store.
type StoreConfig struct {
	Backend     string `yaml:"backend"` // "file" or "postgres"
	Path        string `yaml:"path"`    // file backend
	DSN         string `yaml:"dsn"`     // postgres backend
	KeepBackups int    `yaml:"keep_backups"`
}

// Load reads a YAML config file and applies defaults and env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	LoadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "jenkins"
	}
	if c.Service.APIPort == 0 {
		c.Service.APIPort = 9600
	}
	if c.Service.LogLevel == "" {
		c.Service.LogLevel = "info"
	}

	if c.Health.HealthyThreshold == 0 {
		c.Health.HealthyThreshold = 0.9
	}
	if c.Health.DegradedThreshold == 0 {
		c.Health.DegradedThreshold = 0.6
	}
	if c.Health.CheckTimeout == 0 {
		c.Health.CheckTimeout = 5 * time.Second
	}
	if c.Health.MonitorInterval == 0 {
		c.Health.MonitorInterval = 30 * time.Second
	}
	if c.Health.FailureCount == 0 {
		c.Health.FailureCount = 3
	}

	if c.Replication.ConvergenceTimeout == 0 {
		c.Replication.ConvergenceTimeout = 10 * time.Second
	}
	if c.Replication.PollInterval == 0 {
		c.Replication.PollInterval = 500 * time.Millisecond
	}
	if c.Replication.DataDir == "" {
		c.Replication.DataDir = "/srv/" + c.Service.Name
	}

	if c.Routing.FrontendPort == 0 {
		c.Routing.FrontendPort = 8080
	}
	if c.Routing.StatsPort == 0 {
		c.Routing.StatsPort = 8404
	}
	if c.Routing.ReloadWait == 0 {
		c.Routing.ReloadWait = 5 * time.Second
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.KeepBackups == 0 {
		c.Store.KeepBackups = 10
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if len(c.Units) == 0 {
		return errors.New("config: at least one unit is required")
	}

	seen := make(map[string]bool, len(c.Units))
	for i, u := range c.Units {
		if u.ID == "" {
			return fmt.Errorf("config: unit %d: id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("config: duplicate unit id %q", u.ID)
		}
		seen[u.ID] = true

		if u.Ports.Web <= 0 || u.Ports.Agent <= 0 {
			return fmt.Errorf("config: unit %s: web and agent ports are required", u.ID)
		}
		if u.Ports.Web == u.Ports.Agent {
			return fmt.Errorf("config: unit %s: web and agent ports must differ", u.ID)
		}
	}

	if c.Health.DegradedThreshold >= c.Health.HealthyThreshold {
		return errors.New("config: degraded threshold must be below healthy threshold")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			return errors.New("config: store.path is required for file backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn is required for postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	return nil
}

// Unit returns the config for a unit id, or nil if unknown.
func (c *Config) Unit(id string) *UnitConfig {
	for i := range c.Units {
		if c.Units[i].ID == id {
			return &c.Units[i]
		}
	}
	return nil
}

// Thresholds returns the effective verdict thresholds for a unit.
func (c *Config) Thresholds(u *UnitConfig) (healthy, degraded float64) {
	healthy, degraded = c.Health.HealthyThreshold, c.Health.DegradedThreshold
	if u.HealthyThreshold > 0 {
		healthy = u.HealthyThreshold
	}
	if u.DegradedThreshold > 0 {
		degraded = u.DegradedThreshold
	}
	return healthy, degraded
}
