package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "./swarm.yaml"

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Store     StoreConfig     `yaml:"store"`
	Registry  RegistryConfig  `yaml:"registry"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// StoreConfig selects and tunes the keyed store backend.
type StoreConfig struct {
	Backend    string        `yaml:"backend"`     // "memory", "redis", "sqlite"
	RedisURL   string        `yaml:"redis_url"`   // may be "enc:..."
	SQLitePath string        `yaml:"sqlite_path"` // default: <data dir>/swarm.db
	Timeout    time.Duration `yaml:"timeout"`     // per round trip; 0 disables
	RateLimit  float64       `yaml:"rate_limit"`  // ops per second; 0 disables
	Burst      int           `yaml:"burst"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings for the keyed store.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RegistryConfig holds agent registry settings.
type RegistryConfig struct {
	AgentTTL time.Duration `yaml:"agent_ttl"`
}

// SessionsConfig holds session cache settings.
type SessionsConfig struct {
	MaxSessions     int           `yaml:"max_sessions"`
	MaxContextBytes int           `yaml:"max_context_bytes"`
	TTL             time.Duration `yaml:"ttl"`
	KeyPrefix       string        `yaml:"key_prefix"`
}

// WorkflowConfig selects the downstream workflow executor.
type WorkflowConfig struct {
	Endpoint string        `yaml:"endpoint"` // empty = local executor
	Timeout  time.Duration `yaml:"timeout"`
}

// SchedulerConfig holds background maintenance schedules.
type SchedulerConfig struct {
	Reconcile string `yaml:"reconcile"` // cron expression or duration string
	Refresh   string `yaml:"refresh"`
	Sweep     string `yaml:"sweep"` // expired-key sweep for backends without native TTL
}

// defaultDataDir returns the persistent data directory under $HOME/.swarm/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".swarm", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Store: StoreConfig{
			Backend:    "memory",
			SQLitePath: filepath.Join(defaultDataDir(), "swarm.db"),
			Timeout:    2 * time.Second,
			Burst:      10,
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Registry: RegistryConfig{
			AgentTTL: time.Hour,
		},
		Sessions: SessionsConfig{
			MaxSessions:     50,
			MaxContextBytes: 5 * 1024 * 1024,
			TTL:             time.Hour,
			KeyPrefix:       "session:",
		},
		Workflow: WorkflowConfig{
			Timeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Reconcile: "1m",
			Refresh:   "5m",
			Sweep:     "10m",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := finish(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish decrypts secrets and validates.
func finish(cfg *Config) error {
	if passphrase := os.Getenv(PassphraseEnv); passphrase != "" {
		if err := unsealSecrets(cfg, passphrase); err != nil {
			return fmt.Errorf("decrypt secrets: %w", err)
		}
	}
	return Validate(cfg)
}

// ApplyEnvOverrides maps SWARM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWARM_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SWARM_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SWARM_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SWARM_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SWARM_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SWARM_STORE_REDIS_URL"); v != "" {
		cfg.Store.RedisURL = v
	}
	// Compatibility with hosted Redis deployments that only export REDIS_URL.
	if v := os.Getenv("REDIS_URL"); v != "" && cfg.Store.RedisURL == "" {
		cfg.Store.RedisURL = v
	}
	if v := os.Getenv("SWARM_STORE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("SWARM_STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.Timeout = d
		}
	}
	if v := os.Getenv("SWARM_STORE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Store.RateLimit = f
		}
	}
	if v := os.Getenv("SWARM_SESSIONS_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.MaxSessions = n
		}
	}
	if v := os.Getenv("SWARM_SESSIONS_MAX_CONTEXT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.MaxContextBytes = n
		}
	}
	if v := os.Getenv("SWARM_SESSIONS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sessions.TTL = d
		}
	}
	if v := os.Getenv("SWARM_REGISTRY_AGENT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Registry.AgentTTL = d
		}
	}
	if v := os.Getenv("SWARM_WORKFLOW_ENDPOINT"); v != "" {
		cfg.Workflow.Endpoint = v
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
