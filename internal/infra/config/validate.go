package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateStore(cfg, ve)
	validateRegistry(cfg, ve)
	validateSessions(cfg, ve)
	validateWorkflow(cfg, ve)
	validateScheduler(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be \"text\" or \"json\"", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q must be \"noop\" or \"stdout\"", cfg.Tracer.Exporter)
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	s := cfg.Store
	switch s.Backend {
	case "memory":
	case "redis":
		if s.RedisURL == "" {
			ve.Add("store.redis_url is required when store.backend is \"redis\"")
		} else if !strings.HasPrefix(s.RedisURL, SecretPrefix) {
			if u, err := url.Parse(s.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
				ve.Add("store.redis_url must be a redis:// or rediss:// URL")
			}
		}
	case "sqlite":
		if s.SQLitePath == "" {
			ve.Add("store.sqlite_path is required when store.backend is \"sqlite\"")
		}
	default:
		ve.Add("store.backend %q must be one of: memory, redis, sqlite", s.Backend)
	}
	if s.Timeout < 0 {
		ve.Add("store.timeout must not be negative")
	}
	if s.RateLimit < 0 {
		ve.Add("store.rate_limit must not be negative")
	}
	if s.RateLimit > 0 && s.Burst <= 0 {
		ve.Add("store.burst must be positive when store.rate_limit is set")
	}
}

func validateRegistry(cfg *Config, ve *ValidationError) {
	if cfg.Registry.AgentTTL < 0 {
		ve.Add("registry.agent_ttl must not be negative")
	}
}

func validateSessions(cfg *Config, ve *ValidationError) {
	s := cfg.Sessions
	if s.MaxSessions <= 0 {
		ve.Add("sessions.max_sessions must be positive, got %d", s.MaxSessions)
	}
	if s.MaxContextBytes <= 0 {
		ve.Add("sessions.max_context_bytes must be positive, got %d", s.MaxContextBytes)
	}
	if s.TTL < 0 {
		ve.Add("sessions.ttl must not be negative")
	}
	if s.KeyPrefix == "" {
		ve.Add("sessions.key_prefix must not be empty")
	}
}

func validateWorkflow(cfg *Config, ve *ValidationError) {
	if cfg.Workflow.Endpoint == "" {
		return
	}
	u, err := url.Parse(cfg.Workflow.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("workflow.endpoint %q must be an absolute http(s) URL", cfg.Workflow.Endpoint)
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	for name, sched := range map[string]string{
		"scheduler.reconcile": cfg.Scheduler.Reconcile,
		"scheduler.refresh":   cfg.Scheduler.Refresh,
		"scheduler.sweep":     cfg.Scheduler.Sweep,
	} {
		if sched == "" {
			continue
		}
		if !validSchedule(sched) {
			ve.Add("%s %q is not a valid cron expression or duration", name, sched)
		}
	}
}

func validSchedule(s string) bool {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(s); err == nil {
		return true
	}
	d, err := time.ParseDuration(s)
	return err == nil && d > 0
}
