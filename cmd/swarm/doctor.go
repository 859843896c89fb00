package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"agent-swarm/internal/adapter/store"
	"agent-swarm/internal/infra/config"
	"agent-swarm/internal/usecase/scheduling"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context, cfg *config.Config) CheckResult
}

const probeTimeout = 5 * time.Second

func newDoctorCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config, keyed store and workflow endpoint health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Loaded directly: the checks must run even when wiring would fail.
			cfg, cfgErr := config.Load(c.cfgPath)
			checks := []Check{
				{Name: "Config file", Fn: checkConfigFile(c.cfgPath, cfgErr)},
				{Name: "Keyed store", Fn: checkStore},
				{Name: "Data directory", Fn: checkDataDir},
				{Name: "Workflow endpoint", Fn: checkWorkflow},
				{Name: "Schedules", Fn: checkSchedules},
			}
			results := runChecks(cmd.Context(), checks, cfg)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderChecks(results, newStyles()))

			if n := countStatus(results, StatusFail); n > 0 {
				return fmt.Errorf("%d check(s) failed", n)
			}
			return nil
		},
	}
}

func runChecks(ctx context.Context, checks []Check, cfg *config.Config) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(ctx, cfg)
		result.Name = check.Name
		results = append(results, result)
	}
	return results
}

func countStatus(results []CheckResult, st CheckStatus) int {
	var n int
	for _, r := range results {
		if r.Status == st {
			n++
		}
	}
	return n
}

func renderChecks(results []CheckResult, s styles) string {
	lines := []string{s.title.Render("swarm doctor")}
	for _, r := range results {
		var badge string
		switch r.Status {
		case StatusPass:
			badge = s.ok.Render("[PASS]")
		case StatusWarn:
			badge = s.warning.Render("[WARN]")
		default:
			badge = s.fail.Render("[FAIL]")
		}
		lines = append(lines, fmt.Sprintf("  %s %s: %s", badge, r.Name, r.Message))
		if r.Fix != "" {
			lines = append(lines, s.empty.Render("      Fix: "+r.Fix))
		}
	}
	lines = append(lines, s.header.Render(fmt.Sprintf("Results: %d passed, %d warnings, %d failed",
		countStatus(results, StatusPass), countStatus(results, StatusWarn), countStatus(results, StatusFail))))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile reports a missing file as a warning: defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(context.Context, *config.Config) CheckResult {
	return func(context.Context, *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Fix %s or the SWARM_* environment overrides", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkStore opens the configured backend and round-trips a probe key.
func checkStore(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	h, err := store.Open(ctx, cfg.Store, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s backend unavailable: %v", cfg.Store.Backend, err),
			Fix:     "Check store.backend and its connection settings",
		}
	}
	defer h.Close()

	key := fmt.Sprintf("doctor:%d", time.Now().UnixNano())
	want := []byte("ok")
	if err := h.Put(ctx, key, want, time.Minute); err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("write failed: %v", err)}
	}
	defer h.Delete(context.WithoutCancel(ctx), key)

	got, ok, err := h.Get(ctx, key)
	switch {
	case err != nil:
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("read failed: %v", err)}
	case !ok || !bytes.Equal(got, want):
		return CheckResult{Status: StatusFail, Message: "probe key did not round-trip"}
	}

	msg := fmt.Sprintf("%s backend reachable", h.Backend)
	if h.Backend == "memory" {
		return CheckResult{
			Status:  StatusWarn,
			Message: msg + "; memory store does not persist between runs",
			Fix:     "Set store.backend to sqlite or redis to keep agents across invocations",
		}
	}
	return CheckResult{Status: StatusPass, Message: msg}
}

func checkDataDir(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.Store.Backend != "sqlite" {
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("not needed for %s backend", cfg.Store.Backend)}
	}

	dir, _ := filepath.Abs(filepath.Dir(cfg.Store.SQLitePath))
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("data directory %s does not exist and cannot be created: %v", dir, mkErr),
				Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", dir),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("data directory created at %s", dir)}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot stat data directory: %v", err)}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s exists but is not a directory", dir)}
	}

	probe := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", dir),
		}
	}
	os.Remove(probe)
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("data directory %s writable", dir)}
}

// checkWorkflow dials the endpoint's host; it does not send a task.
func checkWorkflow(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.Workflow.Endpoint == "" {
		return CheckResult{Status: StatusPass, Message: "local executor (no endpoint configured)"}
	}

	u, err := url.Parse(cfg.Workflow.Endpoint)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid endpoint: %v", err)}
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", host, err),
			Fix:     "Check workflow.endpoint or unset it to use the local executor",
		}
	}
	conn.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s reachable", host)}
}

func checkSchedules(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	tasks := maintenanceTasks(cfg.Scheduler)
	if len(tasks) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no maintenance scheduled",
			Fix:     "Set scheduler.reconcile, scheduler.refresh or scheduler.sweep",
		}
	}
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, err := scheduling.ParseSchedule(t.Schedule); err != nil {
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s: %v", t.Name, err)}
		}
		names = append(names, fmt.Sprintf("%s=%s", t.Name, t.Schedule))
	}
	return CheckResult{Status: StatusPass, Message: strings.Join(names, ", ")}
}
