package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-swarm/internal/infra/config"
)

func TestCheckConfigFile(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "swarm.yaml")
	require.NoError(t, os.WriteFile(present, []byte("logger:\n  level: info\n"), 0o600))

	tests := []struct {
		name   string
		path   string
		err    error
		status CheckStatus
	}{
		{"missing file uses defaults", filepath.Join(dir, "absent.yaml"), nil, StatusWarn},
		{"load error", present, &config.ValidationError{Errors: []string{"bad"}}, StatusFail},
		{"valid", present, nil, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := checkConfigFile(tt.path, tt.err)(context.Background(), nil)
			assert.Equal(t, tt.status, res.Status, res.Message)
			if tt.status == StatusFail {
				assert.NotEmpty(t, res.Fix)
			}
		})
	}
}

func TestChecksNeedConfig(t *testing.T) {
	for name, fn := range map[string]func(context.Context, *config.Config) CheckResult{
		"store":     checkStore,
		"data dir":  checkDataDir,
		"workflow":  checkWorkflow,
		"schedules": checkSchedules,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, StatusFail, fn(context.Background(), nil).Status)
		})
	}
}

func TestCheckStore(t *testing.T) {
	cfg := config.Defaults()

	res := checkStore(context.Background(), cfg)
	assert.Equal(t, StatusWarn, res.Status, "memory store works but does not persist")

	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "doctor.db")
	res = checkStore(context.Background(), cfg)
	assert.Equal(t, StatusPass, res.Status, res.Message)

	cfg.Store.Backend = "etcd"
	res = checkStore(context.Background(), cfg)
	assert.Equal(t, StatusFail, res.Status)
}

func TestCheckDataDir(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, StatusPass, checkDataDir(context.Background(), cfg).Status)

	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "nested", "swarm.db")
	res := checkDataDir(context.Background(), cfg)
	assert.Equal(t, StatusPass, res.Status, res.Message)
	assert.DirExists(t, filepath.Dir(cfg.Store.SQLitePath))

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.Store.SQLitePath = filepath.Join(blocker, "swarm.db")
	assert.Equal(t, StatusFail, checkDataDir(context.Background(), cfg).Status)
}

func TestCheckWorkflow(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, StatusPass, checkWorkflow(context.Background(), cfg).Status)

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	cfg.Workflow.Endpoint = server.URL + "/run"
	res := checkWorkflow(context.Background(), cfg)
	assert.Equal(t, StatusPass, res.Status, res.Message)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	cfg.Workflow.Endpoint = "http://" + addr + "/run"
	res = checkWorkflow(context.Background(), cfg)
	assert.Equal(t, StatusFail, res.Status)
	assert.NotEmpty(t, res.Fix)
}

func TestCheckSchedules(t *testing.T) {
	cfg := config.Defaults()
	res := checkSchedules(context.Background(), cfg)
	assert.Equal(t, StatusPass, res.Status)
	assert.Contains(t, res.Message, "reconcile=1m")

	cfg.Scheduler = config.SchedulerConfig{}
	assert.Equal(t, StatusWarn, checkSchedules(context.Background(), cfg).Status)

	cfg.Scheduler.Sweep = "every so often"
	assert.Equal(t, StatusFail, checkSchedules(context.Background(), cfg).Status)
}

func TestRunChecksAndRender(t *testing.T) {
	checks := []Check{
		{Name: "ok", Fn: func(context.Context, *config.Config) CheckResult { return CheckResult{Status: StatusPass, Message: "fine"} }},
		{Name: "meh", Fn: func(context.Context, *config.Config) CheckResult { return CheckResult{Status: StatusWarn, Message: "hmm"} }},
		{Name: "bad", Fn: func(context.Context, *config.Config) CheckResult {
			return CheckResult{Status: StatusFail, Message: errors.New("broken").Error(), Fix: "repair it"}
		}},
	}
	results := runChecks(context.Background(), checks, nil)
	require.Len(t, results, 3)
	assert.Equal(t, "bad", results[2].Name)
	assert.Equal(t, 1, countStatus(results, StatusFail))

	out := renderChecks(results, newStyles())
	assert.Contains(t, out, "[PASS] ok: fine")
	assert.Contains(t, out, "[WARN] meh: hmm")
	assert.Contains(t, out, "[FAIL] bad: broken")
	assert.Contains(t, out, "Fix: repair it")
	assert.Contains(t, out, "Results: 1 passed, 1 warnings, 1 failed")
}

func TestDoctorCommand(t *testing.T) {
	cfg := writeSQLiteConfig(t)
	out, err := runCLI(t, cfg, "doctor")
	require.NoError(t, err, out)
	assert.Contains(t, out, "sqlite backend reachable")
}
