package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"agent-swarm/internal/adapter/observer"
	"agent-swarm/internal/adapter/store"
	"agent-swarm/internal/adapter/workflow"
	"agent-swarm/internal/infra/config"
	"agent-swarm/internal/infra/logger"
	"agent-swarm/internal/infra/tracer"
	"agent-swarm/internal/usecase/eventbus"
	"agent-swarm/internal/usecase/multiagent"
	"agent-swarm/internal/usecase/sessioncache"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Handle
	bus      *eventbus.Bus
	recorder *observer.Recorder
	registry *multiagent.Registry
	assigner *multiagent.Assigner
	cache    *sessioncache.Cache

	closers []func(context.Context) error
}

// cli holds global flags and lazily wires the app on first use, so commands
// like doctor can run against a broken config.
type cli struct {
	cfgPath string
	app     *app
}

func (c *cli) load(cmd *cobra.Command) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := wireApp(cmd.Context(), c.cfgPath, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.app.close(ctx)
	c.app = nil
	return err
}

func wireApp(ctx context.Context, cfgPath string, traceOut io.Writer) (_ *app, err error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.logger = log
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer, traceOut)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	h, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	a.store = h
	a.closers = append(a.closers, func(context.Context) error { return h.Close() })

	a.bus = eventbus.New(log)
	a.closers = append(a.closers, func(context.Context) error { a.bus.Close(); return nil })
	a.recorder = observer.NewRecorder(a.bus, log)

	a.registry = multiagent.NewRegistry(h, multiagent.RandomPerformance{}, multiagent.RegistryOptions{
		AgentTTL: cfg.Registry.AgentTTL,
		Recorder: a.recorder,
	}, log)
	if _, err := a.registry.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	a.assigner = multiagent.NewAssigner(a.registry, a.recorder, log)

	a.cache = sessioncache.NewCache(h, workflow.New(cfg.Workflow, log), sessioncache.Config{
		MaxSessions:     cfg.Sessions.MaxSessions,
		MaxContextBytes: cfg.Sessions.MaxContextBytes,
		TTL:             cfg.Sessions.TTL,
		KeyPrefix:       cfg.Sessions.KeyPrefix,
	}, a.recorder, log)
	if _, err := a.cache.Load(ctx); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	log.Debug("swarm wired", "config", cfgPath, "store", h.Backend, "agents", a.registry.Len())
	return a, nil
}

// close runs closers in reverse order of registration.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
