package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"agent-swarm/internal/infra/config"
	"agent-swarm/internal/usecase/scheduling"
)

func newJanitorCmd(c *cli) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Run background maintenance until interrupted",
		Long:  "janitor refreshes the agent registry from the store, untracks sessions whose keys have expired, and sweeps expired keys, on the schedules in the scheduler config section.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			s := newMaintenanceScheduler(a)
			out := cmd.OutOrStdout()

			if once {
				var errs []error
				for _, action := range maintenanceActions {
					if err := s.RunNow(cmd.Context(), action); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", action, err))
					}
				}
				_, _ = fmt.Fprintf(out, "maintenance pass done: %d agents, %d sessions tracked\n", a.registry.Len(), a.cache.Tracked())
				return errors.Join(errs...)
			}

			for _, t := range maintenanceTasks(a.cfg.Scheduler) {
				if err := s.AddTask(t); err != nil {
					return err
				}
			}
			if err := s.Start(cmd.Context()); err != nil {
				return err
			}
			for _, e := range s.Entries() {
				_, _ = fmt.Fprintf(out, "%-10s %-20s next %s\n", e.Name, e.Schedule, e.Next.Format("15:04:05"))
			}

			<-cmd.Context().Done()
			a.logger.Info("janitor stopping")
			return s.Stop()
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run every maintenance action once and exit")
	return cmd
}

var maintenanceActions = []scheduling.ScheduledAction{
	scheduling.ActionRegistryRefresh,
	scheduling.ActionSessionReconcile,
	scheduling.ActionStoreSweep,
}

func newMaintenanceScheduler(a *app) *scheduling.Scheduler {
	s := scheduling.NewScheduler(0, a.logger)
	s.RegisterAction(scheduling.ActionRegistryRefresh, func(ctx context.Context) error {
		_, err := a.registry.Refresh(ctx)
		return err
	})
	s.RegisterAction(scheduling.ActionSessionReconcile, func(ctx context.Context) error {
		_, err := a.cache.Reconcile(ctx)
		return err
	})
	s.RegisterAction(scheduling.ActionStoreSweep, func(ctx context.Context) error {
		n, err := a.store.Sweep(ctx)
		if n > 0 {
			a.logger.Info("expired keys swept", "count", n)
		}
		return err
	})
	return s
}

// maintenanceTasks skips actions whose schedule is empty.
func maintenanceTasks(cfg config.SchedulerConfig) []scheduling.ScheduledTask {
	var tasks []scheduling.ScheduledTask
	for _, t := range []scheduling.ScheduledTask{
		{Name: "refresh", Schedule: cfg.Refresh, Action: scheduling.ActionRegistryRefresh},
		{Name: "reconcile", Schedule: cfg.Reconcile, Action: scheduling.ActionSessionReconcile},
		{Name: "sweep", Schedule: cfg.Sweep, Action: scheduling.ActionStoreSweep},
	} {
		if t.Schedule != "" {
			tasks = append(tasks, t)
		}
	}
	return tasks
}
