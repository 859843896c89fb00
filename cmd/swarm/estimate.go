package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/usecase/multiagent"
)

func newEstimateCmd(c *cli) *cobra.Command {
	var (
		tasks  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate swarm load from the agent and task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tasks < 0 {
				return fmt.Errorf("--tasks must not be negative")
			}
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			agents := a.registry.List()
			est := multiagent.Estimate(agents, make([]domain.Task, tasks))
			if asJSON {
				return writeJSON(cmd, est)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderEstimate(est, len(agents), tasks, newStyles()))
			return err
		},
	}
	cmd.Flags().IntVar(&tasks, "tasks", 0, "number of tasks in flight")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the estimate as JSON")
	return cmd
}
