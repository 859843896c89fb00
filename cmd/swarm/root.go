package main

import (
	"github.com/spf13/cobra"

	"agent-swarm/internal/infra/config"
)

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "swarm",
		Short:         "Operate an agent swarm: provision, assign, process",
		Long:          "swarm provisions tiered agents, assigns tasks to them by complexity, runs tasks through the bounded session cache, and keeps the keyed store tidy in the background.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", config.DefaultPath, "path to the swarm config file")

	root.AddCommand(
		newAgentsCmd(c),
		newCreateCmd(c),
		newStatusCmd(c),
		newRemoveCmd(c),
		newAssignCmd(c),
		newProcessCmd(c),
		newEstimateCmd(c),
		newJanitorCmd(c),
		newDoctorCmd(c),
		newConfigCmd(),
	)
	return root
}
