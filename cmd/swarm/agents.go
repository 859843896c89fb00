package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"agent-swarm/internal/domain"
)

func newAgentsCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agents in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			agents := a.registry.List()
			if asJSON {
				return writeJSON(cmd, agents)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderAgents(agents, newStyles()))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print agents as JSON")
	return cmd
}

func newCreateCmd(c *cli) *cobra.Command {
	var tierFlag string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a new idle agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tier, err := domain.ParseTier(tierFlag)
			if err != nil {
				return err
			}
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			agent, err := a.registry.Create(cmd.Context(), tier)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderAgent("Created agent", agent, newStyles()))
			return err
		},
	}
	cmd.Flags().StringVar(&tierFlag, "tier", string(domain.TierBasic), "agent tier: basic, intermediate or advanced")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <agent-id> <idle|active|offline>",
		Short: "Set an agent's scheduling status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseAgentStatus(args[1])
			if err != nil {
				return err
			}
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			agent, err := a.registry.SetStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", agent.Name, agent.Status)
			return err
		},
	}
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <agent-id>",
		Short: "Delete an agent record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			if err := a.registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed agent %s\n", args[0])
			return err
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
