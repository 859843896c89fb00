package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agent-swarm/internal/domain"
)

func newAssignCmd(c *cli) *cobra.Command {
	var (
		task     domain.Task
		activate bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Score a task and assign it to the best idle agent",
		Long:  "assign scores the task's complexity, provisions a new agent when the swarm is empty or the task is complex, and picks the idle agent with the highest capability weight. Finding no idle agent is not an error.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if task.Title == "" {
				return fmt.Errorf("--title is required")
			}
			if task.ID == "" {
				task.ID = uuid.NewString()
			}
			task.Status = domain.TaskPending

			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			res, ok, err := a.assigner.AssignDetailed(cmd.Context(), task, a.registry.List())
			if err != nil {
				return err
			}
			if ok && activate {
				agent, err := a.registry.SetStatus(cmd.Context(), res.AgentID, domain.AgentActive)
				if err != nil {
					return err
				}
				res.Agent = agent
			}

			if asJSON {
				return writeJSON(cmd, assignOutput{
					TaskID:     task.ID,
					Assigned:   ok,
					AgentID:    res.AgentID,
					Complexity: res.Complexity,
					Created:    res.Created,
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderAssignment(task, res, ok, newStyles()))
			return err
		},
	}
	cmd.Flags().StringVar(&task.Title, "title", "", "task title")
	cmd.Flags().StringVar(&task.ID, "id", "", "task id (default: random UUID)")
	cmd.Flags().Float64Var(&task.Priority, "priority", 0, "task priority")
	cmd.Flags().StringSliceVar(&task.Dependencies, "deps", nil, "comma-separated ids of tasks this one depends on")
	cmd.Flags().BoolVar(&activate, "activate", false, "mark the assigned agent active")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the assignment as JSON")
	return cmd
}

type assignOutput struct {
	TaskID     string        `json:"task_id"`
	Assigned   bool          `json:"assigned"`
	AgentID    string        `json:"agent_id,omitempty"`
	Complexity float64       `json:"complexity"`
	Created    *domain.Agent `json:"created,omitempty"`
}

