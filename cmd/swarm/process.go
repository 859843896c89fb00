package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agent-swarm/internal/domain"
)

func newProcessCmd(c *cli) *cobra.Command {
	var (
		task       domain.Task
		rawContext string
		cleanup    bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run a task through the session cache and workflow executor",
		Long:  "process opens a session, persists the task context when it fits the configured size limit, and runs the downstream workflow. Oversized contexts are kept in memory only.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if task.Title == "" {
				return fmt.Errorf("--title is required")
			}
			if task.ID == "" {
				task.ID = uuid.NewString()
			}
			var taskContext any
			if err := json.Unmarshal([]byte(rawContext), &taskContext); err != nil {
				return fmt.Errorf("--context must be valid JSON: %w", err)
			}

			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			res, err := a.cache.Process(cmd.Context(), task, taskContext)
			if err != nil {
				return err
			}
			if cleanup {
				if err := a.cache.Cleanup(cmd.Context(), res.SessionID); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, res)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderProcess(res, a.cfg.Sessions.MaxContextBytes, newStyles()))
			return err
		},
	}
	cmd.Flags().StringVar(&task.Title, "title", "", "task title")
	cmd.Flags().StringVar(&task.ID, "id", "", "task id (default: random UUID)")
	cmd.Flags().StringVar(&rawContext, "context", "{}", "task context as JSON")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete the session once the workflow returns")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
