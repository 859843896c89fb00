// Package workflow provides the downstream executors that run a task's
// actual work once the session cache has opened a session for it.
package workflow

import (
	"context"
	"log/slog"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/infra/config"
	"agent-swarm/internal/infra/logger"
)

// StatusCompleted is the status reported for a finished task.
const StatusCompleted = "completed"

// LocalExecutor completes every task in-process.
type LocalExecutor struct {
	logger *slog.Logger
}

var _ domain.WorkflowExecutor = (*LocalExecutor)(nil)

// NewLocalExecutor creates a LocalExecutor.
func NewLocalExecutor(log *slog.Logger) *LocalExecutor {
	return &LocalExecutor{logger: logger.Component(log, "workflow")}
}

// Execute reports the task as processed. It only fails when ctx is done.
func (e *LocalExecutor) Execute(ctx context.Context, task domain.Task, sessionID string) (domain.WorkflowResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkflowResult{}, err
	}
	e.logger.Debug("task processed locally", "task_id", task.ID, "session_id", sessionID)
	return domain.WorkflowResult{Status: StatusCompleted, Result: "Processed " + task.Title}, nil
}

// New returns an HTTPExecutor when cfg names an endpoint, and a
// LocalExecutor otherwise.
func New(cfg config.WorkflowConfig, log *slog.Logger) domain.WorkflowExecutor {
	if cfg.Endpoint == "" {
		return NewLocalExecutor(log)
	}
	return NewHTTPExecutor(cfg, nil, log)
}
