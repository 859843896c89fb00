package domain

import (
	"context"
	"time"
)

// Session is a tracked session-cache entry.
type Session struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	SizeBytes int       `json:"size_bytes"`
	Persisted bool      `json:"persisted"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WorkflowResult is what the downstream executor returns for a task.
type WorkflowResult struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// WorkflowExecutor runs the actual task work for a session.
type WorkflowExecutor interface {
	Execute(ctx context.Context, task Task, sessionID string) (WorkflowResult, error)
}
