package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/infra/config"
	"agent-swarm/internal/infra/logger"
	"agent-swarm/internal/infra/tracer"
)

// maxResponseBody caps how much of a workflow response is read.
const maxResponseBody = 1 << 20

// DefaultTimeout applies when the config leaves workflow.timeout unset.
const DefaultTimeout = 30 * time.Second

type executeRequest struct {
	Task      domain.Task `json:"task"`
	SessionID string      `json:"session_id"`
}

// HTTPExecutor posts tasks to a remote workflow service.
type HTTPExecutor struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

var _ domain.WorkflowExecutor = (*HTTPExecutor)(nil)

// NewHTTPExecutor creates an executor for cfg.Endpoint. A nil client gets a
// fresh one with cfg.Timeout.
func NewHTTPExecutor(cfg config.WorkflowConfig, client *http.Client, log *slog.Logger) *HTTPExecutor {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPExecutor{
		endpoint: cfg.Endpoint,
		client:   client,
		logger:   logger.Component(log, "workflow"),
	}
}

// Execute POSTs {task, session_id} and decodes {status, result}. Transport
// errors, non-2xx responses and undecodable bodies are returned as errors.
func (e *HTTPExecutor) Execute(ctx context.Context, task domain.Task, sessionID string) (domain.WorkflowResult, error) {
	ctx, span := tracer.StartSpan(ctx, "workflow.Execute")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("task_id", task.ID), tracer.StringAttr("session_id", sessionID))

	res, err := e.do(ctx, task, sessionID)
	if err != nil {
		tracer.RecordError(span, err)
		e.logger.Warn("workflow request failed", "task_id", task.ID, "session_id", sessionID, "error", err)
		return domain.WorkflowResult{}, err
	}
	span.SetAttributes(tracer.StringAttr("status", res.Status))
	tracer.SetOK(span)
	return res, nil
}

func (e *HTTPExecutor) do(ctx context.Context, task domain.Task, sessionID string) (domain.WorkflowResult, error) {
	body, err := json.Marshal(executeRequest{Task: task, SessionID: sessionID})
	if err != nil {
		return domain.WorkflowResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.WorkflowResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.WorkflowResult{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return domain.WorkflowResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.WorkflowResult{}, fmt.Errorf("workflow endpoint returned %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	var res domain.WorkflowResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return domain.WorkflowResult{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
