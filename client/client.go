// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the calling side of the task runtime: unary JSON-RPC
// task operations plus a long-lived event stream with reconnect, heartbeat
// monitoring, and resume.
package client

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
	"github.com/heyubaidullah/floodguard-sub000/server/event"
)

// Client talks to a task runtime server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// options holds configuration collected from Options.
type options struct {
	httpClient *http.Client
	retry      *RetryConfig
	logger     *slog.Logger
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*options) error

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) error {
		if httpClient == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		o.httpClient = httpClient
		return nil
	}
}

// WithRetryConfig sets the retry configuration for unary calls and stream
// reconnects.
func WithRetryConfig(config *RetryConfig) Option {
	return func(o *options) error {
		if config == nil {
			return fmt.Errorf("retry config cannot be nil")
		}
		o.retry = config
		return nil
	}
}

// WithTimeout sets the per-request timeout for unary calls.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		o.timeout = timeout
		return nil
	}
}

// WithLogger sets the [*slog.Logger] for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// New creates a Client for the runtime at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	o := &options{
		retry:   DefaultRetryConfig(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: o.httpClient,
		retry:      o.retry,
		logger:     o.logger,
	}, nil
}

// Close marks the client closed. In-flight requests are not interrupted.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// CreateTask creates a task from the spec.
func (c *Client) CreateTask(ctx context.Context, spec floodguard.TaskSpec) (*floodguard.Task, error) {
	var task floodguard.Task
	if err := c.call(ctx, floodguard.MethodTasksCreate, &floodguard.CreateTaskParams{Spec: spec}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask fetches a task by ID.
func (c *Client) GetTask(ctx context.Context, taskID string) (*floodguard.Task, error) {
	var task floodguard.Task
	if err := c.call(ctx, floodguard.MethodTasksGet, &floodguard.TaskIDParams{ID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTaskStatus transitions a task to the given state.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID string, status floodguard.TaskState, reason string) (*floodguard.Task, error) {
	var task floodguard.Task
	params := &floodguard.UpdateTaskStatusParams{ID: taskID, Status: status, Reason: reason}
	if err := c.call(ctx, floodguard.MethodTasksUpdateStatus, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask cancels a task.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*floodguard.Task, error) {
	var task floodguard.Task
	if err := c.call(ctx, floodguard.MethodTasksCancel, &floodguard.TaskIDParams{ID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// AddArtifact attaches an artifact to a task.
func (c *Client) AddArtifact(ctx context.Context, taskID string, artifact *floodguard.Artifact) (*floodguard.Task, error) {
	var task floodguard.Task
	params := &floodguard.AddArtifactParams{ID: taskID, Artifact: artifact}
	if err := c.call(ctx, floodguard.MethodTasksArtifactsAdd, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetArtifacts lists a task's artifacts.
func (c *Client) GetArtifacts(ctx context.Context, taskID string) ([]*floodguard.Artifact, error) {
	var result floodguard.ArtifactsResult
	if err := c.call(ctx, floodguard.MethodTasksArtifactsGet, &floodguard.TaskIDParams{ID: taskID}, &result); err != nil {
		return nil, err
	}
	return result.Artifacts, nil
}

// SetPushConfig installs the push notification configuration for a task.
func (c *Client) SetPushConfig(ctx context.Context, taskID string, config *floodguard.PushNotificationConfig) error {
	params := &floodguard.SetPushConfigParams{ID: taskID, Config: config}
	return c.call(ctx, floodguard.MethodTasksPushConfigSet, params, nil)
}

// GetPushConfig fetches the push notification configuration for a task.
func (c *Client) GetPushConfig(ctx context.Context, taskID string) (*floodguard.PushNotificationConfig, error) {
	var config floodguard.PushNotificationConfig
	if err := c.call(ctx, floodguard.MethodTasksPushConfigGet, &floodguard.TaskIDParams{ID: taskID}, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// GetStats fetches the queue statistics for a task.
func (c *Client) GetStats(ctx context.Context, taskID string) (event.QueueStats, error) {
	var stats event.QueueStats
	if err := c.call(ctx, floodguard.MethodTasksStatsGet, &floodguard.TaskIDParams{ID: taskID}, &stats); err != nil {
		return event.QueueStats{}, err
	}
	return stats, nil
}

// GetAgentCard fetches the runtime's agent card from the well-known path.
func (c *Client) GetAgentCard(ctx context.Context) (*floodguard.AgentCard, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/.well-known/agent.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Operation: "agent card fetch", URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card fetch returned status %d", resp.StatusCode)
	}

	var card floodguard.AgentCard
	if err := json.UnmarshalRead(resp.Body, &card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	return &card, nil
}

// call performs one JSON-RPC request, retrying recoverable transport
// failures, and unmarshals the result into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	req, err := floodguard.NewJSONRPCRequest(uuid.NewString(), method, params)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var result jsontext.Value
	err = withRetry(ctx, c.retry, method, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return &ConnectionError{Operation: method, URL: c.baseURL, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return &ConnectionError{
				Operation: method,
				URL:       c.baseURL,
				Err:       fmt.Errorf("status %d", resp.StatusCode),
			}
		}

		var rpcResp struct {
			Result jsontext.Value           `json:"result"`
			Error  *floodguard.JSONRPCError `json:"error"`
		}
		if err := json.UnmarshalRead(resp.Body, &rpcResp); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if rpcResp.Error != nil {
			return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
		}
		result = rpcResp.Result
		return nil
	})
	if err != nil {
		return err
	}

	if out != nil && len(result) > 0 {
		if err := json.Unmarshal(result, out); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}
