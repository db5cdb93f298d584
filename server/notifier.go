// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
	"github.com/heyubaidullah/floodguard-sub000/breaker"
	"github.com/heyubaidullah/floodguard-sub000/internal/pool"
	"github.com/heyubaidullah/floodguard-sub000/server/event"
	"github.com/heyubaidullah/floodguard-sub000/server/task"
)

const (
	// DefaultNotifyTimeout bounds a single push delivery attempt.
	DefaultNotifyTimeout = 10 * time.Second

	// DefaultTokenValidity is the lifetime of signed delivery tokens.
	DefaultTokenValidity = 5 * time.Minute
)

// pushDelivery is the body POSTed to a push notification endpoint.
type pushDelivery struct {
	TaskID    string      `json:"taskId"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   event.Event `json:"payload"`
}

// PushNotifier delivers task lifecycle events to external HTTP endpoints.
// Each watched task gets a tap on its event queue and a delivery goroutine;
// the task's config decides which event types are posted and how the
// request is authenticated. Deliveries are fire-and-forget: a failed POST
// is logged and counted against the endpoint's circuit breaker, never
// retried. An open breaker drops deliveries for that endpoint until it
// recovers.
type PushNotifier struct {
	configs       task.PushNotificationConfigStore
	queues        event.QueueManager
	client        *http.Client
	keys          *KeyManager
	keyID         string
	issuer        string
	tokenValidity time.Duration
	breakerConfig breaker.Config
	logger        *slog.Logger

	mu       sync.Mutex
	breakers map[string]*breaker.CircuitBreaker
	watches  map[string]func()
}

// PushNotifierConfig holds configuration for a PushNotifier.
type PushNotifierConfig struct {
	// Configs resolves per-task push configuration. Required.
	Configs task.PushNotificationConfigStore

	// Queues is the process-wide queue registry. Required.
	Queues event.QueueManager

	// HTTPClient overrides the delivery client. Defaults to a client with
	// DefaultNotifyTimeout.
	HTTPClient *http.Client

	// Keys, KeyID and Issuer enable signed delivery tokens for configs
	// without a static auth token. Optional.
	Keys   *KeyManager
	KeyID  string
	Issuer string

	// TokenValidity overrides the signed token lifetime. Defaults to
	// DefaultTokenValidity.
	TokenValidity time.Duration

	// Breaker configures the per-endpoint circuit breakers. Zero fields
	// take the breaker package defaults.
	Breaker breaker.Config

	// Logger receives delivery logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewPushNotifier creates a PushNotifier from the given config.
func NewPushNotifier(config PushNotifierConfig) (*PushNotifier, error) {
	if config.Configs == nil {
		return nil, fmt.Errorf("push notification config store cannot be nil")
	}
	if config.Queues == nil {
		return nil, fmt.Errorf("queue manager cannot be nil")
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultNotifyTimeout}
	}
	if config.TokenValidity <= 0 {
		config.TokenValidity = DefaultTokenValidity
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PushNotifier{
		configs:       config.Configs,
		queues:        config.Queues,
		client:        client,
		keys:          config.Keys,
		keyID:         config.KeyID,
		issuer:        config.Issuer,
		tokenValidity: config.TokenValidity,
		breakerConfig: config.Breaker,
		logger:        logger,
		breakers:      make(map[string]*breaker.CircuitBreaker),
		watches:       make(map[string]func()),
	}, nil
}

// SetConfig validates and stores the push configuration for a task and
// starts watching the task's queue when the config is enabled. A disabled
// config stops the watch.
func (n *PushNotifier) SetConfig(ctx context.Context, taskID string, config *floodguard.PushNotificationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := n.configs.SaveConfig(ctx, taskID, config); err != nil {
		return err
	}

	if config.Enabled {
		return n.Watch(taskID)
	}
	n.StopWatch(taskID)
	return nil
}

// GetConfig returns the push configuration for a task.
func (n *PushNotifier) GetConfig(ctx context.Context, taskID string) (*floodguard.PushNotificationConfig, error) {
	return n.configs.GetConfig(ctx, taskID)
}

// Watch taps the task's event queue and delivers matching events until the
// queue closes or StopWatch is called. Watching a task twice is a no-op.
func (n *PushNotifier) Watch(taskID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.watches[taskID]; ok {
		return nil
	}

	queue, err := n.queues.CreateOrGet(taskID)
	if err != nil {
		return err
	}
	tap, err := queue.Tap()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.watches[taskID] = func() {
		cancel()
		tap.Close()
	}

	go n.deliverLoop(ctx, taskID, tap)
	return nil
}

// StopWatch stops delivery for a task. Unwatched tasks are ignored.
func (n *PushNotifier) StopWatch(taskID string) {
	n.mu.Lock()
	stop, ok := n.watches[taskID]
	if ok {
		delete(n.watches, taskID)
	}
	n.mu.Unlock()

	if ok {
		stop()
	}
}

// Close stops all watches.
func (n *PushNotifier) Close() {
	n.mu.Lock()
	stops := make([]func(), 0, len(n.watches))
	for taskID, stop := range n.watches {
		stops = append(stops, stop)
		delete(n.watches, taskID)
	}
	n.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

func (n *PushNotifier) deliverLoop(ctx context.Context, taskID string, tap *event.EventQueue) {
	defer tap.Close()

	for {
		ev, err := tap.DequeueEvent(ctx, false)
		if err != nil {
			if errors.Is(err, event.ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return
			}
			n.logger.WarnContext(ctx, "push delivery loop stopped",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()))
			return
		}

		if err := n.deliver(ctx, taskID, ev); err != nil {
			// Fire-and-forget: the breaker already recorded the failure.
			n.logger.WarnContext(ctx, "push delivery failed",
				slog.String("task_id", taskID),
				slog.String("event_type", ev.EventType()),
				slog.String("error", err.Error()))
		}

		if event.IsFinalEvent(ev) {
			n.StopWatch(taskID)
			return
		}
	}
}

// deliver posts one event. The config is re-read per delivery so changes
// made while a task runs take effect immediately.
func (n *PushNotifier) deliver(ctx context.Context, taskID string, ev event.Event) error {
	config, err := n.configs.GetConfig(ctx, taskID)
	if err != nil {
		if errors.Is(err, floodguard.TaskNotFoundError{}) {
			// No config for this task means push is simply not set up.
			return nil
		}
		return err
	}
	if !config.WantsEvent(ev.EventType()) {
		return nil
	}

	cb := n.breakerFor(config.Endpoint)
	return cb.Execute(ctx, func(ctx context.Context) error {
		return n.post(ctx, taskID, config, ev)
	})
}

func (n *PushNotifier) post(ctx context.Context, taskID string, config *floodguard.PushNotificationConfig, ev event.Event) error {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	delivery := pushDelivery{
		TaskID:    taskID,
		Event:     ev.EventType(),
		Timestamp: time.Now().UTC(),
		Payload:   ev,
	}
	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(delivery); err != nil {
		return fmt.Errorf("failed to marshal push delivery: %w", err)
	}
	body := buf.Bytes()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch {
	case config.AuthToken != "":
		req.Header.Set("Authorization", "Bearer "+config.AuthToken)
	case n.keys != nil && n.keyID != "":
		token, err := n.keys.SignDeliveryToken(n.keyID, n.issuer, config.Endpoint, body, n.tokenValidity)
		if err != nil {
			return fmt.Errorf("failed to sign delivery token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push endpoint returned error status: %d", resp.StatusCode)
	}
	return nil
}

func (n *PushNotifier) breakerFor(endpoint string) *breaker.CircuitBreaker {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cb, ok := n.breakers[endpoint]; ok {
		return cb
	}

	config := n.breakerConfig
	config.Name = endpoint
	cb, err := breaker.New(config)
	if err != nil {
		// Invalid overrides fall back to the defaults rather than
		// disabling protection.
		cb, _ = breaker.New(breaker.Config{Name: endpoint})
	}
	n.breakers[endpoint] = cb
	return cb
}

// BreakerSnapshots returns a point-in-time view of every endpoint breaker.
func (n *PushNotifier) BreakerSnapshots() []breaker.Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()

	snapshots := make([]breaker.Snapshot, 0, len(n.breakers))
	for _, cb := range n.breakers {
		snapshots = append(snapshots, cb.Snapshot())
	}
	return snapshots
}
