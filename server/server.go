// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the task runtime over HTTP: a JSON-RPC endpoint
// for task operations, a Server-Sent-Events stream per task, push
// notification delivery, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-json-experiment/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
	"github.com/heyubaidullah/floodguard-sub000/server/event"
	"github.com/heyubaidullah/floodguard-sub000/server/task"
)

// Server serves the task runtime over HTTP.
type Server struct {
	tasks    *task.TaskManager
	queues   event.QueueManager
	bridge   *StreamBridge
	notifier *PushNotifier
	keys     *KeyManager
	card     *floodguard.AgentCard
	registry *prometheus.Registry
	logger   *slog.Logger
	mux      *http.ServeMux
}

// ServerConfig holds configuration for a Server.
type ServerConfig struct {
	// TaskManager executes task operations. Required.
	TaskManager *task.TaskManager

	// Queues is the queue registry shared with the task manager. Required.
	Queues event.QueueManager

	// AgentCard describes this runtime to peers. Required.
	AgentCard *floodguard.AgentCard

	// Notifier enables the tasks/pushConfig methods. Optional.
	Notifier *PushNotifier

	// Keys, when set, is served at the JWKS well-known path so push
	// receivers can verify signed deliveries. Optional.
	Keys *KeyManager

	// HeartbeatInterval overrides the SSE heartbeat cadence. Defaults to
	// DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Option configures a Server beyond its required dependencies.
type Option func(*Server)

// WithLogger sets the [*slog.Logger] for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsRegistry sets the Prometheus registry backing /metrics.
func WithMetricsRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// NewServer creates a Server from the given config.
func NewServer(config ServerConfig, opts ...Option) (*Server, error) {
	if config.TaskManager == nil {
		return nil, fmt.Errorf("task manager is required")
	}
	if config.Queues == nil {
		return nil, fmt.Errorf("queue manager is required")
	}
	if config.AgentCard == nil {
		return nil, fmt.Errorf("agent card is required")
	}
	if err := config.AgentCard.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent card: %w", err)
	}

	s := &Server{
		tasks:    config.TaskManager,
		queues:   config.Queues,
		notifier: config.Notifier,
		keys:     config.Keys,
		card:     config.AgentCard,
		logger:   config.Logger,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	bridge, err := NewStreamBridge(StreamBridgeConfig{
		Queues:            config.Queues,
		HeartbeatInterval: config.HeartbeatInterval,
		Logger:            s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.bridge = bridge

	if err := s.registry.Register(NewQueueMetricsCollector(config.Queues)); err != nil {
		return nil, fmt.Errorf("failed to register queue metrics: %w", err)
	}

	s.registerHandlers()
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /.well-known/agent.json", s.handleAgentCard)
	s.mux.HandleFunc("POST /", s.handleRPCRequest)
	s.mux.HandleFunc("GET /tasks/{id}/events", s.handleTaskEvents)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	if s.keys != nil {
		s.mux.HandleFunc("GET /.well-known/jwks.json", s.keys.CreateJWKSHandler())
	}
}

// handleAgentCard serves the agent card.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(s.card); err != nil {
		http.Error(w, "Failed to encode agent card", http.StatusInternalServerError)
	}
}

// handleTaskEvents serves a task's event stream over SSE.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		http.Error(w, "task ID is required", http.StatusBadRequest)
		return
	}
	if _, err := s.tasks.GetTask(r.Context(), taskID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := s.bridge.ServeTask(w, r, taskID); err != nil {
		s.logger.WarnContext(r.Context(), "event stream ended with error",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
	}
}

// handleRPCRequest dispatches a JSON-RPC request to the method handlers.
func (s *Server) handleRPCRequest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req floodguard.JSONRPCRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		s.sendResponse(w, &floodguard.JSONRPCResponse{
			JSONRPCMessage: floodguard.NewJSONRPCMessage(nil),
			Error:          &floodguard.JSONRPCError{Code: floodguard.ErrorCodeJSONParse, Message: "failed to parse request"},
		})
		return
	}

	ctx := r.Context()

	switch req.Method {
	case floodguard.MethodTasksCreate:
		var params floodguard.CreateTaskParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			return s.tasks.CreateTask(ctx, params.Spec)
		})

	case floodguard.MethodTasksGet:
		var params floodguard.TaskIDParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			return s.tasks.GetTask(ctx, params.ID)
		})

	case floodguard.MethodTasksUpdateStatus:
		var params floodguard.UpdateTaskStatusParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			return s.tasks.UpdateTaskStatus(ctx, params.ID, params.Status, params.Reason)
		})

	case floodguard.MethodTasksCancel:
		var params floodguard.TaskIDParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			return s.tasks.CancelTask(ctx, params.ID, cancelReason(params.Metadata))
		})

	case floodguard.MethodTasksArtifactsAdd:
		var params floodguard.AddArtifactParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			return s.tasks.AddArtifact(ctx, params.ID, params.Artifact)
		})

	case floodguard.MethodTasksArtifactsGet:
		var params floodguard.TaskIDParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			artifacts, err := s.tasks.GetArtifacts(ctx, params.ID)
			if err != nil {
				return nil, err
			}
			return &floodguard.ArtifactsResult{ID: params.ID, Artifacts: artifacts}, nil
		})

	case floodguard.MethodTasksResubscribe:
		var params floodguard.ResubscribeParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			return s.resubscribe(params)
		})

	case floodguard.MethodTasksPushConfigSet:
		var params floodguard.SetPushConfigParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			if s.notifier == nil {
				return nil, fmt.Errorf("push notifications are not enabled")
			}
			if err := s.notifier.SetConfig(ctx, params.ID, params.Config); err != nil {
				return nil, err
			}
			return params.Config, nil
		})

	case floodguard.MethodTasksPushConfigGet:
		var params floodguard.TaskIDParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			if s.notifier == nil {
				return nil, fmt.Errorf("push notifications are not enabled")
			}
			return s.notifier.GetConfig(ctx, params.ID)
		})

	case floodguard.MethodTasksStatsGet:
		var params floodguard.TaskIDParams
		s.invoke(ctx, w, req, &params, func() (any, error) {
			stats, err := s.tasks.GetStats(params.ID)
			if err != nil {
				return nil, err
			}
			return stats, nil
		})

	default:
		s.sendResponse(w, &floodguard.JSONRPCResponse{
			JSONRPCMessage: req.JSONRPCMessage,
			Error:          &floodguard.JSONRPCError{Code: floodguard.ErrorCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)},
		})
	}
}

// validatable is implemented by every RPC params type.
type validatable interface {
	Validate() error
}

// invoke decodes and validates params, runs the handler, and writes the
// JSON-RPC response.
func (s *Server) invoke(ctx context.Context, w http.ResponseWriter, req floodguard.JSONRPCRequest, params validatable, fn func() (any, error)) {
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, params); err != nil {
			s.sendResponse(w, &floodguard.JSONRPCResponse{
				JSONRPCMessage: req.JSONRPCMessage,
				Error:          &floodguard.JSONRPCError{Code: floodguard.ErrorCodeInvalidParams, Message: err.Error()},
			})
			return
		}
	}
	if err := params.Validate(); err != nil {
		s.sendResponse(w, &floodguard.JSONRPCResponse{
			JSONRPCMessage: req.JSONRPCMessage,
			Error:          &floodguard.JSONRPCError{Code: floodguard.ErrorCodeInvalidParams, Message: err.Error()},
		})
		return
	}

	result, err := fn()
	if err != nil {
		s.logger.WarnContext(ctx, "rpc method failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
		s.sendResponse(w, &floodguard.JSONRPCResponse{
			JSONRPCMessage: req.JSONRPCMessage,
			Error:          floodguard.ToJSONRPCError(err),
		})
		return
	}
	s.sendResponse(w, &floodguard.JSONRPCResponse{
		JSONRPCMessage: req.JSONRPCMessage,
		Result:         result,
	})
}

func (s *Server) sendResponse(w http.ResponseWriter, resp *floodguard.JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// resubscribeEntry pairs a replayed event with its queue sequence number.
type resubscribeEntry struct {
	Seq   uint64      `json:"seq"`
	Type  string      `json:"type"`
	Event event.Event `json:"event"`
}

// resubscribeResult is the result of the tasks/resubscribe method.
type resubscribeResult struct {
	ID      string             `json:"id"`
	LastSeq uint64             `json:"lastSeq"`
	Events  []resubscribeEntry `json:"events"`
}

// resubscribe replays the retained history after the given sequence number.
// Live delivery is the SSE endpoint's job; this method only fills gaps.
func (s *Server) resubscribe(params floodguard.ResubscribeParams) (*resubscribeResult, error) {
	queue, ok := s.queues.Get(params.ID)
	if !ok {
		return nil, floodguard.NewNoQueueError(params.ID)
	}

	result := &resubscribeResult{ID: params.ID, Events: []resubscribeEntry{}}
	unsubscribe, err := queue.SubscribeSince(params.AfterSeq, func(seq uint64, ev event.Event) {
		result.Events = append(result.Events, resubscribeEntry{Seq: seq, Type: ev.EventType(), Event: ev})
	})
	if err != nil {
		return nil, err
	}
	unsubscribe()

	result.LastSeq = queue.LastSeq()
	return result, nil
}

func cancelReason(metadata map[string]any) string {
	if reason, ok := metadata["reason"].(string); ok {
		return reason
	}
	return ""
}
