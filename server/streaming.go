// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
	"github.com/heyubaidullah/floodguard-sub000/server/event"
)

const (
	// DefaultHeartbeatInterval is how often the bridge emits heartbeat
	// frames on an idle stream.
	DefaultHeartbeatInterval = 15 * time.Second

	// streamBufferSize is the per-connection buffer between the queue
	// subscription and the HTTP writer.
	streamBufferSize = 256
)

// EventTypeHeartbeat is the SSE event name for liveness frames. It is not a
// lifecycle event and never enters a queue's history.
const EventTypeHeartbeat = "heartbeat"

type streamFrame struct {
	seq   uint64
	event event.Event
}

// StreamBridge serves a task's event queue as a Server-Sent-Events stream.
// Frames carry the queue sequence number as the SSE event ID, so a client
// reconnecting with Last-Event-ID resumes exactly after the last frame it
// processed; history replay covers the gap. Idle connections receive
// periodic heartbeat frames that clients use to arm their silence
// detectors.
type StreamBridge struct {
	queues            event.QueueManager
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// StreamBridgeConfig holds configuration for a StreamBridge.
type StreamBridgeConfig struct {
	// Queues is the process-wide queue registry. Required.
	Queues event.QueueManager

	// HeartbeatInterval overrides the heartbeat cadence. Defaults to
	// DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// Logger receives stream lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewStreamBridge creates a StreamBridge from the given config.
func NewStreamBridge(config StreamBridgeConfig) (*StreamBridge, error) {
	if config.Queues == nil {
		return nil, fmt.Errorf("queue manager cannot be nil")
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StreamBridge{
		queues:            config.Queues,
		heartbeatInterval: config.HeartbeatInterval,
		logger:            logger,
	}, nil
}

// ServeTask streams the task's events to the client until a terminal
// lifecycle event, queue closure, or client disconnect. The Last-Event-ID
// request header selects the resume position; without it the entire
// retained history is replayed first.
func (b *StreamBridge) ServeTask(w http.ResponseWriter, r *http.Request, taskID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return fmt.Errorf("response writer does not support flushing")
	}

	queue, err := b.queues.CreateOrGet(taskID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return err
	}

	var afterSeq uint64
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		parsed, err := strconv.ParseUint(lastID, 10, 64)
		if err != nil {
			http.Error(w, "malformed Last-Event-ID", http.StatusBadRequest)
			return fmt.Errorf("malformed Last-Event-ID %q: %w", lastID, err)
		}
		afterSeq = parsed
	}

	// The subscription callback runs under the queue lock, so it only
	// pumps into a buffered channel; the HTTP writes happen here. A full
	// buffer drops the frame for this connection only; history retains it
	// and the client recovers it on resume.
	frames := make(chan streamFrame, streamBufferSize)
	unsubscribe, err := queue.SubscribeSince(afterSeq, func(seq uint64, ev event.Event) {
		select {
		case frames <- streamFrame{seq: seq, event: ev}:
		default:
			b.logger.Warn("stream buffer full, dropping frame",
				slog.String("task_id", taskID),
				slog.Uint64("seq", seq))
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return err
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // for buffering proxies
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	b.logger.InfoContext(r.Context(), "event stream opened",
		slog.String("task_id", taskID),
		slog.Uint64("after_seq", afterSeq))

	heartbeat := time.NewTicker(b.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil

		case <-queue.Done():
			// Drain frames buffered before the close.
			for {
				select {
				case frame := <-frames:
					if err := writeEventFrame(w, flusher, frame); err != nil {
						return err
					}
				default:
					return nil
				}
			}

		case <-heartbeat.C:
			if err := writeHeartbeatFrame(w, flusher); err != nil {
				return err
			}

		case frame := <-frames:
			if err := writeEventFrame(w, flusher, frame); err != nil {
				return err
			}
			if event.IsFinalEvent(frame.event) {
				b.logger.InfoContext(r.Context(), "event stream completed",
					slog.String("task_id", taskID),
					slog.String("final_event", frame.event.EventType()))
				return nil
			}
		}
	}
}

func writeEventFrame(w http.ResponseWriter, flusher http.Flusher, frame streamFrame) error {
	data, err := sonic.ConfigDefault.Marshal(frame.event)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frame.event.EventType(), err)
	}

	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", frame.seq, frame.event.EventType(), data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// writeHeartbeatFrame emits a comment frame for proxies plus a heartbeat
// data event clients can observe.
func writeHeartbeatFrame(w http.ResponseWriter, flusher http.Flusher) error {
	part := floodguard.NewHeartbeatPart(time.Now().UTC().Format(time.RFC3339))
	data, err := sonic.ConfigDefault.Marshal(part)
	if err != nil {
		return fmt.Errorf("marshal heartbeat frame: %w", err)
	}

	if _, err := fmt.Fprintf(w, ": heartbeat\nevent: %s\ndata: %s\n\n", EventTypeHeartbeat, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
