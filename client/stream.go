// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heyubaidullah/floodguard-sub000/server/event"
)

const (
	// DefaultHeartbeatTimeout is how long a stream may stay silent before
	// the monitor aborts the connection.
	DefaultHeartbeatTimeout = 45 * time.Second

	// DefaultCheckInterval is the heartbeat monitor's polling cadence.
	DefaultCheckInterval = 5 * time.Second

	// DefaultStreamBufferSize is the event channel capacity.
	DefaultStreamBufferSize = 64

	heartbeatEventType = "heartbeat"
)

// StreamEvent is one lifecycle event received over the stream with its
// server-assigned sequence number.
type StreamEvent struct {
	Seq        uint64
	Type       string
	Event      event.Event
	ReceivedAt time.Time
}

// StreamConfig configures a TaskStream. Zero fields take the defaults.
type StreamConfig struct {
	// HeartbeatTimeout is the silence window that aborts a connection.
	HeartbeatTimeout time.Duration
	// CheckInterval is how often the monitor checks for silence.
	CheckInterval time.Duration
	// BufferSize is the event channel capacity.
	BufferSize int
}

// TaskStream is a long-lived subscription to a task's event stream.
//
// The stream reconnects on recoverable errors (network failures, timeouts,
// heartbeat loss) with exponential backoff, resuming from the last
// processed sequence number via Last-Event-ID. When the server rejects the
// resume position the stream falls back to a full history replay. Terminal
// errors, retry exhaustion, or a terminal lifecycle event end the stream
// and close the Events channel; Err reports how it ended.
type TaskStream struct {
	client       *Client
	streamClient *http.Client
	taskID       string
	config       StreamConfig
	retry        *RetryConfig
	logger       *slog.Logger

	events        chan StreamEvent
	lastSeq       atomic.Uint64
	lastHeartbeat atomic.Int64

	cancel  context.CancelFunc
	done    chan struct{}
	errOnce sync.Once
	err     error
}

// StreamTask opens an event stream for the task. The stream runs until a
// terminal lifecycle event, a terminal error, or a Close call; cancel ctx
// to abandon it.
func (c *Client) StreamTask(ctx context.Context, taskID string, config StreamConfig) (*TaskStream, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if config.HeartbeatTimeout <= 0 {
		config.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultStreamBufferSize
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &TaskStream{
		client: c,
		// The unary client enforces a request timeout that would kill a
		// long-lived stream; share its transport but not its deadline.
		streamClient: &http.Client{Transport: c.httpClient.Transport},
		taskID:       taskID,
		config:       config,
		retry:        c.retry,
		logger:       c.logger,
		events:       make(chan StreamEvent, config.BufferSize),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go s.run(streamCtx)
	return s, nil
}

// TaskID returns the task ID this stream follows.
func (s *TaskStream) TaskID() string {
	return s.taskID
}

// Events returns the event channel. It is closed when the stream ends;
// check Err afterwards.
func (s *TaskStream) Events() <-chan StreamEvent {
	return s.events
}

// Next blocks for the next event. It returns ErrStreamClosed when the
// stream ended cleanly, or the stream's terminal error.
func (s *TaskStream) Next(ctx context.Context) (StreamEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			if err := s.Err(); err != nil {
				return StreamEvent{}, err
			}
			return StreamEvent{}, ErrStreamClosed
		}
		return ev, nil
	case <-ctx.Done():
		return StreamEvent{}, ctx.Err()
	}
}

// LastSeq returns the sequence number of the last processed event.
func (s *TaskStream) LastSeq() uint64 {
	return s.lastSeq.Load()
}

// Err returns the error that ended the stream, or nil if it ended with a
// terminal lifecycle event or a Close call. Valid after Events is closed.
func (s *TaskStream) Err() error {
	<-s.done
	return s.err
}

// Close abandons the stream.
func (s *TaskStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *TaskStream) finish(err error) {
	s.errOnce.Do(func() {
		s.err = err
		close(s.events)
		close(s.done)
	})
}

// run is the reconnect loop. One counter tracks consecutive attempts
// without progress; it resets whenever a connection delivers an event, so
// a stream that reconnects but stays silent still exhausts its retries.
func (s *TaskStream) run(ctx context.Context) {
	attempt := 0
	for {
		progressed, err := s.connectAndRead(ctx)
		if err == nil {
			s.finish(nil)
			return
		}
		if ctx.Err() != nil {
			s.finish(nil)
			return
		}
		if !IsRecoverable(err) {
			s.finish(err)
			return
		}
		if progressed {
			attempt = 0
		}
		if attempt >= s.retry.MaxRetries {
			s.finish(fmt.Errorf("%w for task %s: %w", ErrRetriesExhausted, s.taskID, err))
			return
		}

		delay := s.retry.delayFor(attempt)
		s.logger.WarnContext(ctx, "stream reconnecting",
			slog.String("task_id", s.taskID),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.finish(nil)
			return
		}
		attempt++
	}
}

// connectAndRead opens one SSE connection and pumps it until it ends.
// progressed reports whether at least one lifecycle event was delivered, so
// the caller can reset its backoff counter.
func (s *TaskStream) connectAndRead(ctx context.Context) (progressed bool, err error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	url := s.client.baseURL + "/tasks/" + s.taskID + "/events"
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resume := s.lastSeq.Load()
	if resume > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(resume, 10))
	}

	resp, err := s.streamClient.Do(req)
	if err != nil {
		return false, &ConnectionError{Operation: "stream connect", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest && resume > 0 {
		// The server cannot resume from our position. Drop it and replay
		// the full history on the next attempt.
		s.lastSeq.Store(0)
		return false, &ConnectionError{
			Operation: "stream resume",
			URL:       url,
			Err:       fmt.Errorf("server rejected resume after seq %d", resume),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return false, &ConnectionError{
			Operation: "stream connect",
			URL:       url,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	s.lastHeartbeat.Store(time.Now().UnixNano())

	// Silence detector. On timeout it cancels the connection, which
	// surfaces below as a read error replaced by the heartbeat error.
	heartbeatErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(s.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				elapsed := time.Since(time.Unix(0, s.lastHeartbeat.Load()))
				if elapsed > s.config.HeartbeatTimeout {
					heartbeatErr <- &HeartbeatTimeoutError{TaskID: s.taskID, Elapsed: elapsed}
					cancel()
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	decoder := newSSEDecoder(resp.Body)
	for {
		frame, err := decoder.next()
		if err != nil {
			select {
			case hbErr := <-heartbeatErr:
				return progressed, hbErr
			default:
			}
			if err == io.EOF {
				return progressed, &ConnectionError{Operation: "stream read", URL: url, Err: io.ErrUnexpectedEOF}
			}
			return progressed, &ConnectionError{Operation: "stream read", URL: url, Err: err}
		}

		s.lastHeartbeat.Store(time.Now().UnixNano())
		if frame.eventType == heartbeatEventType {
			continue
		}

		seq, err := strconv.ParseUint(frame.id, 10, 64)
		if err != nil {
			return progressed, fmt.Errorf("malformed event ID %q: %w", frame.id, err)
		}
		ev, err := event.UnmarshalEvent(frame.eventType, []byte(frame.data))
		if err != nil {
			return progressed, fmt.Errorf("malformed %s event: %w", frame.eventType, err)
		}

		select {
		case s.events <- StreamEvent{Seq: seq, Type: frame.eventType, Event: ev, ReceivedAt: time.Now()}:
		case <-connCtx.Done():
			select {
			case hbErr := <-heartbeatErr:
				return progressed, hbErr
			default:
			}
			return progressed, ctx.Err()
		}
		s.lastSeq.Store(seq)
		progressed = true

		if event.IsFinalEvent(ev) {
			return true, nil
		}
	}
}
