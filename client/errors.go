// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Common errors.
var (
	// ErrClientClosed is returned when operations are attempted on a closed
	// client.
	ErrClientClosed = errors.New("client is closed")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("stream is closed")

	// ErrRetriesExhausted is returned when a stream gives up reconnecting.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// HeartbeatTimeoutError reports a stream aborted because no heartbeat
// arrived within the configured window. It is recoverable and distinct from
// transport errors so callers can observe silence-triggered reconnects.
type HeartbeatTimeoutError struct {
	TaskID  string
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *HeartbeatTimeoutError) Error() string {
	return fmt.Sprintf("no heartbeat for task %s in %v", e.TaskID, e.Elapsed)
}

// Is reports whether target is a HeartbeatTimeoutError.
func (e *HeartbeatTimeoutError) Is(target error) bool {
	_, ok := target.(*HeartbeatTimeoutError)
	return ok
}

// ConnectionError reports a transport-level failure. It is recoverable.
type ConnectionError struct {
	Operation string
	URL       string
	Err       error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s to %s: %v", e.Operation, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RPCError reports a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsRecoverable reports whether a streaming error should trigger a
// reconnect. Network failures, timeouts, and heartbeat loss are
// recoverable; everything else ends the stream.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var heartbeatErr *HeartbeatTimeoutError
	if errors.As(err, &heartbeatErr) {
		return true
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}
