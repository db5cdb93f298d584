// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "errors"

var (
	// ErrQueueClosed is returned when attempting to use a closed queue, and
	// by DequeueEvent once a closed queue has been fully drained.
	ErrQueueClosed = errors.New("event queue is closed")

	// ErrQueueEmpty is returned when attempting to dequeue from an empty
	// queue in non-blocking mode.
	ErrQueueEmpty = errors.New("event queue is empty")

	// ErrInvalidQueueSize is returned when attempting to create a queue with
	// a negative buffer size.
	ErrInvalidQueueSize = errors.New("max queue size cannot be negative")
)
