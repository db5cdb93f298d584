// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"sync"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// ResultAggregator accumulates the message parts streamed for a task until
// the task completes. Completion is a one-way latch: no parts can be added
// afterwards, and the result only becomes readable once it is set.
type ResultAggregator struct {
	taskID        string
	expectedParts int

	mu       sync.RWMutex
	parts    []*floodguard.PartEnvelope
	complete bool
}

// ResultAggregatorConfig holds configuration for creating a ResultAggregator.
type ResultAggregatorConfig struct {
	// TaskID is the task whose parts are accumulated.
	TaskID string

	// ExpectedParts is the number of parts the executor announced it will
	// produce. Zero means unknown; progress stays at 0 until completion.
	ExpectedParts int
}

// NewResultAggregator creates a new ResultAggregator with the given
// configuration.
func NewResultAggregator(config ResultAggregatorConfig) (*ResultAggregator, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if config.ExpectedParts < 0 {
		return nil, fmt.Errorf("expected parts cannot be negative: %d", config.ExpectedParts)
	}

	return &ResultAggregator{
		taskID:        config.TaskID,
		expectedParts: config.ExpectedParts,
	}, nil
}

// AddPart appends a streamed part to the ordered sequence. Returns an error
// once Complete has been called.
func (r *ResultAggregator) AddPart(part *floodguard.PartEnvelope) error {
	if part == nil {
		return NewResultAggregatorError("add_part", r.taskID, fmt.Errorf("part cannot be nil"))
	}
	if err := part.Validate(); err != nil {
		return NewResultAggregatorError("add_part", r.taskID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.complete {
		return NewResultAggregatorError("add_part", r.taskID, fmt.Errorf("aggregation already complete"))
	}

	r.parts = append(r.parts, part)
	return nil
}

// Complete latches the aggregator. Idempotent; once latched the accumulated
// parts become readable through GetResult and progress reports exactly 1.
func (r *ResultAggregator) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = true
}

// GetResult returns a snapshot of the ordered parts. Fails until Complete
// has been called.
func (r *ResultAggregator) GetResult() ([]*floodguard.PartEnvelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.complete {
		return nil, NewResultAggregatorError("get_result", r.taskID, fmt.Errorf("aggregation not complete"))
	}

	result := make([]*floodguard.PartEnvelope, len(r.parts))
	copy(result, r.parts)
	return result, nil
}

// GetProgress returns partsReceived/expectedParts while aggregation is in
// flight (0 when the expected count is unknown) and exactly 1 once
// complete. Completion overrides the ratio even when fewer parts than
// expected arrived.
func (r *ResultAggregator) GetProgress() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.complete {
		return 1
	}
	if r.expectedParts <= 0 {
		return 0
	}

	progress := float64(len(r.parts)) / float64(r.expectedParts)
	if progress > 1 {
		progress = 1
	}
	return progress
}

// PartsReceived returns the number of parts accumulated so far.
func (r *ResultAggregator) PartsReceived() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parts)
}

// IsComplete reports whether Complete has been called.
func (r *ResultAggregator) IsComplete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.complete
}

// TaskID returns the task ID this aggregator is associated with.
func (r *ResultAggregator) TaskID() string {
	return r.taskID
}
