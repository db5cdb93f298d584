// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"time"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// legalTransitions is the single source of truth for the task state
// machine. Terminal states have no entry: nothing leaves completed, failed
// or canceled.
var legalTransitions = map[floodguard.TaskState][]floodguard.TaskState{
	floodguard.TaskStateSubmitted: {
		floodguard.TaskStateWorking,
		floodguard.TaskStateFailed,
		floodguard.TaskStateCanceled,
	},
	floodguard.TaskStateWorking: {
		floodguard.TaskStateInputRequired,
		floodguard.TaskStateCompleted,
		floodguard.TaskStateFailed,
		floodguard.TaskStateCanceled,
	},
	floodguard.TaskStateInputRequired: {
		floodguard.TaskStateWorking,
		floodguard.TaskStateFailed,
		floodguard.TaskStateCanceled,
	},
}

// ValidateTransition reports whether moving a task from one state to
// another is legal. Returns InvalidTaskStateError with the offending pair
// when it is not.
func ValidateTransition(from, to floodguard.TaskState) error {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return floodguard.NewInvalidTaskStateError("", from, to)
}

// applyTransition validates and applies a state change to the task in
// place, appending exactly one TaskTransition record. The caller persists
// the task afterwards; status and history are mutated together so a single
// Save keeps them consistent.
func applyTransition(task *floodguard.Task, to floodguard.TaskState, reason string) (floodguard.TaskState, error) {
	from := task.Status
	if err := ValidateTransition(from, to); err != nil {
		return from, floodguard.NewInvalidTaskStateError(task.ID, from, to)
	}

	now := time.Now().UTC()
	task.Status = to
	task.UpdatedAt = now
	task.Transitions = append(task.Transitions, floodguard.TaskTransition{
		From:      from,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	})
	return from, nil
}
