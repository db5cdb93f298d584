// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

// Package floodguard provides the agent task orchestration and event
// distribution runtime: task lifecycle tracking with an explicit state
// machine, per-task publish/subscribe event queues, and the wire-level
// protocol types shared by the server and client packages.
package floodguard

import (
	"fmt"
)

// Version is the current version of the orchestration runtime.
const Version = "0.1.0"

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been created and not yet started.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates an executor is actively working on the task.
	TaskStateWorking TaskState = "working"

	// TaskStateInputRequired indicates the task is paused waiting for external input.
	TaskStateInputRequired TaskState = "input_required"

	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateFailed indicates the task finished with an error.
	TaskStateFailed TaskState = "failed"

	// TaskStateCanceled indicates the task was canceled before finishing.
	TaskStateCanceled TaskState = "canceled"
)

// TaskStates lists every valid task state.
var TaskStates = []TaskState{
	TaskStateSubmitted,
	TaskStateWorking,
	TaskStateInputRequired,
	TaskStateCompleted,
	TaskStateFailed,
	TaskStateCanceled,
}

// String returns the string representation of the state.
func (s TaskState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the defined task states.
func (s TaskState) IsValid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no further transitions.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// AgentCard is an immutable discovery record describing an agent.
type AgentCard struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Capabilities []string       `json:"capabilities"`
	Endpoint     string         `json:"endpoint"`
	Description  string         `json:"description,omitzero"`
	Version      string         `json:"version,omitzero"`
	Metadata     map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the AgentCard is valid.
func (c AgentCard) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("agent card ID cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("agent card name cannot be empty")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("agent card endpoint cannot be empty")
	}
	return nil
}

// cloneMetadata shallow-copies a metadata map. Values are caller-owned and
// treated as immutable.
func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
