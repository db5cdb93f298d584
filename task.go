// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskTransition records a single state change of a task.
// Transitions are immutable once appended to a task's history.
type TaskTransition struct {
	From      TaskState `json:"from"`
	To        TaskState `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitzero"`
}

// Task represents a unit of work exchanged between agents.
//
// Status is always one of the six defined states. Transitions is append-only
// and its final entry's To field equals the current Status; both are written
// in the same store operation so they can never disagree.
type Task struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitzero"`
	Status        TaskState        `json:"status"`
	AgentID       string           `json:"agentId,omitzero"`
	Parts         []*PartEnvelope  `json:"parts,omitzero"`
	ExpectedParts int              `json:"expectedParts,omitzero"`
	Artifacts     []*Artifact      `json:"artifacts,omitzero"`
	Transitions   []TaskTransition `json:"transitions,omitzero"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Error         *TaskError       `json:"error,omitzero"`
	Metadata      map[string]any   `json:"metadata,omitzero"`
	ContextID     string           `json:"contextId,omitzero"`
}

// TaskSpec describes a task to be created. The ID is generated when empty;
// everything else is copied onto the new task verbatim.
type TaskSpec struct {
	ID            string         `json:"id,omitzero"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitzero"`
	AgentID       string         `json:"agentId,omitzero"`
	ExpectedParts int            `json:"expectedParts,omitzero"`
	Metadata      map[string]any `json:"metadata,omitzero"`
	ContextID     string         `json:"contextId,omitzero"`
}

// Validate ensures the TaskSpec is valid.
func (s TaskSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if s.ExpectedParts < 0 {
		return fmt.Errorf("expected parts cannot be negative, got %d", s.ExpectedParts)
	}
	return nil
}

// NewTask creates a Task from the given spec. The task starts in the
// submitted state with an empty transition history. Missing IDs are
// generated.
func NewTask(spec TaskSpec) (*Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task spec: %w", err)
	}

	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()

	return &Task{
		ID:            id,
		Name:          spec.Name,
		Description:   spec.Description,
		Status:        TaskStateSubmitted,
		AgentID:       spec.AgentID,
		ExpectedParts: spec.ExpectedParts,
		Transitions:   []TaskTransition{},
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      cloneMetadata(spec.Metadata),
		ContextID:     spec.ContextID,
	}, nil
}

// Validate ensures the Task satisfies its structural invariants.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid task status: %q", t.Status)
	}
	if n := len(t.Transitions); n > 0 {
		if last := t.Transitions[n-1]; last.To != t.Status {
			return fmt.Errorf("last transition ends in %q but task status is %q", last.To, t.Status)
		}
	}
	return nil
}

// Clone returns a deep copy of the task. Mutating the copy never affects
// the original; stores and event snapshots rely on this.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	clone := *t

	if t.Parts != nil {
		clone.Parts = make([]*PartEnvelope, len(t.Parts))
		copy(clone.Parts, t.Parts)
	}
	if t.Artifacts != nil {
		clone.Artifacts = make([]*Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			clone.Artifacts[i] = a.Clone()
		}
	}
	if t.Transitions != nil {
		clone.Transitions = make([]TaskTransition, len(t.Transitions))
		copy(clone.Transitions, t.Transitions)
	}
	if t.Error != nil {
		e := *t.Error
		clone.Error = &e
	}
	clone.Metadata = cloneMetadata(t.Metadata)

	return &clone
}
