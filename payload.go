// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import "fmt"

// CreateTaskParams are the params for the tasks/create method.
type CreateTaskParams struct {
	// Spec describes the task to create.
	Spec TaskSpec `json:"spec"`
}

// Validate ensures the CreateTaskParams are valid.
func (p *CreateTaskParams) Validate() error {
	return p.Spec.Validate()
}

// TaskIDParams are the params for methods addressed to a single task:
// tasks/get, tasks/cancel, tasks/artifacts/get, tasks/pushConfig/get, and
// tasks/stats/get.
type TaskIDParams struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Metadata carries optional caller context.
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the TaskIDParams are valid.
func (p *TaskIDParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	return nil
}

// UpdateTaskStatusParams are the params for the tasks/updateStatus method.
type UpdateTaskStatusParams struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Status is the state to transition to.
	Status TaskState `json:"status"`
	// Reason optionally annotates the transition record.
	Reason string `json:"reason,omitzero"`
}

// Validate ensures the UpdateTaskStatusParams are valid.
func (p *UpdateTaskStatusParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid task state: %q", p.Status)
	}
	return nil
}

// AddArtifactParams are the params for the tasks/artifacts/add method.
type AddArtifactParams struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Artifact is the output to attach.
	Artifact *Artifact `json:"artifact"`
}

// Validate ensures the AddArtifactParams are valid.
func (p *AddArtifactParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if p.Artifact == nil {
		return fmt.Errorf("artifact cannot be nil")
	}
	return p.Artifact.Validate()
}

// SetPushConfigParams are the params for the tasks/pushConfig/set method.
type SetPushConfigParams struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Config is the push notification configuration to install.
	Config *PushNotificationConfig `json:"config"`
}

// Validate ensures the SetPushConfigParams are valid.
func (p *SetPushConfigParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if p.Config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	return p.Config.Validate()
}

// ResubscribeParams are the params for the tasks/resubscribe method.
type ResubscribeParams struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// AfterSeq resumes event delivery after the given sequence number.
	// Zero replays the task's full retained history.
	AfterSeq uint64 `json:"afterSeq,omitzero"`
}

// Validate ensures the ResubscribeParams are valid.
func (p *ResubscribeParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	return nil
}

// ArtifactsResult is the result of the tasks/artifacts/get method.
type ArtifactsResult struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Artifacts are the task's outputs in insertion order.
	Artifacts []*Artifact `json:"artifacts"`
}
