// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"sync"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// TaskUpdater is the executor-facing handle for a single task. It exposes
// the legal lifecycle verbs and funnels every one of them through the
// TaskManager's validated, atomically persisted transitions. Once the task
// reaches a terminal state the updater latches and rejects further updates.
type TaskUpdater struct {
	taskID  string
	manager *TaskManager

	mu       sync.RWMutex
	terminal bool
	closed   bool
}

// TaskUpdaterConfig holds configuration for creating a TaskUpdater.
type TaskUpdaterConfig struct {
	TaskID  string
	Manager *TaskManager
}

// NewTaskUpdater creates a new TaskUpdater with the given configuration.
func NewTaskUpdater(config TaskUpdaterConfig) (*TaskUpdater, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if config.Manager == nil {
		return nil, fmt.Errorf("task manager cannot be nil")
	}

	return &TaskUpdater{
		taskID:  config.TaskID,
		manager: config.Manager,
	}, nil
}

// UpdateStatus transitions the task to the given state with an optional
// reason recorded on the transition.
func (u *TaskUpdater) UpdateStatus(ctx context.Context, state floodguard.TaskState, reason string) error {
	if err := u.checkUsable(); err != nil {
		return err
	}

	if _, err := u.manager.UpdateTaskStatus(ctx, u.taskID, state, reason); err != nil {
		return err
	}

	if state.IsTerminal() {
		u.mu.Lock()
		u.terminal = true
		u.mu.Unlock()
	}
	return nil
}

// StartWork marks the task as working.
func (u *TaskUpdater) StartWork(ctx context.Context, reason string) error {
	return u.UpdateStatus(ctx, floodguard.TaskStateWorking, reason)
}

// RequireInput marks the task as waiting for external input.
func (u *TaskUpdater) RequireInput(ctx context.Context, reason string) error {
	return u.UpdateStatus(ctx, floodguard.TaskStateInputRequired, reason)
}

// Complete marks the task as completed.
func (u *TaskUpdater) Complete(ctx context.Context, reason string) error {
	return u.UpdateStatus(ctx, floodguard.TaskStateCompleted, reason)
}

// Fail marks the task as failed with the given cause. The cause is
// normalized onto the task before the taskFailed event is published.
func (u *TaskUpdater) Fail(ctx context.Context, cause error) error {
	if err := u.checkUsable(); err != nil {
		return err
	}

	if _, err := u.manager.FailTask(ctx, u.taskID, cause); err != nil {
		return err
	}

	u.mu.Lock()
	u.terminal = true
	u.mu.Unlock()
	return nil
}

// Cancel marks the task as canceled.
func (u *TaskUpdater) Cancel(ctx context.Context, reason string) error {
	if err := u.checkUsable(); err != nil {
		return err
	}

	if _, err := u.manager.CancelTask(ctx, u.taskID, reason); err != nil {
		return err
	}

	u.mu.Lock()
	u.terminal = true
	u.mu.Unlock()
	return nil
}

// AddArtifact attaches an artifact to the task.
func (u *TaskUpdater) AddArtifact(ctx context.Context, artifact *floodguard.Artifact) error {
	if err := u.checkUsable(); err != nil {
		return err
	}

	_, err := u.manager.AddArtifact(ctx, u.taskID, artifact)
	return err
}

// AddPart appends a streamed message part to the task.
func (u *TaskUpdater) AddPart(ctx context.Context, part *floodguard.PartEnvelope) error {
	if err := u.checkUsable(); err != nil {
		return err
	}

	_, err := u.manager.AddPart(ctx, u.taskID, part)
	return err
}

// GetTaskID returns the task ID this updater is associated with.
func (u *TaskUpdater) GetTaskID() string {
	return u.taskID
}

// IsTerminal returns true if the updater has driven its task into a
// terminal state.
func (u *TaskUpdater) IsTerminal() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.terminal
}

// Close shuts down the updater. Further update calls fail.
func (u *TaskUpdater) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	return nil
}

func (u *TaskUpdater) checkUsable() error {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.closed {
		return fmt.Errorf("task updater is closed")
	}
	if u.terminal {
		return floodguard.NewTaskAlreadyCompletedError(u.taskID, "")
	}
	return nil
}
