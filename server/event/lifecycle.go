// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"fmt"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// TaskEventManager translates task lifecycle changes into typed events
// published onto the task's queue. Every verb validates its identifiers
// before touching the queue, so a caller never observes a partially
// published event. Queues are created lazily on the first event for a task.
type TaskEventManager struct {
	queues QueueManager
}

// TaskEventManagerConfig holds the dependencies for a TaskEventManager.
type TaskEventManagerConfig struct {
	Queues QueueManager
}

// NewTaskEventManager creates a TaskEventManager from the given config.
func NewTaskEventManager(config TaskEventManagerConfig) (*TaskEventManager, error) {
	if config.Queues == nil {
		return nil, fmt.Errorf("queue manager cannot be nil")
	}
	return &TaskEventManager{queues: config.Queues}, nil
}

// TaskCreated publishes a taskCreated event carrying a snapshot of the task.
func (em *TaskEventManager) TaskCreated(ctx context.Context, task *floodguard.Task) error {
	if err := requireTaskID(task); err != nil {
		return err
	}
	return em.publish(ctx, task.ID, NewTaskCreatedEvent(task.Clone()))
}

// TaskUpdated publishes a taskUpdated event for a validated state
// transition. The task snapshot carries the post-transition status.
func (em *TaskEventManager) TaskUpdated(ctx context.Context, task *floodguard.Task, previous floodguard.TaskState) error {
	if err := requireTaskID(task); err != nil {
		return err
	}
	if !previous.IsValid() {
		return fmt.Errorf("previous state is invalid: %q", previous)
	}
	return em.publish(ctx, task.ID, NewTaskUpdatedEvent(task.Clone(), previous))
}

// TaskCompleted publishes a taskCompleted event with the final task
// snapshot including its artifacts.
func (em *TaskEventManager) TaskCompleted(ctx context.Context, task *floodguard.Task) error {
	if err := requireTaskID(task); err != nil {
		return err
	}
	return em.publish(ctx, task.ID, NewTaskCompletedEvent(task.Clone()))
}

// TaskFailed normalizes cause into the standard {code, message, data} shape,
// attaches it to a snapshot of the task, and publishes a taskFailed event.
// The published error is always a fresh value, never the object the
// executor reported.
func (em *TaskEventManager) TaskFailed(ctx context.Context, task *floodguard.Task, cause error) error {
	if err := requireTaskID(task); err != nil {
		return err
	}
	if cause == nil {
		return fmt.Errorf("failure cause cannot be nil")
	}

	snapshot := task.Clone()
	snapshot.Error = floodguard.NormalizeError(cause)
	return em.publish(ctx, task.ID, NewTaskFailedEvent(snapshot))
}

// TaskCanceled publishes a taskCanceled event.
func (em *TaskEventManager) TaskCanceled(ctx context.Context, task *floodguard.Task, reason string) error {
	if err := requireTaskID(task); err != nil {
		return err
	}
	return em.publish(ctx, task.ID, NewTaskCanceledEvent(task.Clone(), reason))
}

// ArtifactAdded publishes an artifactAdded event.
func (em *TaskEventManager) ArtifactAdded(ctx context.Context, task *floodguard.Task, artifact *floodguard.Artifact) error {
	if err := requireTaskID(task); err != nil {
		return err
	}
	if artifact == nil {
		return fmt.Errorf("artifact cannot be nil")
	}
	if artifact.ID == "" {
		return fmt.Errorf("artifact ID cannot be empty")
	}
	return em.publish(ctx, task.ID, NewArtifactAddedEvent(task.Clone(), artifact.Clone()))
}

func (em *TaskEventManager) publish(ctx context.Context, taskID string, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	queue, err := em.queues.CreateOrGet(taskID)
	if err != nil {
		return err
	}
	return queue.EnqueueEvent(ctx, ev)
}

func requireTaskID(task *floodguard.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if task.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	return nil
}
