// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

// Package event implements per-task event distribution for the floodguard
// runtime: bounded replayable queues with tap children, a registry with
// per-task statistics, pull-style consumers, and the translation of task
// lifecycle changes into typed events.
package event

import (
	"fmt"
	"time"

	"github.com/go-json-experiment/json"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// Lifecycle event types as they appear on the wire and in push
// notification filters.
const (
	EventTypeTaskCreated   = "taskCreated"
	EventTypeTaskUpdated   = "taskUpdated"
	EventTypeTaskCompleted = "taskCompleted"
	EventTypeTaskFailed    = "taskFailed"
	EventTypeTaskCanceled  = "taskCanceled"
	EventTypeArtifactAdded = "artifactAdded"
)

// Event represents a unified interface for all event types flowing through
// the distribution pipeline.
type Event interface {
	// EventType returns the wire type of the event (e.g. "taskCreated").
	EventType() string

	// GetTaskID returns the ID of the task the event belongs to.
	GetTaskID() string

	// EventData returns the underlying payload of the event.
	EventData() any

	// Validate ensures the event is in a valid state.
	Validate() error

	// String returns a string representation of the event.
	String() string
}

// TaskCreatedEvent announces a freshly created task.
type TaskCreatedEvent struct {
	Task      *floodguard.Task `json:"task"`
	Timestamp time.Time        `json:"timestamp"`
}

var _ Event = (*TaskCreatedEvent)(nil)

// NewTaskCreatedEvent creates a TaskCreatedEvent for the given task snapshot.
func NewTaskCreatedEvent(task *floodguard.Task) *TaskCreatedEvent {
	return &TaskCreatedEvent{Task: task, Timestamp: time.Now().UTC()}
}

// EventType returns the event type for TaskCreatedEvent.
func (e *TaskCreatedEvent) EventType() string { return EventTypeTaskCreated }

// GetTaskID returns the task ID.
func (e *TaskCreatedEvent) GetTaskID() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.ID
}

// EventData returns the task snapshot.
func (e *TaskCreatedEvent) EventData() any { return e.Task }

// Validate ensures the TaskCreatedEvent is valid.
func (e *TaskCreatedEvent) Validate() error {
	if e.Task == nil {
		return fmt.Errorf("task created event task cannot be nil")
	}
	return e.Task.Validate()
}

// String returns a string representation of the TaskCreatedEvent.
func (e *TaskCreatedEvent) String() string {
	return fmt.Sprintf("TaskCreatedEvent{TaskID: %s}", e.GetTaskID())
}

// TaskUpdatedEvent records a validated state transition on a task. The Task
// field carries the post-transition snapshot.
type TaskUpdatedEvent struct {
	Task          *floodguard.Task     `json:"task"`
	PreviousState floodguard.TaskState `json:"previousState"`
	Timestamp     time.Time            `json:"timestamp"`
}

var _ Event = (*TaskUpdatedEvent)(nil)

// NewTaskUpdatedEvent creates a TaskUpdatedEvent.
func NewTaskUpdatedEvent(task *floodguard.Task, previous floodguard.TaskState) *TaskUpdatedEvent {
	return &TaskUpdatedEvent{Task: task, PreviousState: previous, Timestamp: time.Now().UTC()}
}

// EventType returns the event type for TaskUpdatedEvent.
func (e *TaskUpdatedEvent) EventType() string { return EventTypeTaskUpdated }

// GetTaskID returns the task ID.
func (e *TaskUpdatedEvent) GetTaskID() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.ID
}

// EventData returns the task snapshot.
func (e *TaskUpdatedEvent) EventData() any { return e.Task }

// Validate ensures the TaskUpdatedEvent is valid.
func (e *TaskUpdatedEvent) Validate() error {
	if e.Task == nil {
		return fmt.Errorf("task updated event task cannot be nil")
	}
	if !e.PreviousState.IsValid() {
		return fmt.Errorf("task updated event previous state is invalid: %q", e.PreviousState)
	}
	return e.Task.Validate()
}

// String returns a string representation of the TaskUpdatedEvent.
func (e *TaskUpdatedEvent) String() string {
	state := floodguard.TaskState("")
	if e.Task != nil {
		state = e.Task.Status
	}
	return fmt.Sprintf("TaskUpdatedEvent{TaskID: %s, %s -> %s}", e.GetTaskID(), e.PreviousState, state)
}

// TaskCompletedEvent carries the final snapshot of a successfully completed
// task, including its artifacts.
type TaskCompletedEvent struct {
	Task      *floodguard.Task `json:"task"`
	Timestamp time.Time        `json:"timestamp"`
}

var _ Event = (*TaskCompletedEvent)(nil)

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(task *floodguard.Task) *TaskCompletedEvent {
	return &TaskCompletedEvent{Task: task, Timestamp: time.Now().UTC()}
}

// EventType returns the event type for TaskCompletedEvent.
func (e *TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }

// GetTaskID returns the task ID.
func (e *TaskCompletedEvent) GetTaskID() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.ID
}

// EventData returns the task snapshot.
func (e *TaskCompletedEvent) EventData() any { return e.Task }

// Validate ensures the TaskCompletedEvent is valid.
func (e *TaskCompletedEvent) Validate() error {
	if e.Task == nil {
		return fmt.Errorf("task completed event task cannot be nil")
	}
	return e.Task.Validate()
}

// String returns a string representation of the TaskCompletedEvent.
func (e *TaskCompletedEvent) String() string {
	return fmt.Sprintf("TaskCompletedEvent{TaskID: %s, Artifacts: %d}", e.GetTaskID(), len(e.taskArtifacts()))
}

func (e *TaskCompletedEvent) taskArtifacts() []*floodguard.Artifact {
	if e.Task == nil {
		return nil
	}
	return e.Task.Artifacts
}

// TaskFailedEvent carries the snapshot of a failed task. The snapshot's
// Error field holds the normalized failure cause, never the original error
// object reported by the executor.
type TaskFailedEvent struct {
	Task      *floodguard.Task `json:"task"`
	Timestamp time.Time        `json:"timestamp"`
}

var _ Event = (*TaskFailedEvent)(nil)

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(task *floodguard.Task) *TaskFailedEvent {
	return &TaskFailedEvent{Task: task, Timestamp: time.Now().UTC()}
}

// EventType returns the event type for TaskFailedEvent.
func (e *TaskFailedEvent) EventType() string { return EventTypeTaskFailed }

// GetTaskID returns the task ID.
func (e *TaskFailedEvent) GetTaskID() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.ID
}

// EventData returns the task snapshot.
func (e *TaskFailedEvent) EventData() any { return e.Task }

// Validate ensures the TaskFailedEvent is valid.
func (e *TaskFailedEvent) Validate() error {
	if e.Task == nil {
		return fmt.Errorf("task failed event task cannot be nil")
	}
	if e.Task.Error == nil {
		return fmt.Errorf("task failed event requires a normalized task error")
	}
	return e.Task.Validate()
}

// String returns a string representation of the TaskFailedEvent.
func (e *TaskFailedEvent) String() string {
	message := ""
	if e.Task != nil && e.Task.Error != nil {
		message = e.Task.Error.Message
	}
	return fmt.Sprintf("TaskFailedEvent{TaskID: %s, Message: %.50s}", e.GetTaskID(), message)
}

// TaskCanceledEvent carries the snapshot of a canceled task.
type TaskCanceledEvent struct {
	Task      *floodguard.Task `json:"task"`
	Reason    string           `json:"reason,omitzero"`
	Timestamp time.Time        `json:"timestamp"`
}

var _ Event = (*TaskCanceledEvent)(nil)

// NewTaskCanceledEvent creates a TaskCanceledEvent.
func NewTaskCanceledEvent(task *floodguard.Task, reason string) *TaskCanceledEvent {
	return &TaskCanceledEvent{Task: task, Reason: reason, Timestamp: time.Now().UTC()}
}

// EventType returns the event type for TaskCanceledEvent.
func (e *TaskCanceledEvent) EventType() string { return EventTypeTaskCanceled }

// GetTaskID returns the task ID.
func (e *TaskCanceledEvent) GetTaskID() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.ID
}

// EventData returns the task snapshot.
func (e *TaskCanceledEvent) EventData() any { return e.Task }

// Validate ensures the TaskCanceledEvent is valid.
func (e *TaskCanceledEvent) Validate() error {
	if e.Task == nil {
		return fmt.Errorf("task canceled event task cannot be nil")
	}
	return e.Task.Validate()
}

// String returns a string representation of the TaskCanceledEvent.
func (e *TaskCanceledEvent) String() string {
	return fmt.Sprintf("TaskCanceledEvent{TaskID: %s, Reason: %s}", e.GetTaskID(), e.Reason)
}

// ArtifactAddedEvent announces a new artifact produced by an executor.
type ArtifactAddedEvent struct {
	Task      *floodguard.Task     `json:"task"`
	Artifact  *floodguard.Artifact `json:"artifact"`
	Timestamp time.Time            `json:"timestamp"`
}

var _ Event = (*ArtifactAddedEvent)(nil)

// NewArtifactAddedEvent creates an ArtifactAddedEvent.
func NewArtifactAddedEvent(task *floodguard.Task, artifact *floodguard.Artifact) *ArtifactAddedEvent {
	return &ArtifactAddedEvent{Task: task, Artifact: artifact, Timestamp: time.Now().UTC()}
}

// EventType returns the event type for ArtifactAddedEvent.
func (e *ArtifactAddedEvent) EventType() string { return EventTypeArtifactAdded }

// GetTaskID returns the task ID.
func (e *ArtifactAddedEvent) GetTaskID() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.ID
}

// EventData returns the artifact.
func (e *ArtifactAddedEvent) EventData() any { return e.Artifact }

// Validate ensures the ArtifactAddedEvent is valid.
func (e *ArtifactAddedEvent) Validate() error {
	if e.Task == nil {
		return fmt.Errorf("artifact added event task cannot be nil")
	}
	if e.Artifact == nil {
		return fmt.Errorf("artifact added event artifact cannot be nil")
	}
	if err := e.Artifact.Validate(); err != nil {
		return err
	}
	return e.Task.Validate()
}

// String returns a string representation of the ArtifactAddedEvent.
func (e *ArtifactAddedEvent) String() string {
	artifactID := ""
	if e.Artifact != nil {
		artifactID = e.Artifact.ID
	}
	return fmt.Sprintf("ArtifactAddedEvent{TaskID: %s, ArtifactID: %s}", e.GetTaskID(), artifactID)
}

// IsFinalEvent reports whether an event ends a task's stream. Only the
// three terminal lifecycle verbs are final; a taskUpdated event into a
// terminal state is not, because the corresponding terminal verb follows it
// immediately.
func IsFinalEvent(event Event) bool {
	switch event.(type) {
	case *TaskCompletedEvent, *TaskFailedEvent, *TaskCanceledEvent:
		return true
	default:
		return false
	}
}

// UnmarshalEvent decodes the JSON payload of an event given its wire type,
// as used by streaming consumers that receive the type out of band.
func UnmarshalEvent(eventType string, data []byte) (Event, error) {
	var event Event
	switch eventType {
	case EventTypeTaskCreated:
		event = &TaskCreatedEvent{}
	case EventTypeTaskUpdated:
		event = &TaskUpdatedEvent{}
	case EventTypeTaskCompleted:
		event = &TaskCompletedEvent{}
	case EventTypeTaskFailed:
		event = &TaskFailedEvent{}
	case EventTypeTaskCanceled:
		event = &TaskCanceledEvent{}
	case EventTypeArtifactAdded:
		event = &ArtifactAddedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %q", eventType)
	}
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("unmarshal %s event: %w", eventType, err)
	}
	return event, nil
}
