// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

func testTask(id string) *floodguard.Task {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &floodguard.Task{
		ID:          id,
		Name:        "ingest-sensor-readings",
		Status:      floodguard.TaskStateSubmitted,
		Transitions: []floodguard.TaskTransition{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func workingTask(id string) *floodguard.Task {
	task := testTask(id)
	task.Status = floodguard.TaskStateWorking
	task.Transitions = append(task.Transitions, floodguard.TaskTransition{
		From:      floodguard.TaskStateSubmitted,
		To:        floodguard.TaskStateWorking,
		Timestamp: task.CreatedAt.Add(time.Second),
	})
	return task
}

func TestEventTypes(t *testing.T) {
	t.Parallel()

	task := testTask("task-1")
	artifact, err := floodguard.NewTextArtifact("water level rising")
	if err != nil {
		t.Fatalf("NewTextArtifact() error = %v", err)
	}

	tests := map[string]struct {
		event      Event
		wantType   string
		wantTaskID string
	}{
		"task created": {
			event:      NewTaskCreatedEvent(task),
			wantType:   EventTypeTaskCreated,
			wantTaskID: "task-1",
		},
		"task updated": {
			event:      NewTaskUpdatedEvent(workingTask("task-1"), floodguard.TaskStateSubmitted),
			wantType:   EventTypeTaskUpdated,
			wantTaskID: "task-1",
		},
		"task completed": {
			event:      NewTaskCompletedEvent(task),
			wantType:   EventTypeTaskCompleted,
			wantTaskID: "task-1",
		},
		"task failed": {
			event:      NewTaskFailedEvent(task),
			wantType:   EventTypeTaskFailed,
			wantTaskID: "task-1",
		},
		"task canceled": {
			event:      NewTaskCanceledEvent(task, "operator request"),
			wantType:   EventTypeTaskCanceled,
			wantTaskID: "task-1",
		},
		"artifact added": {
			event:      NewArtifactAddedEvent(task, artifact),
			wantType:   EventTypeArtifactAdded,
			wantTaskID: "task-1",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tt.event.EventType(); got != tt.wantType {
				t.Errorf("EventType() = %q, want %q", got, tt.wantType)
			}
			if got := tt.event.GetTaskID(); got != tt.wantTaskID {
				t.Errorf("GetTaskID() = %q, want %q", got, tt.wantTaskID)
			}
			if tt.event.String() == "" {
				t.Error("String() is empty")
			}
		})
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	artifact, err := floodguard.NewTextArtifact("gauge snapshot")
	if err != nil {
		t.Fatalf("NewTextArtifact() error = %v", err)
	}

	failedTask := testTask("task-1")
	failedTask.Status = floodguard.TaskStateFailed
	failedTask.Transitions = append(failedTask.Transitions, floodguard.TaskTransition{
		From:      floodguard.TaskStateSubmitted,
		To:        floodguard.TaskStateFailed,
		Timestamp: failedTask.CreatedAt,
	})
	failedTask.Error = &floodguard.TaskError{Code: floodguard.ErrorCodeTaskFailed, Message: "sensor offline"}

	tests := map[string]struct {
		event   Event
		wantErr bool
	}{
		"success: created event": {
			event: NewTaskCreatedEvent(testTask("task-1")),
		},
		"success: failed event with normalized error": {
			event: NewTaskFailedEvent(failedTask),
		},
		"success: artifact event": {
			event: NewArtifactAddedEvent(testTask("task-1"), artifact),
		},
		"error: created event without task": {
			event:   &TaskCreatedEvent{},
			wantErr: true,
		},
		"error: updated event with invalid previous state": {
			event:   NewTaskUpdatedEvent(workingTask("task-1"), floodguard.TaskState("bogus")),
			wantErr: true,
		},
		"error: failed event without task error": {
			event:   NewTaskFailedEvent(testTask("task-1")),
			wantErr: true,
		},
		"error: artifact event without artifact": {
			event:   &ArtifactAddedEvent{Task: testTask("task-1")},
			wantErr: true,
		},
		"error: canceled event without task": {
			event:   &TaskCanceledEvent{Reason: "no task"},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsFinalEvent(t *testing.T) {
	t.Parallel()

	completedTask := testTask("task-1")
	completedTask.Status = floodguard.TaskStateCompleted

	tests := map[string]struct {
		event Event
		want  bool
	}{
		"created is not final":   {event: NewTaskCreatedEvent(testTask("t")), want: false},
		"completed is final":     {event: NewTaskCompletedEvent(completedTask), want: true},
		"failed is final":        {event: NewTaskFailedEvent(testTask("t")), want: true},
		"canceled is final":      {event: NewTaskCanceledEvent(testTask("t"), ""), want: true},
		"artifact is not final":  {event: &ArtifactAddedEvent{}, want: false},
		"test event is unknown":  {event: &testEvent{id: "t"}, want: false},
		// The terminal verb follows immediately, so the stream stays open
		// through a terminal-state update.
		"terminal update is not final": {
			event: NewTaskUpdatedEvent(completedTask, floodguard.TaskStateWorking),
			want:  false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := IsFinalEvent(tt.event); got != tt.want {
				t.Errorf("IsFinalEvent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnmarshalEvent(t *testing.T) {
	t.Parallel()

	artifact, err := floodguard.NewTextArtifact("river gauge 4.2m")
	if err != nil {
		t.Fatalf("NewTextArtifact() error = %v", err)
	}

	tests := map[string]struct {
		eventType string
		event     Event
	}{
		"task created":   {eventType: EventTypeTaskCreated, event: NewTaskCreatedEvent(testTask("task-1"))},
		"task updated":   {eventType: EventTypeTaskUpdated, event: NewTaskUpdatedEvent(workingTask("task-1"), floodguard.TaskStateSubmitted)},
		"task canceled":  {eventType: EventTypeTaskCanceled, event: NewTaskCanceledEvent(testTask("task-1"), "flood subsided")},
		"artifact added": {eventType: EventTypeArtifactAdded, event: NewArtifactAddedEvent(testTask("task-1"), artifact)},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			got, err := UnmarshalEvent(tt.eventType, data)
			if err != nil {
				t.Fatalf("UnmarshalEvent() error = %v", err)
			}
			if diff := cmp.Diff(tt.event, got); diff != "" {
				t.Errorf("UnmarshalEvent() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := UnmarshalEvent("volcanoErupted", []byte("{}")); err == nil {
		t.Error("UnmarshalEvent() with unknown type error = nil, want error")
	}
}
