// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		spec    TaskSpec
		wantErr bool
	}{
		"success: minimal spec": {
			spec: TaskSpec{Name: "assess-basin"},
		},
		"success: full spec": {
			spec: TaskSpec{
				ID:            "task-1",
				Name:          "assess-basin",
				Description:   "assess the river basin",
				AgentID:       "agent-7",
				ExpectedParts: 2,
				Metadata:      map[string]any{"region": "north"},
				ContextID:     "ctx-1",
			},
		},
		"error: empty name": {
			spec:    TaskSpec{},
			wantErr: true,
		},
		"error: negative expected parts": {
			spec:    TaskSpec{Name: "assess-basin", ExpectedParts: -1},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			task, err := NewTask(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewTask() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTask() error = %v, want nil", err)
			}

			if task.ID == "" {
				t.Error("NewTask() generated empty task ID")
			}
			if tt.spec.ID != "" && task.ID != tt.spec.ID {
				t.Errorf("task.ID = %q, want %q", task.ID, tt.spec.ID)
			}
			if got, want := task.Status, TaskStateSubmitted; got != want {
				t.Errorf("task.Status = %q, want %q", got, want)
			}
			if len(task.Transitions) != 0 {
				t.Errorf("len(task.Transitions) = %d, want 0", len(task.Transitions))
			}
			if task.CreatedAt.IsZero() || !task.CreatedAt.Equal(task.UpdatedAt) {
				t.Errorf("timestamps not initialized together: createdAt=%v updatedAt=%v", task.CreatedAt, task.UpdatedAt)
			}
			if err := task.Validate(); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := map[string]struct {
		task    *Task
		wantErr bool
	}{
		"success: consistent transition history": {
			task: &Task{
				ID:     "task-1",
				Name:   "assess-basin",
				Status: TaskStateWorking,
				Transitions: []TaskTransition{
					{From: TaskStateSubmitted, To: TaskStateWorking, Timestamp: now},
				},
			},
		},
		"error: nil task": {
			task:    nil,
			wantErr: true,
		},
		"error: missing ID": {
			task:    &Task{Name: "assess-basin", Status: TaskStateSubmitted},
			wantErr: true,
		},
		"error: undefined status": {
			task:    &Task{ID: "task-1", Name: "assess-basin", Status: TaskState("paused")},
			wantErr: true,
		},
		"error: last transition disagrees with status": {
			task: &Task{
				ID:     "task-1",
				Name:   "assess-basin",
				Status: TaskStateCompleted,
				Transitions: []TaskTransition{
					{From: TaskStateSubmitted, To: TaskStateWorking, Timestamp: now},
				},
			},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTaskClone(t *testing.T) {
	t.Parallel()

	artifact, err := NewTextArtifact("river gauge normal")
	if err != nil {
		t.Fatal(err)
	}

	original := &Task{
		ID:        "task-1",
		Name:      "assess-basin",
		Status:    TaskStateWorking,
		Artifacts: []*Artifact{artifact},
		Transitions: []TaskTransition{
			{From: TaskStateSubmitted, To: TaskStateWorking, Timestamp: time.Now().UTC()},
		},
		Error:    &TaskError{Code: ErrorCodeTaskFailed, Message: "boom"},
		Metadata: map[string]any{"region": "north"},
	}

	clone := original.Clone()

	if diff := cmp.Diff(original, clone); diff != "" {
		t.Fatalf("Clone() mismatch (-want +got):\n%s", diff)
	}

	clone.Transitions = append(clone.Transitions, TaskTransition{From: TaskStateWorking, To: TaskStateCompleted})
	clone.Metadata["region"] = "south"
	clone.Error.Message = "changed"
	clone.Artifacts[0] = nil

	if len(original.Transitions) != 1 {
		t.Error("mutating clone transitions affected the original")
	}
	if original.Metadata["region"] != "north" {
		t.Error("mutating clone metadata affected the original")
	}
	if original.Error.Message != "boom" {
		t.Error("mutating clone error affected the original")
	}
	if original.Artifacts[0] == nil {
		t.Error("mutating clone artifacts affected the original")
	}
}
