// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"testing"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

func newTestUpdater(t *testing.T) (*TaskUpdater, *TaskManager, string) {
	t.Helper()

	manager, _ := newTestManager(t)

	task, err := manager.CreateTask(context.Background(), floodguard.TaskSpec{Name: "updater-task"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	updater, err := manager.Updater(task.ID)
	if err != nil {
		t.Fatalf("Updater() error = %v", err)
	}
	return updater, manager, task.ID
}

func TestNewTaskUpdater(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t)

	if _, err := NewTaskUpdater(TaskUpdaterConfig{Manager: manager}); err == nil {
		t.Error("NewTaskUpdater() without task ID error = nil, want error")
	}
	if _, err := NewTaskUpdater(TaskUpdaterConfig{TaskID: "task-1"}); err == nil {
		t.Error("NewTaskUpdater() without manager error = nil, want error")
	}
}

func TestTaskUpdaterLifecycleVerbs(t *testing.T) {
	t.Parallel()

	updater, manager, taskID := newTestUpdater(t)
	ctx := context.Background()

	if err := updater.StartWork(ctx, "assigned"); err != nil {
		t.Fatalf("StartWork() error = %v", err)
	}
	if err := updater.RequireInput(ctx, "need operator approval"); err != nil {
		t.Fatalf("RequireInput() error = %v", err)
	}
	if err := updater.StartWork(ctx, "approval granted"); err != nil {
		t.Fatalf("StartWork() error = %v", err)
	}
	if err := updater.Complete(ctx, "done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if !updater.IsTerminal() {
		t.Error("IsTerminal() = false, want true")
	}

	// A terminal updater latches.
	if err := updater.StartWork(ctx, ""); !errors.Is(err, floodguard.TaskAlreadyCompletedError{}) {
		t.Errorf("StartWork() after terminal error = %v, want TaskAlreadyCompletedError", err)
	}

	task, err := manager.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Status != floodguard.TaskStateCompleted {
		t.Errorf("Status = %s, want %s", task.Status, floodguard.TaskStateCompleted)
	}
	if len(task.Transitions) != 4 {
		t.Errorf("len(Transitions) = %d, want 4", len(task.Transitions))
	}
}

func TestTaskUpdaterFail(t *testing.T) {
	t.Parallel()

	updater, manager, taskID := newTestUpdater(t)
	ctx := context.Background()

	if err := updater.Fail(ctx, fmt.Errorf("pump jammed")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if !updater.IsTerminal() {
		t.Error("IsTerminal() = false, want true")
	}

	task, err := manager.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Status != floodguard.TaskStateFailed {
		t.Errorf("Status = %s, want %s", task.Status, floodguard.TaskStateFailed)
	}
	if task.Error == nil || task.Error.Message != "pump jammed" {
		t.Errorf("Error = %v, want normalized %q", task.Error, "pump jammed")
	}
}

func TestTaskUpdaterCancelAndClose(t *testing.T) {
	t.Parallel()

	updater, _, _ := newTestUpdater(t)
	ctx := context.Background()

	if err := updater.Cancel(ctx, "superseded"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !updater.IsTerminal() {
		t.Error("IsTerminal() = false, want true")
	}

	closed, _, _ := newTestUpdater(t)
	if err := closed.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := closed.StartWork(ctx, ""); err == nil {
		t.Error("StartWork() after Close() error = nil, want error")
	}
}
