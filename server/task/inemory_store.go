// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"sync"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// InMemoryTaskStore is an in-memory implementation of TaskStore.
// Task data is lost when the server process stops.
// All operations are thread-safe using sync.RWMutex.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*floodguard.Task
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// NewInMemoryTaskStore creates a new InMemoryTaskStore.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*floodguard.Task),
	}
}

// Save persists a task to the in-memory storage.
func (s *InMemoryTaskStore) Save(ctx context.Context, task *floodguard.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if err := task.Validate(); err != nil {
		return NewTaskValidationError(task.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Deep copy in so later caller mutations never leak into the store.
	s.tasks[task.ID] = task.Clone()

	return nil
}

// Get retrieves a task by its ID from the in-memory storage.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*floodguard.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, floodguard.NewTaskNotFoundError(taskID)
	}

	return task.Clone(), nil
}

// Delete removes a task from the in-memory storage.
func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[taskID]; !exists {
		return floodguard.NewTaskNotFoundError(taskID)
	}

	delete(s.tasks, taskID)
	return nil
}

// List retrieves tasks with optional filtering by context ID.
func (s *InMemoryTaskStore) List(ctx context.Context, contextID string, limit, offset int) ([]*floodguard.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*floodguard.Task
	count := 0

	for _, task := range s.tasks {
		if contextID != "" && task.ContextID != contextID {
			continue
		}

		if count < offset {
			count++
			continue
		}

		if limit > 0 && len(tasks) >= limit {
			break
		}

		tasks = append(tasks, task.Clone())
		count++
	}

	return tasks, nil
}

// Count returns the total number of tasks in the in-memory storage.
func (s *InMemoryTaskStore) Count(ctx context.Context, contextID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if contextID == "" {
		return int64(len(s.tasks)), nil
	}

	count := int64(0)
	for _, task := range s.tasks {
		if task.ContextID == contextID {
			count++
		}
	}

	return count, nil
}

// Initialize prepares the in-memory storage for use.
func (s *InMemoryTaskStore) Initialize(ctx context.Context) error {
	// No initialization needed for in-memory storage
	return nil
}

// Close cleanly shuts down the in-memory storage.
func (s *InMemoryTaskStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*floodguard.Task)
	return nil
}

// Clear removes all tasks from the in-memory storage.
// This is useful for testing purposes.
func (s *InMemoryTaskStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*floodguard.Task)
}

// Size returns the current number of tasks in the in-memory storage.
// This is useful for testing and monitoring purposes.
func (s *InMemoryTaskStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tasks)
}
