// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"sync"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// PushNotificationConfigStore defines the interface for storing and
// retrieving push notification configurations. One config is held per task
// and saving replaces any existing one (last write wins).
type PushNotificationConfigStore interface {
	// GetConfig retrieves the push notification configuration for a task.
	// Returns TaskNotFoundError if no configuration exists.
	GetConfig(ctx context.Context, taskID string) (*floodguard.PushNotificationConfig, error)

	// SaveConfig saves the push notification configuration for a task,
	// replacing any existing one.
	SaveConfig(ctx context.Context, taskID string, config *floodguard.PushNotificationConfig) error

	// DeleteConfig removes the push notification configuration for a task.
	// Returns TaskNotFoundError if no configuration exists.
	DeleteConfig(ctx context.Context, taskID string) error

	// ListConfigs retrieves all push notification configurations keyed by
	// task ID.
	ListConfigs(ctx context.Context) (map[string]*floodguard.PushNotificationConfig, error)

	// ExistsConfig checks if a configuration exists for a task.
	ExistsConfig(ctx context.Context, taskID string) (bool, error)

	// Initialize prepares the storage for use.
	Initialize(ctx context.Context) error

	// Close cleanly shuts down the storage.
	Close(ctx context.Context) error
}

// InMemoryPushNotificationConfigStore is an in-memory implementation of
// PushNotificationConfigStore. Configuration data is lost when the server
// process stops. All operations are thread-safe using sync.RWMutex.
type InMemoryPushNotificationConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*floodguard.PushNotificationConfig
}

var _ PushNotificationConfigStore = (*InMemoryPushNotificationConfigStore)(nil)

// NewInMemoryPushNotificationConfigStore creates a new in-memory push
// notification config store.
func NewInMemoryPushNotificationConfigStore() *InMemoryPushNotificationConfigStore {
	return &InMemoryPushNotificationConfigStore{
		configs: make(map[string]*floodguard.PushNotificationConfig),
	}
}

// GetConfig retrieves the push notification configuration for a task.
func (s *InMemoryPushNotificationConfigStore) GetConfig(ctx context.Context, taskID string) (*floodguard.PushNotificationConfig, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	config, exists := s.configs[taskID]
	if !exists {
		return nil, floodguard.NewTaskNotFoundError(taskID)
	}

	return config.Clone(), nil
}

// SaveConfig saves the push notification configuration for a task.
func (s *InMemoryPushNotificationConfigStore) SaveConfig(ctx context.Context, taskID string, config *floodguard.PushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid push notification config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Last write wins.
	s.configs[taskID] = config.Clone()
	return nil
}

// DeleteConfig removes the push notification configuration for a task.
func (s *InMemoryPushNotificationConfigStore) DeleteConfig(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[taskID]; !exists {
		return floodguard.NewTaskNotFoundError(taskID)
	}

	delete(s.configs, taskID)
	return nil
}

// ListConfigs retrieves all push notification configurations.
func (s *InMemoryPushNotificationConfigStore) ListConfigs(ctx context.Context) (map[string]*floodguard.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make(map[string]*floodguard.PushNotificationConfig, len(s.configs))
	for taskID, config := range s.configs {
		configs[taskID] = config.Clone()
	}
	return configs, nil
}

// ExistsConfig checks if a configuration exists for a task.
func (s *InMemoryPushNotificationConfigStore) ExistsConfig(ctx context.Context, taskID string) (bool, error) {
	if taskID == "" {
		return false, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.configs[taskID]
	return exists, nil
}

// Initialize prepares the in-memory storage for use.
func (s *InMemoryPushNotificationConfigStore) Initialize(ctx context.Context) error {
	return nil
}

// Close cleanly shuts down the in-memory storage.
func (s *InMemoryPushNotificationConfigStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs = make(map[string]*floodguard.PushNotificationConfig)
	return nil
}
