// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"
	"sync"
	"time"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// QueueStats holds per-task queue bookkeeping. Throughput and
// AvgProcessingTime are computed by consumers over a sliding window and
// pushed in through UpdateStats; Size and Consumers are read live from the
// queue on every GetStats call.
type QueueStats struct {
	Size              int       `json:"size"`
	Consumers         int       `json:"consumers"`
	Processed         uint64    `json:"processed"`
	Failed            uint64    `json:"failed"`
	LastActivity      time.Time `json:"lastActivity,omitzero"`
	Throughput        float64   `json:"throughput"`
	AvgProcessingTime float64   `json:"avgProcessingTime"`
	ErrorRate         float64   `json:"errorRate"`
}

// QueueManager is a registry mapping task IDs to EventQueues, with
// lifecycle and statistics tracking.
type QueueManager interface {
	// Add registers a caller-constructed queue for the given task ID.
	// Returns QueueExistsError if one is already registered.
	Add(taskID string, queue *EventQueue) error

	// Get is a non-creating lookup.
	Get(taskID string) (*EventQueue, bool)

	// CreateOrGet returns the queue registered for the task ID, creating
	// and registering one if absent. The common entry point.
	CreateOrGet(taskID string) (*EventQueue, error)

	// Tap creates a child queue of the registered queue. Returns
	// NoQueueError if nothing is registered for the task ID.
	Tap(taskID string) (*EventQueue, error)

	// Close closes and deregisters the queue and its stats. Closing an
	// unregistered task ID is a no-op.
	Close(taskID string) error

	// CloseAll closes and deregisters every managed queue.
	CloseAll() error

	// GetStats returns the stats for the task ID with Size and Consumers
	// refreshed from the live queue. Returns NoQueueError if absent.
	GetStats(taskID string) (QueueStats, error)

	// UpdateStats applies a partial update to the stored stats and
	// refreshes LastActivity. Returns NoQueueError if absent.
	UpdateStats(taskID string, update func(*QueueStats)) error

	// TaskIDs returns all task IDs with registered queues.
	TaskIDs() []string

	// Count returns the number of registered queues.
	Count() int
}

// QueueManagerConfig holds configuration for queue managers.
type QueueManagerConfig struct {
	// MaxQueueSize is the dequeue buffer capacity for queues created by
	// CreateOrGet.
	MaxQueueSize int
}

// DefaultQueueManagerConfig returns the default queue manager configuration.
func DefaultQueueManagerConfig() *QueueManagerConfig {
	return &QueueManagerConfig{
		MaxQueueSize: DefaultMaxQueueSize,
	}
}

// QueueManagerOption configures a queue manager.
type QueueManagerOption func(*QueueManagerConfig)

// WithMaxQueueSize sets the dequeue buffer capacity for created queues.
func WithMaxQueueSize(size int) QueueManagerOption {
	return func(config *QueueManagerConfig) {
		config.MaxQueueSize = size
	}
}

// ApplyOptions applies the given options to the configuration.
func ApplyOptions(config *QueueManagerConfig, options ...QueueManagerOption) {
	for _, option := range options {
		option(config)
	}
}

type queueEntry struct {
	queue *EventQueue
	stats QueueStats
}

// InMemoryQueueManager is the in-process QueueManager implementation. One
// instance is shared per process and injected explicitly into everything
// that publishes or consumes events.
type InMemoryQueueManager struct {
	config *QueueManagerConfig

	mu      sync.RWMutex
	entries map[string]*queueEntry

	now func() time.Time
}

var _ QueueManager = (*InMemoryQueueManager)(nil)

// NewInMemoryQueueManager creates a new in-memory queue manager.
func NewInMemoryQueueManager(options ...QueueManagerOption) *InMemoryQueueManager {
	config := DefaultQueueManagerConfig()
	ApplyOptions(config, options...)
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = DefaultMaxQueueSize
	}

	return &InMemoryQueueManager{
		config:  config,
		entries: make(map[string]*queueEntry),
		now:     time.Now,
	}
}

// Add registers a caller-constructed queue for the given task ID.
func (m *InMemoryQueueManager) Add(taskID string, queue *EventQueue) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if queue == nil {
		return fmt.Errorf("queue cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[taskID]; exists {
		return floodguard.NewQueueExistsError(taskID)
	}

	m.entries[taskID] = &queueEntry{
		queue: queue,
		stats: QueueStats{LastActivity: m.now().UTC()},
	}
	return nil
}

// Get is a non-creating lookup of the queue for a task ID.
func (m *InMemoryQueueManager) Get(taskID string) (*EventQueue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[taskID]
	if !exists {
		return nil, false
	}
	return entry.queue, true
}

// CreateOrGet returns the registered queue for a task ID, creating one if
// necessary.
func (m *InMemoryQueueManager) CreateOrGet(taskID string) (*EventQueue, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	m.mu.RLock()
	entry, exists := m.entries[taskID]
	m.mu.RUnlock()
	if exists {
		return entry.queue, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check in case another goroutine created it.
	if entry, exists := m.entries[taskID]; exists {
		return entry.queue, nil
	}

	queue, err := NewEventQueueWithName(fmt.Sprintf("TaskQueue-%s", taskID), m.config.MaxQueueSize)
	if err != nil {
		return nil, err
	}

	m.entries[taskID] = &queueEntry{
		queue: queue,
		stats: QueueStats{LastActivity: m.now().UTC()},
	}
	return queue, nil
}

// Tap creates a child queue for the specified task.
func (m *InMemoryQueueManager) Tap(taskID string) (*EventQueue, error) {
	m.mu.RLock()
	entry, exists := m.entries[taskID]
	m.mu.RUnlock()

	if !exists {
		return nil, floodguard.NewNoQueueError(taskID)
	}
	return entry.queue.Tap()
}

// Close closes and deregisters the queue and stats for a task.
func (m *InMemoryQueueManager) Close(taskID string) error {
	m.mu.Lock()
	entry, exists := m.entries[taskID]
	delete(m.entries, taskID)
	m.mu.Unlock()

	if !exists {
		return nil
	}
	return entry.queue.Close()
}

// CloseAll closes and deregisters all managed queues.
func (m *InMemoryQueueManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for taskID, entry := range m.entries {
		if err := entry.queue.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.entries, taskID)
	}
	return firstErr
}

// GetStats returns the stats for a task ID. Size and Consumers reflect the
// live queue at call time.
func (m *InMemoryQueueManager) GetStats(taskID string) (QueueStats, error) {
	m.mu.RLock()
	entry, exists := m.entries[taskID]
	var stats QueueStats
	if exists {
		stats = entry.stats
	}
	m.mu.RUnlock()

	if !exists {
		return QueueStats{}, floodguard.NewNoQueueError(taskID)
	}

	stats.Size = entry.queue.Size()
	stats.Consumers = entry.queue.ConsumerCount()
	return stats, nil
}

// UpdateStats applies a partial update to the stored stats and refreshes
// LastActivity.
func (m *InMemoryQueueManager) UpdateStats(taskID string, update func(*QueueStats)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[taskID]
	if !exists {
		return floodguard.NewNoQueueError(taskID)
	}

	if update != nil {
		update(&entry.stats)
	}
	entry.stats.LastActivity = m.now().UTC()
	return nil
}

// TaskIDs returns all task IDs with registered queues.
func (m *InMemoryQueueManager) TaskIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered queues.
func (m *InMemoryQueueManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
