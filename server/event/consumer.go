// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultStatsWindow is the number of samples in the rolling processing
// time window.
const DefaultStatsWindow = 10

// ProcessFunc handles a single dequeued event.
type ProcessFunc func(ctx context.Context, event Event) error

// StatsSink receives per-task stats updates from consumers. Satisfied by
// QueueManager.
type StatsSink interface {
	UpdateStats(taskID string, update func(*QueueStats)) error
}

// ConsumerConfig holds the dependencies for a Consumer.
type ConsumerConfig struct {
	// TaskID is the task whose events are consumed.
	TaskID string
	// Queue is the queue to pull from, usually a tap child so the consumer
	// has its own backpressure and close semantics.
	Queue *EventQueue
	// Stats, when set, receives recomputed stats after every event.
	Stats StatsSink
	// WindowSize overrides the rolling window size. Defaults to
	// DefaultStatsWindow.
	WindowSize int
}

// Consumer pulls events off a queue one at a time and hands them to a
// handler, tracking throughput, average processing time and error rate over
// a rolling window. Delivery is at-most-once per consumer: a handler error
// terminates the loop.
type Consumer struct {
	taskID     string
	queue      *EventQueue
	stats      StatsSink
	windowSize int

	mu        sync.Mutex
	window    []float64 // elapsed per processed event, milliseconds
	processed uint64
	failed    uint64

	now func() time.Time
}

// NewConsumer creates a Consumer from the given config.
func NewConsumer(config ConsumerConfig) (*Consumer, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if config.WindowSize < 0 {
		return nil, fmt.Errorf("window size cannot be negative: %d", config.WindowSize)
	}
	if config.WindowSize == 0 {
		config.WindowSize = DefaultStatsWindow
	}

	return &Consumer{
		taskID:     config.TaskID,
		queue:      config.Queue,
		stats:      config.Stats,
		windowSize: config.WindowSize,
		window:     make([]float64, 0, config.WindowSize),
		now:        time.Now,
	}, nil
}

// Run consumes events until the queue closes or the handler fails. A clean
// queue close returns nil. A handler error increments the failure counters,
// pushes a final stats update and is returned wrapped; the loop does not
// continue past it.
func (c *Consumer) Run(ctx context.Context, handler ProcessFunc) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	for {
		start := c.now()

		event, err := c.queue.DequeueEvent(ctx, false)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return nil
			}
			return err
		}

		if herr := handler(ctx, event); herr != nil {
			c.recordFailure()
			c.pushStats()
			return fmt.Errorf("handle %s event for task %s: %w", event.EventType(), c.taskID, herr)
		}

		// Elapsed covers the dequeue wait too, so throughput reflects what
		// downstream actually observed.
		c.recordSuccess(c.now().Sub(start))
		c.pushStats()
	}
}

func (c *Consumer) recordSuccess(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processed++
	c.window = append(c.window, float64(elapsed.Microseconds())/1000.0)
	if len(c.window) > c.windowSize {
		c.window = c.window[len(c.window)-c.windowSize:]
	}
}

func (c *Consumer) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

// Stats computes the consumer's current view of processing statistics.
// Size and Consumers are left for the queue manager to fill in.
func (c *Consumer) Stats() QueueStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := QueueStats{
		Processed: c.processed,
		Failed:    c.failed,
	}

	var sum float64
	for _, ms := range c.window {
		sum += ms
	}
	if n := len(c.window); n > 0 && sum > 0 {
		stats.Throughput = float64(n) / (sum / 1000.0)
		stats.AvgProcessingTime = sum / float64(n)
	}
	if total := c.processed + c.failed; total > 0 {
		stats.ErrorRate = float64(c.failed) / float64(total)
	}
	return stats
}

func (c *Consumer) pushStats() {
	if c.stats == nil {
		return
	}

	snapshot := c.Stats()
	_ = c.stats.UpdateStats(c.taskID, func(s *QueueStats) {
		s.Processed = snapshot.Processed
		s.Failed = snapshot.Failed
		s.Throughput = snapshot.Throughput
		s.AvgProcessingTime = snapshot.AvgProcessingTime
		s.ErrorRate = snapshot.ErrorRate
	})
}
