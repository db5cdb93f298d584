// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	// DefaultMaxQueueSize is the default dequeue buffer capacity.
	DefaultMaxQueueSize = 1024

	// HistoryLimit is the maximum number of events retained for replay.
	// Publishing beyond the limit evicts the oldest entry first.
	HistoryLimit = 1000
)

// SubscribeFunc receives one event together with the queue sequence number
// assigned at publish time. Callbacks run synchronously under the queue
// lock: they must return quickly and must not call back into the queue.
type SubscribeFunc func(seq uint64, event Event)

type historyEntry struct {
	seq   uint64
	event Event
}

type subscription struct {
	id int
	fn SubscribeFunc
}

// EventQueue is a per-task publish/subscribe channel with bounded replayable
// history and hierarchical tap children.
//
// Every published event is retained in a history buffer capped at
// HistoryLimit entries, delivered synchronously to all subscribers in
// subscription order, buffered for pull-style consumers, and finally copied
// to every child queue created via Tap. A single mutex serializes publish
// against subscription, so a subscriber always sees the complete history
// followed by every live event, each exactly once.
type EventQueue struct {
	name    string
	maxSize int

	mu          sync.Mutex
	seq         uint64
	history     []historyEntry
	subscribers []subscription
	nextSubID   int
	children    []*EventQueue
	closed      bool

	events     chan Event
	doneSignal chan struct{}
	closeOnce  sync.Once
}

// NewEventQueue creates a new event queue with the specified dequeue buffer
// capacity. If maxSize is 0, DefaultMaxQueueSize is used.
func NewEventQueue(maxSize int) (*EventQueue, error) {
	return NewEventQueueWithName("queue", maxSize)
}

// NewEventQueueWithName creates a named event queue. The name shows up in
// queue errors and stats surfaces only.
func NewEventQueueWithName(name string, maxSize int) (*EventQueue, error) {
	if maxSize < 0 {
		return nil, ErrInvalidQueueSize
	}
	if maxSize == 0 {
		maxSize = DefaultMaxQueueSize
	}
	return &EventQueue{
		name:       name,
		maxSize:    maxSize,
		events:     make(chan Event, maxSize),
		doneSignal: make(chan struct{}),
	}, nil
}

// EnqueueEvent publishes an event: it is appended to the history buffer
// (evicting the oldest entry at capacity), delivered to all current
// subscribers in subscription order, buffered for DequeueEvent, and then
// propagated to every tap child. Returns ErrQueueClosed if the queue has
// been closed. Publishing never blocks; when the dequeue buffer is full the
// oldest buffered event is dropped from the pull path (history retains it).
func (q *EventQueue) EnqueueEvent(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.seq++
	if len(q.history) >= HistoryLimit {
		copy(q.history, q.history[1:])
		q.history[len(q.history)-1] = historyEntry{seq: q.seq, event: event}
	} else {
		q.history = append(q.history, historyEntry{seq: q.seq, event: event})
	}

	// All sends happen under mu, so after evicting one slot the retry
	// cannot fail.
	select {
	case q.events <- event:
	default:
		select {
		case <-q.events:
		default:
		}
		select {
		case q.events <- event:
		default:
		}
	}

	for _, sub := range q.subscribers {
		sub.fn(q.seq, event)
	}

	// Propagation stays under the lock so children observe events in
	// publish order. Children closed out-of-band are pruned here.
	kept := q.children[:0]
	for _, child := range q.children {
		if err := child.EnqueueEvent(ctx, event); err != nil && errors.Is(err, ErrQueueClosed) {
			continue
		}
		kept = append(kept, child)
	}
	q.children = kept

	return nil
}

// DequeueEvent retrieves the next buffered event.
// If noWait is true, returns immediately with ErrQueueEmpty if the buffer is
// empty. If noWait is false, blocks until an event is available, the context
// is canceled, or the queue is closed and drained (ErrQueueClosed).
func (q *EventQueue) DequeueEvent(ctx context.Context, noWait bool) (Event, error) {
	if noWait {
		select {
		case event := <-q.events:
			return event, nil
		default:
			if q.IsClosed() {
				return nil, ErrQueueClosed
			}
			return nil, ErrQueueEmpty
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event := <-q.events:
		return event, nil
	case <-q.doneSignal:
		// Drain events buffered before the close.
		select {
		case event := <-q.events:
			return event, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Subscribe replays the entire retained history to fn in original publish
// order, then registers fn for live events. The replay and registration are
// atomic with respect to concurrent publishes, so fn sees every event
// exactly once. Returns an unsubscribe function.
func (q *EventQueue) Subscribe(fn SubscribeFunc) (func(), error) {
	return q.SubscribeSince(0, fn)
}

// SubscribeSince behaves like Subscribe but replays only history entries
// with a sequence number greater than afterSeq. Resuming from a position
// older than the retained history degrades to replaying everything still
// buffered.
func (q *EventQueue) SubscribeSince(afterSeq uint64, fn SubscribeFunc) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe callback cannot be nil")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	for _, entry := range q.history {
		if entry.seq > afterSeq {
			fn(entry.seq, entry.event)
		}
	}

	id := q.nextSubID
	q.nextSubID++
	q.subscribers = append(q.subscribers, subscription{id: id, fn: fn})

	return func() { q.unsubscribe(id) }, nil
}

func (q *EventQueue) unsubscribe(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub.id == id {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// Tap creates and returns a new independent child queue that receives a
// copy of every event published to this queue after the tap call. History
// already buffered at tap time is not copied. Returns ErrQueueClosed if the
// queue is closed.
func (q *EventQueue) Tap() (*EventQueue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	child, err := NewEventQueueWithName(q.name+"-tap", q.maxSize)
	if err != nil {
		return nil, err
	}

	q.children = append(q.children, child)
	return child, nil
}

// Close marks the queue closed, recursively closes all tap children, and
// releases every subscriber registration. Pending DequeueEvent calls drain
// the remaining buffer and then return ErrQueueClosed. Idempotent.
func (q *EventQueue) Close() error {
	var closeErr error

	q.closeOnce.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		q.closed = true
		close(q.doneSignal)
		q.subscribers = nil

		for _, child := range q.children {
			if err := child.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
	})

	return closeErr
}

// Done returns a channel closed when the queue is closed.
func (q *EventQueue) Done() <-chan struct{} {
	return q.doneSignal
}

// IsClosed reports whether the queue has been closed.
func (q *EventQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Name returns the queue name.
func (q *EventQueue) Name() string {
	return q.name
}

// Size returns the number of events currently buffered for DequeueEvent.
func (q *EventQueue) Size() int {
	return len(q.events)
}

// Capacity returns the dequeue buffer capacity.
func (q *EventQueue) Capacity() int {
	return q.maxSize
}

// LastSeq returns the sequence number assigned to the most recently
// published event, or 0 if nothing has been published.
func (q *EventQueue) LastSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// History returns a snapshot of the retained event history in publish order.
func (q *EventQueue) History() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := make([]Event, len(q.history))
	for i, entry := range q.history {
		events[i] = entry.event
	}
	return events
}

// ConsumerCount returns the number of attached consumers: live subscribers
// plus tap children.
func (q *EventQueue) ConsumerCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subscribers) + len(q.children)
}
