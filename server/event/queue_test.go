// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// testEvent is a minimal event for exercising queue plumbing.
type testEvent struct {
	id string
}

func (e *testEvent) EventType() string { return "test" }
func (e *testEvent) GetTaskID() string { return e.id }
func (e *testEvent) EventData() any    { return e.id }
func (e *testEvent) Validate() error   { return nil }
func (e *testEvent) String() string    { return "testEvent{" + e.id + "}" }

func mustEnqueue(t *testing.T, queue *EventQueue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := queue.EnqueueEvent(context.Background(), &testEvent{id: id}); err != nil {
			t.Fatalf("EnqueueEvent(%q) error = %v", id, err)
		}
	}
}

func eventIDs(events []Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.GetTaskID()
	}
	return ids
}

func TestNewEventQueue(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		maxSize      int
		wantErr      error
		wantCapacity int
	}{
		"success: explicit size": {
			maxSize:      16,
			wantCapacity: 16,
		},
		"success: zero size takes default": {
			maxSize:      0,
			wantCapacity: DefaultMaxQueueSize,
		},
		"error: negative size": {
			maxSize: -1,
			wantErr: ErrInvalidQueueSize,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			queue, err := NewEventQueue(tt.maxSize)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewEventQueue(%d) error = %v, want %v", tt.maxSize, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEventQueue(%d) error = %v", tt.maxSize, err)
			}
			if got := queue.Capacity(); got != tt.wantCapacity {
				t.Errorf("Capacity() = %d, want %d", got, tt.wantCapacity)
			}
		})
	}
}

func TestEventQueueSubscribeReplaysHistoryInOrder(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	mustEnqueue(t, queue, "a", "b", "c")

	var got []string
	unsubscribe, err := queue.Subscribe(func(seq uint64, ev Event) {
		got = append(got, ev.GetTaskID())
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	// All history replays before any live event.
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if i >= len(got) || got[i] != id {
			t.Fatalf("replayed events = %v, want %v", got, want)
		}
	}

	mustEnqueue(t, queue, "d")
	if len(got) != 4 || got[3] != "d" {
		t.Errorf("events after live publish = %v, want replay then %q", got, "d")
	}
}

func TestEventQueueHistoryEviction(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(8)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	total := HistoryLimit + 5
	for i := 0; i < total; i++ {
		mustEnqueue(t, queue, strconv.Itoa(i))
	}

	history := queue.History()
	if len(history) != HistoryLimit {
		t.Fatalf("len(History()) = %d, want %d", len(history), HistoryLimit)
	}
	if got, want := history[0].GetTaskID(), strconv.Itoa(5); got != want {
		t.Errorf("oldest retained event = %q, want %q", got, want)
	}
	if got, want := history[len(history)-1].GetTaskID(), strconv.Itoa(total-1); got != want {
		t.Errorf("newest retained event = %q, want %q", got, want)
	}
	if got := queue.LastSeq(); got != uint64(total) {
		t.Errorf("LastSeq() = %d, want %d", got, total)
	}
}

func TestEventQueueTapReceivesOnlyFutureEvents(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	mustEnqueue(t, queue, "before-1", "before-2")

	child, err := queue.Tap()
	if err != nil {
		t.Fatalf("Tap() error = %v", err)
	}

	mustEnqueue(t, queue, "after-1", "after-2", "after-3")

	got := eventIDs(child.History())
	want := []string{"after-1", "after-2", "after-3"}
	if len(got) != len(want) {
		t.Fatalf("child history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("child history = %v, want %v", got, want)
		}
	}

	// Parent history is unaffected by the tap.
	if got := len(queue.History()); got != 5 {
		t.Errorf("len(parent History()) = %d, want %d", got, 5)
	}
}

func TestEventQueueDequeue(t *testing.T) {
	t.Parallel()

	t.Run("drains buffered events in order", func(t *testing.T) {
		t.Parallel()

		queue, err := NewEventQueue(0)
		if err != nil {
			t.Fatalf("NewEventQueue() error = %v", err)
		}
		defer queue.Close()

		mustEnqueue(t, queue, "a", "b")

		for _, want := range []string{"a", "b"} {
			ev, err := queue.DequeueEvent(context.Background(), true)
			if err != nil {
				t.Fatalf("DequeueEvent() error = %v", err)
			}
			if got := ev.GetTaskID(); got != want {
				t.Errorf("DequeueEvent() = %q, want %q", got, want)
			}
		}

		if _, err := queue.DequeueEvent(context.Background(), true); !errors.Is(err, ErrQueueEmpty) {
			t.Errorf("DequeueEvent(noWait) on empty queue error = %v, want ErrQueueEmpty", err)
		}
	})

	t.Run("blocks until an event arrives", func(t *testing.T) {
		t.Parallel()

		queue, err := NewEventQueue(0)
		if err != nil {
			t.Fatalf("NewEventQueue() error = %v", err)
		}
		defer queue.Close()

		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = queue.EnqueueEvent(context.Background(), &testEvent{id: "late"})
		}()

		ev, err := queue.DequeueEvent(context.Background(), false)
		if err != nil {
			t.Fatalf("DequeueEvent() error = %v", err)
		}
		if got := ev.GetTaskID(); got != "late" {
			t.Errorf("DequeueEvent() = %q, want %q", got, "late")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		queue, err := NewEventQueue(0)
		if err != nil {
			t.Fatalf("NewEventQueue() error = %v", err)
		}
		defer queue.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := queue.DequeueEvent(ctx, false); !errors.Is(err, context.Canceled) {
			t.Errorf("DequeueEvent() error = %v, want context.Canceled", err)
		}
	})

	t.Run("drains buffer after close then reports closed", func(t *testing.T) {
		t.Parallel()

		queue, err := NewEventQueue(0)
		if err != nil {
			t.Fatalf("NewEventQueue() error = %v", err)
		}

		mustEnqueue(t, queue, "leftover")
		if err := queue.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		ev, err := queue.DequeueEvent(context.Background(), false)
		if err != nil {
			t.Fatalf("DequeueEvent() after close error = %v", err)
		}
		if got := ev.GetTaskID(); got != "leftover" {
			t.Errorf("DequeueEvent() = %q, want %q", got, "leftover")
		}

		if _, err := queue.DequeueEvent(context.Background(), false); !errors.Is(err, ErrQueueClosed) {
			t.Errorf("DequeueEvent() on drained closed queue error = %v, want ErrQueueClosed", err)
		}
	})

	t.Run("unblocks pending dequeue on close", func(t *testing.T) {
		t.Parallel()

		queue, err := NewEventQueue(0)
		if err != nil {
			t.Fatalf("NewEventQueue() error = %v", err)
		}

		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = queue.Close()
		}()

		if _, err := queue.DequeueEvent(context.Background(), false); !errors.Is(err, ErrQueueClosed) {
			t.Errorf("DequeueEvent() error = %v, want ErrQueueClosed", err)
		}
	})
}

func TestEventQueueBufferEvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(2)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	mustEnqueue(t, queue, "a", "b", "c")

	// The pull path drops the oldest buffered event; history keeps all.
	for _, want := range []string{"b", "c"} {
		ev, err := queue.DequeueEvent(context.Background(), true)
		if err != nil {
			t.Fatalf("DequeueEvent() error = %v", err)
		}
		if got := ev.GetTaskID(); got != want {
			t.Errorf("DequeueEvent() = %q, want %q", got, want)
		}
	}
	if got := len(queue.History()); got != 3 {
		t.Errorf("len(History()) = %d, want %d", got, 3)
	}
}

func TestEventQueueClose(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}

	child, err := queue.Tap()
	if err != nil {
		t.Fatalf("Tap() error = %v", err)
	}

	if err := queue.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if !queue.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if !child.IsClosed() {
		t.Error("child IsClosed() = false after parent Close")
	}

	if err := queue.EnqueueEvent(context.Background(), &testEvent{id: "x"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("EnqueueEvent() on closed queue error = %v, want ErrQueueClosed", err)
	}
	if _, err := queue.Subscribe(func(uint64, Event) {}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Subscribe() on closed queue error = %v, want ErrQueueClosed", err)
	}
	if _, err := queue.Tap(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Tap() on closed queue error = %v, want ErrQueueClosed", err)
	}

	select {
	case <-queue.Done():
	default:
		t.Error("Done() channel not closed after Close")
	}
}

func TestEventQueueSubscribeSince(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	mustEnqueue(t, queue, "1", "2", "3", "4", "5")

	var got []uint64
	unsubscribe, err := queue.SubscribeSince(3, func(seq uint64, ev Event) {
		got = append(got, seq)
	})
	if err != nil {
		t.Fatalf("SubscribeSince() error = %v", err)
	}
	defer unsubscribe()

	mustEnqueue(t, queue, "6")

	want := []uint64{4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("delivered seqs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered seqs = %v, want %v", got, want)
		}
	}
}

func TestEventQueueUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	var count int
	unsubscribe, err := queue.Subscribe(func(uint64, Event) { count++ })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	mustEnqueue(t, queue, "a")
	unsubscribe()
	mustEnqueue(t, queue, "b")

	if count != 1 {
		t.Errorf("deliveries = %d, want %d", count, 1)
	}
}

func TestEventQueueSubscribersNotifiedInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		if _, err := queue.Subscribe(func(uint64, Event) {
			order = append(order, name)
		}); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", name, err)
		}
	}

	mustEnqueue(t, queue, "x")

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("notification order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("notification order = %v, want %v", order, want)
		}
	}
}

func TestEventQueueSubscribeConcurrentWithPublish(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	const total = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_ = queue.EnqueueEvent(context.Background(), &testEvent{id: strconv.Itoa(i)})
		}
	}()

	// Join mid-storm. Replay plus live delivery must hand over every event
	// exactly once, in sequence order, with no gap at the boundary.
	time.Sleep(time.Millisecond)

	var mu sync.Mutex
	var seqs []uint64
	unsubscribe, err := queue.Subscribe(func(seq uint64, ev Event) {
		mu.Lock()
		seqs = append(seqs, seq)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != total {
		t.Fatalf("len(delivered) = %d, want %d", len(seqs), total)
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("delivered[%d] = %d, want %d (gap or duplicate at the replay boundary)", i, seq, i+1)
		}
	}
}

func TestEventQueueEnqueueNilEvent(t *testing.T) {
	t.Parallel()

	queue, err := NewEventQueue(0)
	if err != nil {
		t.Fatalf("NewEventQueue() error = %v", err)
	}
	defer queue.Close()

	if err := queue.EnqueueEvent(context.Background(), nil); err == nil {
		t.Error("EnqueueEvent(nil) error = nil, want error")
	}
}
