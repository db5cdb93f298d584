// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
	"github.com/heyubaidullah/floodguard-sub000/server/event"
)

// TaskManager is the façade executors and orchestrators use to drive task
// lifecycles. It orchestrates the TaskStore, the state machine and the
// TaskEventManager: every mutation is validated, persisted atomically
// (status and transition history in one Save) and then announced as typed
// events on the task's queue.
type TaskManager struct {
	store  TaskStore
	queues event.QueueManager
	events *event.TaskEventManager
	logger *slog.Logger
	tracer trace.Tracer

	mu          sync.RWMutex
	aggregators map[string]*ResultAggregator
	closed      bool
}

// TaskManagerConfig holds configuration for creating a TaskManager.
type TaskManagerConfig struct {
	// Store persists tasks. Required.
	Store TaskStore

	// Queues is the process-wide queue registry. Required.
	Queues event.QueueManager

	// Events translates lifecycle changes into typed events. When nil, a
	// TaskEventManager is built over Queues.
	Events *event.TaskEventManager

	// Logger receives lifecycle-edge logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Tracer traces public operations. Defaults to the global provider.
	Tracer trace.Tracer
}

// NewTaskManager creates a new TaskManager with the given configuration.
func NewTaskManager(config TaskManagerConfig) (*TaskManager, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	if config.Queues == nil {
		return nil, fmt.Errorf("queue manager cannot be nil")
	}

	events := config.Events
	if events == nil {
		var err error
		events, err = event.NewTaskEventManager(event.TaskEventManagerConfig{Queues: config.Queues})
		if err != nil {
			return nil, err
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("github.com/heyubaidullah/floodguard-sub000/server/task")
	}

	return &TaskManager{
		store:       config.Store,
		queues:      config.Queues,
		events:      events,
		logger:      logger,
		tracer:      tracer,
		aggregators: make(map[string]*ResultAggregator),
	}, nil
}

// CreateTask creates a task from the spec in the submitted state, persists
// it and publishes a taskCreated event. Tasks declaring an expected part
// count get a ResultAggregator attached.
func (m *TaskManager) CreateTask(ctx context.Context, spec floodguard.TaskSpec) (*floodguard.Task, error) {
	ctx, span := m.tracer.Start(ctx, "floodguard.task_manager.create_task")
	defer span.End()

	if err := m.checkOpen(); err != nil {
		return nil, m.recordError(span, err)
	}

	task, err := floodguard.NewTask(spec)
	if err != nil {
		return nil, m.recordError(span, err)
	}
	span.SetAttributes(attribute.String("floodguard.task_id", task.ID))

	if err := m.store.Save(ctx, task); err != nil {
		return nil, m.recordError(span, err)
	}

	if task.ExpectedParts > 0 {
		aggregator, err := NewResultAggregator(ResultAggregatorConfig{
			TaskID:        task.ID,
			ExpectedParts: task.ExpectedParts,
		})
		if err != nil {
			return nil, m.recordError(span, err)
		}
		m.mu.Lock()
		m.aggregators[task.ID] = aggregator
		m.mu.Unlock()
	}

	if err := m.events.TaskCreated(ctx, task); err != nil {
		return nil, m.recordError(span, err)
	}

	m.logger.InfoContext(ctx, "task created",
		slog.String("task_id", task.ID),
		slog.String("name", task.Name),
		slog.Int("expected_parts", task.ExpectedParts))

	return task, nil
}

// GetTask retrieves a task by ID.
func (m *TaskManager) GetTask(ctx context.Context, taskID string) (*floodguard.Task, error) {
	ctx, span := m.tracer.Start(ctx, "floodguard.task_manager.get_task",
		trace.WithAttributes(attribute.String("floodguard.task_id", taskID)))
	defer span.End()

	if err := m.checkOpen(); err != nil {
		return nil, m.recordError(span, err)
	}

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, m.recordError(span, err)
	}
	return task, nil
}

// UpdateTaskStatus transitions the task to the given state, enforcing the
// state machine. The transition record and the new status are persisted in
// the same Save; a taskUpdated event follows, and transitions into a
// terminal state additionally publish the matching terminal verb.
func (m *TaskManager) UpdateTaskStatus(ctx context.Context, taskID string, to floodguard.TaskState, reason string) (*floodguard.Task, error) {
	ctx, span := m.tracer.Start(ctx, "floodguard.task_manager.update_task_status",
		trace.WithAttributes(
			attribute.String("floodguard.task_id", taskID),
			attribute.String("floodguard.task_state", to.String())))
	defer span.End()

	if err := m.checkOpen(); err != nil {
		return nil, m.recordError(span, err)
	}
	if !to.IsValid() {
		return nil, m.recordError(span, fmt.Errorf("invalid task state: %q", to))
	}

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, m.recordError(span, err)
	}

	var cause error
	if to == floodguard.TaskStateFailed {
		if reason == "" {
			cause = fmt.Errorf("task failed")
		} else {
			cause = fmt.Errorf("%s", reason)
		}
	}

	task, err = m.transition(ctx, task, to, reason, cause)
	if err != nil {
		return nil, m.recordError(span, err)
	}
	return task, nil
}

// CancelTask cancels a non-terminal task. Cancellation is cooperative: the
// task is marked canceled and a taskCanceled event is published, but an
// in-flight executor is never preempted; it is expected to observe the
// state (or its context) and stop producing.
func (m *TaskManager) CancelTask(ctx context.Context, taskID, reason string) (*floodguard.Task, error) {
	ctx, span := m.tracer.Start(ctx, "floodguard.task_manager.cancel_task",
		trace.WithAttributes(attribute.String("floodguard.task_id", taskID)))
	defer span.End()

	if err := m.checkOpen(); err != nil {
		return nil, m.recordError(span, err)
	}

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, m.recordError(span, err)
	}

	if task.Status.IsTerminal() {
		if task.Status == floodguard.TaskStateCanceled {
			return nil, m.recordError(span, floodguard.NewTaskCanceledError(taskID))
		}
		return nil, m.recordError(span, floodguard.NewTaskAlreadyCompletedError(taskID, task.Status))
	}

	task, err = m.transition(ctx, task, floodguard.TaskStateCanceled, reason, nil)
	if err != nil {
		return nil, m.recordError(span, err)
	}
	return task, nil
}

// FailTask transitions the task to failed with cause normalized into the
// standard error shape. The normalized error is persisted on the task and
// carried by the taskFailed event, so callers never have to consult logs to
// learn why a task failed.
func (m *TaskManager) FailTask(ctx context.Context, taskID string, cause error) (*floodguard.Task, error) {
	ctx, span := m.tracer.Start(ctx, "floodguard.task_manager.fail_task",
		trace.WithAttributes(attribute.String("floodguard.task_id", taskID)))
	defer span.End()

	if err := m.checkOpen(); err != nil {
		return nil, m.recordError(span, err)
	}
	if cause == nil {
		return nil, m.recordError(span, fmt.Errorf("failure cause cannot be nil"))
	}

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, m.recordError(span, err)
	}

	task, err = m.transition(ctx, task, floodguard.TaskStateFailed, cause.Error(), cause)
	if err != nil {
		return nil, m.recordError(span, err)
	}
	return task, nil
}

// AddArtifact attaches an artifact produced by an executor to the task and
// publishes an artifactAdded event. Artifacts are immutable: they are only
// ever added, never edited. Terminal tasks reject new artifacts; that is
// the executor's cancellation obligation surfacing as an error.
func (m *TaskManager) AddArtifact(ctx context.Context, taskID string, artifact *floodguard.Artifact) (*floodguard.Task, error) {
	ctx, span := m.tracer.Start(ctx, "floodguard.task_manager.add_artifact",
		trace.WithAttributes(attribute.String("floodguard.task_id", taskID)))
	defer span.End()

	if err := m.checkOpen(); err != nil {
		return nil, m.recordError(span, err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, m.recordError(span, err)
	}

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, m.recordError(span, err)
	}

	if task.Status.IsTerminal() {
		if task.Status == floodguard.TaskStateCanceled {
			return nil, m.recordError(span, floodguard.NewTaskCanceledError(taskID))
		}
		return nil, m.recordError(span, floodguard.NewTaskAlreadyCompletedError(taskID, task.Status))
	}

	task.Artifacts = append(task.Artifacts, artifact.Clone())
	task.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(ctx, task); err != nil {
		return nil, m.recordError(span, err)
	}
	if err := m.events.ArtifactAdded(ctx, task, artifact); err != nil {
		return nil, m.recordError(span, err)
	}

	return task, nil
}

// GetArtifacts returns the artifacts attached to the task.
func (m *TaskManager) GetArtifacts(ctx context.Context, taskID string) ([]*floodguard.Artifact, error) {
	task, err := m.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task.Artifacts, nil
}

// AddPart appends a streamed message part to the task and feeds the task's
// ResultAggregator when one is attached.
func (m *TaskManager) AddPart(ctx context.Context, taskID string, part *floodguard.PartEnvelope) (*floodguard.Task, error) {
	ctx, span := m.tracer.Start(ctx, "floodguard.task_manager.add_part",
		trace.WithAttributes(attribute.String("floodguard.task_id", taskID)))
	defer span.End()

	if err := m.checkOpen(); err != nil {
		return nil, m.recordError(span, err)
	}
	if err := part.Validate(); err != nil {
		return nil, m.recordError(span, err)
	}

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, m.recordError(span, err)
	}

	if task.Status.IsTerminal() {
		if task.Status == floodguard.TaskStateCanceled {
			return nil, m.recordError(span, floodguard.NewTaskCanceledError(taskID))
		}
		return nil, m.recordError(span, floodguard.NewTaskAlreadyCompletedError(taskID, task.Status))
	}

	if aggregator, ok := m.Aggregator(taskID); ok {
		if err := aggregator.AddPart(part); err != nil {
			return nil, m.recordError(span, err)
		}
	}

	task.Parts = append(task.Parts, part)
	if err := m.store.Save(ctx, task); err != nil {
		return nil, m.recordError(span, err)
	}

	return task, nil
}

// Aggregator returns the ResultAggregator attached to the task, if any.
func (m *TaskManager) Aggregator(taskID string) (*ResultAggregator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	aggregator, ok := m.aggregators[taskID]
	return aggregator, ok
}

// Updater returns an executor-facing TaskUpdater bound to the given task.
func (m *TaskManager) Updater(taskID string) (*TaskUpdater, error) {
	return NewTaskUpdater(TaskUpdaterConfig{TaskID: taskID, Manager: m})
}

// Subscribe registers a callback on the task's queue, creating the queue if
// necessary. The full queue history is replayed before live delivery
// starts. Returns an unsubscribe function.
func (m *TaskManager) Subscribe(taskID string, fn event.SubscribeFunc) (func(), error) {
	queue, err := m.queues.CreateOrGet(taskID)
	if err != nil {
		return nil, err
	}
	return queue.Subscribe(fn)
}

// Tap returns an independent child of the task's queue for an isolated
// consumer. Fails with NoQueueError when no queue is registered.
func (m *TaskManager) Tap(taskID string) (*event.EventQueue, error) {
	return m.queues.Tap(taskID)
}

// GetStats returns the queue statistics for the task.
func (m *TaskManager) GetStats(taskID string) (event.QueueStats, error) {
	return m.queues.GetStats(taskID)
}

// Close shuts down the manager. Attached aggregators are dropped; the
// store and queue registry are owned by the caller and stay open.
func (m *TaskManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.aggregators = make(map[string]*ResultAggregator)
	return nil
}

// transition applies the validated state change, persists status and
// transition history in one Save, and publishes the taskUpdated event plus
// the terminal verb when the new state is terminal.
func (m *TaskManager) transition(ctx context.Context, task *floodguard.Task, to floodguard.TaskState, reason string, cause error) (*floodguard.Task, error) {
	previous, err := applyTransition(task, to, reason)
	if err != nil {
		return nil, err
	}

	if to == floodguard.TaskStateFailed && cause != nil {
		task.Error = floodguard.NormalizeError(cause)
	}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}

	if err := m.events.TaskUpdated(ctx, task, previous); err != nil {
		return nil, err
	}

	switch to {
	case floodguard.TaskStateCompleted:
		if aggregator, ok := m.Aggregator(task.ID); ok {
			aggregator.Complete()
		}
		if err := m.events.TaskCompleted(ctx, task); err != nil {
			return nil, err
		}
	case floodguard.TaskStateFailed:
		if cause == nil {
			cause = fmt.Errorf("task failed")
		}
		if err := m.events.TaskFailed(ctx, task, cause); err != nil {
			return nil, err
		}
		m.logger.WarnContext(ctx, "task failed",
			slog.String("task_id", task.ID),
			slog.String("error", task.Error.Message))
	case floodguard.TaskStateCanceled:
		if err := m.events.TaskCanceled(ctx, task, reason); err != nil {
			return nil, err
		}
	}

	m.logger.InfoContext(ctx, "task transitioned",
		slog.String("task_id", task.ID),
		slog.String("from", previous.String()),
		slog.String("to", to.String()))

	return task, nil
}

func (m *TaskManager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("task manager is closed")
	}
	return nil
}

func (m *TaskManager) recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
