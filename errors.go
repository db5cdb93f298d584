// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"errors"
	"fmt"
)

// Error codes carried on the wire in JSON-RPC error objects. Task errors,
// queue errors, and the circuit-open rejection occupy disjoint ranges.
const (
	ErrorCodeInvalidTaskState     = -32010
	ErrorCodeTaskNotFound         = -32011
	ErrorCodeTaskAlreadyCompleted = -32012
	ErrorCodeTaskCanceled         = -32013
	ErrorCodeTaskFailed           = -32014

	ErrorCodeQueueExists = -32050
	ErrorCodeNoQueue     = -32051

	ErrorCodeCircuitOpen = -32060
)

// CodedError is implemented by every error in the runtime's taxonomy; the
// code selects the JSON-RPC error code used on the wire.
type CodedError interface {
	error
	ErrorCode() int
}

// InvalidTaskStateError reports an illegal state transition attempt.
type InvalidTaskStateError struct {
	TaskID string
	From   TaskState
	To     TaskState
}

// NewInvalidTaskStateError creates a new InvalidTaskStateError.
func NewInvalidTaskStateError(taskID string, from, to TaskState) InvalidTaskStateError {
	return InvalidTaskStateError{TaskID: taskID, From: from, To: to}
}

// Error returns the error message.
func (e InvalidTaskStateError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("invalid task state transition from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("task %s: invalid state transition from %s to %s", e.TaskID, e.From, e.To)
}

// ErrorCode returns the wire error code.
func (e InvalidTaskStateError) ErrorCode() int { return ErrorCodeInvalidTaskState }

// Is reports whether target is an InvalidTaskStateError.
func (e InvalidTaskStateError) Is(target error) bool {
	_, ok := target.(InvalidTaskStateError)
	return ok
}

// TaskNotFoundError reports a lookup for a task the store does not hold.
type TaskNotFoundError struct {
	TaskID string
}

// NewTaskNotFoundError creates a new TaskNotFoundError.
func NewTaskNotFoundError(taskID string) TaskNotFoundError {
	return TaskNotFoundError{TaskID: taskID}
}

// Error returns the error message.
func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// ErrorCode returns the wire error code.
func (e TaskNotFoundError) ErrorCode() int { return ErrorCodeTaskNotFound }

// Is reports whether target is a TaskNotFoundError.
func (e TaskNotFoundError) Is(target error) bool {
	_, ok := target.(TaskNotFoundError)
	return ok
}

// TaskAlreadyCompletedError reports an operation on a task that has already
// reached a terminal state.
type TaskAlreadyCompletedError struct {
	TaskID string
	State  TaskState
}

// NewTaskAlreadyCompletedError creates a new TaskAlreadyCompletedError.
func NewTaskAlreadyCompletedError(taskID string, state TaskState) TaskAlreadyCompletedError {
	return TaskAlreadyCompletedError{TaskID: taskID, State: state}
}

// Error returns the error message.
func (e TaskAlreadyCompletedError) Error() string {
	return fmt.Sprintf("task %s already finished in state %s", e.TaskID, e.State)
}

// ErrorCode returns the wire error code.
func (e TaskAlreadyCompletedError) ErrorCode() int { return ErrorCodeTaskAlreadyCompleted }

// Is reports whether target is a TaskAlreadyCompletedError.
func (e TaskAlreadyCompletedError) Is(target error) bool {
	_, ok := target.(TaskAlreadyCompletedError)
	return ok
}

// TaskCanceledError reports an operation on a canceled task.
type TaskCanceledError struct {
	TaskID string
}

// NewTaskCanceledError creates a new TaskCanceledError.
func NewTaskCanceledError(taskID string) TaskCanceledError {
	return TaskCanceledError{TaskID: taskID}
}

// Error returns the error message.
func (e TaskCanceledError) Error() string {
	return fmt.Sprintf("task %s is canceled", e.TaskID)
}

// ErrorCode returns the wire error code.
func (e TaskCanceledError) ErrorCode() int { return ErrorCodeTaskCanceled }

// Is reports whether target is a TaskCanceledError.
func (e TaskCanceledError) Is(target error) bool {
	_, ok := target.(TaskCanceledError)
	return ok
}

// TaskFailedError wraps the cause an executor reported when a task failed.
type TaskFailedError struct {
	TaskID string
	Err    error
}

// NewTaskFailedError creates a new TaskFailedError.
func NewTaskFailedError(taskID string, err error) TaskFailedError {
	return TaskFailedError{TaskID: taskID, Err: err}
}

// Error returns the error message.
func (e TaskFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("task %s failed", e.TaskID)
	}
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e TaskFailedError) Unwrap() error { return e.Err }

// ErrorCode returns the wire error code.
func (e TaskFailedError) ErrorCode() int { return ErrorCodeTaskFailed }

// Is reports whether target is a TaskFailedError.
func (e TaskFailedError) Is(target error) bool {
	_, ok := target.(TaskFailedError)
	return ok
}

// QueueExistsError reports a queue registration for a task ID that already
// has one.
type QueueExistsError struct {
	TaskID string
}

// NewQueueExistsError creates a new QueueExistsError.
func NewQueueExistsError(taskID string) QueueExistsError {
	return QueueExistsError{TaskID: taskID}
}

// Error returns the error message.
func (e QueueExistsError) Error() string {
	return fmt.Sprintf("queue already exists for task %s", e.TaskID)
}

// ErrorCode returns the wire error code.
func (e QueueExistsError) ErrorCode() int { return ErrorCodeQueueExists }

// Is reports whether target is a QueueExistsError.
func (e QueueExistsError) Is(target error) bool {
	_, ok := target.(QueueExistsError)
	return ok
}

// NoQueueError reports an operation on a task ID with no registered queue.
type NoQueueError struct {
	TaskID string
}

// NewNoQueueError creates a new NoQueueError.
func NewNoQueueError(taskID string) NoQueueError {
	return NoQueueError{TaskID: taskID}
}

// Error returns the error message.
func (e NoQueueError) Error() string {
	return fmt.Sprintf("no queue registered for task %s", e.TaskID)
}

// ErrorCode returns the wire error code.
func (e NoQueueError) ErrorCode() int { return ErrorCodeNoQueue }

// Is reports whether target is a NoQueueError.
func (e NoQueueError) Is(target error) bool {
	_, ok := target.(NoQueueError)
	return ok
}

// CircuitOpenError reports a call rejected by an open circuit breaker. The
// underlying transient cause is deliberately not carried to avoid retry
// storms against a failing downstream.
type CircuitOpenError struct {
	Name string
}

// NewCircuitOpenError creates a new CircuitOpenError.
func NewCircuitOpenError(name string) CircuitOpenError {
	return CircuitOpenError{Name: name}
}

// Error returns the error message.
func (e CircuitOpenError) Error() string {
	if e.Name == "" {
		return "circuit breaker is open"
	}
	return fmt.Sprintf("circuit breaker %s is open", e.Name)
}

// ErrorCode returns the wire error code.
func (e CircuitOpenError) ErrorCode() int { return ErrorCodeCircuitOpen }

// Is reports whether target is a CircuitOpenError.
func (e CircuitOpenError) Is(target error) bool {
	_, ok := target.(CircuitOpenError)
	return ok
}

// TaskError is the normalized {code, message, data} error shape attached to
// failed tasks and carried in taskFailed events and wire responses.
type TaskError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

// Error returns the error message.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task error %d: %s", e.Code, e.Message)
}

// NormalizeError converts an arbitrary error into the normalized TaskError
// shape. Coded taxonomy errors keep their code; anything else is reported as
// a task failure. The result is always a fresh value, never the input's
// identity.
func NormalizeError(err error) *TaskError {
	if err == nil {
		return nil
	}

	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return &TaskError{Code: taskErr.Code, Message: taskErr.Message, Data: taskErr.Data}
	}

	var coded CodedError
	if errors.As(err, &coded) {
		out := &TaskError{Code: coded.ErrorCode(), Message: coded.Error()}
		if cause := errors.Unwrap(coded); cause != nil {
			out.Data = map[string]any{"cause": cause.Error()}
		}
		return out
	}

	return &TaskError{Code: ErrorCodeTaskFailed, Message: err.Error()}
}
