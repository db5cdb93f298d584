// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"errors"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// RPC method names exposed by the runtime.
const (
	// MethodTasksCreate is the method name for creating a task.
	MethodTasksCreate = "tasks/create"
	// MethodTasksGet is the method name for getting a task.
	MethodTasksGet = "tasks/get"
	// MethodTasksUpdateStatus is the method name for transitioning a task.
	MethodTasksUpdateStatus = "tasks/updateStatus"
	// MethodTasksCancel is the method name for canceling a task.
	MethodTasksCancel = "tasks/cancel"
	// MethodTasksArtifactsAdd is the method name for adding an artifact to a task.
	MethodTasksArtifactsAdd = "tasks/artifacts/add"
	// MethodTasksArtifactsGet is the method name for listing a task's artifacts.
	MethodTasksArtifactsGet = "tasks/artifacts/get"
	// MethodTasksResubscribe is the method name for resubscribing to task events.
	MethodTasksResubscribe = "tasks/resubscribe"
	// MethodTasksPushConfigSet is the method name for setting push notification configuration.
	MethodTasksPushConfigSet = "tasks/pushConfig/set"
	// MethodTasksPushConfigGet is the method name for getting push notification configuration.
	MethodTasksPushConfigGet = "tasks/pushConfig/get"
	// MethodTasksStatsGet is the method name for reading a task queue's statistics.
	MethodTasksStatsGet = "tasks/stats/get"
)

// Standard JSON-RPC 2.0 protocol error codes.
const (
	ErrorCodeJSONParse      = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
)

// ID represents the unique identifier for JSON-RPC messages.
type ID struct {
	any
}

// NewID wraps a string or number as a JSON-RPC ID.
func NewID(id any) ID {
	return ID{id}
}

// String returns the string form of the ID.
func (id ID) String() string {
	switch id := id.any.(type) {
	case nil:
		return ""
	case string:
		return id
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.any)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &id.any)
}

// JSONRPCMessage is the base structure for all JSON-RPC 2.0 messages.
type JSONRPCMessage struct {
	// JSONRPC version, always "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID correlates a response with its request. String, number, or null.
	ID ID `json:"id,omitzero"`
}

// NewJSONRPCMessage creates a new JSONRPCMessage with the given id.
func NewJSONRPCMessage(id any) JSONRPCMessage {
	return JSONRPCMessage{
		JSONRPC: "2.0",
		ID:      ID{id},
	}
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPCMessage

	// Method identifies the operation to perform.
	Method string `json:"method"`
	// Params contains parameters for the method.
	Params jsontext.Value `json:"params,omitzero"`
}

// NewJSONRPCRequest creates a request for the given method, marshaling
// params when non-nil.
func NewJSONRPCRequest(id any, method string, params any) (*JSONRPCRequest, error) {
	req := &JSONRPCRequest{
		JSONRPCMessage: NewJSONRPCMessage(id),
		Method:         method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	// Code is the error code.
	Code int `json:"code"`
	// Message is a short description of the error.
	Message string `json:"message"`
	// Data contains optional additional error details.
	Data any `json:"data,omitzero"`
}

// Error returns the error message.
func (e *JSONRPCError) Error() string {
	return e.Message
}

// JSONRPCResponse represents a JSON-RPC 2.0 response. Result and Error are
// mutually exclusive.
type JSONRPCResponse struct {
	JSONRPCMessage

	// Result contains the successful result data.
	Result any `json:"result,omitzero"`
	// Error contains an error object if the request failed.
	Error *JSONRPCError `json:"error,omitzero"`
}

// NewResultResponse builds the success response for a request.
func NewResultResponse(id any, result any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPCMessage: NewJSONRPCMessage(id),
		Result:         result,
	}
}

// NewErrorResponse builds the failure response for a request, projecting err
// onto the wire error registry.
func NewErrorResponse(id any, err error) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPCMessage: NewJSONRPCMessage(id),
		Error:          ToJSONRPCError(err),
	}
}

// ToJSONRPCError projects a runtime error onto the JSON-RPC error object.
// Coded taxonomy errors carry their registry code; anything else is an
// internal error.
func ToJSONRPCError(err error) *JSONRPCError {
	if err == nil {
		return nil
	}

	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return &JSONRPCError{Code: taskErr.Code, Message: taskErr.Message, Data: taskErr.Data}
	}

	var coded CodedError
	if errors.As(err, &coded) {
		norm := NormalizeError(coded)
		return &JSONRPCError{Code: norm.Code, Message: norm.Message, Data: norm.Data}
	}

	return &JSONRPCError{Code: ErrorCodeInternalError, Message: err.Error()}
}
