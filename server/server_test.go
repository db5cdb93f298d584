// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
	"github.com/heyubaidullah/floodguard-sub000/server/event"
	"github.com/heyubaidullah/floodguard-sub000/server/task"
)

func testAgentCard() *floodguard.AgentCard {
	return &floodguard.AgentCard{
		ID:           "floodguard-test",
		Name:         "FloodGuard Test Agent",
		Capabilities: []string{"tasks", "streaming"},
		Endpoint:     "http://localhost/",
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *task.TaskManager) {
	t.Helper()

	queues := event.NewInMemoryQueueManager()
	manager, err := task.NewTaskManager(task.TaskManagerConfig{
		Store:  task.NewInMemoryTaskStore(),
		Queues: queues,
	})
	if err != nil {
		t.Fatalf("NewTaskManager() error = %v", err)
	}

	notifier, err := NewPushNotifier(PushNotifierConfig{
		Configs: task.NewInMemoryPushNotificationConfigStore(),
		Queues:  queues,
	})
	if err != nil {
		t.Fatalf("NewPushNotifier() error = %v", err)
	}

	server, err := NewServer(ServerConfig{
		TaskManager: manager,
		Queues:      queues,
		AgentCard:   testAgentCard(),
		Notifier:    notifier,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	srv := httptest.NewServer(server)
	t.Cleanup(func() {
		srv.Close()
		notifier.Close()
		manager.Close()
		queues.CloseAll()
	})
	return srv, manager
}

type rpcResponse struct {
	Result jsontext.Value           `json:"result"`
	Error  *floodguard.JSONRPCError `json:"error"`
}

func rpcCall(t *testing.T, srv *httptest.Server, method string, params any) rpcResponse {
	t.Helper()

	req, err := floodguard.NewJSONRPCRequest("test-1", method, params)
	if err != nil {
		t.Fatalf("NewJSONRPCRequest() error = %v", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	resp, err := srv.Client().Post(srv.URL+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	var out rpcResponse
	if err := json.UnmarshalRead(resp.Body, &out); err != nil {
		t.Fatalf("UnmarshalRead() error = %v", err)
	}
	return out
}

func mustResult[T any](t *testing.T, resp rpcResponse) T {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("rpc error = %d %s", resp.Error.Code, resp.Error.Message)
	}
	var out T
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("Unmarshal result: %v", err)
	}
	return out
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	queues := event.NewInMemoryQueueManager()
	manager, err := task.NewTaskManager(task.TaskManagerConfig{
		Store:  task.NewInMemoryTaskStore(),
		Queues: queues,
	})
	if err != nil {
		t.Fatalf("NewTaskManager() error = %v", err)
	}

	tests := map[string]struct {
		config  ServerConfig
		wantErr bool
	}{
		"success: full config": {
			config: ServerConfig{TaskManager: manager, Queues: queues, AgentCard: testAgentCard()},
		},
		"error: nil task manager": {
			config:  ServerConfig{Queues: queues, AgentCard: testAgentCard()},
			wantErr: true,
		},
		"error: nil queues": {
			config:  ServerConfig{TaskManager: manager, AgentCard: testAgentCard()},
			wantErr: true,
		},
		"error: nil agent card": {
			config:  ServerConfig{TaskManager: manager, Queues: queues},
			wantErr: true,
		},
		"error: invalid agent card": {
			config:  ServerConfig{TaskManager: manager, Queues: queues, AgentCard: &floodguard.AgentCard{}},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := NewServer(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerAgentCard(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/.well-known/agent.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	var card floodguard.AgentCard
	if err := json.UnmarshalRead(resp.Body, &card); err != nil {
		t.Fatalf("UnmarshalRead() error = %v", err)
	}
	if card.ID != "floodguard-test" {
		t.Errorf("card.ID = %q, want floodguard-test", card.ID)
	}
}

func TestServerTaskLifecycle(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	created := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksCreate, floodguard.CreateTaskParams{
		Spec: floodguard.TaskSpec{Name: "reservoir-drain"},
	}))
	if created.Status != floodguard.TaskStateSubmitted {
		t.Fatalf("created.Status = %q, want %q", created.Status, floodguard.TaskStateSubmitted)
	}

	fetched := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksGet, floodguard.TaskIDParams{ID: created.ID}))
	if fetched.ID != created.ID {
		t.Errorf("fetched.ID = %q, want %q", fetched.ID, created.ID)
	}

	working := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksUpdateStatus, floodguard.UpdateTaskStatusParams{
		ID:     created.ID,
		Status: floodguard.TaskStateWorking,
	}))
	if working.Status != floodguard.TaskStateWorking {
		t.Errorf("working.Status = %q, want %q", working.Status, floodguard.TaskStateWorking)
	}

	artifact, err := floodguard.NewTextArtifact("gates opened")
	if err != nil {
		t.Fatalf("NewTextArtifact() error = %v", err)
	}
	updated := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksArtifactsAdd, floodguard.AddArtifactParams{
		ID:       created.ID,
		Artifact: artifact,
	}))
	if len(updated.Artifacts) != 1 {
		t.Fatalf("len(Artifacts) = %d, want 1", len(updated.Artifacts))
	}

	artifacts := mustResult[floodguard.ArtifactsResult](t, rpcCall(t, srv, floodguard.MethodTasksArtifactsGet, floodguard.TaskIDParams{ID: created.ID}))
	if len(artifacts.Artifacts) != 1 {
		t.Fatalf("artifacts result = %d entries, want 1", len(artifacts.Artifacts))
	}

	canceled := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksCancel, floodguard.TaskIDParams{ID: created.ID}))
	if canceled.Status != floodguard.TaskStateCanceled {
		t.Errorf("canceled.Status = %q, want %q", canceled.Status, floodguard.TaskStateCanceled)
	}
}

func TestServerResubscribe(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	created := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksCreate, floodguard.CreateTaskParams{
		Spec: floodguard.TaskSpec{Name: "pump-check"},
	}))
	mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksUpdateStatus, floodguard.UpdateTaskStatusParams{
		ID:     created.ID,
		Status: floodguard.TaskStateWorking,
	}))

	type resubResult struct {
		ID      string `json:"id"`
		LastSeq uint64 `json:"lastSeq"`
		Events  []struct {
			Seq  uint64 `json:"seq"`
			Type string `json:"type"`
		} `json:"events"`
	}

	full := mustResult[resubResult](t, rpcCall(t, srv, floodguard.MethodTasksResubscribe, floodguard.ResubscribeParams{ID: created.ID}))
	if len(full.Events) != 2 {
		t.Fatalf("full replay = %d events, want 2", len(full.Events))
	}
	if full.Events[0].Type != event.EventTypeTaskCreated || full.Events[1].Type != event.EventTypeTaskUpdated {
		t.Errorf("replay types = %s, %s", full.Events[0].Type, full.Events[1].Type)
	}

	partial := mustResult[resubResult](t, rpcCall(t, srv, floodguard.MethodTasksResubscribe, floodguard.ResubscribeParams{
		ID:       created.ID,
		AfterSeq: full.Events[0].Seq,
	}))
	if len(partial.Events) != 1 {
		t.Fatalf("partial replay = %d events, want 1", len(partial.Events))
	}
	if partial.LastSeq != full.LastSeq {
		t.Errorf("partial.LastSeq = %d, want %d", partial.LastSeq, full.LastSeq)
	}
}

func TestServerErrorResponses(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	tests := map[string]struct {
		method   string
		params   any
		wantCode int
	}{
		"error: unknown method": {
			method:   "tasks/unknown",
			params:   nil,
			wantCode: floodguard.ErrorCodeMethodNotFound,
		},
		"error: missing task ID": {
			method:   floodguard.MethodTasksGet,
			params:   floodguard.TaskIDParams{},
			wantCode: floodguard.ErrorCodeInvalidParams,
		},
		"error: task not found": {
			method:   floodguard.MethodTasksGet,
			params:   floodguard.TaskIDParams{ID: "missing-task"},
			wantCode: floodguard.ErrorCodeTaskNotFound,
		},
		"error: invalid state": {
			method:   floodguard.MethodTasksUpdateStatus,
			params:   floodguard.UpdateTaskStatusParams{ID: "some-task", Status: "flooded"},
			wantCode: floodguard.ErrorCodeInvalidParams,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			resp := rpcCall(t, srv, tt.method, tt.params)
			if resp.Error == nil {
				t.Fatal("expected rpc error, got result")
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %d, want %d", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestServerPushConfig(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	created := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksCreate, floodguard.CreateTaskParams{
		Spec: floodguard.TaskSpec{Name: "siren-test"},
	}))

	config := &floodguard.PushNotificationConfig{
		Enabled:  true,
		Endpoint: "https://hooks.example.com/floodguard",
		Events:   []string{event.EventTypeTaskCompleted},
	}
	mustResult[floodguard.PushNotificationConfig](t, rpcCall(t, srv, floodguard.MethodTasksPushConfigSet, floodguard.SetPushConfigParams{
		ID:     created.ID,
		Config: config,
	}))

	got := mustResult[floodguard.PushNotificationConfig](t, rpcCall(t, srv, floodguard.MethodTasksPushConfigGet, floodguard.TaskIDParams{ID: created.ID}))
	if got.Endpoint != config.Endpoint {
		t.Errorf("config.Endpoint = %q, want %q", got.Endpoint, config.Endpoint)
	}
	if !got.Enabled {
		t.Error("config.Enabled = false, want true")
	}
}

func TestServerStats(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	created := mustResult[floodguard.Task](t, rpcCall(t, srv, floodguard.MethodTasksCreate, floodguard.CreateTaskParams{
		Spec: floodguard.TaskSpec{Name: "gauge-read"},
	}))

	stats := mustResult[event.QueueStats](t, rpcCall(t, srv, floodguard.MethodTasksStatsGet, floodguard.TaskIDParams{ID: created.ID}))
	if stats.Size != 1 {
		t.Errorf("stats.Size = %d, want 1 (the creation event)", stats.Size)
	}
}

func TestServerSSEEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/tasks/missing-task/events")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
