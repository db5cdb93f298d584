// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import "testing"

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	textArtifact, err := NewTextArtifact("water level nominal")
	if err != nil {
		t.Fatalf("NewTextArtifact() error = %v", err)
	}

	tests := map[string]struct {
		params  interface{ Validate() error }
		wantErr bool
	}{
		"success: create params": {
			params: &CreateTaskParams{Spec: TaskSpec{Name: "dike-survey"}},
		},
		"error: create params without name": {
			params:  &CreateTaskParams{},
			wantErr: true,
		},
		"success: task ID params": {
			params: &TaskIDParams{ID: "task-1"},
		},
		"error: empty task ID": {
			params:  &TaskIDParams{},
			wantErr: true,
		},
		"success: update status params": {
			params: &UpdateTaskStatusParams{ID: "task-1", Status: TaskStateWorking},
		},
		"error: update status with invalid state": {
			params:  &UpdateTaskStatusParams{ID: "task-1", Status: "underwater"},
			wantErr: true,
		},
		"error: update status without ID": {
			params:  &UpdateTaskStatusParams{Status: TaskStateWorking},
			wantErr: true,
		},
		"success: add artifact params": {
			params: &AddArtifactParams{ID: "task-1", Artifact: textArtifact},
		},
		"error: add artifact without artifact": {
			params:  &AddArtifactParams{ID: "task-1"},
			wantErr: true,
		},
		"success: set push config params": {
			params: &SetPushConfigParams{
				ID:     "task-1",
				Config: &PushNotificationConfig{Enabled: true, Endpoint: "https://hooks.example.com"},
			},
		},
		"error: set push config with bad endpoint": {
			params: &SetPushConfigParams{
				ID:     "task-1",
				Config: &PushNotificationConfig{Enabled: true, Endpoint: "ftp://hooks.example.com"},
			},
			wantErr: true,
		},
		"error: set push config without config": {
			params:  &SetPushConfigParams{ID: "task-1"},
			wantErr: true,
		},
		"success: resubscribe params": {
			params: &ResubscribeParams{ID: "task-1", AfterSeq: 12},
		},
		"error: resubscribe without ID": {
			params:  &ResubscribeParams{},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
