// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"testing"
)

func TestNewArtifactConstructors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		build    func() (*Artifact, error)
		wantType ArtifactType
		wantErr  bool
	}{
		"success: text artifact": {
			build:    func() (*Artifact, error) { return NewTextArtifact("levee inspection passed") },
			wantType: ArtifactTypeText,
		},
		"success: file artifact": {
			build: func() (*Artifact, error) {
				return NewFileArtifact(FileContent{Name: "gauge.csv", MimeType: "text/csv", Bytes: "aGVsbG8="})
			},
			wantType: ArtifactTypeFile,
		},
		"success: data artifact": {
			build:    func() (*Artifact, error) { return NewDataArtifact(map[string]any{"level": 4.2}) },
			wantType: ArtifactTypeData,
		},
		"error: empty text": {
			build:   func() (*Artifact, error) { return NewTextArtifact("") },
			wantErr: true,
		},
		"error: file without name": {
			build:   func() (*Artifact, error) { return NewFileArtifact(FileContent{Bytes: "aGVsbG8="}) },
			wantErr: true,
		},
		"error: empty data": {
			build:   func() (*Artifact, error) { return NewDataArtifact(nil) },
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			artifact, err := tt.build()
			if tt.wantErr {
				if err == nil {
					t.Fatal("constructor error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("constructor error = %v, want nil", err)
			}

			if artifact.ID == "" {
				t.Error("constructor generated empty artifact ID")
			}
			if artifact.Type != tt.wantType {
				t.Errorf("artifact.Type = %q, want %q", artifact.Type, tt.wantType)
			}
			if artifact.CreatedAt.IsZero() || !artifact.CreatedAt.Equal(artifact.UpdatedAt) {
				t.Error("artifact timestamps not initialized together")
			}
			if err := artifact.Validate(); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestArtifactValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		artifact *Artifact
		wantErr  bool
	}{
		"success: valid artifact": {
			artifact: &Artifact{ID: "art-1", Type: ArtifactTypeText, Content: "ok"},
		},
		"error: nil artifact": {
			artifact: nil,
			wantErr:  true,
		},
		"error: missing ID": {
			artifact: &Artifact{Type: ArtifactTypeText, Content: "ok"},
			wantErr:  true,
		},
		"error: undefined type": {
			artifact: &Artifact{ID: "art-1", Type: ArtifactType("image"), Content: "ok"},
			wantErr:  true,
		},
		"error: nil content": {
			artifact: &Artifact{ID: "art-1", Type: ArtifactTypeData},
			wantErr:  true,
		},
		"error: empty string content": {
			artifact: &Artifact{ID: "art-1", Type: ArtifactTypeText, Content: ""},
			wantErr:  true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.artifact.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArtifactClone(t *testing.T) {
	t.Parallel()

	original, err := NewDataArtifact(map[string]any{"level": 4.2})
	if err != nil {
		t.Fatal(err)
	}

	clone := original.Clone()
	clone.Content.(map[string]any)["level"] = 9.9

	if got := original.Content.(map[string]any)["level"]; got != 4.2 {
		t.Errorf("mutating clone content affected the original: level = %v, want 4.2", got)
	}
}
