// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ArtifactType discriminates the content of an Artifact.
type ArtifactType string

const (
	// ArtifactTypeText marks text content.
	ArtifactTypeText ArtifactType = "text"

	// ArtifactTypeFile marks file content.
	ArtifactTypeFile ArtifactType = "file"

	// ArtifactTypeData marks structured data content.
	ArtifactTypeData ArtifactType = "data"
)

// IsValid reports whether t is one of the defined artifact types.
func (t ArtifactType) IsValid() bool {
	switch t {
	case ArtifactTypeText, ArtifactTypeFile, ArtifactTypeData:
		return true
	}
	return false
}

// Artifact represents an output produced by an executor while working on a
// task. An artifact is owned by exactly one task and is never mutated after
// creation; executors add new artifacts instead of editing existing ones.
type Artifact struct {
	ID        string       `json:"id"`
	Type      ArtifactType `json:"type"`
	Content   any          `json:"content"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Validate ensures the Artifact is valid.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("artifact cannot be nil")
	}
	if a.ID == "" {
		return fmt.Errorf("artifact ID cannot be empty")
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("invalid artifact type: %q", a.Type)
	}
	if a.Content == nil {
		return fmt.Errorf("artifact content cannot be nil")
	}
	if s, ok := a.Content.(string); ok && s == "" {
		return fmt.Errorf("artifact content cannot be empty")
	}
	return nil
}

// Clone returns a copy of the artifact. Content is copied structurally for
// map-valued content; other content values are treated as immutable.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	clone := *a
	if m, ok := a.Content.(map[string]any); ok {
		clone.Content = cloneMetadata(m)
	}
	return &clone
}

func newArtifact(typ ArtifactType, content any) *Artifact {
	now := time.Now().UTC()
	return &Artifact{
		ID:        uuid.NewString(),
		Type:      typ,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTextArtifact creates a text artifact with a generated ID.
func NewTextArtifact(text string) (*Artifact, error) {
	if text == "" {
		return nil, fmt.Errorf("text content cannot be empty")
	}
	return newArtifact(ArtifactTypeText, text), nil
}

// NewFileArtifact creates a file artifact with a generated ID.
func NewFileArtifact(file FileContent) (*Artifact, error) {
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid file content: %w", err)
	}
	return newArtifact(ArtifactTypeFile, file), nil
}

// NewDataArtifact creates a data artifact with a generated ID.
func NewDataArtifact(data map[string]any) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data content cannot be empty")
	}
	return newArtifact(ArtifactTypeData, data), nil
}
