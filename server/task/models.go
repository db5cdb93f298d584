// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// PartSliceJSON provides JSON serialization for []*PartEnvelope in database
// columns.
type PartSliceJSON struct {
	Parts []*floodguard.PartEnvelope
}

// Value implements the driver.Valuer interface for database storage.
func (ps PartSliceJSON) Value() (driver.Value, error) {
	if ps.Parts == nil {
		return nil, nil
	}
	return json.Marshal(ps.Parts)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (ps *PartSliceJSON) Scan(value any) error {
	if value == nil {
		*ps = PartSliceJSON{}
		return nil
	}

	bytes, err := columnBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into PartSliceJSON: %w", err)
	}

	var parts []*floodguard.PartEnvelope
	if err := json.Unmarshal(bytes, &parts); err != nil {
		return fmt.Errorf("cannot unmarshal PartSliceJSON: %w", err)
	}

	ps.Parts = parts
	return nil
}

// ArtifactSliceJSON provides JSON serialization for []*Artifact in database
// columns.
type ArtifactSliceJSON struct {
	Artifacts []*floodguard.Artifact
}

// Value implements the driver.Valuer interface for database storage.
func (as ArtifactSliceJSON) Value() (driver.Value, error) {
	if as.Artifacts == nil {
		return nil, nil
	}
	return json.Marshal(as.Artifacts)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (as *ArtifactSliceJSON) Scan(value any) error {
	if value == nil {
		*as = ArtifactSliceJSON{}
		return nil
	}

	bytes, err := columnBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into ArtifactSliceJSON: %w", err)
	}

	var artifacts []*floodguard.Artifact
	if err := json.Unmarshal(bytes, &artifacts); err != nil {
		return fmt.Errorf("cannot unmarshal ArtifactSliceJSON: %w", err)
	}

	as.Artifacts = artifacts
	return nil
}

// TransitionSliceJSON provides JSON serialization for []TaskTransition in
// database columns. The transition history is stored as one JSON document
// so it lands in the same row write as the status column.
type TransitionSliceJSON struct {
	Transitions []floodguard.TaskTransition
}

// Value implements the driver.Valuer interface for database storage.
func (ts TransitionSliceJSON) Value() (driver.Value, error) {
	if ts.Transitions == nil {
		return nil, nil
	}
	return json.Marshal(ts.Transitions)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (ts *TransitionSliceJSON) Scan(value any) error {
	if value == nil {
		*ts = TransitionSliceJSON{}
		return nil
	}

	bytes, err := columnBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into TransitionSliceJSON: %w", err)
	}

	var transitions []floodguard.TaskTransition
	if err := json.Unmarshal(bytes, &transitions); err != nil {
		return fmt.Errorf("cannot unmarshal TransitionSliceJSON: %w", err)
	}

	ts.Transitions = transitions
	return nil
}

// MetadataJSON provides JSON serialization for metadata maps in database
// columns.
type MetadataJSON struct {
	Metadata map[string]any
}

// Value implements the driver.Valuer interface for database storage.
func (m MetadataJSON) Value() (driver.Value, error) {
	if m.Metadata == nil {
		return nil, nil
	}
	return json.Marshal(m.Metadata)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (m *MetadataJSON) Scan(value any) error {
	if value == nil {
		*m = MetadataJSON{}
		return nil
	}

	bytes, err := columnBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into MetadataJSON: %w", err)
	}

	var metadata map[string]any
	if err := json.Unmarshal(bytes, &metadata); err != nil {
		return fmt.Errorf("cannot unmarshal MetadataJSON: %w", err)
	}

	m.Metadata = metadata
	return nil
}

// TaskErrorJSON provides JSON serialization for the normalized task error
// in database columns.
type TaskErrorJSON struct {
	Err *floodguard.TaskError
}

// Value implements the driver.Valuer interface for database storage.
func (te TaskErrorJSON) Value() (driver.Value, error) {
	if te.Err == nil {
		return nil, nil
	}
	return json.Marshal(te.Err)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (te *TaskErrorJSON) Scan(value any) error {
	if value == nil {
		*te = TaskErrorJSON{}
		return nil
	}

	bytes, err := columnBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into TaskErrorJSON: %w", err)
	}

	var taskErr floodguard.TaskError
	if err := json.Unmarshal(bytes, &taskErr); err != nil {
		return fmt.Errorf("cannot unmarshal TaskErrorJSON: %w", err)
	}

	te.Err = &taskErr
	return nil
}

func columnBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}

// TaskModel is the GORM row representation of a Task. Scalar fields map to
// plain columns so they can be filtered in SQL; composite fields are JSON
// documents.
type TaskModel struct {
	ID            string              `gorm:"primaryKey;size:64"`
	Name          string              `gorm:"size:255;not null"`
	Description   string              `gorm:"type:text"`
	Status        string              `gorm:"size:32;not null;index"`
	AgentID       string              `gorm:"size:64;index"`
	ContextID     string              `gorm:"size:64;index"`
	ExpectedParts int                 `gorm:""`
	Parts         PartSliceJSON       `gorm:"type:json"`
	Artifacts     ArtifactSliceJSON   `gorm:"type:json"`
	Transitions   TransitionSliceJSON `gorm:"type:json"`
	Metadata      MetadataJSON        `gorm:"type:json"`
	Error         TaskErrorJSON       `gorm:"type:json"`
	CreatedAt     time.Time           `gorm:"not null"`
	UpdatedAt     time.Time           `gorm:"not null"`
}

// TableName returns the default table name for TaskModel.
func (TaskModel) TableName() string {
	return "tasks"
}

// NewTaskModelFromTask converts a Task into its row representation.
func NewTaskModelFromTask(task *floodguard.Task) (*TaskModel, error) {
	if task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return nil, NewTaskValidationError(task.ID, err)
	}

	return &TaskModel{
		ID:            task.ID,
		Name:          task.Name,
		Description:   task.Description,
		Status:        task.Status.String(),
		AgentID:       task.AgentID,
		ContextID:     task.ContextID,
		ExpectedParts: task.ExpectedParts,
		Parts:         PartSliceJSON{Parts: task.Parts},
		Artifacts:     ArtifactSliceJSON{Artifacts: task.Artifacts},
		Transitions:   TransitionSliceJSON{Transitions: task.Transitions},
		Metadata:      MetadataJSON{Metadata: task.Metadata},
		Error:         TaskErrorJSON{Err: task.Error},
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}, nil
}

// ToTask converts the row representation back into a Task.
func (m *TaskModel) ToTask() (*floodguard.Task, error) {
	if m == nil {
		return nil, fmt.Errorf("task model cannot be nil")
	}

	task := &floodguard.Task{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Status:        floodguard.TaskState(m.Status),
		AgentID:       m.AgentID,
		ContextID:     m.ContextID,
		ExpectedParts: m.ExpectedParts,
		Parts:         m.Parts.Parts,
		Artifacts:     m.Artifacts.Artifacts,
		Transitions:   m.Transitions.Transitions,
		Metadata:      m.Metadata.Metadata,
		Error:         m.Error.Err,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if task.Transitions == nil {
		task.Transitions = []floodguard.TaskTransition{}
	}

	if err := task.Validate(); err != nil {
		return nil, NewTaskValidationError(task.ID, err)
	}
	return task, nil
}
