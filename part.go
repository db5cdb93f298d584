// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"fmt"

	"github.com/go-json-experiment/json"
)

// Part kinds for the message part tagged union.
const (
	TextPartKind      = "text"
	FilePartKind      = "file"
	DataPartKind      = "data"
	HeartbeatPartKind = "heartbeat"
)

// Part represents one segment of a task's streamed content. It is a tagged
// union over text, file, data, and heartbeat segments; the Kind JSON field
// discriminates on the wire.
type Part interface {
	GetKind() string
	Validate() error
}

// TextPart carries plain or markdown text.
type TextPart struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Format string `json:"format,omitzero"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) *TextPart {
	return &TextPart{Kind: TextPartKind, Text: text}
}

// GetKind returns the part kind.
func (p TextPart) GetKind() string { return p.Kind }

// Validate ensures the TextPart is valid.
func (p TextPart) Validate() error {
	if p.Kind != TextPartKind {
		return fmt.Errorf("text part kind must be %q, got %q", TextPartKind, p.Kind)
	}
	if p.Text == "" {
		return fmt.Errorf("text part text cannot be empty")
	}
	return nil
}

// FileContent is the payload of a file part: base64-encoded bytes plus the
// metadata a receiver needs to reconstruct the file.
type FileContent struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitzero"`
	Bytes    string `json:"bytes"`
}

// Validate ensures the FileContent is valid.
func (f FileContent) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if f.Bytes == "" {
		return fmt.Errorf("file bytes cannot be empty")
	}
	return nil
}

// FilePart carries file content.
type FilePart struct {
	Kind string      `json:"kind"`
	File FileContent `json:"file"`
}

// NewFilePart creates a file part.
func NewFilePart(file FileContent) *FilePart {
	return &FilePart{Kind: FilePartKind, File: file}
}

// GetKind returns the part kind.
func (p FilePart) GetKind() string { return p.Kind }

// Validate ensures the FilePart is valid.
func (p FilePart) Validate() error {
	if p.Kind != FilePartKind {
		return fmt.Errorf("file part kind must be %q, got %q", FilePartKind, p.Kind)
	}
	if err := p.File.Validate(); err != nil {
		return fmt.Errorf("file part content is invalid: %w", err)
	}
	return nil
}

// DataPart carries a structured record, optionally tagged with the name of
// the schema it conforms to.
type DataPart struct {
	Kind   string         `json:"kind"`
	Data   map[string]any `json:"data"`
	Schema string         `json:"schema,omitzero"`
}

// NewDataPart creates a data part.
func NewDataPart(data map[string]any) *DataPart {
	return &DataPart{Kind: DataPartKind, Data: data}
}

// GetKind returns the part kind.
func (p DataPart) GetKind() string { return p.Kind }

// Validate ensures the DataPart is valid.
func (p DataPart) Validate() error {
	if p.Kind != DataPartKind {
		return fmt.Errorf("data part kind must be %q, got %q", DataPartKind, p.Kind)
	}
	if len(p.Data) == 0 {
		return fmt.Errorf("data part data cannot be empty")
	}
	return nil
}

// HeartbeatPart is a liveness marker. It carries no content beyond the
// timestamp at which the sender was alive.
type HeartbeatPart struct {
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// NewHeartbeatPart creates a heartbeat part stamped with the given RFC 3339
// timestamp string.
func NewHeartbeatPart(timestamp string) *HeartbeatPart {
	return &HeartbeatPart{Kind: HeartbeatPartKind, Timestamp: timestamp}
}

// GetKind returns the part kind.
func (p HeartbeatPart) GetKind() string { return p.Kind }

// Validate ensures the HeartbeatPart is valid.
func (p HeartbeatPart) Validate() error {
	if p.Kind != HeartbeatPartKind {
		return fmt.Errorf("heartbeat part kind must be %q, got %q", HeartbeatPartKind, p.Kind)
	}
	if p.Timestamp == "" {
		return fmt.Errorf("heartbeat part timestamp cannot be empty")
	}
	return nil
}

// PartEnvelope wraps a Part so the union can round-trip through JSON: the
// kind discriminator selects the concrete type on decode.
type PartEnvelope struct {
	part Part
}

// NewPartEnvelope wraps the given part.
func NewPartEnvelope(part Part) *PartEnvelope {
	return &PartEnvelope{part: part}
}

// Part returns the wrapped part.
func (e *PartEnvelope) Part() Part {
	return e.part
}

// Validate validates the wrapped part.
func (e *PartEnvelope) Validate() error {
	if e.part == nil {
		return fmt.Errorf("part envelope cannot contain nil part")
	}
	return e.part.Validate()
}

// MarshalJSON implements json.Marshaler.
func (e PartEnvelope) MarshalJSON() ([]byte, error) {
	if e.part == nil {
		return nil, fmt.Errorf("cannot marshal nil part")
	}
	return json.Marshal(e.part)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *PartEnvelope) UnmarshalJSON(data []byte) error {
	var kind struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &kind); err != nil {
		return fmt.Errorf("failed to unmarshal part kind: %w", err)
	}

	switch kind.Kind {
	case TextPartKind:
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal text part: %w", err)
		}
		e.part = &p
	case FilePartKind:
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal file part: %w", err)
		}
		e.part = &p
	case DataPartKind:
		var p DataPart
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal data part: %w", err)
		}
		e.part = &p
	case HeartbeatPartKind:
		var p HeartbeatPart
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal heartbeat part: %w", err)
		}
		e.part = &p
	default:
		return fmt.Errorf("unknown part kind: %q", kind.Kind)
	}

	return nil
}

// WrapParts wraps a slice of parts in envelopes, validating each one.
func WrapParts(parts []Part) ([]*PartEnvelope, error) {
	wrapped := make([]*PartEnvelope, len(parts))
	for i, part := range parts {
		if part == nil {
			return nil, fmt.Errorf("part at index %d cannot be nil", i)
		}
		if err := part.Validate(); err != nil {
			return nil, fmt.Errorf("part at index %d is invalid: %w", i, err)
		}
		wrapped[i] = NewPartEnvelope(part)
	}
	return wrapped, nil
}
