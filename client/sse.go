// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// sseFrame is one decoded Server-Sent-Events frame.
type sseFrame struct {
	id        string
	eventType string
	data      string
}

// sseDecoder decodes Server-Sent Events from a stream body.
type sseDecoder struct {
	scanner *bufio.Scanner
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{scanner: bufio.NewScanner(r)}
}

// next decodes the next frame, returning io.EOF when the stream ends.
// Comment lines are skipped.
func (d *sseDecoder) next() (*sseFrame, error) {
	frame := &sseFrame{}

	for d.scanner.Scan() {
		line := d.scanner.Text()

		// Empty line ends the frame.
		if line == "" {
			if frame.data != "" || frame.eventType != "" {
				return frame, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.eventType = value
		case "data":
			if frame.data != "" {
				frame.data += "\n"
			}
			frame.data += value
		case "id":
			frame.id = value
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}
	if frame.data != "" || frame.eventType != "" {
		return frame, nil
	}
	return nil, io.EOF
}
