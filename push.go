// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package floodguard

import (
	"fmt"
	"net/url"
	"slices"
)

// PushNotificationConfig controls HTTP push delivery of lifecycle events for
// a single task. One config per task; setting a new one replaces the old
// (last write wins).
type PushNotificationConfig struct {
	Enabled   bool     `json:"enabled"`
	Endpoint  string   `json:"endpoint,omitzero"`
	AuthToken string   `json:"authToken,omitzero"`
	Events    []string `json:"events"`
}

// Validate ensures the PushNotificationConfig is valid. An enabled config
// must name a well-formed HTTP endpoint.
func (c *PushNotificationConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("push notification endpoint cannot be empty when enabled")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid push notification endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("push notification endpoint must be http or https, got %q", u.Scheme)
	}
	return nil
}

// WantsEvent reports whether deliveries for the given event type are
// configured. An empty Events list subscribes to every event type.
func (c *PushNotificationConfig) WantsEvent(eventType string) bool {
	if c == nil || !c.Enabled {
		return false
	}
	if len(c.Events) == 0 {
		return true
	}
	return slices.Contains(c.Events, eventType)
}

// Clone returns a deep copy of the config.
func (c *PushNotificationConfig) Clone() *PushNotificationConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Events = slices.Clone(c.Events)
	return &clone
}
