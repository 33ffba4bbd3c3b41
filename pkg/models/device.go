/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"time"
)

// Device represents a registered remote endpoint. A Device is created on
// first registration and is never deleted, only marked offline.
type Device struct {
	DeviceID        string                 `json:"device_id"`
	DeviceType      string                 `json:"device_type"`
	DeviceName      string                 `json:"device_name,omitempty"`
	Capabilities    []string               `json:"capabilities,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	FirmwareVersion string                 `json:"firmware_version,omitempty"`
	RemoteAddr      string                 `json:"remote_addr,omitempty"`
	Online          bool                   `json:"online"`
	LastSeen        time.Time              `json:"last_seen"`
	RegisteredAt    time.Time              `json:"registered_at"`
	Stats           DeviceStats            `json:"stats"`
}

// DeviceStats tracks per-device counters across the device's lifetime.
type DeviceStats struct {
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	CommandsExecuted int64 `json:"commands_executed"`
	Errors           int64 `json:"errors"`
	Reconnects       int64 `json:"reconnects"`
}

// LogEntry is one device-reported log line held in the per-device ring.
type LogEntry struct {
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TTSQueueStatus is the client-reported playback congestion signal. Only the
// most recent report per device is retained.
type TTSQueueStatus struct {
	QueueLen      int       `json:"queue_len"`
	Playing       bool      `json:"playing"`
	ActiveSources int       `json:"active_sources"`
	ReceivedAt    time.Time `json:"-"`
}
