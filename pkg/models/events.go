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

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// DeviceLifecycleEventData is the payload for device online/offline events.
type DeviceLifecycleEventData struct {
	DeviceID   string    `json:"device_id"`
	DeviceType string    `json:"device_type,omitempty"`
	DeviceName string    `json:"device_name,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Reconnects int64     `json:"reconnects,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeviceMessageEventData is the payload for inbound chat messages. It is
// emitted twice: once on a channel-qualified subject and once generically.
type DeviceMessageEventData struct {
	DeviceID  string    `json:"device_id"`
	Text      string    `json:"text,omitempty"`
	Segments  []Segment `json:"segments,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Master    bool      `json:"master,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
