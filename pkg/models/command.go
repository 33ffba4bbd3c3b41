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

// CommandPriority orders queued commands for offline devices.
type CommandPriority string

const (
	PriorityNormal CommandPriority = "normal"
	PriorityHigh   CommandPriority = "high"
)

// Command is a single outbound control instruction. Immutable once created.
type Command struct {
	ID         string                 `json:"id"`
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Priority   CommandPriority        `json:"priority"`
	Timestamp  time.Time              `json:"timestamp"`
}

// CommandOutcome is the dispatcher's answer to a sendCommand call. A timeout
// is an outcome, not an error: the transport cannot distinguish a slow
// device from a lost reply, so callers must treat Timeout as fire-and-forget
// success with no confirmation.
type CommandOutcome struct {
	Success    bool                   `json:"success"`
	Timeout    bool                   `json:"timeout,omitempty"`
	Queued     bool                   `json:"queued,omitempty"`
	QueueDepth int                    `json:"queue_depth,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
}
