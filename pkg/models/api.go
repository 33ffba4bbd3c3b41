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

// ErrorResponse is the JSON error body returned by the HTTP API.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// CommandRequest is the HTTP body for dispatching a command to a device.
type CommandRequest struct {
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Priority   CommandPriority        `json:"priority,omitempty"`
}

// TextRequest is the HTTP body for the TTS and AI trigger endpoints.
type TextRequest struct {
	Text string `json:"text"`
}

// GatewayStats summarizes registry state for the stats endpoint.
type GatewayStats struct {
	Devices        int `json:"devices"`
	OnlineDevices  int `json:"online_devices"`
	OpenSessions   int `json:"open_sessions"`
	PendingResults int `json:"pending_results"`
}
