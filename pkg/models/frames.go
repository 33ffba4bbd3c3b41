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
	"encoding/json"
	"time"
)

// Frame type discriminators for the JSON-over-WebSocket wire protocol.
const (
	FrameRegister          = "register"
	FrameRegisterResponse  = "register_response"
	FrameHeartbeat         = "heartbeat"
	FrameHeartbeatRequest  = "heartbeat_request"
	FrameHeartbeatResponse = "heartbeat_response"
	FrameCommand           = "command"
	FrameCommandResult     = "command_result"
	FrameASRSessionStart   = "asr_session_start"
	FrameASRAudioChunk     = "asr_audio_chunk"
	FrameASRSessionStop    = "asr_session_stop"
	FrameASRInterim        = "asr_interim"
	FrameASRFinal          = "asr_final"
	FrameTTSQueueStatus    = "tts_queue_status"
	FrameLog               = "log"
	FrameMessage           = "message"
	FrameReply             = "reply"
	FrameForward           = "forward"
	FrameError             = "error"
)

// Voice-activity states reported on audio chunks.
const (
	VADActive = "active"
	VADEnding = "ending"
	VADIdle   = "idle"
)

// Envelope carries only the type discriminator, used to route a raw frame
// before the full per-type decode.
type Envelope struct {
	Type string `json:"type"`
}

// RegisterFrame is the first frame a device must send on a new connection.
type RegisterFrame struct {
	Type            string                 `json:"type"`
	DeviceID        string                 `json:"device_id"`
	DeviceType      string                 `json:"device_type"`
	DeviceName      string                 `json:"device_name,omitempty"`
	Capabilities    []string               `json:"capabilities,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	FirmwareVersion string                 `json:"firmware_version,omitempty"`
}

// RegisterResponse acknowledges a registration attempt.
type RegisterResponse struct {
	Type    string  `json:"type"`
	Success bool    `json:"success"`
	Device  *Device `json:"device,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// HeartbeatRequest is the server-initiated liveness probe.
type HeartbeatRequest struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatResponse answers a device heartbeat and piggybacks queued
// commands, bounded by the configured flush batch size.
type HeartbeatResponse struct {
	Type     string     `json:"type"`
	Commands []*Command `json:"commands,omitempty"`
}

// CommandFrame is the outbound delivery envelope for one Command.
type CommandFrame struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Priority   CommandPriority        `json:"priority"`
	Timestamp  time.Time              `json:"timestamp"`
}

// CommandResultFrame resolves a pending command callback by id.
type CommandResultFrame struct {
	Type      string                 `json:"type"`
	CommandID string                 `json:"command_id"`
	Result    map[string]interface{} `json:"result,omitempty"`
}

// ASRSessionStartFrame opens a recognition utterance.
type ASRSessionStartFrame struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	SampleRate    int    `json:"sample_rate"`
	Bits          int    `json:"bits"`
	Channels      int    `json:"channels"`
	SessionNumber int    `json:"session_number"`
	AudioFormat   string `json:"audio_format,omitempty"`
	Model         string `json:"model,omitempty"`
}

// ASRAudioChunkFrame carries one chunk of utterance audio. The payload may
// be hex, base64, a raw JSON string, or a numeric PCM sample array; it may
// arrive either as data or nested under audio.data.
type ASRAudioChunkFrame struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id"`
	ChunkIndex int             `json:"chunk_index"`
	VADState   string          `json:"vad_state"`
	Data       json.RawMessage `json:"data,omitempty"`
	Audio      *struct {
		Data json.RawMessage `json:"data,omitempty"`
	} `json:"audio,omitempty"`
}

// ASRSessionStopFrame closes a recognition utterance.
type ASRSessionStopFrame struct {
	Type          string  `json:"type"`
	SessionID     string  `json:"session_id"`
	Duration      float64 `json:"duration,omitempty"`
	SessionNumber int     `json:"session_number,omitempty"`
}

// ASRInterimFrame carries a live best-effort caption.
type ASRInterimFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ASRFinalFrame carries the reconciled final transcript.
type ASRFinalFrame struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	Text          string `json:"text"`
	SessionNumber int    `json:"session_number,omitempty"`
}

// TTSQueueStatusFrame is the client's playback congestion report.
type TTSQueueStatusFrame struct {
	Type          string `json:"type"`
	QueueLen      int    `json:"queue_len"`
	Playing       bool   `json:"playing"`
	ActiveSources int    `json:"active_sources"`
	TS            int64  `json:"ts,omitempty"`
}

// LogFrame is a device-reported log line.
type LogFrame struct {
	Type    string      `json:"type"`
	Level   string      `json:"level"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MessageFrame is a chat-style inbound payload.
type MessageFrame struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
	Sender   string    `json:"sender,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Master   bool      `json:"master,omitempty"`
}

// Segment is one unit of a structured reply payload.
type Segment struct {
	Type        string                 `json:"type"`
	Content     string                 `json:"content,omitempty"`
	File        string                 `json:"file,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// ReplyFrame is the normalized outbound reply envelope.
type ReplyFrame struct {
	Type        string    `json:"type"`
	Segments    []Segment `json:"segments"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ErrorFrame reports a protocol-level error to the device. The connection
// stays open.
type ErrorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Context string `json:"context,omitempty"`
}
