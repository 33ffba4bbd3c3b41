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

package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/edgegate/pkg/models"
)

// IncomingMessage is a chat message routed to the in-process handler. The
// Reply closure is bound to the originating socket.
type IncomingMessage struct {
	Data  models.DeviceMessageEventData
	Reply func(payload interface{}) bool
}

// heartbeatClass frame types are exempt from verbose logging to avoid
// flooding.
func heartbeatClass(frameType string) bool {
	switch frameType {
	case models.FrameHeartbeat, models.FrameHeartbeatResponse, models.FrameTTSQueueStatus:
		return true
	default:
		return false
	}
}

// HandleConnection runs the read loop for one accepted socket until the
// peer disconnects or the connection is superseded.
func (g *Gateway) HandleConnection(ctx context.Context, wire Wire) {
	conn := NewConnection(wire, g.log)

	g.log.Info().
		Str("remote_addr", conn.RemoteAddr()).
		Msg("Connection accepted")

	defer g.registry.DropConnection(ctx, conn)

	for {
		messageType, data, err := wire.ReadMessage()
		if err != nil {
			g.log.Debug().
				Err(err).
				Str("device_id", conn.DeviceID()).
				Str("remote_addr", conn.RemoteAddr()).
				Msg("Read loop ending")

			return
		}

		if messageType == websocket.BinaryMessage {
			g.log.Trace().
				Str("device_id", conn.DeviceID()).
				Int("bytes", len(data)).
				Msg("Ignoring unexpected binary frame")

			continue
		}

		g.dispatchFrame(ctx, conn, data)
	}
}

// dispatchFrame demultiplexes one inbound frame by its type discriminator.
// Frames other than register are rejected when the sender has not
// registered. Unknown types are logged and ignored.
func (g *Gateway) dispatchFrame(ctx context.Context, conn *Connection, data []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
		g.sendError(conn, "malformed frame: missing type")
		return
	}

	if !heartbeatClass(envelope.Type) {
		g.log.Debug().
			Str("type", envelope.Type).
			Str("device_id", conn.DeviceID()).
			Msg("Frame received")
	}

	if conn.DeviceID() == "" && envelope.Type != models.FrameRegister {
		g.sendError(conn, "device not registered")
		return
	}

	switch envelope.Type {
	case models.FrameRegister:
		g.handleRegister(ctx, conn, data)
	case models.FrameHeartbeat, models.FrameHeartbeatResponse:
		g.HandleHeartbeat(conn)
	case models.FrameASRSessionStart:
		g.handleASRStart(ctx, conn, data)
	case models.FrameASRAudioChunk:
		g.handleASRChunk(ctx, conn, data)
	case models.FrameASRSessionStop:
		g.handleASRStop(ctx, conn, data)
	case models.FrameTTSQueueStatus:
		g.handleTTSStatus(conn, data)
	case models.FrameLog:
		g.handleLog(conn, data)
	case models.FrameCommandResult:
		g.handleCommandResult(conn, data)
	case models.FrameMessage:
		g.handleMessage(ctx, conn, data)
	default:
		g.log.Warn().
			Str("type", envelope.Type).
			Str("device_id", conn.DeviceID()).
			Msg("Unknown frame type ignored")
	}
}

func (g *Gateway) handleRegister(ctx context.Context, conn *Connection, data []byte) {
	var frame models.RegisterFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.sendError(conn, "malformed register frame")
		return
	}

	device, err := g.registry.Register(ctx, &frame, conn)
	if err != nil {
		response := models.RegisterResponse{
			Type:    models.FrameRegisterResponse,
			Success: false,
			Error:   err.Error(),
		}

		if sendErr := conn.SendJSON(response); sendErr != nil {
			g.log.Debug().Err(sendErr).Msg("Failed to send register rejection")
		}

		return
	}

	g.StartHeartbeat(ctx, conn)

	response := models.RegisterResponse{
		Type:    models.FrameRegisterResponse,
		Success: true,
		Device:  device,
	}

	if err := conn.SendJSON(response); err != nil {
		g.log.Debug().
			Err(err).
			Str("device_id", device.DeviceID).
			Msg("Failed to send register response")

		return
	}

	// Commands queued while the device was offline must not wait a full
	// heartbeat interval after a reconnect.
	g.flushQueued(conn, device.DeviceID)
}

func (g *Gateway) handleASRStart(ctx context.Context, conn *Connection, data []byte) {
	var frame models.ASRSessionStartFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.SessionID == "" {
		g.sendError(conn, "malformed asr_session_start frame")
		return
	}

	g.registry.Touch(conn.DeviceID())

	if err := g.asr.StartSession(ctx, conn, &frame); err != nil {
		g.log.Error().
			Err(err).
			Str("device_id", conn.DeviceID()).
			Str("session_id", frame.SessionID).
			Msg("Failed to start ASR session")

		g.sendError(conn, "failed to start recognition session")
	}
}

func (g *Gateway) handleASRChunk(ctx context.Context, conn *Connection, data []byte) {
	var frame models.ASRAudioChunkFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.SessionID == "" {
		g.sendError(conn, "malformed asr_audio_chunk frame")
		return
	}

	g.registry.Touch(conn.DeviceID())

	if err := g.asr.HandleChunk(ctx, conn, &frame, g.respondToUtterance); err != nil {
		g.log.Debug().
			Err(err).
			Str("device_id", conn.DeviceID()).
			Str("session_id", frame.SessionID).
			Int("chunk_index", frame.ChunkIndex).
			Msg("Audio chunk rejected")
	}
}

func (g *Gateway) handleASRStop(ctx context.Context, conn *Connection, data []byte) {
	var frame models.ASRSessionStopFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.SessionID == "" {
		g.sendError(conn, "malformed asr_session_stop frame")
		return
	}

	g.registry.Touch(conn.DeviceID())
	g.asr.StopSession(ctx, conn, &frame, g.respondToUtterance)
}

func (g *Gateway) handleTTSStatus(conn *Connection, data []byte) {
	var frame models.TTSQueueStatusFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}

	g.registry.SetTTSStatus(conn.DeviceID(), models.TTSQueueStatus{
		QueueLen:      frame.QueueLen,
		Playing:       frame.Playing,
		ActiveSources: frame.ActiveSources,
	})
}

func (g *Gateway) handleLog(conn *Connection, data []byte) {
	var frame models.LogFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}

	g.registry.AppendLog(conn.DeviceID(), models.LogEntry{
		Level:     frame.Level,
		Message:   frame.Message,
		Data:      frame.Data,
		Timestamp: time.Now(),
	})
}

func (g *Gateway) handleCommandResult(conn *Connection, data []byte) {
	var frame models.CommandResultFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.CommandID == "" {
		g.sendError(conn, "malformed command_result frame")
		return
	}

	if !g.dispatcher.HandleResult(frame.CommandID, frame.Result) {
		g.log.Debug().
			Str("device_id", conn.DeviceID()).
			Str("command_id", frame.CommandID).
			Msg("Result for unknown or expired command")
	}
}

func (g *Gateway) handleMessage(ctx context.Context, conn *Connection, data []byte) {
	var frame models.MessageFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.sendError(conn, "malformed message frame")
		return
	}

	deviceID := conn.DeviceID()
	g.registry.IncMessagesReceived(deviceID)

	event := models.DeviceMessageEventData{
		DeviceID:  deviceID,
		Text:      frame.Text,
		Segments:  frame.Segments,
		Sender:    frame.Sender,
		Channel:   frame.Channel,
		Master:    frame.Master,
		Timestamp: time.Now(),
	}

	if err := g.events.DeviceMessage(ctx, event); err != nil {
		g.log.Error().
			Err(err).
			Str("device_id", deviceID).
			Msg("Failed to publish message event")
	}

	if handler := g.messageHandler(); handler != nil {
		proxy := g.Proxy(deviceID)

		handler(ctx, &IncomingMessage{
			Data:  event,
			Reply: proxy.Reply,
		})
	}
}

func (g *Gateway) sendError(conn *Connection, message string) {
	frame := models.ErrorFrame{
		Type:  models.FrameError,
		Error: message,
	}

	if err := conn.SendJSON(frame); err != nil {
		g.log.Debug().Err(err).Msg("Failed to send error frame")
	}

	if deviceID := conn.DeviceID(); deviceID != "" {
		g.registry.IncErrors(deviceID)
	}
}
