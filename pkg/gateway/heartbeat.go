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
	"time"

	"github.com/carverauto/edgegate/pkg/models"
)

// StartHeartbeat runs the per-connection liveness timer until the
// connection is superseded, closed, or found dead. At most one timer runs
// per connection; repeated registration frames do not stack timers.
func (g *Gateway) StartHeartbeat(ctx context.Context, conn *Connection) {
	conn.hbStart.Do(func() {
		go g.heartbeatLoop(ctx, conn)
	})
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *Connection) {
	interval := g.cfg.Heartbeat.Interval.AsDuration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.HeartbeatStopped():
			return
		case <-conn.Done():
			return
		case <-ticker.C:
			if !g.heartbeatTick(ctx, conn) {
				return
			}
		}
	}
}

// heartbeatTick checks liveness and probes the device. Returns false when
// the connection has been torn down.
func (g *Gateway) heartbeatTick(ctx context.Context, conn *Connection) bool {
	deviceID := conn.DeviceID()
	if deviceID == "" {
		return true
	}

	device, err := g.registry.GetDevice(deviceID)
	if err != nil {
		return true
	}

	timeout := g.cfg.Heartbeat.Timeout.AsDuration()
	pongMaxAge := g.cfg.Heartbeat.PongMaxAge.AsDuration()

	lastSeenAge := time.Since(device.LastSeen)
	pongAge := time.Since(conn.LastPong())

	if lastSeenAge > timeout || pongAge > pongMaxAge {
		g.log.Warn().
			Str("device_id", deviceID).
			Dur("last_seen_age", lastSeenAge).
			Dur("pong_age", pongAge).
			Msg("Heartbeat timeout, disconnecting")

		g.registry.HandleDisconnect(ctx, deviceID)

		return false
	}

	probe := models.HeartbeatRequest{
		Type:      models.FrameHeartbeatRequest,
		Timestamp: time.Now(),
	}

	if err := conn.SendJSON(probe); err != nil {
		g.log.Debug().
			Err(err).
			Str("device_id", deviceID).
			Msg("Failed to send heartbeat probe")
	}

	return true
}

// HandleHeartbeat refreshes a device's liveness and answers with up to the
// configured batch of queued commands. Both heartbeat and
// heartbeat_response frames take this path.
func (g *Gateway) HandleHeartbeat(conn *Connection) {
	deviceID := conn.DeviceID()
	if deviceID == "" {
		return
	}

	conn.MarkPong()
	g.registry.Touch(deviceID)

	commands := g.dispatcher.DequeueBatch(deviceID, g.cfg.Heartbeat.FlushBatch)

	response := models.HeartbeatResponse{
		Type:     models.FrameHeartbeatResponse,
		Commands: commands,
	}

	if err := conn.SendJSON(response); err != nil {
		// The batch has already been removed from the queue; put it back
		// so a failed write does not lose commands.
		g.dispatcher.Requeue(deviceID, commands)

		g.log.Debug().
			Err(err).
			Str("device_id", deviceID).
			Msg("Failed to send heartbeat response, batch requeued")

		return
	}

	if len(commands) > 0 {
		g.registry.AddCommandsExecuted(deviceID, len(commands))

		g.log.Debug().
			Str("device_id", deviceID).
			Int("flushed", len(commands)).
			Msg("Flushed queued commands on heartbeat")
	}
}

// flushQueued drains up to one heartbeat batch of queued commands to a
// freshly registered connection as individual command frames. Undelivered
// commands go back to the queue.
func (g *Gateway) flushQueued(conn *Connection, deviceID string) {
	commands := g.dispatcher.DequeueBatch(deviceID, g.cfg.Heartbeat.FlushBatch)
	if len(commands) == 0 {
		return
	}

	for i, cmd := range commands {
		frame := models.CommandFrame{
			Type:       models.FrameCommand,
			ID:         cmd.ID,
			Command:    cmd.Command,
			Parameters: cmd.Parameters,
			Priority:   cmd.Priority,
			Timestamp:  cmd.Timestamp,
		}

		if err := conn.SendJSON(frame); err != nil {
			g.dispatcher.Requeue(deviceID, commands[i:])

			if i > 0 {
				g.registry.AddCommandsExecuted(deviceID, i)
			}

			g.log.Debug().
				Err(err).
				Str("device_id", deviceID).
				Int("requeued", len(commands)-i).
				Msg("Reconnect flush interrupted, remainder requeued")

			return
		}
	}

	g.registry.AddCommandsExecuted(deviceID, len(commands))

	g.log.Debug().
		Str("device_id", deviceID).
		Int("flushed", len(commands)).
		Msg("Flushed queued commands on reconnect")
}

// offlineSweep re-checks every device against the heartbeat timeout,
// catching sockets that vanished without a close event.
func (g *Gateway) offlineSweep(ctx context.Context) {
	timeout := g.cfg.Heartbeat.Timeout.AsDuration()

	for _, device := range g.registry.ListDevices() {
		if !device.Online {
			continue
		}

		if time.Since(device.LastSeen) > timeout {
			g.log.Warn().
				Str("device_id", device.DeviceID).
				Time("last_seen", device.LastSeen).
				Msg("Sweep found silent device, disconnecting")

			g.registry.HandleDisconnect(ctx, device.DeviceID)
		}
	}
}
