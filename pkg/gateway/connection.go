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
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/edgegate/pkg/logger"
)

const outboundQueueSize = 256

var errConnClosed = errors.New("connection closed")

type outFrame struct {
	messageType int
	data        []byte
}

// Connection is the live transport handle bound 1:1 to at most one device.
// All outbound writes funnel through a single writer goroutine so frames
// for one device are transmitted strictly in submission order. The buffered
// byte counter tracks bytes accepted but not yet written to the socket and
// serves as the socket-side congestion signal for the TTS sender.
type Connection struct {
	wire       Wire
	remoteAddr string
	log        logger.Logger

	deviceID atomic.Value // string

	outbound chan outFrame
	buffered atomic.Int64

	done      chan struct{}
	closeOnce sync.Once

	lastPong atomic.Int64 // unix nanos

	hbStart sync.Once
	hbStop  chan struct{}
	hbOnce  sync.Once
}

// NewConnection wraps an accepted socket and starts its writer goroutine.
func NewConnection(wire Wire, log logger.Logger) *Connection {
	c := &Connection{
		wire:       wire,
		remoteAddr: wire.RemoteAddr(),
		log:        log,
		outbound:   make(chan outFrame, outboundQueueSize),
		done:       make(chan struct{}),
		hbStop:     make(chan struct{}),
	}

	c.deviceID.Store("")
	c.lastPong.Store(time.Now().UnixNano())

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbound:
			err := c.wire.WriteMessage(frame.messageType, frame.data)
			c.buffered.Add(-int64(len(frame.data)))

			if err != nil {
				// A failed write does not abort the chain; later
				// frames may still succeed after a transient error.
				c.log.Warn().
					Err(err).
					Str("device_id", c.DeviceID()).
					Str("remote_addr", c.remoteAddr).
					Msg("Outbound write failed")
			}
		}
	}
}

func (c *Connection) enqueue(messageType int, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	c.buffered.Add(int64(len(data)))

	select {
	case c.outbound <- outFrame{messageType: messageType, data: data}:
		return nil
	case <-c.done:
		c.buffered.Add(-int64(len(data)))
		return errConnClosed
	}
}

// SendJSON marshals v and queues it as a text frame.
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.enqueue(websocket.TextMessage, data)
}

// SendBinary queues raw bytes as a binary frame.
func (c *Connection) SendBinary(data []byte) error {
	return c.enqueue(websocket.BinaryMessage, data)
}

// BufferedBytes reports bytes queued but not yet written to the socket.
func (c *Connection) BufferedBytes() int64 {
	return c.buffered.Load()
}

// DeviceID returns the bound device id, or "" before registration.
func (c *Connection) DeviceID() string {
	return c.deviceID.Load().(string)
}

// BindDevice associates this connection with a registered device.
func (c *Connection) BindDevice(deviceID string) {
	c.deviceID.Store(deviceID)
}

// RemoteAddr returns the peer address captured at accept time.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// MarkPong records receipt of a liveness response. The heartbeat timer
// judges liveness by the age of this timestamp.
func (c *Connection) MarkPong() {
	c.lastPong.Store(time.Now().UnixNano())
}

// LastPong returns the time of the most recent liveness response.
func (c *Connection) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// StopHeartbeat cancels this connection's heartbeat timer. Always called
// before a connection is superseded or detached.
func (c *Connection) StopHeartbeat() {
	c.hbOnce.Do(func() {
		close(c.hbStop)
	})
}

// HeartbeatStopped signals heartbeat cancellation to the timer goroutine.
func (c *Connection) HeartbeatStopped() <-chan struct{} {
	return c.hbStop
}

// Close terminates the connection and its writer goroutine. Idempotent.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		if err := c.wire.Close(); err != nil {
			c.log.Debug().
				Err(err).
				Str("device_id", c.DeviceID()).
				Msg("Socket close error")
		}
	})
}

// Done signals connection teardown.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}
