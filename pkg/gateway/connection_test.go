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
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionWritesInOrder(t *testing.T) {
	conn, wire := newTestConn()
	defer conn.Close()

	require.NoError(t, conn.SendJSON(map[string]string{"type": "a"}))
	require.NoError(t, conn.SendBinary([]byte{0x01}))
	require.NoError(t, conn.SendJSON(map[string]string{"type": "b"}))

	require.Eventually(t, func() bool {
		return len(wire.frames()) == 3
	}, time.Second, 5*time.Millisecond)

	frames := wire.frames()
	assert.Equal(t, websocket.TextMessage, frames[0].messageType)
	assert.Equal(t, websocket.BinaryMessage, frames[1].messageType)
	assert.Equal(t, websocket.TextMessage, frames[2].messageType)
}

func TestConnectionBufferedBytesDrain(t *testing.T) {
	conn, _ := newTestConn()
	defer conn.Close()

	require.NoError(t, conn.SendBinary(make([]byte, 1024)))

	// The writer drains the queue, returning the counter to zero.
	require.Eventually(t, func() bool {
		return conn.BufferedBytes() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	conn, wire := newTestConn()

	conn.Close()
	conn.Close()

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel never closed")
	}

	wire.mu.Lock()
	closed := wire.closed
	wire.mu.Unlock()
	assert.True(t, closed)

	err := conn.SendJSON(map[string]string{"type": "late"})
	require.ErrorIs(t, err, errConnClosed)
}

func TestConnectionBindDevice(t *testing.T) {
	conn, _ := newTestConn()
	defer conn.Close()

	assert.Empty(t, conn.DeviceID())

	conn.BindDevice("dev-1")
	assert.Equal(t, "dev-1", conn.DeviceID())
}

func TestConnectionMarkPong(t *testing.T) {
	conn, _ := newTestConn()
	defer conn.Close()

	before := conn.LastPong()
	time.Sleep(5 * time.Millisecond)
	conn.MarkPong()

	assert.True(t, conn.LastPong().After(before))
}

func TestConnectionStopHeartbeatIsIdempotent(t *testing.T) {
	conn, _ := newTestConn()
	defer conn.Close()

	conn.StopHeartbeat()
	conn.StopHeartbeat()

	select {
	case <-conn.HeartbeatStopped():
	case <-time.After(time.Second):
		t.Fatal("heartbeat stop channel never closed")
	}
}
