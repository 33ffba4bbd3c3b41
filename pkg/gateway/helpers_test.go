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
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/edgegate/pkg/events"
	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
	"github.com/carverauto/edgegate/pkg/stt"
)

type wireFrame struct {
	messageType int
	data        []byte
}

// fakeWire records outbound frames and never produces inbound traffic
// unless fed through the incoming channel.
type fakeWire struct {
	mu       sync.Mutex
	written  []wireFrame
	closed   bool
	incoming chan wireFrame
	remote   string
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		incoming: make(chan wireFrame, 16),
		remote:   "192.0.2.10:52000",
	}
}

func (f *fakeWire) ReadMessage() (int, []byte, error) {
	frame, ok := <-f.incoming
	if !ok {
		return 0, nil, errConnClosed
	}

	return frame.messageType, frame.data, nil
}

func (f *fakeWire) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errConnClosed
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	f.written = append(f.written, wireFrame{messageType: messageType, data: buf})

	return nil
}

func (f *fakeWire) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func (f *fakeWire) RemoteAddr() string {
	return f.remote
}

func (f *fakeWire) frames() []wireFrame {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]wireFrame, len(f.written))
	copy(out, f.written)

	return out
}

// framesOfType decodes all written text frames matching a type.
func (f *fakeWire) framesOfType(t *testing.T, frameType string) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}

	for _, frame := range f.frames() {
		if frame.messageType != websocket.TextMessage {
			continue
		}

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(frame.data, &decoded))

		if decoded["type"] == frameType {
			out = append(out, decoded)
		}
	}

	return out
}

func (f *fakeWire) binaryFrames() [][]byte {
	var out [][]byte

	for _, frame := range f.frames() {
		if frame.messageType == websocket.BinaryMessage {
			out = append(out, frame.data)
		}
	}

	return out
}

// fakeUtterance is a controllable recognition session.
type fakeUtterance struct {
	mu       sync.Mutex
	pushed   [][]byte
	endCount int
	events   chan stt.TranscriptEvent
	finalOn  string // text emitted as final when End is called; "" emits nothing
	closed   bool
}

func newFakeUtterance(finalText string) *fakeUtterance {
	return &fakeUtterance{
		events:  make(chan stt.TranscriptEvent, 16),
		finalOn: finalText,
	}
}

func (u *fakeUtterance) PushAudio(data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	u.pushed = append(u.pushed, buf)

	return nil
}

func (u *fakeUtterance) End() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.endCount++

	if u.endCount == 1 && u.finalOn != "" {
		u.events <- stt.TranscriptEvent{Text: u.finalOn, IsFinal: true, Timestamp: time.Now()}
		close(u.events)
	}

	return nil
}

func (u *fakeUtterance) Events() <-chan stt.TranscriptEvent {
	return u.events
}

func (u *fakeUtterance) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.closed = true

	return nil
}

func (u *fakeUtterance) pushes() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return len(u.pushed)
}

func (u *fakeUtterance) ends() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.endCount
}

func sttEvent(text string, isFinal bool) stt.TranscriptEvent {
	return stt.TranscriptEvent{Text: text, IsFinal: isFinal, Timestamp: time.Now()}
}

// fakeEngine hands out fakeUtterances in order.
type fakeEngine struct {
	mu         sync.Mutex
	utterances []*fakeUtterance
	finalText  string
}

func (e *fakeEngine) StartUtterance(_ context.Context, _ stt.Format) (stt.Utterance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u := newFakeUtterance(e.finalText)
	e.utterances = append(e.utterances, u)

	return u, nil
}

func (e *fakeEngine) utterance(i int) *fakeUtterance {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i >= len(e.utterances) {
		return nil
	}

	return e.utterances[i]
}

func testConfig(t *testing.T) *models.GatewayConfig {
	t.Helper()

	cfg := &models.GatewayConfig{ListenAddr: ":0"}
	require.NoError(t, cfg.Validate())

	return cfg
}

func newTestGateway(t *testing.T, cfg *models.GatewayConfig, deps Deps) *Gateway {
	t.Helper()

	if cfg == nil {
		cfg = testConfig(t)
	}

	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}

	return New(cfg, logger.NewTestLogger(), deps)
}

// registerDevice runs the register frame through the router and returns the
// bound connection.
func registerDevice(t *testing.T, g *Gateway, deviceID string) (*Connection, *fakeWire) {
	t.Helper()

	wire := newFakeWire()
	conn := NewConnection(wire, logger.NewTestLogger())

	frame := models.RegisterFrame{
		Type:       models.FrameRegister,
		DeviceID:   deviceID,
		DeviceType: "esp32-display",
	}

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	g.dispatchFrame(context.Background(), conn, data)

	require.Eventually(t, func() bool {
		return len(wire.framesOfType(t, models.FrameRegisterResponse)) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, deviceID, conn.DeviceID())

	return conn, wire
}
