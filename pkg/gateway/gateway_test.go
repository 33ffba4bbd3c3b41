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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/edgegate/pkg/ai"
	"github.com/carverauto/edgegate/pkg/models"
	"github.com/carverauto/edgegate/pkg/tts"
)

// fakeSynthesizer yields a fixed chunk sequence per call.
type fakeSynthesizer struct {
	mu     sync.Mutex
	texts  []string
	chunks [][]byte
	err    error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) (<-chan tts.AudioChunk, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	out := make(chan tts.AudioChunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- tts.AudioChunk{Data: c}
	}
	close(out)

	return out, nil
}

func (f *fakeSynthesizer) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.texts))
	copy(out, f.texts)

	return out
}

// fakeResponder answers every utterance with a fixed reply.
type fakeResponder struct {
	mu    sync.Mutex
	asked []string
	reply ai.Reply
	err   error
}

func (f *fakeResponder) Respond(_ context.Context, _ string, text string) (ai.Reply, error) {
	f.mu.Lock()
	f.asked = append(f.asked, text)
	f.mu.Unlock()

	if f.err != nil {
		return ai.Reply{}, f.err
	}

	return f.reply, nil
}

func TestSayStreamsThroughSender(t *testing.T) {
	synth := &fakeSynthesizer{chunks: [][]byte{{0x01}, {0x02}}}

	g := newTestGateway(t, nil, Deps{TTS: synth})
	_, wire := registerDevice(t, g, "dev-1")

	require.NoError(t, g.Say(context.Background(), "dev-1", "hello there"))

	require.Eventually(t, func() bool {
		return len(wire.binaryFrames()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"hello there"}, synth.spoken())
}

func TestSayWithoutSynthesizer(t *testing.T) {
	g := newTestGateway(t, nil, Deps{})

	err := g.Say(context.Background(), "dev-1", "hello")
	require.ErrorIs(t, err, errNoSynthesizer)
}

func TestTriggerAIDeliversReplyAndSpeech(t *testing.T) {
	synth := &fakeSynthesizer{chunks: [][]byte{{0x0a}}}
	responder := &fakeResponder{reply: ai.Reply{Text: "it is noon", Emotion: "happy"}}

	// Short command timeout so the unanswered emotion command does not
	// stall the pipeline for the full default window.
	cfg := testConfig(t)
	cfg.Dispatch.CommandTimeout = models.Duration(20 * time.Millisecond)

	g := newTestGateway(t, cfg, Deps{TTS: synth, AI: responder})
	_, wire := registerDevice(t, g, "dev-1")

	require.NoError(t, g.TriggerAI(context.Background(), "dev-1", "what time is it"))

	// Emotion command, text reply, and synthesized audio all reach the
	// device.
	require.Eventually(t, func() bool {
		return len(wire.framesOfType(t, models.FrameCommand)) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	commands := wire.framesOfType(t, models.FrameCommand)
	assert.Equal(t, "emotion", commands[0]["command"])

	require.Eventually(t, func() bool {
		replies := wire.framesOfType(t, models.FrameReply)
		return len(replies) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(wire.binaryFrames()) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTriggerAIWithoutResponder(t *testing.T) {
	g := newTestGateway(t, nil, Deps{})

	err := g.TriggerAI(context.Background(), "dev-1", "hello")
	require.ErrorIs(t, err, errNoResponder)
}

func TestRespondToUtteranceBackendFailure(t *testing.T) {
	responder := &fakeResponder{err: errors.New("model overloaded")}

	g := newTestGateway(t, nil, Deps{AI: responder})
	_, wire := registerDevice(t, g, "dev-1")

	g.respondToUtterance(context.Background(), "dev-1", "what time is it")

	require.Eventually(t, func() bool {
		errs := wire.framesOfType(t, models.FrameError)
		return len(errs) == 1 && errs[0]["error"] == "assistant unavailable"
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, wire.framesOfType(t, models.FrameReply))
}

func TestOfflineSweepDisconnectsSilentDevices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Heartbeat.Timeout = models.Duration(20 * time.Millisecond)

	g := newTestGateway(t, cfg, Deps{})
	registerDevice(t, g, "dev-1")

	time.Sleep(50 * time.Millisecond)
	g.offlineSweep(context.Background())

	dev, err := g.Registry().GetDevice("dev-1")
	require.NoError(t, err)
	assert.False(t, dev.Online)
}

func TestOfflineSweepSparesFreshDevices(t *testing.T) {
	g := newTestGateway(t, nil, Deps{})
	registerDevice(t, g, "dev-1")

	g.offlineSweep(context.Background())

	dev, err := g.Registry().GetDevice("dev-1")
	require.NoError(t, err)
	assert.True(t, dev.Online)
}

func TestHeartbeatTickDisconnectsOnStalePong(t *testing.T) {
	cfg := testConfig(t)
	cfg.Heartbeat.PongMaxAge = models.Duration(10 * time.Millisecond)

	g := newTestGateway(t, cfg, Deps{})
	conn, _ := registerDevice(t, g, "dev-1")

	time.Sleep(30 * time.Millisecond)

	alive := g.heartbeatTick(context.Background(), conn)
	assert.False(t, alive)

	dev, err := g.Registry().GetDevice("dev-1")
	require.NoError(t, err)
	assert.False(t, dev.Online)
}

func TestHeartbeatTickProbesHealthyDevice(t *testing.T) {
	g := newTestGateway(t, nil, Deps{})
	conn, wire := registerDevice(t, g, "dev-1")

	conn.MarkPong()

	alive := g.heartbeatTick(context.Background(), conn)
	assert.True(t, alive)

	require.Eventually(t, func() bool {
		return len(wire.framesOfType(t, models.FrameHeartbeatRequest)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHandleHeartbeatRequeuesBatchOnSendFailure(t *testing.T) {
	g := newTestGateway(t, nil, Deps{})
	conn, _ := registerDevice(t, g, "dev-1")

	for _, name := range []string{"a", "b"} {
		g.Dispatcher().enqueue("dev-1", &models.Command{ID: name, Command: name, Priority: models.PriorityNormal, Timestamp: time.Now()})
	}

	conn.Close()
	g.HandleHeartbeat(conn)

	// The batch must survive a failed write instead of vanishing with it.
	assert.Equal(t, 2, g.Dispatcher().QueueDepth("dev-1"))

	again := g.Dispatcher().DequeueBatch("dev-1", 2)
	require.Len(t, again, 2)
	assert.Equal(t, "a", again[0].ID)
	assert.Equal(t, "b", again[1].ID)

	dev, err := g.Registry().GetDevice("dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), dev.Stats.CommandsExecuted)
}
