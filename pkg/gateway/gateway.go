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

// Package gateway implements the device gateway core: connection registry
// and liveness tracking, command dispatch with an offline queue, per-
// utterance speech-recognition sessions, and backpressure-paced audio
// delivery.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/edgegate/pkg/ai"
	"github.com/carverauto/edgegate/pkg/events"
	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
	"github.com/carverauto/edgegate/pkg/stt"
	"github.com/carverauto/edgegate/pkg/tts"
)

var (
	errNoSynthesizer = errors.New("synthesis backend unavailable")
	errNoResponder   = errors.New("reply pipeline unavailable")
)

// Deps are the external collaborators. Any of them may be nil; the
// corresponding operations then fail with device-visible errors rather
// than crashing.
type Deps struct {
	Events events.Publisher
	STT    stt.Engine
	TTS    tts.Synthesizer
	AI     ai.Responder
}

// MessageHandler receives inbound chat messages in-process, alongside the
// event bus publication.
type MessageHandler func(ctx context.Context, msg *IncomingMessage)

// Gateway composes the registry, dispatcher, ASR manager, and TTS sender
// behind the wire protocol.
type Gateway struct {
	cfg    *models.GatewayConfig
	log    logger.Logger
	events events.Publisher

	registry   *Registry
	dispatcher *Dispatcher
	asr        *ASRManager
	tts        *TTSSender

	synth     tts.Synthesizer
	responder ai.Responder

	handlerMu sync.RWMutex
	onMessage MessageHandler
}

// New builds a gateway from configuration and collaborators.
func New(cfg *models.GatewayConfig, log logger.Logger, deps Deps) *Gateway {
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}

	g := &Gateway{
		cfg:       cfg,
		log:       log.WithComponent("gateway"),
		events:    deps.Events,
		synth:     deps.TTS,
		responder: deps.AI,
	}

	g.registry = NewRegistry(cfg, log, deps.Events)
	g.dispatcher = NewDispatcher(cfg.Dispatch, log, g.registry)
	g.asr = NewASRManager(cfg.ASR, log, deps.STT)
	g.tts = NewTTSSender(cfg.TTS, log, g.registry)

	return g
}

// Start runs the background sweeps until the context is canceled: the
// offline-device sweep, the pending-command expiry sweep, and the idle
// ASR-session sweep.
func (g *Gateway) Start(ctx context.Context) {
	go g.sweepLoop(ctx, g.cfg.Heartbeat.Interval.AsDuration(), func() {
		g.offlineSweep(ctx)
	})

	go g.sweepLoop(ctx, g.cfg.Dispatch.SweepInterval.AsDuration(), g.dispatcher.sweepPending)

	go g.sweepLoop(ctx, g.cfg.ASR.SweepInterval.AsDuration(), g.asr.Sweep)
}

func (g *Gateway) sweepLoop(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Stop releases gateway-owned resources.
func (g *Gateway) Stop() {
	g.tts.Close()
}

// SetMessageHandler installs the in-process chat message handler.
func (g *Gateway) SetMessageHandler(handler MessageHandler) {
	g.handlerMu.Lock()
	g.onMessage = handler
	g.handlerMu.Unlock()
}

func (g *Gateway) messageHandler() MessageHandler {
	g.handlerMu.RLock()
	defer g.handlerMu.RUnlock()

	return g.onMessage
}

// Registry exposes the connection registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Dispatcher exposes the command dispatcher.
func (g *Gateway) Dispatcher() *Dispatcher {
	return g.dispatcher
}

// ASRSessionCount reports the number of open recognition sessions.
func (g *Gateway) ASRSessionCount() int {
	return g.asr.SessionCount()
}

// SendCommand dispatches one command to a device.
func (g *Gateway) SendCommand(ctx context.Context, deviceID, command string, parameters map[string]interface{}, priority models.CommandPriority) (*models.CommandOutcome, error) {
	return g.dispatcher.SendCommand(ctx, deviceID, command, parameters, priority)
}

// Say synthesizes text and streams the audio to the device through the
// backpressure sender.
func (g *Gateway) Say(ctx context.Context, deviceID, text string) error {
	if g.synth == nil {
		return errNoSynthesizer
	}

	chunks, err := g.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	go func() {
		for chunk := range chunks {
			if chunk.Err != nil {
				g.log.Warn().
					Err(chunk.Err).
					Str("device_id", deviceID).
					Msg("Synthesis stream error")

				continue
			}

			if err := g.tts.SendAudioChunk(deviceID, chunk.Data); err != nil {
				g.log.Warn().
					Err(err).
					Str("device_id", deviceID).
					Msg("Failed to chain audio chunk")

				return
			}
		}
	}()

	return nil
}

// TriggerAI runs the reply pipeline for arbitrary text as if it had been
// transcribed from the device.
func (g *Gateway) TriggerAI(ctx context.Context, deviceID, text string) error {
	if g.responder == nil {
		return errNoResponder
	}

	g.respondToUtterance(ctx, deviceID, text)

	return nil
}

// respondToUtterance invokes the reply pipeline for a finalized transcript
// and delivers the answer to the device. Backend failures surface as a
// generic AI-error notification so the client never stalls.
func (g *Gateway) respondToUtterance(ctx context.Context, deviceID, text string) {
	if g.responder == nil {
		return
	}

	proxy := g.Proxy(deviceID)

	reply, err := g.responder.Respond(ctx, deviceID, text)
	if err != nil {
		g.log.Error().
			Err(err).
			Str("device_id", deviceID).
			Msg("Reply pipeline failed")

		conn := g.registry.LiveConnection(deviceID)
		if conn != nil {
			g.sendError(conn, "assistant unavailable")
		}

		return
	}

	if reply.Emotion != "" {
		if _, err := proxy.Emotion(ctx, reply.Emotion); err != nil {
			g.log.Debug().
				Err(err).
				Str("device_id", deviceID).
				Str("emotion", reply.Emotion).
				Msg("Emotion delivery failed")
		}
	}

	if reply.Text != "" {
		proxy.Reply(reply.Text)

		if err := g.Say(ctx, deviceID, reply.Text); err != nil && !errors.Is(err, errNoSynthesizer) {
			g.log.Warn().
				Err(err).
				Str("device_id", deviceID).
				Msg("Speech synthesis for reply failed")
		}
	}
}
