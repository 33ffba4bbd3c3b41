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
	"sync"
	"time"

	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
)

const chainQueueSize = 256

// TTSSender streams synthesized audio to devices without overrunning their
// playback buffers. Each device has a private serialized send chain, so
// chunks are always delivered in submission order. Before each send the
// chain waits while either congestion signal is high: the client-reported
// playback queue depth or the connection's own buffered byte count.
type TTSSender struct {
	cfg      models.TTSConfig
	log      logger.Logger
	registry *Registry

	mu     sync.Mutex
	chains map[string]*sendChain
	closed bool
}

type sendChain struct {
	work chan []byte
	stop chan struct{}
}

// NewTTSSender creates the sender.
func NewTTSSender(cfg models.TTSConfig, log logger.Logger, registry *Registry) *TTSSender {
	return &TTSSender{
		cfg:      cfg,
		log:      log.WithComponent("tts_sender"),
		registry: registry,
		chains:   make(map[string]*sendChain),
	}
}

// SendAudioChunk appends one chunk to the device's send chain. The call
// blocks only when the chain's submission queue is full.
func (s *TTSSender) SendAudioChunk(deviceID string, audio []byte) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return errConnClosed
	}

	chain, ok := s.chains[deviceID]
	if !ok {
		chain = &sendChain{
			work: make(chan []byte, chainQueueSize),
			stop: make(chan struct{}),
		}
		s.chains[deviceID] = chain

		go s.run(deviceID, chain)
	}

	s.mu.Unlock()

	select {
	case chain.work <- audio:
		return nil
	case <-chain.stop:
		return errConnClosed
	}
}

func (s *TTSSender) run(deviceID string, chain *sendChain) {
	for {
		select {
		case <-chain.stop:
			return
		case audio := <-chain.work:
			s.deliver(deviceID, audio)
		}
	}
}

func (s *TTSSender) deliver(deviceID string, audio []byte) {
	s.waitForCapacity(deviceID)

	conn := s.registry.LiveConnection(deviceID)
	if conn == nil {
		s.log.Debug().
			Str("device_id", deviceID).
			Int("bytes", len(audio)).
			Msg("No live connection, audio chunk dropped")

		return
	}

	// Smooth transmission spikes: brief pause while the socket still has
	// a backlog just before this send.
	if conn.BufferedBytes() > s.cfg.BufferedLowWater {
		time.Sleep(s.cfg.SmoothingPause.AsDuration())
	}

	if err := conn.SendBinary(audio); err != nil {
		// The chain survives individual send failures.
		s.log.Warn().
			Err(err).
			Str("device_id", deviceID).
			Int("bytes", len(audio)).
			Msg("Audio chunk send failed")
	}
}

// waitForCapacity blocks while either congestion signal is above its
// high-water mark. Once waiting, it releases only when both signals fall to
// their low-water marks, or unconditionally after the maximum wait so
// forward progress is guaranteed.
func (s *TTSSender) waitForCapacity(deviceID string) {
	if !s.congested(deviceID, s.cfg.QueueHighWater, s.cfg.BufferedHighWater) {
		return
	}

	poll := s.cfg.PollInterval.AsDuration()
	deadline := time.Now().Add(s.cfg.MaxWait.AsDuration())

	for {
		time.Sleep(poll)

		if !s.congested(deviceID, s.cfg.QueueLowWater, s.cfg.BufferedLowWater) {
			return
		}

		if time.Now().After(deadline) {
			s.log.Debug().
				Str("device_id", deviceID).
				Msg("Backpressure wait exceeded maximum, proceeding")

			return
		}
	}
}

// congested reports whether either signal is at or above the given
// thresholds. The client-reported queue depth is trusted only within the
// staleness window.
func (s *TTSSender) congested(deviceID string, queueMark int, bufferedMark int64) bool {
	if status, ok := s.registry.TTSStatus(deviceID); ok {
		fresh := time.Since(status.ReceivedAt) <= s.cfg.StatusMaxAge.AsDuration()
		if fresh && status.QueueLen >= queueMark {
			return true
		}
	}

	conn := s.registry.LiveConnection(deviceID)
	if conn != nil && conn.BufferedBytes() > bufferedMark {
		return true
	}

	return false
}

// Close tears down all send chains.
func (s *TTSSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	for _, chain := range s.chains {
		close(chain.stop)
	}
}
