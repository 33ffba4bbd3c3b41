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
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
	"github.com/carverauto/edgegate/pkg/stt"
)

var (
	errNoEngine              = errors.New("recognition backend unavailable")
	errSessionExists         = errors.New("session already exists")
	errEmptyAudio            = errors.New("empty audio payload")
	errUnknownPayload        = errors.New("unrecognized audio payload encoding")
	errDeviceSessionNotFound = errors.New("unknown recognition session")
)

// asrState tracks one utterance through its lifecycle.
type asrState int

const (
	asrStarted asrState = iota
	asrReceiving
	asrStopped
	asrFinalizeWait
	asrClosed
)

// asrSession is one active recognition utterance.
type asrSession struct {
	id            string
	deviceID      string
	format        stt.Format
	sessionNumber int

	utterance stt.Utterance

	mu             sync.Mutex
	state          asrState
	startTime      time.Time
	lastChunkTime  time.Time
	totalChunks    int64
	totalBytes     int64
	endingRun      int
	earlyEndSent   bool
	stopped        bool
	finalizing     bool
	finalText      string
	finalTextSetAt time.Time
	finalized      bool
}

// ASRManager owns the per-utterance state machines: it ingests audio
// chunks, ends utterances early on sustained voice-activity "ending"
// signals, and reconciles the backend's partial/final text stream into a
// single best-effort transcript.
type ASRManager struct {
	cfg    models.ASRConfig
	log    logger.Logger
	engine stt.Engine

	mu       sync.Mutex
	sessions map[string]*asrSession
	byDevice map[string]string // device id -> active session id
}

// NewASRManager creates the session manager. A nil engine is tolerated;
// session starts then fail with a device-visible error.
func NewASRManager(cfg models.ASRConfig, log logger.Logger, engine stt.Engine) *ASRManager {
	return &ASRManager{
		cfg:      cfg,
		log:      log.WithComponent("asr"),
		engine:   engine,
		sessions: make(map[string]*asrSession),
		byDevice: make(map[string]string),
	}
}

// StartSession opens a recognition utterance for a device. If a prior
// session on the same device is still open, it is ended first so the
// backend never sees two concurrent utterances from one device.
func (m *ASRManager) StartSession(ctx context.Context, conn *Connection, frame *models.ASRSessionStartFrame) error {
	if m.engine == nil {
		return errNoEngine
	}

	deviceID := conn.DeviceID()

	m.mu.Lock()
	priorID, hasPrior := m.byDevice[deviceID]
	prior := m.sessions[priorID]
	m.mu.Unlock()

	if hasPrior && prior != nil {
		prior.mu.Lock()
		alreadyEnding := prior.stopped || prior.earlyEndSent
		prior.mu.Unlock()

		if !alreadyEnding {
			m.log.Info().
				Str("device_id", deviceID).
				Str("prior_session", priorID).
				Str("new_session", frame.SessionID).
				Msg("Ending prior session before new utterance")

			m.endUtterance(prior)
			time.Sleep(m.cfg.SupersedeGrace.AsDuration())
		}

		m.removeSession(prior)
	}

	format := stt.Format{
		SampleRate: frame.SampleRate,
		Bits:       frame.Bits,
		Channels:   frame.Channels,
		Model:      frame.Model,
	}

	utterance, err := m.engine.StartUtterance(ctx, format)
	if err != nil {
		return err
	}

	now := time.Now()
	sess := &asrSession{
		id:            frame.SessionID,
		deviceID:      deviceID,
		format:        format,
		sessionNumber: frame.SessionNumber,
		utterance:     utterance,
		state:         asrStarted,
		startTime:     now,
		lastChunkTime: now,
	}

	m.mu.Lock()
	if _, exists := m.sessions[frame.SessionID]; exists {
		m.mu.Unlock()

		_ = utterance.Close()

		return errSessionExists
	}

	m.sessions[frame.SessionID] = sess
	m.byDevice[deviceID] = frame.SessionID
	m.mu.Unlock()

	go m.consumeTranscripts(sess, conn)

	m.log.Debug().
		Str("device_id", deviceID).
		Str("session_id", frame.SessionID).
		Int("sample_rate", frame.SampleRate).
		Int("session_number", frame.SessionNumber).
		Msg("ASR session started")

	return nil
}

// consumeTranscripts folds the backend's partial/final stream into the
// session transcript and forwards interim text to the device unreconciled.
func (m *ASRManager) consumeTranscripts(sess *asrSession, conn *Connection) {
	for event := range sess.utterance.Events() {
		if event.Err != nil {
			m.log.Warn().
				Err(event.Err).
				Str("session_id", sess.id).
				Msg("Recognition backend error")

			continue
		}

		sess.mu.Lock()
		sess.finalText = reconcileTranscript(sess.finalText, event.Text)
		sess.finalTextSetAt = time.Now()

		if event.IsFinal {
			sess.finalized = true
		}
		sess.mu.Unlock()

		if !event.IsFinal && event.Text != "" {
			interim := models.ASRInterimFrame{
				Type:      models.FrameASRInterim,
				SessionID: sess.id,
				Text:      event.Text,
			}

			if err := conn.SendJSON(interim); err != nil {
				m.log.Debug().
					Err(err).
					Str("session_id", sess.id).
					Msg("Failed to forward interim transcript")
			}
		}
	}
}

// HandleChunk ingests one audio chunk: decodes the payload, forwards it to
// the backend while voice activity is live, and ends the utterance early
// after the configured run of consecutive "ending" signals. An early end
// finalizes the session immediately; devices are not required to follow it
// with an explicit stop frame.
func (m *ASRManager) HandleChunk(ctx context.Context, conn *Connection, frame *models.ASRAudioChunkFrame, onFinal func(ctx context.Context, deviceID, text string)) error {
	sess := m.session(frame.SessionID)
	if sess == nil {
		return errDeviceSessionNotFound
	}

	payload := frame.Data
	if len(payload) == 0 && frame.Audio != nil {
		payload = frame.Audio.Data
	}

	pcm, err := decodeAudioPayload(payload)
	if err != nil {
		return err
	}

	sess.mu.Lock()

	sess.state = asrReceiving
	sess.lastChunkTime = time.Now()
	sess.totalChunks++
	sess.totalBytes += int64(len(pcm))

	if frame.VADState == models.VADEnding {
		sess.endingRun++
	} else {
		sess.endingRun = 0
	}

	forward := frame.VADState == models.VADActive || frame.VADState == models.VADEnding
	endEarly := sess.endingRun >= m.cfg.EndingChunkRun && !sess.earlyEndSent && !sess.stopped

	if endEarly {
		sess.earlyEndSent = true
	}

	sess.mu.Unlock()

	if forward {
		if err := sess.utterance.PushAudio(pcm); err != nil {
			m.log.Warn().
				Err(err).
				Str("session_id", sess.id).
				Msg("Failed to push audio to backend")
		}
	}

	if endEarly {
		m.log.Debug().
			Str("session_id", sess.id).
			Int64("chunks", sess.totalChunks).
			Msg("Consecutive ending chunks, ending utterance early")

		if err := sess.utterance.End(); err != nil {
			m.log.Warn().
				Err(err).
				Str("session_id", sess.id).
				Msg("Failed to end utterance early")
		}

		sess.mu.Lock()
		sess.state = asrStopped
		spawn := !sess.finalizing
		sess.finalizing = true
		sess.mu.Unlock()

		if spawn {
			go m.finalize(ctx, sess, conn, onFinal)
		}
	}

	return nil
}

// StopSession handles the explicit stop frame. Idempotent: a repeated stop,
// or a stop for a session that already ended early and is finalizing, is a
// no-op.
func (m *ASRManager) StopSession(ctx context.Context, conn *Connection, frame *models.ASRSessionStopFrame, onFinal func(ctx context.Context, deviceID, text string)) {
	sess := m.session(frame.SessionID)
	if sess == nil {
		return
	}

	sess.mu.Lock()

	if sess.stopped || sess.finalizing {
		sess.mu.Unlock()
		return
	}

	sess.stopped = true
	sess.finalizing = true
	sess.state = asrStopped
	needEnd := !sess.earlyEndSent

	sess.mu.Unlock()

	if needEnd {
		if err := sess.utterance.End(); err != nil {
			m.log.Warn().
				Err(err).
				Str("session_id", sess.id).
				Msg("Failed to end utterance")
		}
	}

	go m.finalize(ctx, sess, conn, onFinal)
}

// finalize polls for the backend's final text up to the configured wait,
// then pushes either the reconciled transcript or a device-visible error so
// the client never hangs. The session is removed in both outcomes.
func (m *ASRManager) finalize(ctx context.Context, sess *asrSession, conn *Connection, onFinal func(ctx context.Context, deviceID, text string)) {
	sess.mu.Lock()
	sess.state = asrFinalizeWait
	sess.mu.Unlock()

	poll := m.cfg.FinalizePoll.AsDuration()
	deadline := time.Now().Add(m.cfg.FinalizeMaxWait.AsDuration())

	var (
		text string
		ok   bool
	)

	for {
		sess.mu.Lock()
		if sess.finalized {
			text = sess.finalText
			ok = true
		}
		sess.mu.Unlock()

		if ok || time.Now().After(deadline) {
			break
		}

		time.Sleep(poll)
	}

	defer m.removeSession(sess)

	if !ok {
		m.log.Warn().
			Str("session_id", sess.id).
			Str("device_id", sess.deviceID).
			Msg("Finalize wait timed out")

		errFrame := models.ErrorFrame{
			Type:    models.FrameError,
			Error:   "recognition timed out",
			Context: sess.id,
		}

		if err := conn.SendJSON(errFrame); err != nil {
			m.log.Debug().Err(err).Str("session_id", sess.id).Msg("Failed to send finalize error")
		}

		return
	}

	final := models.ASRFinalFrame{
		Type:          models.FrameASRFinal,
		SessionID:     sess.id,
		Text:          text,
		SessionNumber: sess.sessionNumber,
	}

	if err := conn.SendJSON(final); err != nil {
		m.log.Debug().Err(err).Str("session_id", sess.id).Msg("Failed to send final transcript")
	}

	m.log.Info().
		Str("session_id", sess.id).
		Str("device_id", sess.deviceID).
		Int("text_len", len(text)).
		Int64("chunks", sess.totalChunks).
		Int64("bytes", sess.totalBytes).
		Msg("Utterance finalized")

	if onFinal != nil && text != "" {
		onFinal(ctx, sess.deviceID, text)
	}
}

// Sweep closes sessions whose last chunk is older than the idle age,
// guarding against abandoned sessions from dropped connections.
func (m *ASRManager) Sweep() {
	cutoff := time.Now().Add(-m.cfg.IdleSessionAge.AsDuration())

	m.mu.Lock()
	var stale []*asrSession

	for _, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.lastChunkTime.Before(cutoff)
		sess.mu.Unlock()

		if idle {
			stale = append(stale, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range stale {
		m.log.Info().
			Str("session_id", sess.id).
			Str("device_id", sess.deviceID).
			Msg("Sweeping idle ASR session")

		m.endUtterance(sess)
		m.removeSession(sess)
	}
}

// SessionCount reports the number of open sessions.
func (m *ASRManager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

func (m *ASRManager) session(id string) *asrSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions[id]
}

func (m *ASRManager) endUtterance(sess *asrSession) {
	sess.mu.Lock()

	if sess.stopped || sess.earlyEndSent {
		sess.mu.Unlock()
		return
	}

	sess.stopped = true
	sess.mu.Unlock()

	if err := sess.utterance.End(); err != nil {
		m.log.Debug().
			Err(err).
			Str("session_id", sess.id).
			Msg("Best-effort utterance end failed")
	}
}

func (m *ASRManager) removeSession(sess *asrSession) {
	if sess == nil {
		return
	}

	sess.mu.Lock()
	sess.state = asrClosed
	sess.mu.Unlock()

	_ = sess.utterance.Close()

	m.mu.Lock()

	delete(m.sessions, sess.id)

	if m.byDevice[sess.deviceID] == sess.id {
		delete(m.byDevice, sess.deviceID)
	}

	m.mu.Unlock()
}

// reconcileTranscript merges successive transcript updates. Growth is
// accepted, regression is rejected, and text with no prefix relation to the
// previous update is appended rather than dropped: duplication is preferred
// over silent data loss.
func reconcileTranscript(prev, next string) string {
	switch {
	case prev == "":
		return next
	case next == "":
		return prev
	case strings.HasPrefix(next, prev):
		return next
	case strings.HasPrefix(prev, next):
		return prev
	default:
		return prev + next
	}
}

// decodeAudioPayload normalizes the chunk payload to binary PCM. Accepted
// encodings: hex string, base64 string, raw string bytes, or a numeric PCM
// sample array (little-endian int16 output).
func decodeAudioPayload(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errEmptyAudio
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, errEmptyAudio
		}

		if isHexString(s) {
			if decoded, err := hex.DecodeString(s); err == nil {
				return decoded, nil
			}
		}

		if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
			return decoded, nil
		}

		// Neither hex nor base64: treat the string as raw binary.
		return []byte(s), nil
	}

	var samples []float64
	if err := json.Unmarshal(raw, &samples); err == nil {
		if len(samples) == 0 {
			return nil, errEmptyAudio
		}

		pcm := make([]byte, 2*len(samples))
		for i, sample := range samples {
			binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(sample)))
		}

		return pcm, nil
	}

	return nil, errUnknownPayload
}

func isHexString(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}

	return true
}
