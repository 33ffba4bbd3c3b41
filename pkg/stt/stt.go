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

// Package stt defines the streaming speech-recognition backend interface
// consumed by the ASR session manager. Concrete providers live outside the
// gateway core.
package stt

import (
	"context"
	"time"
)

// Format describes the PCM stream negotiated at utterance start.
type Format struct {
	SampleRate int
	Bits       int
	Channels   int
	Model      string
}

// Engine opens recognition utterances against a speech backend.
type Engine interface {
	// StartUtterance opens one continuous recognition session. The
	// returned Utterance is owned by the caller and must be closed.
	StartUtterance(ctx context.Context, format Format) (Utterance, error)
}

// Utterance is one open recognition session from speech-start to
// speech-end.
type Utterance interface {
	// PushAudio forwards one chunk of normalized binary PCM.
	PushAudio(data []byte) error

	// End signals that no more audio will arrive; the backend should
	// finalize its transcript.
	End() error

	// Events delivers partial and final transcript updates. The channel
	// is closed after the final event or on backend failure.
	Events() <-chan TranscriptEvent

	// Close releases the session. Idempotent.
	Close() error
}

// TranscriptEvent is one transcript update from the backend.
type TranscriptEvent struct {
	Text      string
	IsFinal   bool
	Err       error
	Timestamp time.Time
}
