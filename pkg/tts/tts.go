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

// Package tts defines the speech-synthesis backend interface. Synthesized
// audio is delivered in chunks suitable for the backpressure-paced sender.
package tts

import (
	"context"
)

// AudioChunk is one unit of synthesized audio.
type AudioChunk struct {
	Data []byte
	Err  error
}

// Synthesizer converts text into a stream of audio chunks. The channel is
// closed when synthesis completes or fails; a failure is reported as a
// final chunk carrying Err.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan AudioChunk, error)
}
