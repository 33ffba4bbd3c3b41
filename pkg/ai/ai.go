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

// Package ai defines the reply-generation collaborator interface: text in,
// text plus emotion tag out. The pipeline behind it is out of scope.
package ai

import (
	"context"
)

// Reply is the generated answer to one transcribed utterance.
type Reply struct {
	Text    string
	Emotion string
}

// Responder turns an utterance into a reply.
type Responder interface {
	Respond(ctx context.Context, deviceID, text string) (Reply, error)
}
