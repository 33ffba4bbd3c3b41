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
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/carverauto/edgegate/pkg/models"
)

var errUnsupportedEmotion = errors.New("unsupported emotion")

// supportedEmotions is the fixed display set devices understand.
var supportedEmotions = map[string]struct{}{
	"neutral":   {},
	"happy":     {},
	"sad":       {},
	"angry":     {},
	"surprised": {},
	"thinking":  {},
	"sleepy":    {},
	"love":      {},
}

// emotionKeywords maps free-text cues to emotion commands for SendMsg.
var emotionKeywords = map[string]string{
	"smile": "happy",
	"laugh": "happy",
	"haha":  "happy",
	"cry":   "sad",
	"sigh":  "sad",
	"grr":   "angry",
	"wow":   "surprised",
	"hmm":   "thinking",
	"yawn":  "sleepy",
}

// ReplyPayload is the wrapper form accepted by the reply adapter.
type ReplyPayload struct {
	Segments    []models.Segment
	Title       string
	Description string
}

// DeviceProxy exposes domain operations for one device, built entirely on
// the command dispatcher.
type DeviceProxy struct {
	deviceID string
	gw       *Gateway
}

// Proxy returns the facade for a device id. The proxy is stateless; it is
// valid whether or not the device is currently online.
func (g *Gateway) Proxy(deviceID string) *DeviceProxy {
	return &DeviceProxy{deviceID: deviceID, gw: g}
}

// DeviceID returns the proxied device id.
func (p *DeviceProxy) DeviceID() string {
	return p.deviceID
}

func (p *DeviceProxy) send(ctx context.Context, command string, params map[string]interface{}, priority models.CommandPriority) (*models.CommandOutcome, error) {
	return p.gw.dispatcher.SendCommand(ctx, p.deviceID, command, params, priority)
}

// Display shows text on the device screen.
func (p *DeviceProxy) Display(ctx context.Context, text string) (*models.CommandOutcome, error) {
	return p.send(ctx, "display", map[string]interface{}{"text": text}, models.PriorityNormal)
}

// Emotion shows a named emotion, validated against the supported set.
func (p *DeviceProxy) Emotion(ctx context.Context, name string) (*models.CommandOutcome, error) {
	if _, ok := supportedEmotions[name]; !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmotion, name)
	}

	return p.send(ctx, "emotion", map[string]interface{}{"emotion": name}, models.PriorityNormal)
}

// Clear clears the device display.
func (p *DeviceProxy) Clear(ctx context.Context) (*models.CommandOutcome, error) {
	return p.send(ctx, "clear", nil, models.PriorityNormal)
}

// CameraOn enables the device camera.
func (p *DeviceProxy) CameraOn(ctx context.Context) (*models.CommandOutcome, error) {
	return p.send(ctx, "camera.on", nil, models.PriorityNormal)
}

// CameraOff disables the device camera.
func (p *DeviceProxy) CameraOff(ctx context.Context) (*models.CommandOutcome, error) {
	return p.send(ctx, "camera.off", nil, models.PriorityNormal)
}

// CameraSnapshot requests a still capture.
func (p *DeviceProxy) CameraSnapshot(ctx context.Context) (*models.CommandOutcome, error) {
	return p.send(ctx, "camera.snapshot", nil, models.PriorityNormal)
}

// MicrophoneOn enables the device microphone.
func (p *DeviceProxy) MicrophoneOn(ctx context.Context) (*models.CommandOutcome, error) {
	return p.send(ctx, "microphone.on", nil, models.PriorityNormal)
}

// MicrophoneOff disables the device microphone.
func (p *DeviceProxy) MicrophoneOff(ctx context.Context) (*models.CommandOutcome, error) {
	return p.send(ctx, "microphone.off", nil, models.PriorityNormal)
}

// Reboot restarts the device. High priority so it jumps any offline queue.
func (p *DeviceProxy) Reboot(ctx context.Context) (*models.CommandOutcome, error) {
	return p.send(ctx, "reboot", nil, models.PriorityHigh)
}

// SendMsg displays text, substituting an emotion command when the text
// matches a known emotion cue.
func (p *DeviceProxy) SendMsg(ctx context.Context, text string) (*models.CommandOutcome, error) {
	trimmed := strings.ToLower(strings.TrimSpace(text))

	if _, ok := supportedEmotions[trimmed]; ok {
		return p.Emotion(ctx, trimmed)
	}

	if emotion, ok := emotionKeywords[trimmed]; ok {
		return p.Emotion(ctx, emotion)
	}

	return p.Display(ctx, text)
}

// Reply normalizes a heterogeneous outbound payload into the wire
// protocol's segment format and transmits it as one frame. Accepted forms:
// a plain string, a single segment, a segment slice, or a ReplyPayload
// wrapper. Returns false when the socket is not open or normalization
// yields zero segments.
func (p *DeviceProxy) Reply(payload interface{}) bool {
	frame, ok := p.normalizeReply(payload)
	if !ok {
		return false
	}

	conn := p.gw.registry.LiveConnection(p.deviceID)
	if conn == nil {
		p.gw.log.Warn().
			Str("device_id", p.deviceID).
			Msg("Reply dropped, no live connection")

		return false
	}

	if err := conn.SendJSON(frame); err != nil {
		p.gw.log.Warn().
			Err(err).
			Str("device_id", p.deviceID).
			Msg("Reply send failed")

		return false
	}

	p.gw.registry.IncMessagesSent(p.deviceID)

	return true
}

func (p *DeviceProxy) normalizeReply(payload interface{}) (*models.ReplyFrame, bool) {
	frame := &models.ReplyFrame{Type: models.FrameReply}

	switch v := payload.(type) {
	case string:
		if v == "" {
			break
		}

		frame.Segments = []models.Segment{{Type: "text", Content: v}}
	case models.Segment:
		frame.Segments = []models.Segment{v}
	case *models.Segment:
		if v != nil {
			frame.Segments = []models.Segment{*v}
		}
	case []models.Segment:
		frame.Segments = v
	case ReplyPayload:
		frame.Segments = v.Segments
		frame.Title = v.Title
		frame.Description = v.Description
	case *ReplyPayload:
		if v != nil {
			frame.Segments = v.Segments
			frame.Title = v.Title
			frame.Description = v.Description
		}
	}

	if len(frame.Segments) == 0 {
		p.gw.log.Warn().
			Str("device_id", p.deviceID).
			Msg("Reply normalization yielded no segments")

		return nil, false
	}

	for i := range frame.Segments {
		p.rewriteSegmentFile(&frame.Segments[i])

		// A forward segment bundles a transcript; the whole frame is
		// delivered as a forward rather than a plain reply.
		if frame.Segments[i].Type == models.FrameForward {
			frame.Type = models.FrameForward
		}
	}

	return frame, true
}

// rewriteSegmentFile turns a segment's local file path into a servable URL,
// distinguishing the trash storage area from general absolute paths.
func (p *DeviceProxy) rewriteSegmentFile(seg *models.Segment) {
	if seg.File == "" || seg.URL != "" {
		return
	}

	cfg := p.gw.cfg
	if cfg.PublicURL == "" {
		return
	}

	base := strings.TrimRight(cfg.PublicURL, "/")
	name := url.PathEscape(filepath.Base(seg.File))

	switch {
	case cfg.TrashDir != "" && strings.HasPrefix(seg.File, cfg.TrashDir):
		seg.URL = base + "/files/trash/" + name
	case filepath.IsAbs(seg.File):
		seg.URL = base + "/files/" + name
	}
}
