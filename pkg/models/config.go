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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/edgegate/pkg/logger"
)

var (
	errInvalidDuration = errors.New("invalid duration")
	errListenAddr      = errors.New("listen_addr is required")
	errNATSURL         = errors.New("nats url is required")
)

// Duration wraps time.Duration to accept both numeric nanoseconds and
// strings like "30s" in JSON configuration.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// HeartbeatConfig controls connection liveness tracking.
type HeartbeatConfig struct {
	Interval   Duration `json:"interval"`     // how often the per-connection timer fires
	Timeout    Duration `json:"timeout"`      // max last_seen age before a device is considered gone
	PongMaxAge Duration `json:"pong_max_age"` // max silence after a heartbeat_request probe
	FlushBatch int      `json:"flush_batch"`  // queued commands delivered per heartbeat
}

// DispatchConfig controls the command dispatcher.
type DispatchConfig struct {
	CommandTimeout Duration `json:"command_timeout"`
	MaxQueueSize   int      `json:"max_queue_size"`
	SweepInterval  Duration `json:"sweep_interval"` // pending-callback expiry sweep
}

// ASRConfig controls the recognition session manager.
type ASRConfig struct {
	FinalizeMaxWait Duration `json:"finalize_max_wait"`
	FinalizePoll    Duration `json:"finalize_poll"`
	EndingChunkRun  int      `json:"ending_chunk_run"` // consecutive "ending" chunks before early end
	IdleSessionAge  Duration `json:"idle_session_age"`
	SupersedeGrace  Duration `json:"supersede_grace"`
	SweepInterval   Duration `json:"sweep_interval"`
}

// TTSConfig controls the backpressure-paced audio sender.
type TTSConfig struct {
	QueueHighWater    int      `json:"queue_high_water"`
	QueueLowWater     int      `json:"queue_low_water"`
	BufferedHighWater int64    `json:"buffered_high_water"` // bytes
	BufferedLowWater  int64    `json:"buffered_low_water"`  // bytes
	StatusMaxAge      Duration `json:"status_max_age"`
	PollInterval      Duration `json:"poll_interval"`
	MaxWait           Duration `json:"max_wait"`
	SmoothingPause    Duration `json:"smoothing_pause"`
}

// NATSConfig configures NATS connectivity for the event bus.
type NATSConfig struct {
	URL        string `json:"url"`
	StreamName string `json:"stream_name,omitempty"`
}

// Validate ensures the NATS configuration is valid.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errNATSURL
	}

	if c.StreamName == "" {
		c.StreamName = "events"
	}

	return nil
}

// GatewayConfig is the root configuration for the device gateway.
type GatewayConfig struct {
	ListenAddr string          `json:"listen_addr"`
	PublicURL  string          `json:"public_url,omitempty"` // base URL for served media files
	MediaDir   string          `json:"media_dir,omitempty"`
	TrashDir   string          `json:"trash_dir,omitempty"`
	Heartbeat  HeartbeatConfig `json:"heartbeat"`
	Dispatch   DispatchConfig  `json:"dispatch"`
	ASR        ASRConfig       `json:"asr"`
	TTS        TTSConfig       `json:"tts"`
	LogRingCap int             `json:"log_ring_cap"`
	NATS       *NATSConfig     `json:"nats,omitempty"`
	Logging    *logger.Config  `json:"logging,omitempty"`
}

// Validate applies defaults and checks the configuration.
func (c *GatewayConfig) Validate() error {
	if c.ListenAddr == "" {
		return errListenAddr
	}

	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = Duration(30 * time.Second)
	}

	if c.Heartbeat.Timeout <= 0 {
		c.Heartbeat.Timeout = Duration(90 * time.Second)
	}

	if c.Heartbeat.PongMaxAge <= 0 {
		c.Heartbeat.PongMaxAge = Duration(75 * time.Second)
	}

	if c.Heartbeat.FlushBatch <= 0 {
		c.Heartbeat.FlushBatch = 3
	}

	if c.Dispatch.CommandTimeout <= 0 {
		c.Dispatch.CommandTimeout = Duration(5 * time.Second)
	}

	if c.Dispatch.MaxQueueSize <= 0 {
		c.Dispatch.MaxQueueSize = 50
	}

	if c.Dispatch.SweepInterval <= 0 {
		c.Dispatch.SweepInterval = Duration(30 * time.Second)
	}

	if c.ASR.FinalizeMaxWait <= 0 {
		c.ASR.FinalizeMaxWait = Duration(3 * time.Second)
	}

	if c.ASR.FinalizePoll <= 0 {
		c.ASR.FinalizePoll = Duration(50 * time.Millisecond)
	}

	if c.ASR.EndingChunkRun <= 0 {
		c.ASR.EndingChunkRun = 2
	}

	if c.ASR.IdleSessionAge <= 0 {
		c.ASR.IdleSessionAge = Duration(5 * time.Minute)
	}

	if c.ASR.SupersedeGrace <= 0 {
		c.ASR.SupersedeGrace = Duration(100 * time.Millisecond)
	}

	if c.ASR.SweepInterval <= 0 {
		c.ASR.SweepInterval = Duration(time.Minute)
	}

	if c.TTS.QueueHighWater <= 0 {
		c.TTS.QueueHighWater = 40
	}

	if c.TTS.QueueLowWater <= 0 {
		c.TTS.QueueLowWater = 20
	}

	if c.TTS.BufferedHighWater <= 0 {
		c.TTS.BufferedHighWater = 512 * 1024
	}

	if c.TTS.BufferedLowWater <= 0 {
		c.TTS.BufferedLowWater = 128 * 1024
	}

	if c.TTS.StatusMaxAge <= 0 {
		c.TTS.StatusMaxAge = Duration(1200 * time.Millisecond)
	}

	if c.TTS.PollInterval <= 0 {
		c.TTS.PollInterval = Duration(50 * time.Millisecond)
	}

	if c.TTS.MaxWait <= 0 {
		c.TTS.MaxWait = Duration(5 * time.Second)
	}

	if c.TTS.SmoothingPause <= 0 {
		c.TTS.SmoothingPause = Duration(20 * time.Millisecond)
	}

	if c.LogRingCap <= 0 {
		c.LogRingCap = 100
	}

	if c.NATS != nil {
		if err := c.NATS.Validate(); err != nil {
			return err
		}
	}

	return nil
}
