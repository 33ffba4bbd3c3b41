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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "duration string", input: `"30s"`, expected: 30 * time.Second},
		{name: "compound string", input: `"1m30s"`, expected: 90 * time.Second},
		{name: "nanosecond number", input: `5000000000`, expected: 5 * time.Second},
		{name: "invalid string", input: `"soon"`, wantErr: true},
		{name: "invalid type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.AsDuration())
		})
	}
}

func TestDurationMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))
}

func TestGatewayConfigValidateRequiresListenAddr(t *testing.T) {
	cfg := &GatewayConfig{}
	require.ErrorIs(t, cfg.Validate(), errListenAddr)
}

func TestGatewayConfigValidateAppliesDefaults(t *testing.T) {
	cfg := &GatewayConfig{ListenAddr: ":8080"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval.AsDuration())
	assert.Equal(t, 90*time.Second, cfg.Heartbeat.Timeout.AsDuration())
	assert.Equal(t, 3, cfg.Heartbeat.FlushBatch)

	assert.Equal(t, 5*time.Second, cfg.Dispatch.CommandTimeout.AsDuration())
	assert.Equal(t, 50, cfg.Dispatch.MaxQueueSize)

	assert.Equal(t, 3*time.Second, cfg.ASR.FinalizeMaxWait.AsDuration())
	assert.Equal(t, 2, cfg.ASR.EndingChunkRun)

	assert.Equal(t, 40, cfg.TTS.QueueHighWater)
	assert.Equal(t, 20, cfg.TTS.QueueLowWater)
	assert.Equal(t, int64(512*1024), cfg.TTS.BufferedHighWater)

	assert.Equal(t, 100, cfg.LogRingCap)
}

func TestGatewayConfigValidateKeepsExplicitValues(t *testing.T) {
	cfg := &GatewayConfig{
		ListenAddr: ":8080",
		Heartbeat:  HeartbeatConfig{Interval: Duration(5 * time.Second), FlushBatch: 10},
		Dispatch:   DispatchConfig{MaxQueueSize: 7},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Heartbeat.Interval.AsDuration())
	assert.Equal(t, 10, cfg.Heartbeat.FlushBatch)
	assert.Equal(t, 7, cfg.Dispatch.MaxQueueSize)
}

func TestNATSConfigValidate(t *testing.T) {
	cfg := &NATSConfig{}
	require.Error(t, cfg.Validate())

	cfg.URL = "nats://localhost:4222"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "events", cfg.StreamName)

	cfg.StreamName = "device-events"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "device-events", cfg.StreamName)
}
