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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/edgegate/pkg/events"
	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
)

func newTestRegistry(t *testing.T, pub events.Publisher) *Registry {
	t.Helper()

	if pub == nil {
		pub = events.NopPublisher{}
	}

	return NewRegistry(testConfig(t), logger.NewTestLogger(), pub)
}

func newTestConn() (*Connection, *fakeWire) {
	wire := newFakeWire()

	return NewConnection(wire, logger.NewTestLogger()), wire
}

func TestRegistryRegisterValidation(t *testing.T) {
	reg := newTestRegistry(t, nil)
	conn, _ := newTestConn()

	_, err := reg.Register(context.Background(), &models.RegisterFrame{DeviceType: "esp32"}, conn)
	require.ErrorIs(t, err, errDeviceIDRequired)

	_, err = reg.Register(context.Background(), &models.RegisterFrame{DeviceID: "dev-1"}, conn)
	require.ErrorIs(t, err, errDeviceTypeRequired)
}

func TestRegistryRegisterPublishesOnlineOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := events.NewMockPublisher(ctrl)

	// Online once for the fresh registration, never again while the
	// device stays online across re-registrations.
	pub.EXPECT().DeviceOnline(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	reg := newTestRegistry(t, pub)

	frame := &models.RegisterFrame{DeviceID: "dev-1", DeviceType: "esp32"}

	conn1, _ := newTestConn()
	dev, err := reg.Register(context.Background(), frame, conn1)
	require.NoError(t, err)
	assert.True(t, dev.Online)
	assert.Equal(t, int64(0), dev.Stats.Reconnects)

	registeredAt := dev.RegisteredAt

	conn2, _ := newTestConn()
	dev, err = reg.Register(context.Background(), frame, conn2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dev.Stats.Reconnects)
	assert.Equal(t, registeredAt, dev.RegisteredAt)
}

func TestRegistryRegisterSupersedesConnection(t *testing.T) {
	reg := newTestRegistry(t, nil)

	frame := &models.RegisterFrame{DeviceID: "dev-1", DeviceType: "esp32"}

	conn1, _ := newTestConn()
	_, err := reg.Register(context.Background(), frame, conn1)
	require.NoError(t, err)

	conn2, _ := newTestConn()
	_, err = reg.Register(context.Background(), frame, conn2)
	require.NoError(t, err)

	select {
	case <-conn1.Done():
	case <-time.After(time.Second):
		t.Fatal("superseded connection was not closed")
	}

	assert.Same(t, conn2, reg.LiveConnection("dev-1"))
}

func TestRegistryDropSupersededConnectionKeepsDeviceOnline(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := events.NewMockPublisher(ctrl)
	pub.EXPECT().DeviceOnline(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	// No DeviceOffline expected: the stale connection's read loop exit
	// must not take the device down.

	reg := newTestRegistry(t, pub)

	frame := &models.RegisterFrame{DeviceID: "dev-1", DeviceType: "esp32"}

	conn1, _ := newTestConn()
	_, err := reg.Register(context.Background(), frame, conn1)
	require.NoError(t, err)

	conn2, _ := newTestConn()
	_, err = reg.Register(context.Background(), frame, conn2)
	require.NoError(t, err)

	reg.DropConnection(context.Background(), conn1)

	dev, err := reg.GetDevice("dev-1")
	require.NoError(t, err)
	assert.True(t, dev.Online)
	assert.Same(t, conn2, reg.LiveConnection("dev-1"))
}

func TestRegistryDisconnectPublishesOfflineOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := events.NewMockPublisher(ctrl)
	pub.EXPECT().DeviceOnline(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	pub.EXPECT().DeviceOffline(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	reg := newTestRegistry(t, pub)

	conn, _ := newTestConn()
	_, err := reg.Register(context.Background(), &models.RegisterFrame{DeviceID: "dev-1", DeviceType: "esp32"}, conn)
	require.NoError(t, err)

	reg.HandleDisconnect(context.Background(), "dev-1")
	reg.HandleDisconnect(context.Background(), "dev-1")

	dev, err := reg.GetDevice("dev-1")
	require.NoError(t, err)
	assert.False(t, dev.Online)
	assert.Nil(t, reg.LiveConnection("dev-1"))
}

func TestRegistryGetDeviceReturnsSnapshot(t *testing.T) {
	reg := newTestRegistry(t, nil)

	conn, _ := newTestConn()
	_, err := reg.Register(context.Background(), &models.RegisterFrame{DeviceID: "dev-1", DeviceType: "esp32"}, conn)
	require.NoError(t, err)

	dev, err := reg.GetDevice("dev-1")
	require.NoError(t, err)

	dev.Stats.Errors = 99

	fresh, err := reg.GetDevice("dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.Stats.Errors)

	_, err = reg.GetDevice("nope")
	require.ErrorIs(t, err, errDeviceNotFound)
}

func TestRegistryCounters(t *testing.T) {
	reg := newTestRegistry(t, nil)

	conn, _ := newTestConn()
	_, err := reg.Register(context.Background(), &models.RegisterFrame{DeviceID: "dev-1", DeviceType: "esp32"}, conn)
	require.NoError(t, err)

	reg.IncMessagesReceived("dev-1")
	reg.IncMessagesSent("dev-1")
	reg.IncMessagesSent("dev-1")
	reg.IncCommandsExecuted("dev-1")
	reg.IncErrors("dev-1")

	dev, err := reg.GetDevice("dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dev.Stats.MessagesReceived)
	assert.Equal(t, int64(2), dev.Stats.MessagesSent)
	assert.Equal(t, int64(1), dev.Stats.CommandsExecuted)
	assert.Equal(t, int64(1), dev.Stats.Errors)
}

func TestRegistryLogRingEvictsOldest(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogRingCap = 3

	reg := NewRegistry(cfg, logger.NewTestLogger(), events.NopPublisher{})

	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		reg.AppendLog("dev-1", models.LogEntry{Level: "info", Message: msg, Timestamp: time.Now()})
	}

	logs := reg.Logs("dev-1")
	require.Len(t, logs, 3)
	assert.Equal(t, "c", logs[0].Message)
	assert.Equal(t, "d", logs[1].Message)
	assert.Equal(t, "e", logs[2].Message)
}

func TestRegistryTTSStatusStampsReceipt(t *testing.T) {
	reg := newTestRegistry(t, nil)

	_, ok := reg.TTSStatus("dev-1")
	assert.False(t, ok)

	reg.SetTTSStatus("dev-1", models.TTSQueueStatus{QueueLen: 7, Playing: true})

	status, ok := reg.TTSStatus("dev-1")
	require.True(t, ok)
	assert.Equal(t, 7, status.QueueLen)
	assert.WithinDuration(t, time.Now(), status.ReceivedAt, time.Second)
}
