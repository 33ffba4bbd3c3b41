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
	"sync"
	"time"

	"github.com/carverauto/edgegate/pkg/events"
	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
)

var (
	errDeviceIDRequired   = errors.New("device_id is required")
	errDeviceTypeRequired = errors.New("device_type is required")
	errDeviceNotFound     = errors.New("device not found")
)

// Registry is the authoritative mapping of device identity to device record
// to live socket. At most one Connection is authoritative per device id;
// registering a newer connection supersedes and closes the older one.
type Registry struct {
	cfg    *models.GatewayConfig
	log    logger.Logger
	events events.Publisher

	mu        sync.RWMutex
	devices   map[string]*models.Device
	conns     map[string]*Connection
	logs      map[string]*logRing
	ttsStatus map[string]models.TTSQueueStatus
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *models.GatewayConfig, log logger.Logger, pub events.Publisher) *Registry {
	if pub == nil {
		pub = events.NopPublisher{}
	}

	return &Registry{
		cfg:       cfg,
		log:       log.WithComponent("registry"),
		events:    pub,
		devices:   make(map[string]*models.Device),
		conns:     make(map[string]*Connection),
		logs:      make(map[string]*logRing),
		ttsStatus: make(map[string]models.TTSQueueStatus),
	}
}

// Register validates the registration frame, creates or updates the device
// record, supersedes any prior connection for the same id, and binds the
// new socket. An online event is emitted only when the device was
// previously absent or marked offline, never on a reconnect while already
// online.
func (r *Registry) Register(ctx context.Context, frame *models.RegisterFrame, conn *Connection) (*models.Device, error) {
	if frame.DeviceID == "" {
		return nil, errDeviceIDRequired
	}

	if frame.DeviceType == "" {
		return nil, errDeviceTypeRequired
	}

	now := time.Now()

	r.mu.Lock()

	if old, ok := r.conns[frame.DeviceID]; ok && old != conn {
		// Cancel the superseded connection's heartbeat before
		// detaching it; its read loop will observe the close and exit
		// without touching the registry (it is no longer authoritative).
		old.StopHeartbeat()
		old.Close()

		r.log.Info().
			Str("device_id", frame.DeviceID).
			Str("old_remote_addr", old.RemoteAddr()).
			Str("new_remote_addr", conn.RemoteAddr()).
			Msg("Superseding existing connection")
	}

	device, exists := r.devices[frame.DeviceID]
	wasOffline := !exists || !device.Online

	if !exists {
		device = &models.Device{
			DeviceID:     frame.DeviceID,
			RegisteredAt: now,
		}
		r.devices[frame.DeviceID] = device
	} else {
		device.Stats.Reconnects++
	}

	device.DeviceType = frame.DeviceType
	device.DeviceName = frame.DeviceName
	device.FirmwareVersion = frame.FirmwareVersion
	device.RemoteAddr = conn.RemoteAddr()
	device.Online = true
	device.LastSeen = now

	if frame.Capabilities != nil {
		device.Capabilities = frame.Capabilities
	}

	if frame.Metadata != nil {
		device.Metadata = frame.Metadata
	}

	r.conns[frame.DeviceID] = conn
	conn.BindDevice(frame.DeviceID)

	snapshot := *device

	r.mu.Unlock()

	r.log.Info().
		Str("device_id", frame.DeviceID).
		Str("device_type", frame.DeviceType).
		Bool("was_offline", wasOffline).
		Int64("reconnects", snapshot.Stats.Reconnects).
		Msg("Device registered")

	if wasOffline {
		data := models.DeviceLifecycleEventData{
			DeviceID:   snapshot.DeviceID,
			DeviceType: snapshot.DeviceType,
			DeviceName: snapshot.DeviceName,
			RemoteAddr: snapshot.RemoteAddr,
			Reconnects: snapshot.Stats.Reconnects,
			LastSeen:   snapshot.LastSeen,
			Timestamp:  now,
		}

		if err := r.events.DeviceOnline(ctx, data); err != nil {
			r.log.Error().Err(err).Str("device_id", snapshot.DeviceID).Msg("Failed to publish online event")
		}
	}

	return &snapshot, nil
}

// HandleDisconnect cancels the device's heartbeat, marks it offline, and
// emits an offline event exactly once per online-to-offline transition.
func (r *Registry) HandleDisconnect(ctx context.Context, deviceID string) {
	r.mu.Lock()

	if conn, ok := r.conns[deviceID]; ok {
		conn.StopHeartbeat()
		conn.Close()
		delete(r.conns, deviceID)
	}

	device, ok := r.devices[deviceID]
	transition := ok && device.Online

	var snapshot models.Device

	if transition {
		device.Online = false
		snapshot = *device
	}

	r.mu.Unlock()

	if !transition {
		return
	}

	r.log.Info().
		Str("device_id", deviceID).
		Time("last_seen", snapshot.LastSeen).
		Msg("Device disconnected")

	data := models.DeviceLifecycleEventData{
		DeviceID:   snapshot.DeviceID,
		DeviceType: snapshot.DeviceType,
		DeviceName: snapshot.DeviceName,
		RemoteAddr: snapshot.RemoteAddr,
		LastSeen:   snapshot.LastSeen,
		Timestamp:  time.Now(),
	}

	if err := r.events.DeviceOffline(ctx, data); err != nil {
		r.log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to publish offline event")
	}
}

// DropConnection handles a read-loop exit. It only disconnects the device
// when the closed connection is still the authoritative one; a superseded
// connection's exit must not mark the device offline.
func (r *Registry) DropConnection(ctx context.Context, conn *Connection) {
	deviceID := conn.DeviceID()
	if deviceID == "" {
		conn.Close()
		return
	}

	r.mu.RLock()
	authoritative := r.conns[deviceID] == conn
	r.mu.RUnlock()

	if authoritative {
		r.HandleDisconnect(ctx, deviceID)
	} else {
		conn.Close()
	}
}

// LiveConnection returns the authoritative connection for a device, or nil.
func (r *Registry) LiveConnection(deviceID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.conns[deviceID]
}

// GetDevice returns a snapshot of the device record.
func (r *Registry) GetDevice(deviceID string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, errDeviceNotFound
	}

	snapshot := *device

	return &snapshot, nil
}

// ListDevices returns snapshots of all known devices.
func (r *Registry) ListDevices() []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Device, 0, len(r.devices))

	for _, device := range r.devices {
		snapshot := *device
		out = append(out, &snapshot)
	}

	return out
}

// Touch refreshes a device's last_seen timestamp.
func (r *Registry) Touch(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device, ok := r.devices[deviceID]; ok {
		device.LastSeen = time.Now()
	}
}

// IncMessagesReceived bumps the inbound message counter.
func (r *Registry) IncMessagesReceived(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device, ok := r.devices[deviceID]; ok {
		device.Stats.MessagesReceived++
		device.LastSeen = time.Now()
	}
}

// IncMessagesSent bumps the outbound message counter.
func (r *Registry) IncMessagesSent(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device, ok := r.devices[deviceID]; ok {
		device.Stats.MessagesSent++
	}
}

// IncCommandsExecuted bumps the executed-command counter.
func (r *Registry) IncCommandsExecuted(deviceID string) {
	r.AddCommandsExecuted(deviceID, 1)
}

// AddCommandsExecuted bumps the executed-command counter by n, used when a
// whole batch is flushed at once.
func (r *Registry) AddCommandsExecuted(deviceID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device, ok := r.devices[deviceID]; ok {
		device.Stats.CommandsExecuted += int64(n)
	}
}

// IncErrors bumps the error counter.
func (r *Registry) IncErrors(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device, ok := r.devices[deviceID]; ok {
		device.Stats.Errors++
	}
}

// SetTTSStatus records the latest client-reported playback congestion
// signal for a device.
func (r *Registry) SetTTSStatus(deviceID string, status models.TTSQueueStatus) {
	status.ReceivedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ttsStatus[deviceID] = status
}

// TTSStatus returns the most recent congestion report, if any.
func (r *Registry) TTSStatus(deviceID string) (models.TTSQueueStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.ttsStatus[deviceID]

	return status, ok
}

// AppendLog stores a device-reported log line in the capped per-device
// ring.
func (r *Registry) AppendLog(deviceID string, entry models.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ring, ok := r.logs[deviceID]
	if !ok {
		ring = newLogRing(r.cfg.LogRingCap)
		r.logs[deviceID] = ring
	}

	ring.append(entry)
}

// Logs returns the retained log lines for a device, oldest first.
func (r *Registry) Logs(deviceID string) []models.LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ring, ok := r.logs[deviceID]
	if !ok {
		return nil
	}

	return ring.entries()
}

// logRing is a fixed-capacity ring of log entries.
type logRing struct {
	cap   int
	items []models.LogEntry
	next  int
	full  bool
}

func newLogRing(capacity int) *logRing {
	return &logRing{
		cap:   capacity,
		items: make([]models.LogEntry, capacity),
	}
}

func (l *logRing) append(entry models.LogEntry) {
	l.items[l.next] = entry
	l.next = (l.next + 1) % l.cap

	if l.next == 0 {
		l.full = true
	}
}

func (l *logRing) entries() []models.LogEntry {
	if !l.full {
		out := make([]models.LogEntry, l.next)
		copy(out, l.items[:l.next])

		return out
	}

	out := make([]models.LogEntry, 0, l.cap)
	out = append(out, l.items[l.next:]...)
	out = append(out, l.items[:l.next]...)

	return out
}
