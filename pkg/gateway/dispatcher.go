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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
)

// Dispatcher delivers commands to devices. Live devices get direct delivery
// with request/response correlation by command id; offline devices get a
// bounded, priority-aware queue drained on the next heartbeat or reconnect.
// The dispatcher never retries; retry policy belongs to the caller.
type Dispatcher struct {
	cfg      models.DispatchConfig
	log      logger.Logger
	registry *Registry

	pendingMu sync.Mutex
	pending   map[string]*pendingCommand

	queueMu sync.Mutex
	queues  map[string]*commandQueue
}

type pendingCommand struct {
	deviceID  string
	result    chan map[string]interface{}
	createdAt time.Time
}

// commandQueue keeps high-priority commands ahead of normal ones while
// preserving FIFO order within each class.
type commandQueue struct {
	high   []*models.Command
	normal []*models.Command
}

func (q *commandQueue) len() int {
	return len(q.high) + len(q.normal)
}

func (q *commandQueue) push(cmd *models.Command) {
	if cmd.Priority == models.PriorityHigh {
		q.high = append(q.high, cmd)
	} else {
		q.normal = append(q.normal, cmd)
	}
}

// evictOldest drops the oldest normal-priority command, falling back to the
// oldest high-priority one when no normal commands remain.
func (q *commandQueue) evictOldest() *models.Command {
	if len(q.normal) > 0 {
		evicted := q.normal[0]
		q.normal = q.normal[1:]

		return evicted
	}

	if len(q.high) > 0 {
		evicted := q.high[0]
		q.high = q.high[1:]

		return evicted
	}

	return nil
}

func (q *commandQueue) take(n int) []*models.Command {
	var out []*models.Command

	for len(out) < n && len(q.high) > 0 {
		out = append(out, q.high[0])
		q.high = q.high[1:]
	}

	for len(out) < n && len(q.normal) > 0 {
		out = append(out, q.normal[0])
		q.normal = q.normal[1:]
	}

	return out
}

// NewDispatcher creates a command dispatcher bound to the registry.
func NewDispatcher(cfg models.DispatchConfig, log logger.Logger, registry *Registry) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		log:      log.WithComponent("dispatcher"),
		registry: registry,
		pending:  make(map[string]*pendingCommand),
		queues:   make(map[string]*commandQueue),
	}
}

// SendCommand delivers one command. For a live device it blocks until the
// device answers or the timeout fires; a timeout resolves successfully with
// Timeout set because the transport cannot distinguish a busy device from a
// lost reply. For an offline device it enqueues and returns the resulting
// queue depth.
func (d *Dispatcher) SendCommand(ctx context.Context, deviceID, command string, parameters map[string]interface{}, priority models.CommandPriority) (*models.CommandOutcome, error) {
	if priority == "" {
		priority = models.PriorityNormal
	}

	cmd := &models.Command{
		ID:         uuid.New().String(),
		Command:    command,
		Parameters: parameters,
		Priority:   priority,
		Timestamp:  time.Now(),
	}

	conn := d.registry.LiveConnection(deviceID)
	if conn == nil {
		depth := d.enqueue(deviceID, cmd)

		d.log.Debug().
			Str("device_id", deviceID).
			Str("command", command).
			Int("queue_depth", depth).
			Msg("Device offline, command queued")

		return &models.CommandOutcome{Success: true, Queued: true, QueueDepth: depth}, nil
	}

	pc := &pendingCommand{
		deviceID:  deviceID,
		result:    make(chan map[string]interface{}, 1),
		createdAt: time.Now(),
	}

	d.pendingMu.Lock()
	d.pending[cmd.ID] = pc
	d.pendingMu.Unlock()

	frame := models.CommandFrame{
		Type:       models.FrameCommand,
		ID:         cmd.ID,
		Command:    cmd.Command,
		Parameters: cmd.Parameters,
		Priority:   cmd.Priority,
		Timestamp:  cmd.Timestamp,
	}

	if err := conn.SendJSON(frame); err != nil {
		d.removePending(cmd.ID)

		depth := d.enqueue(deviceID, cmd)

		d.log.Warn().
			Err(err).
			Str("device_id", deviceID).
			Str("command", command).
			Msg("Direct delivery failed, command queued")

		return &models.CommandOutcome{Success: true, Queued: true, QueueDepth: depth}, nil
	}

	d.registry.IncCommandsExecuted(deviceID)

	timeout := d.cfg.CommandTimeout.AsDuration()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-pc.result:
		return &models.CommandOutcome{Success: true, Result: result}, nil
	case <-timer.C:
		d.removePending(cmd.ID)

		d.log.Debug().
			Str("device_id", deviceID).
			Str("command", command).
			Str("command_id", cmd.ID).
			Msg("Command timed out without confirmation")

		return &models.CommandOutcome{Success: true, Timeout: true}, nil
	case <-ctx.Done():
		d.removePending(cmd.ID)
		return nil, ctx.Err()
	}
}

// HandleResult resolves a pending command by id. Returns false for unknown
// or already-resolved ids.
func (d *Dispatcher) HandleResult(commandID string, result map[string]interface{}) bool {
	d.pendingMu.Lock()
	pc, ok := d.pending[commandID]

	if ok {
		delete(d.pending, commandID)
	}
	d.pendingMu.Unlock()

	if !ok {
		return false
	}

	pc.result <- result

	return true
}

// DequeueBatch removes and returns up to n queued commands for a device,
// high priority first.
func (d *Dispatcher) DequeueBatch(deviceID string, n int) []*models.Command {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	q, ok := d.queues[deviceID]
	if !ok {
		return nil
	}

	return q.take(n)
}

// Requeue returns undelivered commands to the head of a device's queue,
// preserving their original order within each priority class. Requeued
// commands are not re-evicted; a transient send failure must not shrink
// the queue.
func (d *Dispatcher) Requeue(deviceID string, commands []*models.Command) {
	if len(commands) == 0 {
		return
	}

	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	q, ok := d.queues[deviceID]
	if !ok {
		q = &commandQueue{}
		d.queues[deviceID] = q
	}

	for i := len(commands) - 1; i >= 0; i-- {
		cmd := commands[i]
		if cmd.Priority == models.PriorityHigh {
			q.high = append([]*models.Command{cmd}, q.high...)
		} else {
			q.normal = append([]*models.Command{cmd}, q.normal...)
		}
	}
}

// QueueDepth reports the number of commands queued for a device.
func (d *Dispatcher) QueueDepth(deviceID string) int {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	q, ok := d.queues[deviceID]
	if !ok {
		return 0
	}

	return q.len()
}

func (d *Dispatcher) enqueue(deviceID string, cmd *models.Command) int {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	q, ok := d.queues[deviceID]
	if !ok {
		q = &commandQueue{}
		d.queues[deviceID] = q
	}

	q.push(cmd)

	for q.len() > d.cfg.MaxQueueSize {
		evicted := q.evictOldest()
		if evicted == nil {
			break
		}

		d.log.Debug().
			Str("device_id", deviceID).
			Str("command_id", evicted.ID).
			Str("command", evicted.Command).
			Msg("Offline queue full, evicted oldest command")
	}

	return q.len()
}

func (d *Dispatcher) removePending(commandID string) {
	d.pendingMu.Lock()
	delete(d.pending, commandID)
	d.pendingMu.Unlock()
}

// sweepPending drops callbacks whose owner gave up without cleanup, healing
// leaked state from ungracefully closed connections.
func (d *Dispatcher) sweepPending() {
	cutoff := time.Now().Add(-2 * d.cfg.CommandTimeout.AsDuration())

	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	for id, pc := range d.pending {
		if pc.createdAt.Before(cutoff) {
			delete(d.pending, id)
		}
	}
}

// PendingCount reports in-flight direct commands.
func (d *Dispatcher) PendingCount() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	return len(d.pending)
}
