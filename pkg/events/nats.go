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

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/edgegate/pkg/models"
)

const (
	eventSource = "edgegate/gateway"

	subjectDeviceOnline  = "events.device.online"
	subjectDeviceOffline = "events.device.offline"
	subjectDeviceMessage = "events.device.message"
)

// NATSPublisher publishes CloudEvents to a NATS JetStream stream.
type NATSPublisher struct {
	js     jetstream.JetStream
	stream string
}

// NewNATSPublisher creates a Publisher backed by the given NATS connection.
// The stream is created if it does not exist.
func NewNATSPublisher(ctx context.Context, nc *nats.Conn, streamName string) (*NATSPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"events.device.>"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream %q: %w", streamName, err)
	}

	return &NATSPublisher{js: js, stream: streamName}, nil
}

func (p *NATSPublisher) publish(ctx context.Context, eventType, subject string, ts time.Time, data interface{}) error {
	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &ts,
		Data:            data,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	if _, err := p.js.Publish(ctx, subject, eventBytes); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	return nil
}

// DeviceOnline publishes a device online event.
func (p *NATSPublisher) DeviceOnline(ctx context.Context, data models.DeviceLifecycleEventData) error {
	return p.publish(ctx, "com.carverauto.edgegate.device.online", subjectDeviceOnline, data.Timestamp, data)
}

// DeviceOffline publishes a device offline event.
func (p *NATSPublisher) DeviceOffline(ctx context.Context, data models.DeviceLifecycleEventData) error {
	return p.publish(ctx, "com.carverauto.edgegate.device.offline", subjectDeviceOffline, data.Timestamp, data)
}

// DeviceMessage publishes an inbound chat message, once on the
// channel-qualified subject and once generically.
func (p *NATSPublisher) DeviceMessage(ctx context.Context, data models.DeviceMessageEventData) error {
	if data.Channel != "" {
		qualified := subjectDeviceMessage + "." + data.Channel
		if err := p.publish(ctx, "com.carverauto.edgegate.device.message", qualified, data.Timestamp, data); err != nil {
			return err
		}
	}

	return p.publish(ctx, "com.carverauto.edgegate.device.message", subjectDeviceMessage, data.Timestamp, data)
}
