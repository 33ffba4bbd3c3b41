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

// Package events publishes gateway domain events as CloudEvents over NATS
// JetStream.
package events

import (
	"context"

	"github.com/carverauto/edgegate/pkg/models"
)

//go:generate mockgen -destination=mock_events.go -package=events github.com/carverauto/edgegate/pkg/events Publisher

// Publisher emits gateway domain events for upstream subscribers. All
// methods are best-effort: a publish failure is the caller's to log, never
// to propagate to the device.
type Publisher interface {
	DeviceOnline(ctx context.Context, data models.DeviceLifecycleEventData) error
	DeviceOffline(ctx context.Context, data models.DeviceLifecycleEventData) error
	// DeviceMessage is published twice: once on the channel-qualified
	// subject and once on the generic subject.
	DeviceMessage(ctx context.Context, data models.DeviceMessageEventData) error
}

// NopPublisher discards all events. Used when no event bus is configured.
type NopPublisher struct{}

func (NopPublisher) DeviceOnline(context.Context, models.DeviceLifecycleEventData) error {
	return nil
}

func (NopPublisher) DeviceOffline(context.Context, models.DeviceLifecycleEventData) error {
	return nil
}

func (NopPublisher) DeviceMessage(context.Context, models.DeviceMessageEventData) error {
	return nil
}
