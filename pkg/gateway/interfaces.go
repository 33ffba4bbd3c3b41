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
	"github.com/gorilla/websocket"
)

// Wire abstracts the underlying WebSocket so tests can inject fakes.
type Wire interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	RemoteAddr() string
}

// wsWire adapts a gorilla *websocket.Conn to the Wire interface.
type wsWire struct {
	conn *websocket.Conn
}

// NewWire wraps an upgraded WebSocket connection.
func NewWire(conn *websocket.Conn) Wire {
	return &wsWire{conn: conn}
}

func (w *wsWire) ReadMessage() (int, []byte, error) {
	return w.conn.ReadMessage()
}

func (w *wsWire) WriteMessage(messageType int, data []byte) error {
	return w.conn.WriteMessage(messageType, data)
}

func (w *wsWire) Close() error {
	return w.conn.Close()
}

func (w *wsWire) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}
