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

// Package api provides the HTTP surface over the device gateway: the
// WebSocket accept endpoint and thin wrappers over the core operations.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/edgegate/pkg/gateway"
	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// APIServer routes HTTP traffic to the gateway.
type APIServer struct {
	router  *mux.Router
	gateway *gateway.Gateway
	logger  logger.Logger
	cfg     *models.GatewayConfig
}

// NewAPIServer builds the router over a gateway.
func NewAPIServer(cfg *models.GatewayConfig, gw *gateway.Gateway, log logger.Logger) *APIServer {
	s := &APIServer{
		router:  mux.NewRouter(),
		gateway: gw,
		logger:  log.WithComponent("api"),
		cfg:     cfg,
	}

	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/api/devices", s.handleListDevices).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{device_id}", s.handleGetDevice).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{device_id}/logs", s.handleDeviceLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{device_id}/command", s.handleCommand).Methods(http.MethodPost)
	s.router.HandleFunc("/api/devices/{device_id}/say", s.handleSay).Methods(http.MethodPost)
	s.router.HandleFunc("/api/devices/{device_id}/ai", s.handleAI).Methods(http.MethodPost)
	s.router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)

	if s.cfg.MediaDir != "" {
		s.router.PathPrefix("/files/").Handler(
			http.StripPrefix("/files/", http.FileServer(http.Dir(s.cfg.MediaDir))))
	}
}

// Router exposes the configured handler, mainly for tests.
func (s *APIServer) Router() http.Handler {
	return s.router
}

// Start serves HTTP until the listener fails.
func (s *APIServer) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	return srv.ListenAndServe()
}

func (s *APIServer) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, s.gateway.Registry().ListDevices())
}

func (s *APIServer) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	device, err := s.gateway.Registry().GetDevice(deviceID)
	if err != nil {
		writeError(w, "Device not found", http.StatusNotFound)
		return
	}

	writeJSONResponse(w, device)
}

func (s *APIServer) handleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	logs := s.gateway.Registry().Logs(deviceID)
	if logs == nil {
		logs = []models.LogEntry{}
	}

	writeJSONResponse(w, logs)
}

func (s *APIServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	var req models.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeError(w, "Invalid command request", http.StatusBadRequest)
		return
	}

	outcome, err := s.gateway.SendCommand(r.Context(), deviceID, req.Command, req.Parameters, req.Priority)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, outcome)
}

func (s *APIServer) handleSay(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	var req models.TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, "Invalid text request", http.StatusBadRequest)
		return
	}

	if err := s.gateway.Say(r.Context(), deviceID, req.Text); err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) handleAI(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	var req models.TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, "Invalid text request", http.StatusBadRequest)
		return
	}

	if err := s.gateway.TriggerAI(r.Context(), deviceID, req.Text); err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	devices := s.gateway.Registry().ListDevices()

	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}

	writeJSONResponse(w, models.GatewayStats{
		Devices:        len(devices),
		OnlineDevices:  online,
		OpenSessions:   s.gateway.ASRSessionCount(),
		PendingResults: s.gateway.Dispatcher().PendingCount(),
	})
}

func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
