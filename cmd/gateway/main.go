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

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/edgegate/pkg/config"
	"github.com/carverauto/edgegate/pkg/core/api"
	"github.com/carverauto/edgegate/pkg/events"
	"github.com/carverauto/edgegate/pkg/gateway"
	"github.com/carverauto/edgegate/pkg/logger"
	"github.com/carverauto/edgegate/pkg/models"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/edgegate/gateway.json", "Path to gateway config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg models.GatewayConfig

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return err
	}

	zlog, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}

	deps := gateway.Deps{}

	if cfg.NATS != nil {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			return err
		}
		defer nc.Close()

		publisher, err := events.NewNATSPublisher(ctx, nc, cfg.NATS.StreamName)
		if err != nil {
			return err
		}

		deps.Events = publisher
	}

	gw := gateway.New(&cfg, zlog, deps)
	gw.Start(ctx)
	defer gw.Stop()

	server := api.NewAPIServer(&cfg, gw, zlog)

	zlog.Info().
		Str("listen_addr", cfg.ListenAddr).
		Bool("events_enabled", cfg.NATS != nil).
		Msg("Starting device gateway")

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		zlog.Info().Msg("Shutting down")
		return nil
	}
}
