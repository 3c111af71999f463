/**
 * Copyright 2025-present token-gate-go contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
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
	"os"
	"os/signal"
	"syscall"

	"token-gate-go/internal/admin"
	"token-gate-go/internal/common"
	"token-gate-go/internal/config"
	"token-gate-go/internal/reaper"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting gatekeeper",
		zap.String("mint", cfg.Verifier.Mint),
		zap.String("claim_keying", cfg.Verifier.ClaimKeying),
		zap.String("group", cfg.Chat.GroupName))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	go reaper.New(services.Store, services.Evaluator, services.Platform,
		cfg.Verifier.Mint, cfg.Verifier.GroupID, cfg.Reaper.Interval,
		services.ExemptMembers).Run(ctx)

	if cfg.Admin.Port > 0 {
		server := admin.NewServer(services.Store, services.Platform, services.Verifier, cfg.Verifier)
		go func() {
			if err := server.Run(cfg.Admin.Port); err != nil {
				zap.L().Fatal("Operator API stopped", zap.Error(err))
			}
		}()
	} else {
		zap.L().Info("Operator API disabled (no port configured)")
	}

	zap.L().Info("Gatekeeper running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping")
	cancel()
}
