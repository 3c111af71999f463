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

// Package solana implements the ledger contract against Solana JSON-RPC.
package solana

import (
	"context"
	"fmt"
	"sync"

	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

// Compile-time checks: *Service must satisfy both ledger contracts.
var (
	_ ledger.Client         = (*Service)(nil)
	_ ledger.HoldingsSource = (*Service)(nil)
)

const signaturePollLimit = 20

type Service struct {
	client *rpc.Client
	// wsClient is nil when no WS endpoint is configured; confirmation
	// waits fall back to status polling.
	wsClient *ws.Client
	// refund is the authority for token-flow compensating transfers.
	// Native-flow refunds are signed by the per-challenge deposit key.
	refund *solana.PrivateKey

	// txMutex serializes transaction broadcasts so concurrent refunds do
	// not trip RPC rate limits or stale-blockhash races.
	txMutex sync.Mutex
}

func NewService(ctx context.Context, cfg models.SolanaConfig) (*Service, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("solana RPC URL cannot be empty")
	}

	service := &Service{client: rpc.New(cfg.RPCURL)}

	if cfg.WSURL != "" {
		wsClient, err := ws.Connect(ctx, cfg.WSURL)
		if err != nil {
			return nil, fmt.Errorf("unable to connect websocket endpoint: %w", err)
		}
		service.wsClient = wsClient
	} else {
		zap.L().Info("No websocket endpoint configured, confirmation waits will poll")
	}

	if cfg.RefundSecret != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.RefundSecret)
		if err != nil {
			return nil, fmt.Errorf("unable to parse refund secret: %w", err)
		}
		service.refund = &key
		zap.L().Info("Refund authority loaded", zap.String("address", key.PublicKey().String()))
	}

	zap.L().Info("Solana service initialized", zap.String("rpc", cfg.RPCURL))
	return service, nil
}

func (s *Service) Close() {
	if s.wsClient != nil {
		s.wsClient.Close()
	}
}

// latestBlockhash prefers a finalized blockhash and falls back to confirmed.
func (s *Service) latestBlockhash(ctx context.Context) (solana.Hash, error) {
	bh, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		bh, err = s.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return solana.Hash{}, fmt.Errorf("unable to get latest blockhash: %w", err)
		}
	}
	return bh.Value.Blockhash, nil
}
