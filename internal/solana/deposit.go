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

package solana

import (
	"context"
	"fmt"
	"time"

	"token-gate-go/internal/ledger"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// depositWallet wraps a freshly generated keypair. The private key never
// leaves process memory; if the process dies before a refund the funds stay
// on an unreachable address, which is why pending records survive restarts.
type depositWallet struct {
	key solana.PrivateKey
}

func (w *depositWallet) Address() string {
	return w.key.PublicKey().String()
}

func (s *Service) NewDepositWallet() (ledger.DepositWallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to generate deposit keypair: %w", err)
	}
	return &depositWallet{key: key}, nil
}

func (s *Service) PollSignatures(ctx context.Context, address string) ([]ledger.SignatureInfo, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	limit := signaturePollLimit
	signatures, err := s.client.GetSignaturesForAddressWithOpts(ctx, pubkey, &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list signatures for %s: %w", address, err)
	}

	infos := make([]ledger.SignatureInfo, 0, len(signatures))
	for _, sig := range signatures {
		info := ledger.SignatureInfo{
			Signature: sig.Signature.String(),
			Err:       sig.Err != nil,
		}
		if sig.BlockTime != nil {
			info.BlockTime = sig.BlockTime.Time()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *Service) SignatureStatus(ctx context.Context, signature string) (ledger.Status, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return ledger.StatusUnknown, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	statuses, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return ledger.StatusUnknown, fmt.Errorf("unable to get signature status: %w", err)
	}
	if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return ledger.StatusUnknown, nil
	}

	status := statuses.Value[0]
	if status.Err != nil {
		return ledger.StatusFailed, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return ledger.StatusConfirmed, nil
	default:
		return ledger.StatusProcessing, nil
	}
}

func (s *Service) AwaitConfirmation(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	if s.wsClient != nil {
		sub, err := s.wsClient.SignatureSubscribe(sig, rpc.CommitmentConfirmed)
		if err == nil {
			defer sub.Unsubscribe()
			result, err := sub.Recv(ctx)
			if err != nil {
				return fmt.Errorf("confirmation wait interrupted: %w", err)
			}
			if result.Value.Err != nil {
				return fmt.Errorf("transaction failed on chain: %v", result.Value.Err)
			}
			return nil
		}
		zap.L().Warn("Signature subscribe failed, falling back to status polling", zap.Error(err))
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status, err := s.SignatureStatus(ctx, signature)
			if err != nil {
				return err
			}
			switch status {
			case ledger.StatusConfirmed:
				return nil
			case ledger.StatusFailed:
				return fmt.Errorf("transaction failed on chain: %s", signature)
			}
		}
	}
}
