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

package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"
	"token-gate-go/internal/store"

	"go.uber.org/zap"
)

// watchAddress polls the deposit address until a matching transfer resolves
// the challenge or the watch times out. On timeout the pending record is
// kept: an operator can still see the unresolved claim.
func (s *Service) watchAddress(challenge *models.Challenge, wallet ledger.DepositWallet) {
	defer s.sessions.Close(challenge.SessionKey)

	ctx, cancel := s.watchContext()
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// Signatures already inspected this watch; polling returns overlapping
	// pages.
	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			zap.L().Warn("Verification timed out waiting for a deposit",
				zap.Int64("session_key", challenge.SessionKey),
				zap.String("deposit_address", challenge.DepositAddress))
			s.notify(challenge, "Verification timed out. No matching deposit was seen.")
			return
		case <-ticker.C:
			infos, err := s.ledger.PollSignatures(ctx, challenge.DepositAddress)
			if err != nil {
				zap.L().Warn("Signature poll failed", zap.Error(err))
				continue
			}
			for _, info := range infos {
				if info.Err {
					continue
				}
				if _, done := seen[info.Signature]; done {
					continue
				}
				if s.recentWindow > 0 && !info.BlockTime.IsZero() && time.Since(info.BlockTime) > s.recentWindow {
					// Old history on the address; not worth a detail fetch.
					continue
				}
				seen[info.Signature] = struct{}{}

				if resolved := s.processCandidate(ctx, challenge, wallet, info.Signature); resolved {
					return
				}
			}
		}
	}
}

// processCandidate fetches one signature's details and runs it through the
// protocol. Returns true when the challenge is resolved and the watch
// should end.
func (s *Service) processCandidate(ctx context.Context, challenge *models.Challenge,
	wallet ledger.DepositWallet, signature string) bool {

	event, err := s.fetchParsedWithRetry(ctx, signature)
	if err != nil {
		if errors.Is(err, ledger.ErrNoTransferFound) {
			// Something touched the address without moving funds to it.
			return false
		}
		zap.L().Warn("Unable to fetch transfer details",
			zap.String("signature", signature), zap.Error(err))
		return false
	}

	resolution, err := s.confirmer.ResolveDeposit(ctx, challenge, event)
	if err != nil {
		zap.L().Error("Confirmation protocol failed",
			zap.Int64("session_key", challenge.SessionKey), zap.Error(err))
		return false
	}
	if resolution.Decision == DecisionNoMatch {
		return false
	}

	outcome, err := s.dispatcher.Dispatch(ctx, challenge, event, resolution, wallet)
	if err != nil {
		zap.L().Error("Outcome dispatch failed",
			zap.Int64("session_key", challenge.SessionKey), zap.Error(err))
		return true
	}
	s.announce(challenge, outcome)
	return true
}

// watchSignature verifies a user-submitted signature: wait for
// confirmation, fetch details with bounded retries, then resolve.
func (s *Service) watchSignature(challenge *models.Challenge) {
	defer s.sessions.Close(challenge.SessionKey)

	ctx, cancel := s.watchContext()
	defer cancel()

	signature := challenge.ExpectedSignature

	status, err := s.ledger.SignatureStatus(ctx, signature)
	if err != nil {
		zap.L().Warn("Status lookup failed, waiting for confirmation instead",
			zap.String("signature", signature), zap.Error(err))
	}
	if status == ledger.StatusFailed {
		s.notify(challenge, "That transaction failed on chain and cannot be used for verification.")
		return
	}
	if status != ledger.StatusConfirmed {
		if err := s.ledger.AwaitConfirmation(ctx, signature); err != nil {
			zap.L().Warn("Verification timed out waiting for confirmation",
				zap.Int64("session_key", challenge.SessionKey),
				zap.String("signature", signature), zap.Error(err))
			s.notify(challenge, "Verification timed out waiting for the transaction to confirm.")
			return
		}
	}

	event, err := s.fetchParsedWithRetry(ctx, signature)
	if err != nil {
		if errors.Is(err, ledger.ErrNoTransferFound) {
			s.notify(challenge, "No transfer was found in that transaction.")
			return
		}
		zap.L().Warn("Verification timed out fetching transfer details",
			zap.Int64("session_key", challenge.SessionKey),
			zap.String("signature", signature), zap.Error(err))
		s.notify(challenge, "Verification timed out. Please try again.")
		return
	}

	resolution, err := s.confirmer.ResolveSubmitted(ctx, challenge, event)
	if err != nil {
		if errors.Is(err, store.ErrChallengeCollision) {
			s.notify(challenge, "That transfer has already been claimed by another verification.")
			return
		}
		zap.L().Error("Confirmation protocol failed",
			zap.Int64("session_key", challenge.SessionKey), zap.Error(err))
		return
	}
	if resolution.Decision == DecisionNoMatch {
		s.notify(challenge, "That transaction does not match the expected transfer.")
		return
	}

	outcome, err := s.dispatcher.Dispatch(ctx, challenge, event, resolution, nil)
	if err != nil {
		zap.L().Error("Outcome dispatch failed",
			zap.Int64("session_key", challenge.SessionKey), zap.Error(err))
		return
	}
	s.announce(challenge, outcome)
}

// fetchParsedWithRetry fetches transfer details with bounded retries.
// ErrNotFound is retried (nodes lag); ErrNoTransferFound ends immediately.
func (s *Service) fetchParsedWithRetry(ctx context.Context, signature string) (*ledger.TransferEvent, error) {
	attempts := s.cfg.DetailAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		event, err := s.ledger.ParsedTransfer(ctx, signature)
		if err == nil {
			return event, nil
		}
		if errors.Is(err, ledger.ErrNoTransferFound) {
			return nil, err
		}
		lastErr = err
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.DetailRetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("transfer details unavailable after %d attempts: %w", attempts, lastErr)
}
