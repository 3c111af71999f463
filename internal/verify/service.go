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

// Package verify owns the deposit-verification lifecycle: challenge
// creation, watching the ledger, the confirmation protocol and outcome
// dispatch.
package verify

import (
	"context"
	"fmt"
	"time"

	"token-gate-go/internal/chat"
	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"
	"token-gate-go/internal/session"
	"token-gate-go/internal/store"

	"go.uber.org/zap"
)

// ErrAlreadyVerifying is returned when the session already has a
// verification in flight.
var ErrAlreadyVerifying = session.ErrAlreadyOpen

type Service struct {
	store        store.TransferStore
	ledger       ledger.Client
	sessions     *session.Registry
	confirmer    *Confirmer
	dispatcher   *Dispatcher
	platform     chat.Platform
	cfg          models.VerifierConfig
	recentWindow time.Duration
}

func NewService(transferStore store.TransferStore, ledgerClient ledger.Client, sessions *session.Registry,
	confirmer *Confirmer, dispatcher *Dispatcher, platform chat.Platform,
	cfg models.VerifierConfig, recentWindow time.Duration) *Service {
	return &Service{
		store:        transferStore,
		ledger:       ledgerClient,
		sessions:     sessions,
		confirmer:    confirmer,
		dispatcher:   dispatcher,
		platform:     platform,
		cfg:          cfg,
		recentWindow: recentWindow,
	}
}

// OpenChallenge starts an address-watch verification: a fresh deposit wallet
// is generated, the claim is durably recorded, then a watcher polls for the
// deposit. The returned challenge carries the address to pay.
func (s *Service) OpenChallenge(ctx context.Context, sessionKey, userID int64) (*models.Challenge, error) {
	if err := s.sessions.Open(sessionKey); err != nil {
		return nil, err
	}

	wallet, err := s.ledger.NewDepositWallet()
	if err != nil {
		s.sessions.Close(sessionKey)
		return nil, fmt.Errorf("unable to create deposit wallet: %w", err)
	}

	challenge := &models.Challenge{
		SessionKey:     sessionKey,
		UserID:         userID,
		Mint:           s.cfg.Mint,
		DepositAddress: wallet.Address(),
		ExpectedAmount: s.cfg.DepositLamports,
		CreatedAt:      time.Now().UTC(),
	}

	// The claim must be durable before the watcher starts: a crash after
	// this point leaves a pending record an operator can see.
	err = s.store.InsertPendingChallenge(ctx, store.InsertChallengeParams{
		SessionKey:  sessionKey,
		UserID:      userID,
		Mint:        s.cfg.Mint,
		Destination: challenge.DepositAddress,
		Amount:      challenge.ExpectedAmount,
	})
	if err != nil {
		s.sessions.Close(sessionKey)
		return nil, err
	}

	go s.watchAddress(challenge, wallet)

	zap.L().Info("Challenge opened",
		zap.Int64("session_key", sessionKey),
		zap.Int64("user_id", userID),
		zap.String("deposit_address", challenge.DepositAddress),
		zap.Uint64("amount", challenge.ExpectedAmount))
	return challenge, nil
}

// SubmitSignature starts a signature-watch verification for a transfer the
// user claims to have already sent to the collection address. raw may be a
// bare signature or an explorer URL.
func (s *Service) SubmitSignature(_ context.Context, sessionKey, userID int64, raw string) (*models.Challenge, error) {
	signature, err := ParseSignature(raw)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Open(sessionKey); err != nil {
		return nil, err
	}

	challenge := &models.Challenge{
		SessionKey:        sessionKey,
		UserID:            userID,
		Mint:              s.cfg.Mint,
		DepositAddress:    s.cfg.CollectionAddress,
		ExpectedSignature: signature,
		ExpectedAmount:    s.cfg.ExpectedTokenAmount,
		CreatedAt:         time.Now().UTC(),
	}

	go s.watchSignature(challenge)

	zap.L().Info("Signature submitted for verification",
		zap.Int64("session_key", sessionKey),
		zap.Int64("user_id", userID),
		zap.String("signature", signature))
	return challenge, nil
}

// watchContext derives the watcher's context. Watchers outlive the request
// that opened them, so they hang off the background context, bounded only
// by the configured watch timeout (zero means watch until resolved).
func (s *Service) watchContext() (context.Context, context.CancelFunc) {
	if s.cfg.WatchTimeout > 0 {
		return context.WithTimeout(context.Background(), s.cfg.WatchTimeout)
	}
	return context.WithCancel(context.Background())
}

func (s *Service) notify(challenge *models.Challenge, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.platform.Notify(ctx, challenge.SessionKey, text); err != nil {
		zap.L().Debug("Notification not delivered",
			zap.Int64("session_key", challenge.SessionKey), zap.Error(err))
	}
}

func (s *Service) announce(challenge *models.Challenge, outcome *models.Outcome) {
	switch outcome.Kind {
	case models.OutcomeGranted:
		s.notify(challenge, fmt.Sprintf("Verification complete. Your invite link: %s", outcome.InviteLink))
	case models.OutcomeDenied:
		s.notify(challenge, fmt.Sprintf("Verification denied (%s). Your deposit has been returned.", outcome.Reason))
	case models.OutcomeRefunded:
		s.notify(challenge, fmt.Sprintf("Verification did not pass (%s). Your deposit has been returned.", outcome.Reason))
	case models.OutcomeInviteFailed:
		s.notify(challenge, "Verification passed but the invite could not be issued. An operator will follow up.")
	case models.OutcomeRefundFailed:
		s.notify(challenge, "Verification did not pass and the automatic refund failed. An operator will follow up.")
	}
}
