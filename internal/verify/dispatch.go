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
	"fmt"
	"time"

	"token-gate-go/internal/chat"
	"token-gate-go/internal/events"
	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"
	"token-gate-go/internal/store"

	"go.uber.org/zap"
)

// Evaluator decides whether a wallet's holdings clear the threshold.
type Evaluator interface {
	Evaluate(ctx context.Context, wallet string) (*models.EligibilitySnapshot, error)
}

// Dispatcher executes exactly one terminal action per confirmed resolution.
type Dispatcher struct {
	store     store.TransferStore
	ledger    ledger.Client
	evaluator Evaluator
	platform  chat.Platform
	publisher *events.Publisher
	cfg       models.VerifierConfig
}

func NewDispatcher(transferStore store.TransferStore, ledgerClient ledger.Client, evaluator Evaluator,
	platform chat.Platform, publisher *events.Publisher, cfg models.VerifierConfig) *Dispatcher {
	return &Dispatcher{
		store:     transferStore,
		ledger:    ledgerClient,
		evaluator: evaluator,
		platform:  platform,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Dispatch turns a resolution into its terminal outcome: grant, deny or
// refund. wallet is the per-challenge deposit keypair in the address flow,
// nil in the signature flow.
func (d *Dispatcher) Dispatch(ctx context.Context, challenge *models.Challenge, event *ledger.TransferEvent,
	resolution Resolution, wallet ledger.DepositWallet) (*models.Outcome, error) {

	switch resolution.Decision {
	case DecisionNoMatch:
		return &models.Outcome{Kind: models.OutcomeNoMatch}, nil

	case DecisionAmountMismatch:
		return d.refundOutcome(ctx, challenge, event, wallet,
			models.OutcomeRefunded, models.ReasonAmountMismatch, false), nil

	case DecisionDuplicateWallet:
		return d.refundOutcome(ctx, challenge, event, wallet,
			models.OutcomeDenied, models.ReasonDuplicateWallet, false), nil

	case DecisionConfirmed:
		if resolution.DuplicateWallet {
			// Confirmed under destination keying but the wallet already
			// backs a grant: deny, refund, drop the duplicate record.
			return d.refundOutcome(ctx, challenge, event, wallet,
				models.OutcomeDenied, models.ReasonDuplicateWallet, true), nil
		}
		return d.dispatchConfirmed(ctx, challenge, event, wallet)

	default:
		return nil, fmt.Errorf("unknown decision %d", resolution.Decision)
	}
}

func (d *Dispatcher) dispatchConfirmed(ctx context.Context, challenge *models.Challenge,
	event *ledger.TransferEvent, wallet ledger.DepositWallet) (*models.Outcome, error) {

	snapshot, err := d.evaluator.Evaluate(ctx, event.Source)
	if err != nil {
		return nil, fmt.Errorf("eligibility evaluation failed: %w", err)
	}

	if !snapshot.Eligible {
		outcome := d.refundOutcome(ctx, challenge, event, wallet,
			models.OutcomeRefunded, models.ReasonInsufficientHoldings, true)
		outcome.Snapshot = snapshot
		d.publishOutcome(challenge, event, outcome)
		return outcome, nil
	}

	invite, err := d.platform.IssueInviteLink(ctx, d.cfg.GroupID, d.cfg.InviteExpiry, 1)
	if err != nil {
		// The payment stands. An operator must retry the grant; a refund
		// here would take back what the user paid for.
		zap.L().Error("Invite issuance failed after successful verification",
			zap.Int64("session_key", challenge.SessionKey),
			zap.Int64("user_id", challenge.UserID),
			zap.Error(err))
		outcome := &models.Outcome{
			Kind:     models.OutcomeInviteFailed,
			Snapshot: snapshot,
		}
		d.publishOutcome(challenge, event, outcome)
		return outcome, nil
	}

	outcome := &models.Outcome{
		Kind:       models.OutcomeGranted,
		InviteLink: invite,
		Snapshot:   snapshot,
	}
	d.publishOutcome(challenge, event, outcome)

	zap.L().Info("Access granted",
		zap.Int64("session_key", challenge.SessionKey),
		zap.Int64("user_id", challenge.UserID),
		zap.String("wallet", event.Source))
	return outcome, nil
}

// refundOutcome returns the payer's funds and, when dropRecord is set,
// deletes the confirmed record so the claim does not linger.
func (d *Dispatcher) refundOutcome(ctx context.Context, challenge *models.Challenge, event *ledger.TransferEvent,
	wallet ledger.DepositWallet, kind models.OutcomeKind, reason models.OutcomeReason, dropRecord bool) *models.Outcome {

	if dropRecord {
		if err := d.store.DeleteConfirmed(ctx, challenge.SessionKey); err != nil {
			zap.L().Warn("Unable to drop confirmed record before refund",
				zap.Int64("session_key", challenge.SessionKey), zap.Error(err))
		}
	}

	refundSig, err := d.refund(ctx, event, wallet)
	outcome := &models.Outcome{Kind: kind, Reason: reason, RefundSignature: refundSig}
	if err != nil {
		zap.L().Error("Refund failed after exhausting retries; funds remain custodied",
			zap.Int64("session_key", challenge.SessionKey),
			zap.String("payer", event.Source),
			zap.Uint64("amount", event.Amount),
			zap.Error(err))
		outcome.Kind = models.OutcomeRefundFailed
	}
	d.publishOutcome(challenge, event, outcome)
	return outcome
}

// refund retries the compensating transfer a bounded number of times.
// Native deposits are swept from the challenge's deposit wallet; token
// deposits are returned from the refund authority for the exact amount.
func (d *Dispatcher) refund(ctx context.Context, event *ledger.TransferEvent, wallet ledger.DepositWallet) (string, error) {
	attempts := d.cfg.RefundAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var signature string
		var err error
		if event.Native && wallet != nil {
			signature, err = d.ledger.RefundDeposit(ctx, wallet, event.Source)
		} else {
			signature, err = d.ledger.RefundTokens(ctx, event.Source, event.Mint, event.Amount)
		}
		if err == nil {
			return signature, nil
		}
		lastErr = err
		zap.L().Warn("Refund attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d.cfg.RefundRetryDelay):
			}
		}
	}
	return "", lastErr
}

func (d *Dispatcher) publishOutcome(challenge *models.Challenge, event *ledger.TransferEvent, outcome *models.Outcome) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishOutcome(events.OutcomeEvent{
		SessionKey:      challenge.SessionKey,
		UserID:          challenge.UserID,
		Kind:            outcome.Kind,
		Reason:          outcome.Reason,
		Wallet:          event.Source,
		Signature:       event.Signature,
		RefundSignature: outcome.RefundSignature,
	}); err != nil {
		zap.L().Warn("Unable to publish outcome event", zap.Error(err))
	}
}
