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

	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"
	"token-gate-go/internal/store"

	"go.uber.org/zap"
)

// Decision classifies a candidate transfer against an open challenge.
type Decision int

const (
	// DecisionNoMatch leaves the claim untouched; the watcher decides
	// whether to keep looking.
	DecisionNoMatch Decision = iota
	DecisionConfirmed
	DecisionAmountMismatch
	DecisionDuplicateWallet
)

// Resolution is the outcome of running a candidate through the protocol.
type Resolution struct {
	Decision Decision
	// DuplicateWallet flags a confirmed record whose payer already backs
	// another grant. Checked post-confirm under destination keying.
	DuplicateWallet bool
	// ReturnFunds marks resolutions that owe the payer a refund.
	ReturnFunds bool
}

// Confirmer runs the confirmation protocol against the claim ledger.
type Confirmer struct {
	store  store.TransferStore
	keying store.Keying
	mint   string
}

func NewConfirmer(transferStore store.TransferStore, keying store.Keying, mint string) *Confirmer {
	return &Confirmer{store: transferStore, keying: keying, mint: mint}
}

// ResolveDeposit matches an observed transfer against an address-watch
// challenge whose pending record was inserted when the challenge opened.
// The block-time comparison in the confirming write is the anti-replay
// guard: a transfer finalized before the challenge cannot confirm it.
func (c *Confirmer) ResolveDeposit(ctx context.Context, challenge *models.Challenge, event *ledger.TransferEvent) (Resolution, error) {
	if event.Source == "" || event.Destination == "" || event.Amount == 0 {
		return Resolution{Decision: DecisionNoMatch}, nil
	}
	if event.Destination != challenge.DepositAddress {
		return Resolution{Decision: DecisionNoMatch}, nil
	}

	key := store.ClaimKey{
		Keying:      store.KeyByDestination,
		SessionKey:  challenge.SessionKey,
		Destination: challenge.DepositAddress,
		Mint:        c.mint,
		Amount:      challenge.ExpectedAmount,
	}

	pending, err := c.store.FindPending(ctx, key)
	if err != nil {
		return Resolution{}, err
	}
	if pending == nil {
		// Claim gone or already confirmed; nothing left to match. Sweep any
		// stale unconfirmed leftovers so a fresh attempt starts clean.
		if err := c.store.DeletePendingFor(ctx, challenge.SessionKey); err != nil {
			return Resolution{}, err
		}
		return Resolution{Decision: DecisionNoMatch}, nil
	}

	if !event.BlockTime.IsZero() && event.BlockTime.Before(pending.CreatedAt) {
		zap.L().Warn("Replayed transfer rejected",
			zap.String("signature", event.Signature),
			zap.Time("block_time", event.BlockTime),
			zap.Time("challenge_opened", pending.CreatedAt))
		return Resolution{Decision: DecisionNoMatch}, nil
	}

	if challenge.ExpectedAmount != 0 && event.Amount != challenge.ExpectedAmount {
		// Wrong amount ends the verification and owes the payer their
		// money back. Release the claim tuple.
		if err := c.store.DeletePendingFor(ctx, challenge.SessionKey); err != nil {
			return Resolution{}, err
		}
		return Resolution{Decision: DecisionAmountMismatch, ReturnFunds: true}, nil
	}

	// The wallet may already back another grant. Checked before the
	// confirming write so the dispatcher can deny and refund.
	duplicate, err := c.store.SourceConfirmed(ctx, event.Source, c.mint)
	if err != nil {
		return Resolution{}, err
	}

	confirmed, err := c.store.ConfirmTransfer(ctx, key, event.Signature, event.Source, event.Amount, event.BlockTime)
	if err != nil {
		return Resolution{}, err
	}
	if !confirmed {
		// Lost the race or tripped the in-database block-time guard.
		return Resolution{Decision: DecisionNoMatch}, nil
	}

	return Resolution{Decision: DecisionConfirmed, DuplicateWallet: duplicate}, nil
}

// ResolveSubmitted matches a user-submitted signature's transfer. The
// pending record is inserted here, after parsing, because the claim tuple is
// only known once the transaction is decoded. Source uniqueness is enforced
// by the confirming write itself.
func (c *Confirmer) ResolveSubmitted(ctx context.Context, challenge *models.Challenge, event *ledger.TransferEvent) (Resolution, error) {
	if event.Source == "" || event.Destination == "" || event.Amount == 0 {
		return Resolution{Decision: DecisionNoMatch}, nil
	}
	if challenge.DepositAddress != "" && event.Destination != challenge.DepositAddress {
		// Paid somewhere else entirely; no claim on these funds.
		return Resolution{Decision: DecisionNoMatch}, nil
	}

	if challenge.ExpectedAmount != 0 && event.Amount != challenge.ExpectedAmount {
		return Resolution{Decision: DecisionAmountMismatch, ReturnFunds: true}, nil
	}

	err := c.store.InsertPendingChallenge(ctx, store.InsertChallengeParams{
		SessionKey:  challenge.SessionKey,
		UserID:      challenge.UserID,
		Mint:        c.mint,
		Source:      event.Source,
		Destination: event.Destination,
		Amount:      event.Amount,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("unable to claim transfer: %w", err)
	}

	key := store.ClaimKey{
		Keying:      store.KeyBySource,
		SessionKey:  challenge.SessionKey,
		Source:      event.Source,
		Destination: event.Destination,
		Mint:        c.mint,
		Amount:      event.Amount,
	}

	confirmed, err := c.store.ConfirmTransfer(ctx, key, event.Signature, event.Source, event.Amount, event.BlockTime)
	if err != nil {
		return Resolution{}, err
	}
	if confirmed {
		return Resolution{Decision: DecisionConfirmed}, nil
	}

	// The conditional write refused: either the wallet already backs a
	// grant or we lost a race. Release the claim either way.
	if err := c.store.DeletePendingFor(ctx, challenge.SessionKey); err != nil {
		return Resolution{}, err
	}

	duplicate, err := c.store.SourceConfirmed(ctx, event.Source, c.mint)
	if err != nil {
		return Resolution{}, err
	}
	if duplicate {
		return Resolution{Decision: DecisionDuplicateWallet, ReturnFunds: true}, nil
	}
	return Resolution{Decision: DecisionNoMatch}, nil
}
