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

package store

import (
	"context"
	"errors"
	"time"

	"token-gate-go/internal/models"
)

var (
	// ErrChallengeCollision is returned when inserting a pending challenge
	// whose (destination, mint, amount) tuple is already claimed.
	ErrChallengeCollision = errors.New("challenge already claimed for this destination, mint and amount")

	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
)

// Keying selects the claim-uniqueness strategy.
type Keying string

const (
	// KeyByDestination claims the generated deposit address: uniqueness
	// holds because each challenge gets a fresh address.
	KeyByDestination Keying = "destination"
	// KeyBySource claims the payer wallet against a shared collection
	// address: the confirming write itself rejects an already-confirmed
	// source.
	KeyBySource Keying = "source"
)

// InsertChallengeParams describes a new pending claim row.
type InsertChallengeParams struct {
	SessionKey  int64
	UserID      int64
	Mint        string
	Destination string
	// Source is known up front only under source keying.
	Source string
	Amount uint64
}

// ClaimKey addresses a pending claim for lookup and confirmation.
type ClaimKey struct {
	Keying      Keying
	SessionKey  int64
	Source      string
	Destination string
	Mint        string
	Amount      uint64
}

// TransferStore is the persistence contract for the claim ledger.
type TransferStore interface {
	// InsertPendingChallenge durably records an unconfirmed claim before
	// any watcher starts. Returns ErrChallengeCollision when the claim
	// tuple is already taken.
	InsertPendingChallenge(ctx context.Context, params InsertChallengeParams) error

	// FindPending returns the pending record for the key, or nil when the
	// record has been deleted or already confirmed.
	FindPending(ctx context.Context, key ClaimKey) (*models.TransferRecord, error)

	// ConfirmTransfer flips the pending record to confirmed in a single
	// conditional write, recording the observed signature, source and
	// amount. blockTime is when the transfer finalized on the ledger: a
	// transfer older than the challenge must not confirm. Returns false
	// when no row changed.
	ConfirmTransfer(ctx context.Context, key ClaimKey, signature, source string, amount uint64, blockTime time.Time) (bool, error)

	// SourceConfirmed reports whether the payer wallet already backs a
	// confirmed grant for the mint.
	SourceConfirmed(ctx context.Context, source, mint string) (bool, error)

	// InsertConfirmedGrant records an already-confirmed claim directly,
	// bypassing the pending phase. Used for operator-issued grants.
	InsertConfirmedGrant(ctx context.Context, params InsertChallengeParams) error

	// DeletePendingFor removes any unconfirmed rows for the session so the
	// claim tuple is released.
	DeletePendingFor(ctx context.Context, sessionKey int64) error

	// FindConfirmedExcluding lists confirmed grants for the mint whose
	// user id is not in exclude.
	FindConfirmedExcluding(ctx context.Context, mint string, exclude []int64) ([]models.TransferRecord, error)

	// DeleteConfirmed removes the confirmed grant for the session.
	DeleteConfirmed(ctx context.Context, sessionKey int64) error

	Close() error
}
