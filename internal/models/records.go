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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Challenge is one open verification attempt. At most one Challenge may be
// open per session key at a time; the session registry enforces that.
type Challenge struct {
	SessionKey int64
	UserID     int64
	Mint       string
	// DepositAddress is set in the address-watch flow (a freshly generated
	// deposit wallet).
	DepositAddress string
	// ExpectedSignature is set in the signature-watch flow (user-supplied).
	ExpectedSignature string
	// ExpectedAmount in integral base units; 0 accepts any amount.
	ExpectedAmount uint64
	CreatedAt      time.Time
}

// TransferRecord is a row of the durable claim ledger. The tuple
// (destination, mint, amount) is the primary key: no two pending records may
// share it.
type TransferRecord struct {
	Signature   string
	Mint        string
	Source      string
	Destination string
	Amount      uint64
	Confirmed   bool
	SessionKey  int64
	UserID      int64
	CreatedAt   time.Time
}

// EligibilitySnapshot is the computed holdings-vs-threshold result for a
// payer wallet. Derived, never persisted.
type EligibilitySnapshot struct {
	Wallet    string
	Liquid    decimal.Decimal
	Staked    decimal.Decimal
	Combined  decimal.Decimal
	Required  decimal.Decimal
	Shortfall decimal.Decimal
	Eligible  bool
}

// OutcomeKind tags the terminal result of a resolved Challenge.
type OutcomeKind string

const (
	OutcomeGranted  OutcomeKind = "granted"
	OutcomeDenied   OutcomeKind = "denied"
	OutcomeRefunded OutcomeKind = "refunded"
	// OutcomeNoMatch closes a Challenge that never saw a matching transfer;
	// no funds moved, the caller may retry with a new Challenge.
	OutcomeNoMatch OutcomeKind = "no_match"
	// OutcomeInviteFailed means the user qualified but the invite could not
	// be issued. The payment stands; an operator must retry the grant.
	OutcomeInviteFailed OutcomeKind = "invite_issuance_failed"
	// OutcomeRefundFailed means a compensating transfer exhausted its
	// retries. Funds remain custodied; operator remediation is required.
	OutcomeRefundFailed OutcomeKind = "refund_failed"
)

// OutcomeReason qualifies denials and refunds.
type OutcomeReason string

const (
	ReasonInsufficientHoldings OutcomeReason = "insufficient_holdings"
	ReasonDuplicateWallet      OutcomeReason = "duplicate_wallet"
	ReasonAmountMismatch       OutcomeReason = "amount_mismatch"
)

// Outcome is the resolved result of a Challenge.
type Outcome struct {
	Kind            OutcomeKind
	Reason          OutcomeReason
	InviteLink      string
	RefundSignature string
	Snapshot        *EligibilitySnapshot
}
