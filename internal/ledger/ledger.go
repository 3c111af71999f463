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

// Package ledger defines the on-chain client contract the verifier depends
// on. The Solana implementation lives in internal/solana; tests substitute
// fakes.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound marks a transaction the node does not (yet) know about.
	// Retryable: nodes lag behind confirmation.
	ErrNotFound = errors.New("transaction not found")

	// ErrNoTransferFound marks a transaction that exists but moves no
	// funds we recognize. Terminal, retrying cannot change it.
	ErrNoTransferFound = errors.New("no transfer instruction in transaction")
)

// TransferEvent is one observed movement of funds, native or token.
type TransferEvent struct {
	Signature   string
	Source      string
	Destination string
	Mint        string
	// Amount in integral base units (lamports for native).
	Amount    uint64
	BlockTime time.Time
	Native    bool
}

// SignatureInfo is a signature seen for an address, before details are
// fetched.
type SignatureInfo struct {
	Signature string
	BlockTime time.Time
	Err       bool
}

// Status of a signature on the ledger.
type Status int

const (
	StatusUnknown Status = iota
	StatusProcessing
	StatusConfirmed
	StatusFailed
)

// DepositWallet is a per-challenge keypair held in process memory for the
// lifetime of the verification.
type DepositWallet interface {
	Address() string
}

// Client is the read/write ledger surface used by verification.
type Client interface {
	// NewDepositWallet generates a fresh keypair to receive one deposit.
	NewDepositWallet() (DepositWallet, error)

	// PollSignatures lists recent signatures touching the address, newest
	// first.
	PollSignatures(ctx context.Context, address string) ([]SignatureInfo, error)

	// SignatureStatus reports the current status of a signature.
	SignatureStatus(ctx context.Context, signature string) (Status, error)

	// AwaitConfirmation blocks until the signature confirms, fails, or ctx
	// ends.
	AwaitConfirmation(ctx context.Context, signature string) error

	// ParsedTransfer fetches the transaction and extracts the transfer it
	// carries. ErrNotFound is retryable; ErrNoTransferFound is terminal.
	ParsedTransfer(ctx context.Context, signature string) (*TransferEvent, error)

	// RefundDeposit sweeps the deposit wallet back to the payer, minus the
	// network fee. Returns the refund signature.
	RefundDeposit(ctx context.Context, wallet DepositWallet, to string) (string, error)

	// RefundTokens sends the exact token amount back to the payer from the
	// refund authority. Returns the refund signature.
	RefundTokens(ctx context.Context, to, mint string, amount uint64) (string, error)
}

// HoldingsSource exposes the balance lookups the eligibility evaluator
// needs.
type HoldingsSource interface {
	// TokenHoldings sums the wallet's parsed token-account balances for
	// the mint, in whole tokens.
	TokenHoldings(ctx context.Context, wallet, mint string) (decimal.Decimal, error)

	// TokenSupply returns the mint's total supply, in whole tokens.
	TokenSupply(ctx context.Context, mint string) (decimal.Decimal, error)
}
