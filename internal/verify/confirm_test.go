package verify

import (
	"context"
	"testing"
	"time"

	"token-gate-go/internal/database"
	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"
	"token-gate-go/internal/store"
)

func setupStore(t *testing.T) store.TransferStore {
	t.Helper()
	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { service.Close() })
	return service
}

func openDepositChallenge(t *testing.T, transferStore store.TransferStore) *models.Challenge {
	t.Helper()
	challenge := &models.Challenge{
		SessionKey:     1,
		UserID:         101,
		Mint:           "MintAAA",
		DepositAddress: "D1",
		ExpectedAmount: 5_000_000,
		CreatedAt:      time.Now().UTC(),
	}
	err := transferStore.InsertPendingChallenge(context.Background(), store.InsertChallengeParams{
		SessionKey:  challenge.SessionKey,
		UserID:      challenge.UserID,
		Mint:        challenge.Mint,
		Destination: challenge.DepositAddress,
		Amount:      challenge.ExpectedAmount,
	})
	if err != nil {
		t.Fatalf("InsertPendingChallenge failed: %v", err)
	}
	return challenge
}

func TestResolveDeposit_Confirms(t *testing.T) {
	transferStore := setupStore(t)
	confirmer := NewConfirmer(transferStore, store.KeyByDestination, "MintAAA")
	challenge := openDepositChallenge(t, transferStore)

	resolution, err := confirmer.ResolveDeposit(context.Background(), challenge, &ledger.TransferEvent{
		Signature:   "sig1",
		Source:      "Payer1",
		Destination: "D1",
		Amount:      5_000_000,
		BlockTime:   time.Now().UTC().Add(time.Minute),
		Native:      true,
	})
	if err != nil {
		t.Fatalf("ResolveDeposit failed: %v", err)
	}
	if resolution.Decision != DecisionConfirmed {
		t.Fatalf("Expected DecisionConfirmed, got %v", resolution.Decision)
	}
	if resolution.DuplicateWallet {
		t.Errorf("Expected no duplicate flag for a fresh wallet")
	}
}

func TestResolveDeposit_MissingBlockTimeStillConfirms(t *testing.T) {
	transferStore := setupStore(t)
	confirmer := NewConfirmer(transferStore, store.KeyByDestination, "MintAAA")
	challenge := openDepositChallenge(t, transferStore)

	// Some nodes omit the block time even for a confirmed transaction.
	resolution, err := confirmer.ResolveDeposit(context.Background(), challenge, &ledger.TransferEvent{
		Signature:   "sig1",
		Source:      "Payer1",
		Destination: "D1",
		Amount:      5_000_000,
		BlockTime:   time.Time{},
		Native:      true,
	})
	if err != nil {
		t.Fatalf("ResolveDeposit failed: %v", err)
	}
	if resolution.Decision != DecisionConfirmed {
		t.Fatalf("Expected a deposit without a block time to confirm, got %v", resolution.Decision)
	}

	confirmed, err := transferStore.SourceConfirmed(context.Background(), "Payer1", "MintAAA")
	if err != nil {
		t.Fatalf("SourceConfirmed failed: %v", err)
	}
	if !confirmed {
		t.Errorf("Expected the record to be confirmed in the store")
	}
}

func TestResolveDeposit_AmountMismatchReturnsFunds(t *testing.T) {
	transferStore := setupStore(t)
	confirmer := NewConfirmer(transferStore, store.KeyByDestination, "MintAAA")
	challenge := openDepositChallenge(t, transferStore)

	resolution, err := confirmer.ResolveDeposit(context.Background(), challenge, &ledger.TransferEvent{
		Signature:   "sig1",
		Source:      "Payer1",
		Destination: "D1",
		Amount:      4_999_999,
		BlockTime:   time.Now().UTC().Add(time.Minute),
		Native:      true,
	})
	if err != nil {
		t.Fatalf("ResolveDeposit failed: %v", err)
	}
	if resolution.Decision != DecisionAmountMismatch {
		t.Fatalf("Expected DecisionAmountMismatch, got %v", resolution.Decision)
	}
	if !resolution.ReturnFunds {
		t.Errorf("A mismatched deposit still owes the payer a refund")
	}

	// The claim tuple is released
	pending, err := transferStore.FindPending(context.Background(), store.ClaimKey{
		Keying: store.KeyByDestination, SessionKey: 1, Destination: "D1", Mint: "MintAAA", Amount: 5_000_000,
	})
	if err != nil {
		t.Fatalf("FindPending failed: %v", err)
	}
	if pending != nil {
		t.Errorf("Expected pending record to be released after mismatch")
	}
}

func TestResolveDeposit_ReplayedTransferIgnored(t *testing.T) {
	transferStore := setupStore(t)
	confirmer := NewConfirmer(transferStore, store.KeyByDestination, "MintAAA")
	challenge := openDepositChallenge(t, transferStore)

	resolution, err := confirmer.ResolveDeposit(context.Background(), challenge, &ledger.TransferEvent{
		Signature:   "sig-old",
		Source:      "Payer1",
		Destination: "D1",
		Amount:      5_000_000,
		BlockTime:   time.Now().UTC().Add(-time.Hour),
		Native:      true,
	})
	if err != nil {
		t.Fatalf("ResolveDeposit failed: %v", err)
	}
	if resolution.Decision != DecisionNoMatch {
		t.Fatalf("Expected a replayed transfer to be no match, got %v", resolution.Decision)
	}

	// A fresh transfer can still confirm afterwards
	resolution, err = confirmer.ResolveDeposit(context.Background(), challenge, &ledger.TransferEvent{
		Signature:   "sig-fresh",
		Source:      "Payer1",
		Destination: "D1",
		Amount:      5_000_000,
		BlockTime:   time.Now().UTC().Add(time.Minute),
		Native:      true,
	})
	if err != nil {
		t.Fatalf("ResolveDeposit failed: %v", err)
	}
	if resolution.Decision != DecisionConfirmed {
		t.Fatalf("Expected the fresh transfer to confirm, got %v", resolution.Decision)
	}
}

func TestResolveDeposit_DuplicateWalletFlagged(t *testing.T) {
	transferStore := setupStore(t)
	confirmer := NewConfirmer(transferStore, store.KeyByDestination, "MintAAA")

	// Payer1 already backs a confirmed grant
	err := transferStore.InsertConfirmedGrant(context.Background(), store.InsertChallengeParams{
		SessionKey: 9, UserID: 109, Mint: "MintAAA", Source: "Payer1", Destination: "D9", Amount: 5_000_000,
	})
	if err != nil {
		t.Fatalf("InsertConfirmedGrant failed: %v", err)
	}

	challenge := openDepositChallenge(t, transferStore)
	resolution, err := confirmer.ResolveDeposit(context.Background(), challenge, &ledger.TransferEvent{
		Signature:   "sig1",
		Source:      "Payer1",
		Destination: "D1",
		Amount:      5_000_000,
		BlockTime:   time.Now().UTC().Add(time.Minute),
		Native:      true,
	})
	if err != nil {
		t.Fatalf("ResolveDeposit failed: %v", err)
	}
	if resolution.Decision != DecisionConfirmed || !resolution.DuplicateWallet {
		t.Fatalf("Expected confirmed resolution with duplicate flag, got %+v", resolution)
	}
}

func TestResolveSubmitted_ConfirmsAndRejectsDuplicate(t *testing.T) {
	transferStore := setupStore(t)
	confirmer := NewConfirmer(transferStore, store.KeyBySource, "MintAAA")

	challenge := &models.Challenge{
		SessionKey:        1,
		UserID:            101,
		Mint:              "MintAAA",
		DepositAddress:    "Collection",
		ExpectedSignature: "sig1",
		CreatedAt:         time.Now().UTC(),
	}
	event := &ledger.TransferEvent{
		Signature:   "sig1",
		Source:      "Payer1",
		Destination: "Collection",
		Mint:        "MintAAA",
		Amount:      7_000_000,
		BlockTime:   time.Now().UTC().Add(-time.Minute),
	}

	resolution, err := confirmer.ResolveSubmitted(context.Background(), challenge, event)
	if err != nil {
		t.Fatalf("ResolveSubmitted failed: %v", err)
	}
	if resolution.Decision != DecisionConfirmed {
		t.Fatalf("Expected DecisionConfirmed, got %v", resolution.Decision)
	}

	// The same wallet backing a second session is a duplicate claim
	second := &models.Challenge{
		SessionKey:        2,
		UserID:            102,
		Mint:              "MintAAA",
		DepositAddress:    "Collection",
		ExpectedSignature: "sig2",
		CreatedAt:         time.Now().UTC(),
	}
	secondEvent := &ledger.TransferEvent{
		Signature:   "sig2",
		Source:      "Payer1",
		Destination: "Collection",
		Mint:        "MintAAA",
		Amount:      8_000_000,
		BlockTime:   time.Now().UTC(),
	}
	resolution, err = confirmer.ResolveSubmitted(context.Background(), second, secondEvent)
	if err != nil {
		t.Fatalf("ResolveSubmitted failed: %v", err)
	}
	if resolution.Decision != DecisionDuplicateWallet {
		t.Fatalf("Expected DecisionDuplicateWallet, got %v", resolution.Decision)
	}
	if !resolution.ReturnFunds {
		t.Errorf("A duplicate wallet with a real payment still owes a refund")
	}
}

func TestResolveSubmitted_WrongDestinationNoMatch(t *testing.T) {
	transferStore := setupStore(t)
	confirmer := NewConfirmer(transferStore, store.KeyBySource, "MintAAA")

	challenge := &models.Challenge{
		SessionKey:        1,
		UserID:            101,
		Mint:              "MintAAA",
		DepositAddress:    "Collection",
		ExpectedSignature: "sig1",
		CreatedAt:         time.Now().UTC(),
	}
	resolution, err := confirmer.ResolveSubmitted(context.Background(), challenge, &ledger.TransferEvent{
		Signature:   "sig1",
		Source:      "Payer1",
		Destination: "SomebodyElse",
		Mint:        "MintAAA",
		Amount:      7_000_000,
	})
	if err != nil {
		t.Fatalf("ResolveSubmitted failed: %v", err)
	}
	if resolution.Decision != DecisionNoMatch {
		t.Fatalf("Expected DecisionNoMatch for a transfer paid elsewhere, got %v", resolution.Decision)
	}
}
