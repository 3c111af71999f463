package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"token-gate-go/internal/models"
	"token-gate-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		service.Close()
	}

	return service, cleanup
}

func pendingParams(sessionKey int64) store.InsertChallengeParams {
	return store.InsertChallengeParams{
		SessionKey:  sessionKey,
		UserID:      100 + sessionKey,
		Mint:        "MintAAA",
		Destination: "DepositAddr1",
		Amount:      10_000_000,
	}
}

func destinationKey(sessionKey int64) store.ClaimKey {
	return store.ClaimKey{
		Keying:      store.KeyByDestination,
		SessionKey:  sessionKey,
		Destination: "DepositAddr1",
		Mint:        "MintAAA",
		Amount:      10_000_000,
	}
}

func TestInsertPendingChallenge_Collision(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	if err := service.InsertPendingChallenge(ctx, pendingParams(1)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Same (destination, mint, amount) tuple from another session must collide
	err := service.InsertPendingChallenge(ctx, pendingParams(2))
	if !errors.Is(err, store.ErrChallengeCollision) {
		t.Fatalf("Expected ErrChallengeCollision, got: %v", err)
	}
}

func TestConfirmTransfer_HappyPath(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	if err := service.InsertPendingChallenge(ctx, pendingParams(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	key := destinationKey(1)
	blockTime := time.Now().UTC().Add(time.Hour)
	ok, err := service.ConfirmTransfer(ctx, key, "sig1", "PayerWallet1", 10_000_000, blockTime)
	if err != nil {
		t.Fatalf("ConfirmTransfer failed: %v", err)
	}
	if !ok {
		t.Fatalf("Expected confirmation, got no row changed")
	}

	// The record is no longer pending
	pending, err := service.FindPending(ctx, key)
	if err != nil {
		t.Fatalf("FindPending failed: %v", err)
	}
	if pending != nil {
		t.Errorf("Expected no pending record after confirmation, got %+v", pending)
	}

	// The payer wallet now backs a confirmed grant
	confirmed, err := service.SourceConfirmed(ctx, "PayerWallet1", "MintAAA")
	if err != nil {
		t.Fatalf("SourceConfirmed failed: %v", err)
	}
	if !confirmed {
		t.Errorf("Expected source to be confirmed")
	}
}

func TestConfirmTransfer_ZeroBlockTimeConfirms(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	if err := service.InsertPendingChallenge(ctx, pendingParams(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// A node that omits the block time must not strand a real deposit
	ok, err := service.ConfirmTransfer(ctx, destinationKey(1), "sig1", "PayerWallet1", 10_000_000, time.Time{})
	if err != nil {
		t.Fatalf("ConfirmTransfer failed: %v", err)
	}
	if !ok {
		t.Fatalf("Expected a transfer without a block time to confirm")
	}
}

func TestConfirmTransfer_RejectsOldTransfer(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	if err := service.InsertPendingChallenge(ctx, pendingParams(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// A transfer finalized before the challenge opened must not confirm
	stale := time.Now().UTC().Add(-time.Hour)
	ok, err := service.ConfirmTransfer(ctx, destinationKey(1), "sig-old", "PayerWallet1", 10_000_000, stale)
	if err != nil {
		t.Fatalf("ConfirmTransfer failed: %v", err)
	}
	if ok {
		t.Fatalf("Expected replayed transfer to be rejected")
	}

	// The pending record survives
	pending, err := service.FindPending(ctx, destinationKey(1))
	if err != nil {
		t.Fatalf("FindPending failed: %v", err)
	}
	if pending == nil {
		t.Fatalf("Expected pending record to remain")
	}
}

func TestConfirmTransfer_SecondConfirmNoOp(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	blockTime := time.Now().UTC().Add(time.Hour)

	if err := service.InsertPendingChallenge(ctx, pendingParams(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if ok, _ := service.ConfirmTransfer(ctx, destinationKey(1), "sig1", "PayerWallet1", 10_000_000, blockTime); !ok {
		t.Fatalf("First confirm should succeed")
	}

	ok, err := service.ConfirmTransfer(ctx, destinationKey(1), "sig2", "PayerWallet2", 10_000_000, blockTime)
	if err != nil {
		t.Fatalf("Second confirm errored: %v", err)
	}
	if ok {
		t.Fatalf("Second confirm must not change any row")
	}
}

func TestConfirmTransfer_SourceKeyingRejectsDuplicateWallet(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	blockTime := time.Now().UTC().Add(time.Hour)

	// First wallet confirms against the collection address
	first := store.InsertChallengeParams{
		SessionKey: 1, UserID: 101, Mint: "MintAAA",
		Source: "PayerWallet1", Destination: "Collection", Amount: 5_000_000,
	}
	if err := service.InsertPendingChallenge(ctx, first); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	firstKey := store.ClaimKey{
		Keying: store.KeyBySource, SessionKey: 1,
		Source: "PayerWallet1", Destination: "Collection", Mint: "MintAAA", Amount: 5_000_000,
	}
	if ok, err := service.ConfirmTransfer(ctx, firstKey, "sig1", "PayerWallet1", 5_000_000, blockTime); err != nil || !ok {
		t.Fatalf("First confirm failed: ok=%v err=%v", ok, err)
	}

	// The same wallet backing a second session must be rejected by the
	// confirming write itself
	second := store.InsertChallengeParams{
		SessionKey: 2, UserID: 102, Mint: "MintAAA",
		Source: "PayerWallet1", Destination: "Collection", Amount: 6_000_000,
	}
	if err := service.InsertPendingChallenge(ctx, second); err != nil {
		t.Fatalf("Second insert failed: %v", err)
	}
	secondKey := store.ClaimKey{
		Keying: store.KeyBySource, SessionKey: 2,
		Source: "PayerWallet1", Destination: "Collection", Mint: "MintAAA", Amount: 6_000_000,
	}
	ok, err := service.ConfirmTransfer(ctx, secondKey, "sig2", "PayerWallet1", 6_000_000, blockTime)
	if err != nil {
		t.Fatalf("Second confirm errored: %v", err)
	}
	if ok {
		t.Fatalf("Expected duplicate wallet to be rejected")
	}

	confirmed, err := service.SourceConfirmed(ctx, "PayerWallet1", "MintAAA")
	if err != nil {
		t.Fatalf("SourceConfirmed failed: %v", err)
	}
	if !confirmed {
		t.Errorf("Expected source to remain confirmed for the first grant")
	}
}

func TestDeletePendingFor_ReleasesClaim(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	if err := service.InsertPendingChallenge(ctx, pendingParams(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := service.DeletePendingFor(ctx, 1); err != nil {
		t.Fatalf("DeletePendingFor failed: %v", err)
	}

	// The claim tuple is free again
	if err := service.InsertPendingChallenge(ctx, pendingParams(2)); err != nil {
		t.Fatalf("Reinsert after release failed: %v", err)
	}
}

func TestFindConfirmedExcluding(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	grants := []store.InsertChallengeParams{
		{SessionKey: 1, UserID: 101, Mint: "MintAAA", Source: "W1", Destination: "D1", Amount: 1},
		{SessionKey: 2, UserID: 102, Mint: "MintAAA", Source: "W2", Destination: "D2", Amount: 1},
		{SessionKey: 3, UserID: 103, Mint: "MintBBB", Source: "W3", Destination: "D3", Amount: 1},
	}
	for _, g := range grants {
		if err := service.InsertConfirmedGrant(ctx, g); err != nil {
			t.Fatalf("InsertConfirmedGrant failed: %v", err)
		}
	}

	records, err := service.FindConfirmedExcluding(ctx, "MintAAA", []int64{102})
	if err != nil {
		t.Fatalf("FindConfirmedExcluding failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].UserID != 101 {
		t.Errorf("Expected user 101, got %d", records[0].UserID)
	}
}

func TestDeleteConfirmed(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	if err := service.DeleteConfirmed(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing grant, got: %v", err)
	}

	grant := store.InsertChallengeParams{
		SessionKey: 42, UserID: 142, Mint: "MintAAA", Source: "W1", Destination: "D1", Amount: 1,
	}
	if err := service.InsertConfirmedGrant(ctx, grant); err != nil {
		t.Fatalf("InsertConfirmedGrant failed: %v", err)
	}
	if err := service.DeleteConfirmed(ctx, 42); err != nil {
		t.Fatalf("DeleteConfirmed failed: %v", err)
	}

	records, err := service.FindConfirmedExcluding(ctx, "MintAAA", nil)
	if err != nil {
		t.Fatalf("FindConfirmedExcluding failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no confirmed grants, got %d", len(records))
	}
}
