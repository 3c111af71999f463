package verify

import (
	"context"
	"errors"
	"time"

	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"
)

type fakeWallet struct {
	address string
}

func (w *fakeWallet) Address() string { return w.address }

type fakeLedger struct {
	wallet        *fakeWallet
	signatures    []ledger.SignatureInfo
	status        ledger.Status
	event         *ledger.TransferEvent
	eventErr      error
	refundSig     string
	refundErr     error
	refundCalls   int
	refundedTo    string
	refundedToken uint64
	nativeRefund  bool
}

func (f *fakeLedger) NewDepositWallet() (ledger.DepositWallet, error) {
	if f.wallet == nil {
		f.wallet = &fakeWallet{address: "DepositAddr1"}
	}
	return f.wallet, nil
}

func (f *fakeLedger) PollSignatures(_ context.Context, _ string) ([]ledger.SignatureInfo, error) {
	return f.signatures, nil
}

func (f *fakeLedger) SignatureStatus(_ context.Context, _ string) (ledger.Status, error) {
	return f.status, nil
}

func (f *fakeLedger) AwaitConfirmation(_ context.Context, _ string) error {
	if f.status == ledger.StatusFailed {
		return errors.New("transaction failed")
	}
	return nil
}

func (f *fakeLedger) ParsedTransfer(_ context.Context, _ string) (*ledger.TransferEvent, error) {
	return f.event, f.eventErr
}

func (f *fakeLedger) RefundDeposit(_ context.Context, _ ledger.DepositWallet, to string) (string, error) {
	f.refundCalls++
	f.refundedTo = to
	f.nativeRefund = true
	return f.refundSig, f.refundErr
}

func (f *fakeLedger) RefundTokens(_ context.Context, to, _ string, amount uint64) (string, error) {
	f.refundCalls++
	f.refundedTo = to
	f.refundedToken = amount
	f.nativeRefund = false
	return f.refundSig, f.refundErr
}

type fakeEvaluator struct {
	snapshot *models.EligibilitySnapshot
	err      error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, wallet string) (*models.EligibilitySnapshot, error) {
	if f.snapshot != nil {
		f.snapshot.Wallet = wallet
	}
	return f.snapshot, f.err
}

type inviteCall struct {
	groupID     int64
	expiry      time.Duration
	memberLimit int
}

type fakePlatform struct {
	invite    string
	inviteErr error
	invites   []inviteCall
	revoked   []int64
	notified  []string
}

func (f *fakePlatform) IssueInviteLink(_ context.Context, groupID int64, expiry time.Duration, memberLimit int) (string, error) {
	f.invites = append(f.invites, inviteCall{groupID: groupID, expiry: expiry, memberLimit: memberLimit})
	return f.invite, f.inviteErr
}

func (f *fakePlatform) RevokeMember(_ context.Context, _, userID int64) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

func (f *fakePlatform) Notify(_ context.Context, _ int64, text string) error {
	f.notified = append(f.notified, text)
	return nil
}
