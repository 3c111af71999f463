// Package chat abstracts the messaging platform whose group membership is
// being gated. The core never talks to a platform API directly; deployments
// plug in their own implementation.
package chat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by the logging implementation for operations
// that need a real platform connection.
var ErrNotConnected = errors.New("no chat platform connected")

// Platform is the surface the verifier and reaper need.
type Platform interface {
	// IssueInviteLink creates a single-use invite to the group, expiring
	// after expiry, limited to memberLimit joins.
	IssueInviteLink(ctx context.Context, groupID int64, expiry time.Duration, memberLimit int) (string, error)

	// RevokeMember removes the user from the group.
	RevokeMember(ctx context.Context, groupID, userID int64) error

	// Notify sends best-effort text to the session's chat. Failures are
	// logged, never fatal.
	Notify(ctx context.Context, sessionKey int64, text string) error
}

// Compile-time check: *LogNotifier must satisfy Platform.
var _ Platform = (*LogNotifier)(nil)

// LogNotifier is the default Platform: it logs every call and refuses to
// mint invites. Useful for dry runs and tests.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) IssueInviteLink(_ context.Context, groupID int64, expiry time.Duration, memberLimit int) (string, error) {
	zap.L().Warn("Invite requested without a connected chat platform",
		zap.Int64("group_id", groupID),
		zap.Duration("expiry", expiry),
		zap.Int("member_limit", memberLimit))
	return "", ErrNotConnected
}

func (n *LogNotifier) RevokeMember(_ context.Context, groupID, userID int64) error {
	zap.L().Warn("Revoke requested without a connected chat platform",
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", userID))
	return ErrNotConnected
}

func (n *LogNotifier) Notify(_ context.Context, sessionKey int64, text string) error {
	zap.L().Info("Chat notification",
		zap.Int64("session_key", sessionKey),
		zap.String("text", text))
	return nil
}
