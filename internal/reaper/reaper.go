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

// Package reaper periodically re-verifies confirmed grants and revokes
// members who fell below the threshold.
package reaper

import (
	"context"
	"time"

	"token-gate-go/internal/chat"
	"token-gate-go/internal/store"
	"token-gate-go/internal/verify"

	"go.uber.org/zap"
)

type Reaper struct {
	store     store.TransferStore
	evaluator verify.Evaluator
	platform  chat.Platform
	mint      string
	groupID   int64
	interval  time.Duration
	// exempt user ids are never re-verified or revoked.
	exempt []int64
}

func New(transferStore store.TransferStore, evaluator verify.Evaluator, platform chat.Platform,
	mint string, groupID int64, interval time.Duration, exempt []int64) *Reaper {
	return &Reaper{
		store:     transferStore,
		evaluator: evaluator,
		platform:  platform,
		mint:      mint,
		groupID:   groupID,
		interval:  interval,
		exempt:    exempt,
	}
}

// Run sweeps on the configured interval until ctx ends.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	zap.L().Info("Reaper started",
		zap.Duration("interval", r.interval),
		zap.Int("exempt_members", len(r.exempt)))

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep re-evaluates every confirmed grant once. Failures are isolated per
// member: one bad lookup never blocks the rest of the sweep. Sweeping twice
// in a row is a no-op for members revoked by the first pass because their
// records are deleted with the revocation.
func (r *Reaper) Sweep(ctx context.Context) {
	records, err := r.store.FindConfirmedExcluding(ctx, r.mint, r.exempt)
	if err != nil {
		zap.L().Error("Reaper sweep failed to list grants", zap.Error(err))
		return
	}

	revoked := 0
	for _, record := range records {
		snapshot, err := r.evaluator.Evaluate(ctx, record.Source)
		if err != nil {
			zap.L().Warn("Reaper could not evaluate member, keeping grant",
				zap.Int64("user_id", record.UserID),
				zap.String("wallet", record.Source),
				zap.Error(err))
			continue
		}
		if snapshot.Eligible {
			continue
		}

		if err := r.platform.RevokeMember(ctx, r.groupID, record.UserID); err != nil {
			zap.L().Error("Reaper could not revoke member",
				zap.Int64("user_id", record.UserID), zap.Error(err))
			continue
		}
		if err := r.store.DeleteConfirmed(ctx, record.SessionKey); err != nil {
			zap.L().Error("Reaper could not delete revoked grant",
				zap.Int64("session_key", record.SessionKey), zap.Error(err))
			continue
		}
		revoked++
		zap.L().Info("Member revoked, holdings below threshold",
			zap.Int64("user_id", record.UserID),
			zap.String("wallet", record.Source),
			zap.String("combined", snapshot.Combined.String()),
			zap.String("required", snapshot.Required.String()))
	}

	zap.L().Info("Reaper sweep complete",
		zap.Int("checked", len(records)),
		zap.Int("revoked", revoked))
}
