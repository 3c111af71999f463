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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"token-gate-go/internal/models"
	"token-gate-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// sqliteTimeLayout matches CURRENT_TIMESTAMP so timestamp comparisons in SQL
// stay lexicographic.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func (s *Service) InsertPendingChallenge(ctx context.Context, params store.InsertChallengeParams) error {
	_, err := s.db.ExecContext(ctx, queryInsertPending,
		params.SessionKey, params.UserID, params.Mint, params.Source, params.Destination, params.Amount)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			zap.L().Warn("Challenge collision",
				zap.String("destination", params.Destination),
				zap.String("mint", params.Mint),
				zap.Uint64("amount", params.Amount))
			return store.ErrChallengeCollision
		}
		return fmt.Errorf("failed to insert pending challenge: %w", err)
	}

	zap.L().Info("Pending challenge recorded",
		zap.Int64("session_key", params.SessionKey),
		zap.String("destination", params.Destination),
		zap.Uint64("amount", params.Amount))
	return nil
}

func (s *Service) InsertConfirmedGrant(ctx context.Context, params store.InsertChallengeParams) error {
	_, err := s.db.ExecContext(ctx, queryInsertConfirmed,
		params.SessionKey, params.UserID, params.Mint, params.Source, params.Destination, params.Amount)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return store.ErrChallengeCollision
		}
		return fmt.Errorf("failed to insert confirmed grant: %w", err)
	}
	return nil
}

func (s *Service) FindPending(ctx context.Context, key store.ClaimKey) (*models.TransferRecord, error) {
	row := s.db.QueryRowContext(ctx, queryFindPending, key.Destination, key.SessionKey)

	record, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending record: %w", err)
	}
	return record, nil
}

func (s *Service) ConfirmTransfer(ctx context.Context, key store.ClaimKey, signature, source string, amount uint64, blockTime time.Time) (bool, error) {
	var result sql.Result
	var err error
	switch {
	case key.Keying == store.KeyBySource:
		result, err = s.db.ExecContext(ctx, queryConfirmBySource,
			signature, source, amount,
			key.Destination, key.Mint, key.Amount,
			source, key.Mint)
	case blockTime.IsZero():
		result, err = s.db.ExecContext(ctx, queryConfirmByDestinationNoTime,
			signature, source, amount,
			key.Destination, key.Mint, key.Amount)
	default:
		result, err = s.db.ExecContext(ctx, queryConfirmByDestination,
			signature, source, amount,
			key.Destination, key.Mint, key.Amount,
			blockTime.UTC().Format(sqliteTimeLayout))
	}
	if err != nil {
		return false, fmt.Errorf("failed to confirm transfer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	zap.L().Info("Transfer confirmed",
		zap.Int64("session_key", key.SessionKey),
		zap.String("signature", signature),
		zap.String("source", source),
		zap.Uint64("amount", amount))
	return true, nil
}

func (s *Service) SourceConfirmed(ctx context.Context, source, mint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, querySourceConfirmed, source, mint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check source: %w", err)
	}
	return true, nil
}

func (s *Service) DeletePendingFor(ctx context.Context, sessionKey int64) error {
	if _, err := s.db.ExecContext(ctx, queryDeletePending, sessionKey); err != nil {
		return fmt.Errorf("failed to delete pending records: %w", err)
	}
	return nil
}

func (s *Service) FindConfirmedExcluding(ctx context.Context, mint string, exclude []int64) ([]models.TransferRecord, error) {
	excluded := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx, queryFindConfirmedByMint, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmed grants: %w", err)
	}
	defer rows.Close()

	var records []models.TransferRecord
	for rows.Next() {
		record, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan confirmed grant: %w", err)
		}
		if _, ok := excluded[record.UserID]; ok {
			continue
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (s *Service) DeleteConfirmed(ctx context.Context, sessionKey int64) error {
	result, err := s.db.ExecContext(ctx, queryDeleteConfirmed, sessionKey)
	if err != nil {
		return fmt.Errorf("failed to delete confirmed grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*models.TransferRecord, error) {
	var record models.TransferRecord
	var createdAt string
	if err := row.Scan(&record.Signature, &record.SessionKey, &record.UserID,
		&record.Mint, &record.Source, &record.Destination, &record.Amount,
		&record.Confirmed, &createdAt); err != nil {
		return nil, err
	}

	// go-sqlite3 returns CURRENT_TIMESTAMP columns in RFC3339 when parsed,
	// but scanning into a string keeps the SQLite layout.
	parsed, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("unparseable created_at %q: %w", createdAt, err)
		}
	}
	record.CreatedAt = parsed.UTC()
	return &record, nil
}
