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

const (
	queryInsertPending = `
		INSERT INTO transfers (session_key, user_id, mint, source, destination, amount, confirmed)
		VALUES (?, ?, ?, ?, ?, ?, 0)`

	queryInsertConfirmed = `
		INSERT INTO transfers (session_key, user_id, mint, source, destination, amount, confirmed)
		VALUES (?, ?, ?, ?, ?, ?, 1)`

	queryFindPending = `
		SELECT signature, session_key, user_id, mint, source, destination, amount, confirmed, created_at
		FROM transfers
		WHERE destination = ? AND session_key = ? AND confirmed = 0`

	// The confirming write. The WHERE clause carries the whole protocol:
	// the row must still be pending, and the transfer must have finalized
	// after the challenge opened. Row count decides the race.
	queryConfirmByDestination = `
		UPDATE transfers
		SET confirmed = 1, signature = ?, source = ?, amount = ?
		WHERE destination = ? AND mint = ? AND amount = ?
		  AND confirmed = 0
		  AND created_at <= ?`

	// Some nodes return no block time for a confirmed transaction. Without a
	// time there is nothing to compare, so the confirming write drops the
	// created_at clause rather than refusing a real deposit.
	queryConfirmByDestinationNoTime = `
		UPDATE transfers
		SET confirmed = 1, signature = ?, source = ?, amount = ?
		WHERE destination = ? AND mint = ? AND amount = ?
		  AND confirmed = 0`

	// Source keying skips the created_at comparison: the pending row is
	// inserted after the transaction already confirmed, so the block time
	// always predates it. Source uniqueness is the active guard instead.
	queryConfirmBySource = `
		UPDATE transfers
		SET confirmed = 1, signature = ?, source = ?, amount = ?
		WHERE destination = ? AND mint = ? AND amount = ?
		  AND confirmed = 0
		  AND NOT EXISTS (
			SELECT 1 FROM transfers t2
			WHERE t2.source = ? AND t2.mint = ? AND t2.confirmed = 1
		  )`

	querySourceConfirmed = `
		SELECT 1 FROM transfers
		WHERE source = ? AND mint = ? AND confirmed = 1
		LIMIT 1`

	queryDeletePending = `
		DELETE FROM transfers WHERE session_key = ? AND confirmed = 0`

	queryFindConfirmedByMint = `
		SELECT signature, session_key, user_id, mint, source, destination, amount, confirmed, created_at
		FROM transfers
		WHERE mint = ? AND confirmed = 1
		ORDER BY created_at`

	queryDeleteConfirmed = `
		DELETE FROM transfers WHERE session_key = ? AND confirmed = 1`
)
