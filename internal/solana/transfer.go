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

package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"token-gate-go/internal/ledger"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// systemTransferInstruction is the instruction index of Transfer in the
// system program.
const systemTransferInstruction = 2

func (s *Service) ParsedTransfer(ctx context.Context, signature string) (*ledger.TransferEvent, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	result, err := s.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		// Nodes lag: a confirmed signature may not be queryable yet.
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, signature)
	}
	if result == nil || result.Meta == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, signature)
	}
	if result.Meta.Err != nil {
		return nil, fmt.Errorf("transaction failed on chain: %v", result.Meta.Err)
	}

	event := &ledger.TransferEvent{Signature: signature}
	if result.BlockTime != nil {
		event.BlockTime = result.BlockTime.Time()
	}

	// Token movement first: the pre/post balance diff covers every token
	// program variant without decoding instructions.
	if tokenEvent := extractTokenTransfer(result.Meta, event); tokenEvent != nil {
		return tokenEvent, nil
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("unable to decode transaction: %w", err)
	}
	if nativeEvent := extractNativeTransfer(tx, event); nativeEvent != nil {
		return nativeEvent, nil
	}

	return nil, fmt.Errorf("%w: %s", ledger.ErrNoTransferFound, signature)
}

// extractTokenTransfer diffs pre/post token balances: the owner whose
// balance decreased is the source, the owner whose balance increased is the
// destination.
func extractTokenTransfer(meta *rpc.TransactionMeta, event *ledger.TransferEvent) *ledger.TransferEvent {
	pre := make(map[uint16]uint64)
	preOwner := make(map[uint16]string)
	preMint := make(map[uint16]string)
	for _, balance := range meta.PreTokenBalances {
		pre[balance.AccountIndex] = rawAmount(balance.UiTokenAmount)
		if balance.Owner != nil {
			preOwner[balance.AccountIndex] = balance.Owner.String()
		}
		preMint[balance.AccountIndex] = balance.Mint.String()
	}

	var source, destination, mint string
	var amount uint64
	for _, balance := range meta.PostTokenBalances {
		post := rawAmount(balance.UiTokenAmount)
		before := pre[balance.AccountIndex]
		owner := ""
		if balance.Owner != nil {
			owner = balance.Owner.String()
		}
		switch {
		case post > before:
			destination = owner
			mint = balance.Mint.String()
			amount = post - before
		case post < before:
			source = owner
		}
	}
	// An account drained to zero may be absent from post balances.
	if source == "" {
		for index, before := range pre {
			if _, stillThere := findPost(meta, index); !stillThere && before > 0 {
				source = preOwner[index]
			}
		}
	}

	if destination == "" || amount == 0 {
		return nil
	}

	event.Source = source
	event.Destination = destination
	event.Mint = mint
	event.Amount = amount
	event.Native = false
	return event
}

func findPost(meta *rpc.TransactionMeta, index uint16) (uint64, bool) {
	for _, balance := range meta.PostTokenBalances {
		if balance.AccountIndex == index {
			return rawAmount(balance.UiTokenAmount), true
		}
	}
	return 0, false
}

func rawAmount(amount *rpc.UiTokenAmount) uint64 {
	if amount == nil {
		return 0
	}
	value, err := strconv.ParseUint(amount.Amount, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// extractNativeTransfer scans top-level instructions for a system-program
// Transfer: u32 instruction index 2 followed by u64 lamports, both
// little-endian.
func extractNativeTransfer(tx *solana.Transaction, event *ledger.TransferEvent) *ledger.TransferEvent {
	message := tx.Message
	for _, instruction := range message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(message.AccountKeys) {
			continue
		}
		programID := message.AccountKeys[instruction.ProgramIDIndex]
		if !programID.Equals(solana.SystemProgramID) {
			continue
		}
		data := []byte(instruction.Data)
		if len(data) < 12 || binary.LittleEndian.Uint32(data[0:4]) != systemTransferInstruction {
			continue
		}
		if len(instruction.Accounts) < 2 {
			continue
		}
		sourceIndex := instruction.Accounts[0]
		destIndex := instruction.Accounts[1]
		if int(sourceIndex) >= len(message.AccountKeys) || int(destIndex) >= len(message.AccountKeys) {
			continue
		}

		event.Source = message.AccountKeys[sourceIndex].String()
		event.Destination = message.AccountKeys[destIndex].String()
		event.Amount = binary.LittleEndian.Uint64(data[4:12])
		event.Native = true
		return event
	}
	return nil
}
