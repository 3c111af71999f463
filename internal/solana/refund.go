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
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"token-gate-go/internal/ledger"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// defaultSignatureFee is used when the fee lookup returns nothing.
const defaultSignatureFee = 5_000

// tokenTransferDiscriminator is the Transfer instruction index in the SPL
// token program.
const tokenTransferDiscriminator = 3

// RefundDeposit sweeps the deposit wallet back to the payer: full balance
// minus the network fee, signed by the per-challenge deposit key.
func (s *Service) RefundDeposit(ctx context.Context, wallet ledger.DepositWallet, to string) (string, error) {
	dw, ok := wallet.(*depositWallet)
	if !ok {
		return "", fmt.Errorf("unsupported deposit wallet type %T", wallet)
	}

	toPubkey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid refund recipient %q: %w", to, err)
	}
	fromPubkey := dw.key.PublicKey()

	balanceResult, err := s.client.GetBalance(ctx, fromPubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("unable to get deposit balance: %w", err)
	}
	balance := balanceResult.Value

	blockhash, err := s.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	// Price the sweep with a draft transaction before subtracting the fee.
	draft, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(balance, fromPubkey, toPubkey).Build(),
		},
		blockhash,
		solana.TransactionPayer(fromPubkey),
	)
	if err != nil {
		return "", fmt.Errorf("unable to build refund draft: %w", err)
	}

	fee := uint64(defaultSignatureFee)
	if messageBytes, err := draft.Message.MarshalBinary(); err == nil {
		feeResult, err := s.client.GetFeeForMessage(ctx,
			base64.StdEncoding.EncodeToString(messageBytes), rpc.CommitmentConfirmed)
		if err == nil && feeResult.Value != nil && *feeResult.Value > 0 {
			fee = *feeResult.Value
		}
	}
	if balance <= fee {
		return "", fmt.Errorf("deposit balance %d does not cover the network fee %d", balance, fee)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(balance-fee, fromPubkey, toPubkey).Build(),
		},
		blockhash,
		solana.TransactionPayer(fromPubkey),
	)
	if err != nil {
		return "", fmt.Errorf("unable to build refund transaction: %w", err)
	}

	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(fromPubkey) {
			return &dw.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("unable to sign refund transaction: %w", err)
	}

	signature, err := s.broadcast(ctx, tx)
	if err != nil {
		return "", err
	}

	zap.L().Info("Deposit refunded",
		zap.String("from", fromPubkey.String()),
		zap.String("to", to),
		zap.Uint64("lamports", balance-fee),
		zap.String("signature", signature))
	return signature, nil
}

// RefundTokens sends the exact token amount back to the payer from the
// refund authority.
func (s *Service) RefundTokens(ctx context.Context, to, mint string, amount uint64) (string, error) {
	if s.refund == nil {
		return "", fmt.Errorf("no refund authority configured")
	}

	toPubkey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid refund recipient %q: %w", to, err)
	}
	mintPubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	refundPubkey := s.refund.PublicKey()

	sourceAccount, err := s.tokenAccountFor(ctx, refundPubkey, mintPubkey)
	if err != nil {
		return "", fmt.Errorf("refund authority has no token account for %s: %w", mint, err)
	}
	destAccount, err := s.tokenAccountFor(ctx, toPubkey, mintPubkey)
	if err != nil {
		return "", fmt.Errorf("recipient has no token account for %s: %w", mint, err)
	}

	// Transfer instruction: discriminator byte then u64 amount, little-endian.
	data := make([]byte, 9)
	data[0] = tokenTransferDiscriminator
	binary.LittleEndian.PutUint64(data[1:], amount)

	instruction := solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: sourceAccount, IsSigner: false, IsWritable: true},
			{PublicKey: destAccount, IsSigner: false, IsWritable: true},
			{PublicKey: refundPubkey, IsSigner: true, IsWritable: false},
		},
		data,
	)

	blockhash, err := s.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhash,
		solana.TransactionPayer(refundPubkey),
	)
	if err != nil {
		return "", fmt.Errorf("unable to build token refund transaction: %w", err)
	}

	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(refundPubkey) {
			return s.refund
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("unable to sign token refund transaction: %w", err)
	}

	signature, err := s.broadcast(ctx, tx)
	if err != nil {
		return "", err
	}

	zap.L().Info("Tokens refunded",
		zap.String("to", to),
		zap.String("mint", mint),
		zap.Uint64("amount", amount),
		zap.String("signature", signature))
	return signature, nil
}

func (s *Service) tokenAccountFor(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	accounts, err := s.client.GetTokenAccountsByOwner(ctx, owner, &rpc.GetTokenAccountsConfig{
		Mint: &mint,
	}, &rpc.GetTokenAccountsOpts{
		Encoding: solana.EncodingBase64,
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	if len(accounts.Value) == 0 {
		return solana.PublicKey{}, fmt.Errorf("no token account for owner %s", owner)
	}
	return accounts.Value[0].Pubkey, nil
}

func (s *Service) broadcast(ctx context.Context, tx *solana.Transaction) (string, error) {
	encoded, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("unable to serialize transaction: %w", err)
	}

	s.txMutex.Lock()
	defer s.txMutex.Unlock()

	signature, err := s.client.SendRawTransaction(ctx, encoded)
	if err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}
	return signature.String(), nil
}
