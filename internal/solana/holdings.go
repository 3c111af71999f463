package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// TokenHoldings sums the wallet's token-account balances for the mint, in
// whole tokens.
func (s *Service) TokenHoldings(ctx context.Context, wallet, mint string) (decimal.Decimal, error) {
	ownerPubkey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid wallet %q: %w", wallet, err)
	}
	mintPubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	accounts, err := s.client.GetTokenAccountsByOwner(ctx, ownerPubkey, &rpc.GetTokenAccountsConfig{
		Mint: &mintPubkey,
	}, &rpc.GetTokenAccountsOpts{
		Encoding: solana.EncodingBase64,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to list token accounts: %w", err)
	}

	total := decimal.Zero
	for _, account := range accounts.Value {
		balance, err := s.client.GetTokenAccountBalance(ctx, account.Pubkey, rpc.CommitmentConfirmed)
		if err != nil {
			return decimal.Zero, fmt.Errorf("unable to get balance of %s: %w", account.Pubkey, err)
		}
		amount, err := wholeTokens(balance.Value)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, nil
}

// TokenSupply returns the mint's total supply, in whole tokens.
func (s *Service) TokenSupply(ctx context.Context, mint string) (decimal.Decimal, error) {
	mintPubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	supply, err := s.client.GetTokenSupply(ctx, mintPubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to get token supply: %w", err)
	}
	return wholeTokens(supply.Value)
}

func wholeTokens(amount *rpc.UiTokenAmount) (decimal.Decimal, error) {
	if amount == nil {
		return decimal.Zero, nil
	}
	raw, err := decimal.NewFromString(amount.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable token amount %q: %w", amount.Amount, err)
	}
	return raw.Shift(-int32(amount.Decimals)), nil
}
