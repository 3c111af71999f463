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

// Package eligibility decides whether a wallet's combined liquid and staked
// holdings clear the configured threshold.
package eligibility

import (
	"context"
	"fmt"

	"token-gate-go/internal/config"
	"token-gate-go/internal/ledger"
	"token-gate-go/internal/models"
	"token-gate-go/internal/staking"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var oneHundred = decimal.NewFromInt(100)

type Evaluator struct {
	cfg      models.EligibilityConfig
	mint     string
	holdings ledger.HoldingsSource
	staking  staking.Source
}

func NewEvaluator(cfg models.EligibilityConfig, mint string, holdings ledger.HoldingsSource, stakingSource staking.Source) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		mint:     mint,
		holdings: holdings,
		staking:  stakingSource,
	}
}

// Evaluate computes the wallet's snapshot against the threshold. A liquid or
// staked lookup failure degrades that component to zero under the "zero"
// policy; under "fail" it aborts. A supply lookup failure in percent mode
// always aborts: without the supply there is no threshold to compare against.
func (e *Evaluator) Evaluate(ctx context.Context, wallet string) (*models.EligibilitySnapshot, error) {
	required := e.cfg.RequiredAmount
	if e.cfg.RequiredPercent.IsPositive() {
		supply, err := e.holdings.TokenSupply(ctx, e.mint)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve token supply: %w", err)
		}
		required = supply.Mul(e.cfg.RequiredPercent).Div(oneHundred)
	}

	liquid, err := e.holdings.TokenHoldings(ctx, wallet, e.mint)
	if err != nil {
		if e.cfg.LookupFailurePolicy == config.LookupPolicyFail {
			return nil, fmt.Errorf("unable to resolve liquid holdings: %w", err)
		}
		zap.L().Warn("Liquid holdings lookup failed, counting zero",
			zap.String("wallet", wallet), zap.Error(err))
		liquid = decimal.Zero
	}

	staked := decimal.Zero
	if e.staking != nil {
		staked, err = e.staking.StakedBalance(ctx, wallet)
		if err != nil {
			if e.cfg.LookupFailurePolicy == config.LookupPolicyFail {
				return nil, fmt.Errorf("unable to resolve staked holdings: %w", err)
			}
			zap.L().Warn("Staked holdings lookup failed, counting zero",
				zap.String("wallet", wallet), zap.Error(err))
			staked = decimal.Zero
		}
	}

	combined := liquid.Add(staked)
	snapshot := &models.EligibilitySnapshot{
		Wallet:   wallet,
		Liquid:   liquid,
		Staked:   staked,
		Combined: combined,
		Required: required,
		Eligible: combined.GreaterThanOrEqual(required),
	}
	if !snapshot.Eligible {
		snapshot.Shortfall = required.Sub(combined)
	}

	zap.L().Info("Eligibility evaluated",
		zap.String("wallet", wallet),
		zap.String("liquid", liquid.String()),
		zap.String("staked", staked.String()),
		zap.String("required", required.String()),
		zap.Bool("eligible", snapshot.Eligible))
	return snapshot, nil
}
