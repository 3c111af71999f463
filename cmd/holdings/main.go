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

package main

import (
	"context"
	"flag"
	"fmt"

	"token-gate-go/internal/common"
	"token-gate-go/internal/config"
	"token-gate-go/internal/eligibility"
	"token-gate-go/internal/models"
	"token-gate-go/internal/solana"
	"token-gate-go/internal/staking"

	"go.uber.org/zap"
)

func printSnapshot(snapshot *models.EligibilitySnapshot, symbol string) {
	fmt.Printf("\nWallet:   %s\n", snapshot.Wallet)
	fmt.Printf("Liquid:   %s %s\n", snapshot.Liquid.String(), symbol)
	fmt.Printf("Staked:   %s %s\n", snapshot.Staked.String(), symbol)
	fmt.Printf("Combined: %s %s\n", snapshot.Combined.String(), symbol)
	fmt.Printf("Required: %s %s\n", snapshot.Required.String(), symbol)
	if snapshot.Eligible {
		fmt.Println("Result:   ELIGIBLE")
	} else {
		fmt.Printf("Result:   NOT ELIGIBLE (short by %s %s)\n", snapshot.Shortfall.String(), symbol)
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	walletFlag := flag.String("wallet", "", "Wallet address to evaluate")
	flag.Parse()

	wallet := *walletFlag
	if wallet == "" && flag.NArg() > 0 {
		wallet = flag.Arg(0)
	}
	if wallet == "" {
		logger.Fatal("No wallet supplied, pass -wallet <address>")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ledgerService, err := solana.NewService(ctx, cfg.Solana)
	if err != nil {
		logger.Fatal("Failed to connect to RPC", zap.Error(err))
	}
	defer ledgerService.Close()

	stakingClient := staking.NewClient(cfg.Staking)
	evaluator := eligibility.NewEvaluator(cfg.Eligibility, cfg.Verifier.Mint, ledgerService, stakingClient)

	logger.Info("Evaluating holdings",
		zap.String("wallet", wallet),
		zap.String("mint", cfg.Verifier.Mint))

	snapshot, err := evaluator.Evaluate(ctx, wallet)
	if err != nil {
		logger.Fatal("Evaluation failed", zap.Error(err))
	}

	printSnapshot(snapshot, cfg.Verifier.TokenSymbol)

	logger.Info("Evaluation complete",
		zap.String("wallet", wallet),
		zap.Bool("eligible", snapshot.Eligible))
}
