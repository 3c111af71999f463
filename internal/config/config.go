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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"token-gate-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	KeyingDestination = "destination"
	KeyingSource      = "source"

	LookupPolicyZero = "zero"
	LookupPolicyFail = "fail"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	recentWindow, err := getEnvDuration("RECENT_SIGNATURE_WINDOW", 3*time.Minute)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvDuration("POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	detailRetryDelay, err := getEnvDuration("DETAIL_RETRY_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}

	watchTimeout, err := getEnvDuration("WATCH_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}

	refundRetryDelay, err := getEnvDuration("REFUND_RETRY_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}

	inviteExpiry, err := getEnvDuration("INVITE_EXPIRY", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	reaperInterval, err := getEnvDuration("REAPER_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	stakingTimeout, err := getEnvDuration("STAKING_API_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	mint := os.Getenv("TOKEN_MINT")
	if mint == "" {
		return nil, fmt.Errorf("TOKEN_MINT is required")
	}

	rpcURL := os.Getenv("SOLANA_RPC_URL")
	if rpcURL == "" {
		return nil, fmt.Errorf("SOLANA_RPC_URL is required")
	}

	keying := getEnvString("CLAIM_KEYING", KeyingDestination)
	if keying != KeyingDestination && keying != KeyingSource {
		return nil, fmt.Errorf("invalid CLAIM_KEYING %q: must be %q or %q", keying, KeyingDestination, KeyingSource)
	}

	lookupPolicy := getEnvString("LOOKUP_FAILURE_POLICY", LookupPolicyZero)
	if lookupPolicy != LookupPolicyZero && lookupPolicy != LookupPolicyFail {
		return nil, fmt.Errorf("invalid LOOKUP_FAILURE_POLICY %q: must be %q or %q", lookupPolicy, LookupPolicyZero, LookupPolicyFail)
	}

	requiredAmount, err := getEnvDecimal("REQUIRED_HOLDINGS", decimal.Zero)
	if err != nil {
		return nil, err
	}

	requiredPercent, err := getEnvDecimal("REQUIRED_PERCENT", decimal.Zero)
	if err != nil {
		return nil, err
	}

	if requiredAmount.IsZero() && requiredPercent.IsZero() {
		return nil, fmt.Errorf("one of REQUIRED_HOLDINGS or REQUIRED_PERCENT is required")
	}

	groupID, err := getEnvInt64("CHAT_GROUP_ID", 0)
	if err != nil {
		return nil, err
	}

	depositLamports, err := getEnvUint64("DEPOSIT_LAMPORTS", 10_000_000)
	if err != nil {
		return nil, err
	}

	expectedTokenAmount, err := getEnvUint64("EXPECTED_TOKEN_AMOUNT", 0)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "transfers.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Solana: models.SolanaConfig{
			RPCURL:       rpcURL,
			WSURL:        os.Getenv("SOLANA_WS_URL"),
			RefundSecret: os.Getenv("REFUND_SECRET"),
			RecentWindow: recentWindow,
		},
		Verifier: models.VerifierConfig{
			Mint:                mint,
			TokenSymbol:         getEnvString("TOKEN_SYMBOL", ""),
			ClaimKeying:         keying,
			DepositLamports:     depositLamports,
			CollectionAddress:   os.Getenv("COLLECTION_ADDRESS"),
			ExpectedTokenAmount: expectedTokenAmount,
			PollInterval:        pollInterval,
			DetailAttempts:      getEnvInt("DETAIL_ATTEMPTS", 6),
			DetailRetryDelay:    detailRetryDelay,
			WatchTimeout:        watchTimeout,
			RefundAttempts:      getEnvInt("REFUND_ATTEMPTS", 3),
			RefundRetryDelay:    refundRetryDelay,
			InviteExpiry:        inviteExpiry,
			GroupID:             groupID,
		},
		Eligibility: models.EligibilityConfig{
			RequiredAmount:      requiredAmount,
			RequiredPercent:     requiredPercent,
			LookupFailurePolicy: lookupPolicy,
		},
		Staking: models.StakingConfig{
			URL:     os.Getenv("STAKING_API_URL"),
			APIKey:  os.Getenv("STAKING_API_KEY"),
			Game:    os.Getenv("STAKING_GAME"),
			Action:  os.Getenv("STAKING_ACTION"),
			Timeout: stakingTimeout,
		},
		Reaper: models.ReaperConfig{
			Interval:   reaperInterval,
			ExemptFile: getEnvString("EXEMPT_FILE", ""),
		},
		Chat: models.ChatConfig{
			GroupName: getEnvString("CHAT_GROUP_NAME", ""),
		},
		Admin: models.AdminConfig{
			Port: getEnvInt("ADMIN_PORT", 0),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %q (%w)", key, value, err)
		}
		return intValue, nil
	}
	return defaultValue, nil
}

func getEnvUint64(key string, defaultValue uint64) (uint64, error) {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount for %s: %q (%w)", key, value, err)
		}
		return intValue, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}
