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

// Package staking queries an external staking-program API for the amount a
// wallet has staked.
package staking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"token-gate-go/internal/models"

	"github.com/shopspring/decimal"
)

// Source is the lookup the eligibility evaluator consumes.
type Source interface {
	StakedBalance(ctx context.Context, wallet string) (decimal.Decimal, error)
}

// Compile-time check: *Client must satisfy Source.
var _ Source = (*Client)(nil)

type Client struct {
	cfg        models.StakingConfig
	httpClient *http.Client
}

func NewClient(cfg models.StakingConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type balanceRequest struct {
	Wallet string `json:"wallet"`
	Game   string `json:"game,omitempty"`
	Action string `json:"action,omitempty"`
}

type balanceResponse struct {
	Staked decimal.Decimal `json:"staked"`
}

// StakedBalance returns the wallet's staked amount in whole tokens. A wallet
// unknown to the staking program stakes zero; that is a valid answer, not an
// error.
func (c *Client) StakedBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if c.cfg.URL == "" {
		return decimal.Zero, nil
	}

	payload, err := json.Marshal(balanceRequest{
		Wallet: wallet,
		Game:   c.cfg.Game,
		Action: c.cfg.Action,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to encode staking request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to build staking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("staking lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("staking lookup returned %d: %s", resp.StatusCode, body)
	}

	var result balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("unable to decode staking response: %w", err)
	}
	return result.Staked, nil
}
