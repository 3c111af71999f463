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

// Package admin serves a loopback-only operator API: health, grant
// inspection, manual authorization and manual revocation.
package admin

import (
	"fmt"
	"net"
	"net/http"
	"strconv"

	"token-gate-go/internal/chat"
	"token-gate-go/internal/models"
	"token-gate-go/internal/store"
	"token-gate-go/internal/verify"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	store    store.TransferStore
	platform chat.Platform
	verifier *verify.Service
	cfg      models.VerifierConfig
}

func NewServer(transferStore store.TransferStore, platform chat.Platform, verifier *verify.Service, cfg models.VerifierConfig) *Server {
	return &Server{store: transferStore, platform: platform, verifier: verifier, cfg: cfg}
}

// LocalOnly rejects requests that do not originate from loopback. The
// operator API carries no authentication of its own.
func LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "loopback only"})
			return
		}
		c.Next()
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LocalOnly())

	router.GET("/health", s.health)
	router.GET("/grants", s.listGrants)
	router.POST("/grants", s.createGrant)
	router.DELETE("/grants/:sessionKey", s.deleteGrant)
	router.POST("/challenges", s.openChallenge)
	router.POST("/challenges/signature", s.submitSignature)
	return router
}

func (s *Server) Run(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	zap.L().Info("Operator API listening", zap.String("addr", addr))
	return s.Router().Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type grantView struct {
	SessionKey  int64  `json:"session_key"`
	UserID      int64  `json:"user_id"`
	Wallet      string `json:"wallet"`
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
	Signature   string `json:"signature,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) listGrants(c *gin.Context) {
	records, err := s.store.FindConfirmedExcluding(c.Request.Context(), s.cfg.Mint, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	grants := make([]grantView, 0, len(records))
	for _, record := range records {
		grants = append(grants, grantView{
			SessionKey:  record.SessionKey,
			UserID:      record.UserID,
			Wallet:      record.Source,
			Destination: record.Destination,
			Amount:      record.Amount,
			Signature:   record.Signature,
			CreatedAt:   record.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

type createGrantRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Wallet string `json:"wallet" binding:"required"`
}

// createGrant records an operator-issued grant and mints an invite. The
// synthetic session key is the negated user id so manual grants never
// collide with chat sessions and stay individually revocable.
func (s *Server) createGrant(c *gin.Context) {
	var req createGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionKey := -req.UserID
	err := s.store.InsertConfirmedGrant(c.Request.Context(), store.InsertChallengeParams{
		SessionKey:  sessionKey,
		UserID:      req.UserID,
		Mint:        s.cfg.Mint,
		Source:      req.Wallet,
		Destination: fmt.Sprintf("MANUAL-%d", req.UserID),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if err == store.ErrChallengeCollision {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	zap.L().Info("Manual grant recorded",
		zap.Int64("user_id", req.UserID),
		zap.String("wallet", req.Wallet))

	invite, err := s.platform.IssueInviteLink(c.Request.Context(), s.cfg.GroupID, s.cfg.InviteExpiry, 1)
	if err != nil {
		// The grant stands; only the invite is missing.
		c.JSON(http.StatusAccepted, gin.H{
			"session_key": sessionKey,
			"warning":     "grant recorded but invite issuance failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_key": sessionKey,
		"invite_link": invite,
	})
}

type openChallengeRequest struct {
	SessionKey int64 `json:"session_key" binding:"required"`
	UserID     int64 `json:"user_id" binding:"required"`
}

// openChallenge starts an address-watch verification on behalf of a session.
func (s *Server) openChallenge(c *gin.Context) {
	if s.verifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verifier not available"})
		return
	}

	var req openChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, err := s.verifier.OpenChallenge(c.Request.Context(), req.SessionKey, req.UserID)
	if err != nil {
		status := http.StatusInternalServerError
		switch err {
		case verify.ErrAlreadyVerifying:
			status = http.StatusConflict
		case store.ErrChallengeCollision:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"deposit_address": challenge.DepositAddress,
		"amount":          challenge.ExpectedAmount,
	})
}

type submitSignatureRequest struct {
	SessionKey int64  `json:"session_key" binding:"required"`
	UserID     int64  `json:"user_id" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
}

// submitSignature starts a signature-watch verification for an already-sent
// transfer.
func (s *Server) submitSignature(c *gin.Context) {
	if s.verifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verifier not available"})
		return
	}

	var req submitSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, err := s.verifier.SubmitSignature(c.Request.Context(), req.SessionKey, req.UserID, req.Signature)
	if err != nil {
		status := http.StatusInternalServerError
		switch err {
		case verify.ErrAlreadyVerifying:
			status = http.StatusConflict
		case verify.ErrBadSignatureFormat:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"signature": challenge.ExpectedSignature,
	})
}

func (s *Server) deleteGrant(c *gin.Context) {
	sessionKey, err := strconv.ParseInt(c.Param("sessionKey"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session key"})
		return
	}

	records, err := s.store.FindConfirmedExcluding(c.Request.Context(), s.cfg.Mint, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var userID int64
	found := false
	for _, record := range records {
		if record.SessionKey == sessionKey {
			userID = record.UserID
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no grant for session key"})
		return
	}

	if err := s.platform.RevokeMember(c.Request.Context(), s.cfg.GroupID, userID); err != nil {
		zap.L().Warn("Manual revocation could not remove member from group",
			zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := s.store.DeleteConfirmed(c.Request.Context(), sessionKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	zap.L().Info("Manual revocation complete",
		zap.Int64("session_key", sessionKey),
		zap.Int64("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"revoked": userID})
}
