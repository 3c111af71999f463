package common

import (
	"context"
	"log"
	"strings"

	"token-gate-go/internal/chat"
	"token-gate-go/internal/database"
	"token-gate-go/internal/eligibility"
	"token-gate-go/internal/events"
	"token-gate-go/internal/models"
	"token-gate-go/internal/session"
	"token-gate-go/internal/solana"
	"token-gate-go/internal/staking"
	"token-gate-go/internal/store"
	"token-gate-go/internal/verify"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Store         *database.Service
	Ledger        *solana.Service
	Evaluator     *eligibility.Evaluator
	Sessions      *session.Registry
	Platform      chat.Platform
	Publisher     *events.Publisher
	Verifier      *verify.Service
	ExemptMembers []int64
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	ledgerService, err := solana.NewService(ctx, cfg.Solana)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	stakingClient := staking.NewClient(cfg.Staking)
	evaluator := eligibility.NewEvaluator(cfg.Eligibility, cfg.Verifier.Mint, ledgerService, stakingClient)

	exempt, err := LoadExemptMembers(cfg.Reaper.ExemptFile)
	if err != nil {
		dbService.Close()
		ledgerService.Close()
		return nil, err
	}

	sessions := session.NewRegistry()
	platform := chat.NewLogNotifier()
	publisher, _ := events.NewInProcessBus()

	keying := store.Keying(cfg.Verifier.ClaimKeying)
	confirmer := verify.NewConfirmer(dbService, keying, cfg.Verifier.Mint)
	dispatcher := verify.NewDispatcher(dbService, ledgerService, evaluator, platform, publisher, cfg.Verifier)
	verifier := verify.NewService(dbService, ledgerService, sessions, confirmer, dispatcher,
		platform, cfg.Verifier, cfg.Solana.RecentWindow)

	return &Services{
		Store:         dbService,
		Ledger:        ledgerService,
		Evaluator:     evaluator,
		Sessions:      sessions,
		Platform:      platform,
		Publisher:     publisher,
		Verifier:      verifier,
		ExemptMembers: exempt,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operator tooling.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.Ledger != nil {
		cs.Ledger.Close()
	}
	if cs.Store != nil {
		if err := cs.Store.Close(); err != nil {
			zap.L().Warn("Failed to close store", zap.Error(err))
		}
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
