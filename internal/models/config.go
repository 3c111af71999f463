package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig
	Solana      SolanaConfig
	Verifier    VerifierConfig
	Eligibility EligibilityConfig
	Staking     StakingConfig
	Reaper      ReaperConfig
	Chat        ChatConfig
	Admin       AdminConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// SolanaConfig holds ledger RPC settings
type SolanaConfig struct {
	RPCURL string
	WSURL  string
	// RefundSecret is the base58 private key of the refund authority used
	// for token-flow compensating transfers. Optional; native-flow refunds
	// are signed by the per-challenge deposit key instead.
	RefundSecret string
	// RecentWindow bounds how old a polled signature may be before the
	// address watcher ignores it.
	RecentWindow time.Duration
}

// VerifierConfig holds deposit-verification settings
type VerifierConfig struct {
	Mint        string
	TokenSymbol string
	// ClaimKeying selects the claim-uniqueness strategy: "destination"
	// (anti-replay active, duplicate wallets checked post-confirm) or
	// "source" (source uniqueness enforced by the confirming write).
	ClaimKeying string
	// DepositLamports is the exact native deposit expected in the
	// address-watch flow.
	DepositLamports uint64
	// CollectionAddress is the shared destination used by the
	// signature-watch flow.
	CollectionAddress string
	// ExpectedTokenAmount is the token amount expected by the
	// signature-watch flow; 0 accepts any amount and checks post-hoc.
	ExpectedTokenAmount uint64
	PollInterval        time.Duration
	DetailAttempts      int
	DetailRetryDelay    time.Duration
	// WatchTimeout bounds how long an address watcher may poll before
	// giving up; 0 polls indefinitely. This is a deployment policy choice.
	WatchTimeout     time.Duration
	RefundAttempts   int
	RefundRetryDelay time.Duration
	InviteExpiry     time.Duration
	GroupID          int64
}

// EligibilityConfig holds the holdings threshold settings
type EligibilityConfig struct {
	// RequiredAmount is an absolute token threshold. Ignored when
	// RequiredPercent is set.
	RequiredAmount decimal.Decimal
	// RequiredPercent expresses the threshold as a percentage of total
	// supply; zero disables percent mode.
	RequiredPercent decimal.Decimal
	// LookupFailurePolicy governs a failed liquid or staked lookup:
	// "zero" degrades that source to 0 and logs, "fail" aborts the
	// evaluation.
	LookupFailurePolicy string
}

// StakingConfig holds the external staking-program API settings
type StakingConfig struct {
	URL     string
	APIKey  string
	Game    string
	Action  string
	Timeout time.Duration
}

// ReaperConfig holds the periodic re-verification settings
type ReaperConfig struct {
	Interval   time.Duration
	ExemptFile string
}

// ChatConfig holds chat-platform settings consumed by the core
type ChatConfig struct {
	GroupName string
}

// AdminConfig holds the loopback operator API settings
type AdminConfig struct {
	Port int
}
