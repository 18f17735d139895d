package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable threshold and delay used by the settlement
// engine. Services receive it at construction time; tests override fields
// directly instead of touching process-wide state.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	ListenAddr  string
	LogMode     string

	Payment PaymentConfig
	Fraud   FraudConfig
	Dispute DisputeConfig
}

// PaymentConfig bounds what the escrow ledger accepts and how long funds stay
// in custody.
type PaymentConfig struct {
	Currency           string
	PlatformFeePercent float64
	EscrowDays         int
	DueDays            int
	MaxSinglePayment   float64
	// MaxDepositPercent is the ledger's hard cap on a deposit relative to
	// the contract total. Below this the rule engine may still flag the
	// deposit for review without rejecting it.
	MaxDepositPercent float64
	// ContractCeilingPercent is the hard cap on the settled sum relative to
	// the contract total, expressed as a percentage (105 = total + 5%).
	ContractCeilingPercent float64
}

// FraudConfig holds the rule-engine thresholds. Scores are additive across
// triggered rules.
type FraudConfig struct {
	BlockThreshold int
	HoldThreshold  int
	FlagThreshold  int

	MaxDepositPercent       float64
	CriticalDepositPercent  float64
	MaxPaymentsPerWeek      int
	LargeMilestoneThreshold float64
	MinProofsLargeMilestone int
	NewAccountDays          int
	RecentDisputeDays       int
	EarlySubmissionDays     int
	AmountVariancePercent   float64
	BusinessHourStart       int
	BusinessHourEnd         int
}

// DisputeConfig controls dispute deadlines and resolution policy.
type DisputeConfig struct {
	ResponseDays          int
	ResolutionDays        int
	MinAmountForMediation float64
	// DismissedReleasesFunds controls whether a dismissed dispute
	// force-releases the escrowed payment to the payee.
	DismissedReleasesFunds bool
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogMode:    "dev",
		Payment: PaymentConfig{
			Currency:               "eur",
			PlatformFeePercent:     3.5,
			EscrowDays:             7,
			DueDays:                7,
			MaxSinglePayment:       50000,
			MaxDepositPercent:      50,
			ContractCeilingPercent: 105,
		},
		Fraud: FraudConfig{
			BlockThreshold:          80,
			HoldThreshold:           50,
			FlagThreshold:           25,
			MaxDepositPercent:       30,
			CriticalDepositPercent:  50,
			MaxPaymentsPerWeek:      2,
			LargeMilestoneThreshold: 5000,
			MinProofsLargeMilestone: 3,
			NewAccountDays:          30,
			RecentDisputeDays:       90,
			EarlySubmissionDays:     7,
			AmountVariancePercent:   20,
			BusinessHourStart:       6,
			BusinessHourEnd:         22,
		},
		Dispute: DisputeConfig{
			ResponseDays:           7,
			ResolutionDays:         30,
			MinAmountForMediation:  500,
			DismissedReleasesFunds: true,
		},
	}
}

// FromEnv loads the defaults and overlays environment variables. A .env file
// is honored when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LOG_MODE"); v != "" {
		cfg.LogMode = v
	}
	if v := os.Getenv("ESCROW_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: parse ESCROW_DAYS: %w", err)
		}
		cfg.Payment.EscrowDays = days
	}
	if v := os.Getenv("FRAUD_BLOCK_THRESHOLD"); v != "" {
		threshold, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: parse FRAUD_BLOCK_THRESHOLD: %w", err)
		}
		cfg.Fraud.BlockThreshold = threshold
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	return cfg, nil
}

// EscrowHold returns the custody duration for captured funds.
func (p PaymentConfig) EscrowHold() time.Duration {
	return time.Duration(p.EscrowDays) * 24 * time.Hour
}

// DueWindow returns how long a pending payment stays payable.
func (p PaymentConfig) DueWindow() time.Duration {
	return time.Duration(p.DueDays) * 24 * time.Hour
}
