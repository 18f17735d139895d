package fraud

import (
	"time"

	"escrowflow/config"
	"escrowflow/proof"
)

// RiskLevel is the coarse classification derived from the aggregated score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelFor maps an aggregate score onto a risk band.
func LevelFor(score int, cfg config.FraudConfig) RiskLevel {
	switch {
	case score >= cfg.BlockThreshold:
		return RiskCritical
	case score >= cfg.HoldThreshold:
		return RiskHigh
	case score >= cfg.FlagThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Request describes the payment candidate under evaluation.
type Request struct {
	ContractID  string
	MilestoneID string
	PaymentType string
	Amount      float64
	PayeeID     string
}

// ContractSnapshot is the slice of contract state the rules read.
type ContractSnapshot struct {
	Total        float64
	CreatedAt    time.Time
	ClientID     string
	EnterpriseID string
}

// MilestoneSnapshot is the slice of milestone state the rules read.
type MilestoneSnapshot struct {
	Amount    float64
	PlannedAt *time.Time
	Proofs    []proof.Proof
}

// Input is the fully-gathered evaluation context. The engine assembles it once
// per check so individual rules stay pure and unit-testable.
type Input struct {
	Request  Request
	Contract ContractSnapshot

	// SettledSum is the contract's existing exposure: the sum of payment
	// totals in awaiting_payment, processing, held, or released.
	SettledSum float64

	// RecentPaymentCount counts payments created on this contract inside the
	// velocity window.
	RecentPaymentCount int

	PayeeResolvable    bool
	PayeeAccountAge    time.Duration
	RecentDisputes     int
	RecentDisputesLost int
	CompletedContracts int

	// Milestone is nil for payments not tied to a milestone.
	Milestone *MilestoneSnapshot

	Now time.Time
}

// Outcome is a single rule's verdict.
type Outcome struct {
	Triggered bool
	Score     int
	Details   map[string]any
}

// Result aggregates every triggered rule. Callers outside the engine see the
// rule codes, never the per-rule internals.
type Result struct {
	TotalScore     int
	RiskLevel      RiskLevel
	RulesTriggered []string
	Details        map[string]any
	ShouldBlock    bool
	RequiresReview bool
}

// Alert is one manual-review item, materialized per triggered rule when the
// overall outcome is high or critical.
type Alert struct {
	ID          string
	ContractID  string
	MilestoneID string
	PaymentID   string
	RuleCode    string
	Severity    RiskLevel
	Message     string
	Details     map[string]any
	CreatedAt   time.Time
}

// CheckRecord is the audit log of one engine evaluation.
type CheckRecord struct {
	ContractID     string
	MilestoneID    string
	PaymentType    string
	Amount         float64
	TotalScore     int
	RiskLevel      RiskLevel
	RulesTriggered []string
	Details        map[string]any
	Blocked        bool
	RequiresReview bool
}
