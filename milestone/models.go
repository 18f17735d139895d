package milestone

import (
	"time"

	"escrowflow/proof"
)

// Status is the milestone lifecycle. Rejection is recoverable: the enterprise
// can rework and resubmit. Completion is set by the escrow ledger once the
// derived payment reaches custody.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusValidated  Status = "validated"
	StatusRejected   Status = "rejected"
	StatusCompleted  Status = "completed"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusSubmitted},
	StatusInProgress: {StatusSubmitted},
	StatusSubmitted:  {StatusValidated, StatusRejected},
	StatusRejected:   {StatusInProgress, StatusSubmitted},
	// Validated and completed reopen only through dispute resolution.
	StatusValidated: {StatusCompleted, StatusRejected},
	StatusCompleted: {StatusRejected},
}

// CanTransition reports whether from → to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RiskLabel is the advisory classification produced by the submission
// verification pass. It never blocks anything.
type RiskLabel string

const (
	RiskLow    RiskLabel = "low"
	RiskMedium RiskLabel = "medium"
	RiskHigh   RiskLabel = "high"
)

// Milestone mirrors the milestones table.
type Milestone struct {
	ID                string
	ContractID        string
	Seq               int
	Designation       string
	PreTax            float64
	Total             float64
	Percent           float64
	PlannedAt         *time.Time
	SubmittedAt       *time.Time
	ValidatedAt       *time.Time
	PaidAt            *time.Time
	TriggerConditions []string
	Deliverables      []string
	Status            Status
	ValidatedBy       string
	RejectionReason   string
	Proofs            []proof.Proof
	Report            string
	Verification      *Verification
	RiskLevel         RiskLabel
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Verification is the advisory output of the automatic submission checks.
type Verification struct {
	Score      int       `json:"score"`
	Alerts     []string  `json:"alerts"`
	VerifiedAt time.Time `json:"verified_at"`
}
