package dispute

import (
	"errors"
	"time"

	"escrowflow/proof"
)

// Status is the dispute lifecycle. Escalated hands the case to external legal
// handling and is terminal here; resolved states close once both parties have
// been notified.
type Status string

const (
	StatusOpened             Status = "opened"
	StatusUnderReview        Status = "under_review"
	StatusMediation          Status = "mediation"
	StatusResolvedClient     Status = "resolved_client"
	StatusResolvedEnterprise Status = "resolved_enterprise"
	StatusEscalated          Status = "escalated"
	StatusClosed             Status = "closed"
)

var allowedTransitions = map[Status][]Status{
	StatusOpened:             {StatusUnderReview, StatusMediation, StatusResolvedClient, StatusResolvedEnterprise, StatusEscalated},
	StatusUnderReview:        {StatusMediation, StatusResolvedClient, StatusResolvedEnterprise, StatusEscalated},
	StatusMediation:          {StatusResolvedClient, StatusResolvedEnterprise, StatusEscalated},
	StatusResolvedClient:     {StatusClosed},
	StatusResolvedEnterprise: {StatusClosed},
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

// Open reports whether the dispute still freezes its payment.
func (s Status) Open() bool {
	return s == StatusOpened || s == StatusUnderReview || s == StatusMediation
}

// ResolutionType enumerates what a resolution does to the ledger.
type ResolutionType string

const (
	ResolutionFullRefund     ResolutionType = "full_refund"
	ResolutionPartialRefund  ResolutionType = "partial_refund"
	ResolutionWorkCompletion ResolutionType = "work_completion"
	ResolutionDismissed      ResolutionType = "dismissed"
)

// Beneficiary names which side a resolution favors.
type Beneficiary string

const (
	BeneficiaryClient     Beneficiary = "client"
	BeneficiaryEnterprise Beneficiary = "enterprise"
)

// EventType classifies timeline entries.
type EventType string

const (
	EventStatusChange EventType = "status_change"
	EventMessage      EventType = "message"
	EventProofAdded   EventType = "proof_added"
	EventAssignment   EventType = "assignment"
	EventResolution   EventType = "resolution"
)

// Event is one entry of the dispute's append-only timeline.
type Event struct {
	Type       EventType      `json:"type"`
	ActorID    string         `json:"actor_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Resolution is the mediator's or administrator's verdict.
type Resolution struct {
	Type        ResolutionType
	Description string
	Amount      float64
	Beneficiary Beneficiary
}

// Dispute mirrors the disputes table.
type Dispute struct {
	ID                    string
	Reference             string
	ContractID            string
	PaymentID             string
	MilestoneID           string
	OpenedBy              string
	Respondent            string
	Reason                string
	Title                 string
	Description           string
	ContestedAmount       float64
	OpenerProofs          []proof.Proof
	RespondentProofs      []proof.Proof
	Status                Status
	MediatorID            string
	ResolutionType        ResolutionType
	ResolutionDescription string
	ResolutionAmount      float64
	Beneficiary           Beneficiary
	ResolvedAt            *time.Time
	ResolvedBy            string
	RespondBy             *time.Time
	ResolveBy             *time.Time
	Events                []Event
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

var (
	// ErrNotFound is returned when no dispute row exists for the identifier.
	ErrNotFound = errors.New("dispute: not found")
	// ErrStatusConflict signals a lost race on a conditional transition.
	ErrStatusConflict = errors.New("dispute: status conflict")
	// ErrInvalidState is returned when the operation is not permitted from
	// the dispute's current status.
	ErrInvalidState = errors.New("dispute: invalid state for operation")
	// ErrAlreadyDisputed guards the one-open-dispute rule per
	// (contract, payment|milestone).
	ErrAlreadyDisputed = errors.New("dispute: already disputed")
	// ErrWrongParty is returned when the actor is not the dispute's named
	// respondent.
	ErrWrongParty = errors.New("dispute: wrong party")
	// ErrUnauthorized is returned when the actor may not resolve or mediate.
	ErrUnauthorized = errors.New("dispute: actor not allowed")
	// ErrBelowMediationThreshold rejects mediator assignment on small
	// contested amounts.
	ErrBelowMediationThreshold = errors.New("dispute: contested amount below mediation threshold")
)
