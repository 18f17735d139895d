package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the escrow ledger lifecycle. Funds exist in custody only while
// the payment is held; released, refunded, and cancelled are terminal.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusProcessing      Status = "processing"
	StatusHeld            Status = "held"
	StatusReleased        Status = "released"
	StatusRefunded        Status = "refunded"
	StatusDisputed        Status = "disputed"
	StatusCancelled       Status = "cancelled"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:         {StatusAwaitingPayment, StatusProcessing, StatusHeld, StatusCancelled, StatusDisputed},
	StatusAwaitingPayment: {StatusProcessing, StatusHeld, StatusCancelled, StatusDisputed},
	StatusProcessing:      {StatusHeld, StatusCancelled, StatusDisputed},
	StatusHeld:            {StatusReleased, StatusRefunded, StatusDisputed},
	// A dispute resolution unfreezes back to held before refunding or
	// releasing, so the audit trail shows the full path.
	StatusDisputed: {StatusHeld, StatusRefunded, StatusCancelled},
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

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusReleased || s == StatusRefunded || s == StatusCancelled
}

// Capturable reports whether a capture confirmation may land on this status.
func (s Status) Capturable() bool {
	return s == StatusPending || s == StatusAwaitingPayment || s == StatusProcessing
}

// Type classifies what the payment settles.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeMilestone  Type = "milestone"
	TypeFinal      Type = "final"
	TypeRetention  Type = "retention"
	TypePenalty    Type = "penalty"
	TypeAdjustment Type = "adjustment"
)

// ValidType reports whether t is a known payment type.
func ValidType(t Type) bool {
	switch t {
	case TypeDeposit, TypeMilestone, TypeFinal, TypeRetention, TypePenalty, TypeAdjustment:
		return true
	}
	return false
}

// StatusChange is one entry of the append-only audit history.
type StatusChange struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Payment mirrors the payments table.
type Payment struct {
	ID             string
	Reference      string
	ContractID     string
	MilestoneID    string
	Type           Type
	PreTax         float64
	Tax            float64
	Total          float64
	IntentRef      string
	CaptureRef     string
	PayerID        string
	PayeeID        string
	HeldUntil      *time.Time
	ReleasedAt     *time.Time
	ReleasedBy     string
	Status         Status
	History        []StatusChange
	DueDate        *time.Time
	PaidAt         *time.Time
	FraudScore     int
	FraudRules     []string
	RequiresReview bool
	RefundedTotal  float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var (
	// ErrNotFound is returned when no payment row exists for the identifier.
	ErrNotFound = errors.New("payment: not found")
	// ErrStatusConflict signals a lost race on a conditional transition.
	ErrStatusConflict = errors.New("payment: status conflict")
	// ErrNotHeld is returned when release is attempted off a non-held payment.
	ErrNotHeld = errors.New("payment: not held")
	// ErrEscrowActive is returned when the hold window has not elapsed.
	ErrEscrowActive = errors.New("payment: escrow window still active")
	// ErrDisputeActive blocks release while a dispute references the payment.
	ErrDisputeActive = errors.New("payment: open dispute on payment")
	// ErrNotRefundable is returned when the payment holds no refundable funds.
	ErrNotRefundable = errors.New("payment: not refundable")
	// ErrNotCapturable is returned when the processor cannot capture the
	// authorization, or the payment already moved past capture.
	ErrNotCapturable = errors.New("payment: not capturable")
	// ErrLimitExceeded is returned when a business ceiling would be violated.
	ErrLimitExceeded = errors.New("payment: limit exceeded")
	// ErrDuplicateIdempotencyKey signals a replayed external confirmation.
	ErrDuplicateIdempotencyKey = errors.New("payment: duplicate idempotency key")
)

// FraudBlockedError is the hard stop from the rule engine. Callers see the
// triggered rule codes, never the scoring internals.
type FraudBlockedError struct {
	Rules []string
}

func (e *FraudBlockedError) Error() string {
	return fmt.Sprintf("payment: blocked by fraud rules: %s", strings.Join(e.Rules, ", "))
}

// IsFraudBlocked reports whether err is a rule-engine hard stop.
func IsFraudBlocked(err error) bool {
	var fb *FraudBlockedError
	return errors.As(err, &fb)
}
