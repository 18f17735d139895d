package contract

import "time"

// Status is the contract lifecycle. A contract is created at signature time,
// flipped to disputed only by the dispute manager, and completed when every
// milestone has settled.
type Status string

const (
	StatusActive    Status = "active"
	StatusDisputed  Status = "disputed"
	StatusCompleted Status = "completed"
)

var allowedTransitions = map[Status][]Status{
	StatusActive:   {StatusDisputed, StatusCompleted},
	StatusDisputed: {StatusActive},
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

// Contract mirrors the contracts table. Amounts are pre-tax / total with the
// tax rate retained so derived payments compute tax the same way.
type Contract struct {
	ID           string
	Reference    string
	Title        string
	ClientID     string
	EnterpriseID string
	TotalPreTax  float64
	TaxRate      float64
	Total        float64
	Status       Status
	SignedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsParty reports whether userID is one of the two contracting parties.
func (c Contract) IsParty(userID string) bool {
	return userID == c.ClientID || userID == c.EnterpriseID
}

// CounterpartyOf returns the other contracting party.
func (c Contract) CounterpartyOf(userID string) string {
	if userID == c.ClientID {
		return c.EnterpriseID
	}
	return c.ClientID
}

// ScheduleEntry describes one milestone of the payment schedule agreed at
// signature. Percent is the share of the contract total.
type ScheduleEntry struct {
	Seq               int
	Designation       string
	Percent           float64
	PlannedAt         *time.Time
	TriggerConditions []string
	Deliverables      []string
}
