package account

import "time"

// Profile is the settlement account attached to an enterprise user. Funds can
// only be routed to enterprises whose processor onboarding finished.
type Profile struct {
	ID                  string
	UserID              string
	ProcessorAccountRef string
	ChargesEnabled      bool
	PayoutsEnabled      bool
	IdentityVerified    bool
	TotalReceived       float64
	TotalPending        float64
	TotalDisputes       int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Payable reports whether the account can receive escrowed funds.
func (p Profile) Payable() bool {
	return p.ProcessorAccountRef != "" && p.ChargesEnabled && p.PayoutsEnabled
}
