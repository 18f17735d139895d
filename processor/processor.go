// Package processor defines the boundary to the external escrow-capable
// payment processor. The ledger only ever authorizes with manual capture:
// funds are reserved at authorization time and move into custody at capture.
package processor

import (
	"context"
	"errors"
	"fmt"
)

// IntentStatus mirrors the processor-side lifecycle of an authorization.
type IntentStatus string

const (
	IntentRequiresPayment IntentStatus = "requires_payment"
	IntentRequiresCapture IntentStatus = "requires_capture"
	IntentCaptured        IntentStatus = "captured"
	IntentCanceled        IntentStatus = "canceled"
	IntentFailed          IntentStatus = "failed"
)

// AuthorizationParams configures a manual-capture authorization. The
// destination account and fee establish a standing transfer instruction so no
// separate payout call is needed at release time.
type AuthorizationParams struct {
	Amount             float64
	Currency           string
	DestinationAccount string
	FeeAmount          float64
	Metadata           map[string]string
}

// Intent is the processor's view of an authorization.
type Intent struct {
	Ref      string
	Status   IntentStatus
	Amount   float64
	Currency string
}

// CaptureReceipt confirms settled funds in custody.
type CaptureReceipt struct {
	Ref       string
	IntentRef string
	Amount    float64
}

// RefundReceipt confirms a refund instruction was accepted.
type RefundReceipt struct {
	Ref       string
	IntentRef string
	Amount    float64
}

// Processor is the minimal surface the ledger consumes.
type Processor interface {
	CreateAuthorization(ctx context.Context, params AuthorizationParams) (Intent, error)
	RetrieveAuthorization(ctx context.Context, intentRef string) (Intent, error)
	Capture(ctx context.Context, intentRef string) (CaptureReceipt, error)
	CancelAuthorization(ctx context.Context, intentRef string) error
	// Refund refunds the given amount; amount <= 0 means the full charge.
	Refund(ctx context.Context, intentRef string, amount float64) (RefundReceipt, error)
}

// Error wraps a processor failure. Retryable errors (network, rate limits)
// may be replayed safely because a failed capture never advances our state.
type Error struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("processor: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient processor failure.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}
