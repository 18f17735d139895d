package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Fake is an in-memory Processor used by tests and local development. It
// models the manual-capture lifecycle: authorizations start in
// requires_capture (as if the payer already paid the authorization).
type Fake struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*Intent

	// FailNext, when set, makes the next call return a retryable error once.
	FailNext bool
}

func NewFake() *Fake {
	return &Fake{intents: make(map[string]*Intent)}
}

func (f *Fake) failOnce(op string) error {
	if f.FailNext {
		f.FailNext = false
		return &Error{Op: op, Retryable: true, Err: errors.New("simulated transport failure")}
	}
	return nil
}

func (f *Fake) CreateAuthorization(_ context.Context, params AuthorizationParams) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOnce("create authorization"); err != nil {
		return Intent{}, err
	}
	f.seq++
	in := &Intent{
		Ref:      fmt.Sprintf("pi_fake_%06d", f.seq),
		Status:   IntentRequiresCapture,
		Amount:   params.Amount,
		Currency: params.Currency,
	}
	f.intents[in.Ref] = in
	return *in, nil
}

func (f *Fake) RetrieveAuthorization(_ context.Context, intentRef string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOnce("retrieve authorization"); err != nil {
		return Intent{}, err
	}
	in, ok := f.intents[intentRef]
	if !ok {
		return Intent{}, &Error{Op: "retrieve authorization", Err: fmt.Errorf("unknown intent %s", intentRef)}
	}
	return *in, nil
}

func (f *Fake) Capture(_ context.Context, intentRef string) (CaptureReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOnce("capture"); err != nil {
		return CaptureReceipt{}, err
	}
	in, ok := f.intents[intentRef]
	if !ok {
		return CaptureReceipt{}, &Error{Op: "capture", Err: fmt.Errorf("unknown intent %s", intentRef)}
	}
	if in.Status != IntentRequiresCapture && in.Status != IntentCaptured {
		return CaptureReceipt{}, &Error{Op: "capture", Err: fmt.Errorf("intent %s is %s", intentRef, in.Status)}
	}
	in.Status = IntentCaptured
	return CaptureReceipt{
		Ref:       "ch_" + intentRef,
		IntentRef: intentRef,
		Amount:    in.Amount,
	}, nil
}

func (f *Fake) CancelAuthorization(_ context.Context, intentRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOnce("cancel authorization"); err != nil {
		return err
	}
	in, ok := f.intents[intentRef]
	if !ok {
		return &Error{Op: "cancel authorization", Err: fmt.Errorf("unknown intent %s", intentRef)}
	}
	if in.Status == IntentCaptured {
		return &Error{Op: "cancel authorization", Err: errors.New("already captured")}
	}
	in.Status = IntentCanceled
	return nil
}

func (f *Fake) Refund(_ context.Context, intentRef string, amount float64) (RefundReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOnce("refund"); err != nil {
		return RefundReceipt{}, err
	}
	in, ok := f.intents[intentRef]
	if !ok {
		return RefundReceipt{}, &Error{Op: "refund", Err: fmt.Errorf("unknown intent %s", intentRef)}
	}
	if in.Status != IntentCaptured {
		return RefundReceipt{}, &Error{Op: "refund", Err: fmt.Errorf("intent %s not captured", intentRef)}
	}
	if amount <= 0 || amount > in.Amount {
		amount = in.Amount
	}
	f.seq++
	return RefundReceipt{
		Ref:       fmt.Sprintf("re_fake_%06d", f.seq),
		IntentRef: intentRef,
		Amount:    amount,
	}, nil
}

// MarkNotCapturable flips an intent back to requires_payment, simulating a
// payer who never completed the payment step.
func (f *Fake) MarkNotCapturable(intentRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.intents[intentRef]; ok {
		in.Status = IntentRequiresPayment
	}
}
