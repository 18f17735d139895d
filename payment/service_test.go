package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"escrowflow/account"
	"escrowflow/config"
	"escrowflow/contract"
	"escrowflow/fraud"
	"escrowflow/logging"
	"escrowflow/notify"
	"escrowflow/processor"
)

const (
	testClientID     = "client-1"
	testEnterpriseID = "enterprise-1"
)

var baseTime = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

type testEnv struct {
	svc      *Service
	repo     *fakeRepo
	engine   *fakeEngine
	proc     *processor.Fake
	accounts *fakeAccounts
	ms       *fakeCompleter
	notifier *fakeNotifier
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newFakeRepo(),
		engine:   &fakeEngine{},
		proc:     processor.NewFake(),
		accounts: &fakeAccounts{profile: account.Profile{UserID: testEnterpriseID, ProcessorAccountRef: "acct_1", ChargesEnabled: true, PayoutsEnabled: true}},
		ms:       &fakeCompleter{},
		notifier: &fakeNotifier{},
	}
	contracts := &fakeContracts{c: contract.Contract{
		ID:           "contract-1",
		ClientID:     testClientID,
		EnterpriseID: testEnterpriseID,
		TotalPreTax:  10000,
		TaxRate:      0,
		Total:        10000,
		Status:       contract.StatusActive,
	}}
	env.svc = NewService(
		&fakePool{}, env.repo, contracts, env.engine, env.ms, env.accounts,
		env.proc, env.notifier, config.Default().Payment, logging.NewNop(),
	)
	env.svc.now = func() time.Time { return baseTime }
	return env
}

func TestCreatePersistsPendingWithDueDate(t *testing.T) {
	env := newTestEnv()

	p, err := env.svc.Create(context.Background(), CreateParams{
		ContractID: "contract-1",
		Type:       TypeMilestone,
		PreTax:     1000,
		TaxRate:    0.2,
		ActorID:    testClientID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if p.Status != StatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
	if p.Tax != 200 || p.Total != 1200 {
		t.Errorf("tax/total = %.2f/%.2f, want 200/1200", p.Tax, p.Total)
	}
	if p.IntentRef == "" {
		t.Errorf("expected a processor authorization reference")
	}
	wantDue := baseTime.Add(7 * 24 * time.Hour)
	if p.DueDate == nil || !p.DueDate.Equal(wantDue) {
		t.Errorf("due date = %v, want %v", p.DueDate, wantDue)
	}
	if len(p.History) != 1 || p.History[0].Status != StatusPending {
		t.Errorf("expected a single pending history entry, got %+v", p.History)
	}
	if len(env.notifier.sent) != 1 || env.notifier.sent[0].Type != "payment.created" {
		t.Errorf("expected payment.created notification, got %+v", env.notifier.sent)
	}
}

func TestCreateFraudBlockedLeavesNoPayment(t *testing.T) {
	env := newTestEnv()
	env.engine.result = fraud.Result{
		TotalScore:     100,
		RiskLevel:      fraud.RiskCritical,
		RulesTriggered: []string{"contract_overrun"},
		ShouldBlock:    true,
	}

	_, err := env.svc.Create(context.Background(), CreateParams{
		ContractID: "contract-1",
		Type:       TypeMilestone,
		PreTax:     800,
		ActorID:    testClientID,
	})

	if !IsFraudBlocked(err) {
		t.Fatalf("expected FraudBlockedError, got %v", err)
	}
	var fb *FraudBlockedError
	errors.As(err, &fb)
	if len(fb.Rules) != 1 || fb.Rules[0] != "contract_overrun" {
		t.Errorf("blocked error carries rule codes, got %v", fb.Rules)
	}
	if env.repo.inserted != 0 {
		t.Errorf("a blocked creation must not persist a payment")
	}
}

func TestCreateFlaggedDepositStillCreated(t *testing.T) {
	// A 40% deposit scores on the ratio rule but stays under the block and
	// ledger caps: created, flagged for review.
	env := newTestEnv()
	env.engine.result = fraud.Result{
		TotalScore:     40,
		RiskLevel:      fraud.RiskMedium,
		RulesTriggered: []string{"deposit_ratio"},
		RequiresReview: true,
	}

	p, err := env.svc.Create(context.Background(), CreateParams{
		ContractID: "contract-1",
		Type:       TypeDeposit,
		PreTax:     4000,
		ActorID:    testClientID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !p.RequiresReview {
		t.Errorf("expected the payment to be flagged for manual review")
	}
	if p.FraudScore != 40 {
		t.Errorf("fraud score = %d, want 40", p.FraudScore)
	}
}

func TestCreateEnforcesContractCeiling(t *testing.T) {
	env := newTestEnv()
	env.repo.settledSum = 9800

	_, err := env.svc.Create(context.Background(), CreateParams{
		ContractID: "contract-1",
		Type:       TypeMilestone,
		PreTax:     800,
		ActorID:    testClientID,
	})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("9800 + 800 on a 10000 contract breaks the 105%% ceiling, got %v", err)
	}
	if env.repo.inserted != 0 {
		t.Errorf("no payment may be persisted past the ceiling")
	}
}

func TestCreateAllowsSlightOverrun(t *testing.T) {
	env := newTestEnv()
	env.repo.settledSum = 9800

	_, err := env.svc.Create(context.Background(), CreateParams{
		ContractID: "contract-1",
		Type:       TypeMilestone,
		PreTax:     500,
		ActorID:    testClientID,
	})
	if err != nil {
		t.Fatalf("10300 on a 10000 contract is inside the 105%% ceiling: %v", err)
	}
}

func TestCreateEnforcesDepositCap(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.Create(context.Background(), CreateParams{
		ContractID: "contract-1",
		Type:       TypeDeposit,
		PreTax:     5600,
		ActorID:    testClientID,
	})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("a 56%% deposit exceeds the hard cap, got %v", err)
	}
}

func TestCreateEnforcesSinglePaymentCap(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.Create(context.Background(), CreateParams{
		ContractID: "contract-1",
		Type:       TypeFinal,
		PreTax:     60000,
		ActorID:    testClientID,
	})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected single payment cap violation, got %v", err)
	}
}

func captureReady(t *testing.T, env *testEnv) Payment {
	t.Helper()
	p, err := env.svc.Create(context.Background(), CreateParams{
		ContractID:  "contract-1",
		MilestoneID: "ms-1",
		Type:        TypeMilestone,
		PreTax:      2000,
		ActorID:     testClientID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return p
}

func TestConfirmCaptureIdempotent(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)

	first, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1")
	if err != nil {
		t.Fatalf("first capture failed: %v", err)
	}
	if first.Status != StatusHeld {
		t.Fatalf("status = %s, want held", first.Status)
	}
	wantHeldUntil := baseTime.Add(7 * 24 * time.Hour)
	if first.HeldUntil == nil || !first.HeldUntil.Equal(wantHeldUntil) {
		t.Errorf("held until = %v, want %v", first.HeldUntil, wantHeldUntil)
	}

	second, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1")
	if err != nil {
		t.Fatalf("replayed capture must be a no-op, got %v", err)
	}
	if second.Status != StatusHeld {
		t.Errorf("replay status = %s, want held", second.Status)
	}

	held := 0
	for _, h := range env.repo.p.History {
		if h.Status == StatusHeld {
			held++
		}
	}
	if held != 1 {
		t.Errorf("history has %d held entries, want exactly 1", held)
	}
	if env.ms.completed != 1 {
		t.Errorf("milestone completed %d times, want exactly 1", env.ms.completed)
	}
}

func TestConfirmCaptureRejectsUncapturableIntent(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)
	env.proc.MarkNotCapturable(p.IntentRef)

	_, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1")
	if !errors.Is(err, ErrNotCapturable) {
		t.Fatalf("expected ErrNotCapturable, got %v", err)
	}
	if env.repo.p.Status != StatusPending {
		t.Errorf("a failed capture must leave the payment pending, got %s", env.repo.p.Status)
	}
}

func TestReleaseRespectsEscrowWindow(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)
	if _, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	// Day 3: escrow still active.
	env.svc.now = func() time.Time { return baseTime.Add(3 * 24 * time.Hour) }
	_, err := env.svc.Release(context.Background(), p.ID, testClientID, false)
	if !errors.Is(err, ErrEscrowActive) {
		t.Fatalf("day-3 release must fail with EscrowActive, got %v", err)
	}

	// Day 8: the window elapsed.
	env.svc.now = func() time.Time { return baseTime.Add(8 * 24 * time.Hour) }
	got, err := env.svc.Release(context.Background(), p.ID, testClientID, false)
	if err != nil {
		t.Fatalf("day-8 release failed: %v", err)
	}
	if got.Status != StatusReleased {
		t.Errorf("status = %s, want released", got.Status)
	}
	if got.ReleasedBy != testClientID {
		t.Errorf("released_by = %s, want %s", got.ReleasedBy, testClientID)
	}
}

func TestReleaseForceSkipsEscrowWindow(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)
	if _, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	got, err := env.svc.Release(context.Background(), p.ID, testClientID, true)
	if err != nil {
		t.Fatalf("forced release failed: %v", err)
	}
	if got.Status != StatusReleased {
		t.Errorf("status = %s, want released", got.Status)
	}
}

func TestReleaseBlockedByOpenDispute(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)
	if _, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	env.repo.openDispute = true

	_, err := env.svc.Release(context.Background(), p.ID, testClientID, true)
	if !errors.Is(err, ErrDisputeActive) {
		t.Fatalf("expected DisputeActive, got %v", err)
	}
}

func TestReleaseBlockedByFrozenStatus(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)
	if _, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	// The dispute manager froze the payment atomically at open time.
	env.repo.p.Status = StatusDisputed

	_, err := env.svc.Release(context.Background(), p.ID, testClientID, true)
	if !errors.Is(err, ErrDisputeActive) {
		t.Fatalf("expected DisputeActive for a frozen payment, got %v", err)
	}
}

func TestReleaseRequiresHeld(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)

	_, err := env.svc.Release(context.Background(), p.ID, testClientID, false)
	if !errors.Is(err, ErrNotHeld) {
		t.Fatalf("releasing a pending payment must fail with NotHeld, got %v", err)
	}
}

func TestRefundPartialKeepsStatus(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)
	if _, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	got, err := env.svc.Refund(context.Background(), p.ID, testClientID, "partial rework credit", 500)
	if err != nil {
		t.Fatalf("partial refund failed: %v", err)
	}
	if got.Status != StatusHeld {
		t.Errorf("partial refund keeps held, got %s", got.Status)
	}
	if got.RefundedTotal != 500 {
		t.Errorf("refunded total = %.2f, want 500", got.RefundedTotal)
	}

	got, err = env.svc.Refund(context.Background(), p.ID, testClientID, "remainder", 0)
	if err != nil {
		t.Fatalf("full refund failed: %v", err)
	}
	if got.Status != StatusRefunded {
		t.Errorf("full refund flips to refunded, got %s", got.Status)
	}
	if got.RefundedTotal != got.Total {
		t.Errorf("refunded total = %.2f, want %.2f", got.RefundedTotal, got.Total)
	}
}

func TestRefundRequiresCustody(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)

	_, err := env.svc.Refund(context.Background(), p.ID, testClientID, "change of mind", 0)
	if !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("pending payments hold no funds to refund, got %v", err)
	}
}

func TestHandleWebhookConsumesEventOnce(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)

	ev := processor.Event{
		ID:        "evt-auth-1",
		Type:      processor.EventAuthorizationSucceeded,
		IntentRef: p.IntentRef,
	}
	if err := env.svc.HandleWebhook(context.Background(), ev); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if env.repo.p.Status != StatusProcessing {
		t.Fatalf("status = %s, want processing", env.repo.p.Status)
	}

	if err := env.svc.HandleWebhook(context.Background(), ev); err != nil {
		t.Fatalf("replayed webhook must be a no-op, got %v", err)
	}
	processing := 0
	for _, h := range env.repo.p.History {
		if h.Status == StatusProcessing {
			processing++
		}
	}
	if processing != 1 {
		t.Errorf("history has %d processing entries after replay, want 1", processing)
	}
}

func TestHandleWebhookCaptureReplayIsNoOp(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)

	ev := processor.Event{
		ID:        "evt-cap-1",
		Type:      processor.EventCaptureSucceeded,
		IntentRef: p.IntentRef,
	}
	if err := env.svc.HandleWebhook(context.Background(), ev); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if env.repo.p.Status != StatusHeld {
		t.Fatalf("status = %s, want held", env.repo.p.Status)
	}

	if err := env.svc.HandleWebhook(context.Background(), ev); err != nil {
		t.Fatalf("replayed webhook must be a no-op, got %v", err)
	}
	held := 0
	for _, h := range env.repo.p.History {
		if h.Status == StatusHeld {
			held++
		}
	}
	if held != 1 {
		t.Errorf("history has %d held entries after replay, want 1", held)
	}
}

func TestHandleWebhookCaptureRetriesAfterFailure(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)

	ev := processor.Event{
		ID:        "evt-cap-1",
		Type:      processor.EventCaptureSucceeded,
		IntentRef: p.IntentRef,
	}
	env.proc.FailNext = true
	if err := env.svc.HandleWebhook(context.Background(), ev); err == nil {
		t.Fatal("expected the transient processor failure to surface")
	}
	if env.repo.p.Status == StatusHeld {
		t.Fatalf("payment must not be held after a failed capture, got %s", env.repo.p.Status)
	}

	// The processor redelivers the same event id; the confirmation must not
	// be swallowed as a duplicate.
	if err := env.svc.HandleWebhook(context.Background(), ev); err != nil {
		t.Fatalf("redelivered event failed: %v", err)
	}
	if env.repo.p.Status != StatusHeld {
		t.Errorf("status = %s, want held after redelivery", env.repo.p.Status)
	}
	if env.ms.completed != 1 {
		t.Errorf("milestone completed %d times, want exactly 1", env.ms.completed)
	}
}

func TestHandleWebhookFailureCancels(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)

	err := env.svc.HandleWebhook(context.Background(), processor.Event{
		ID:        "evt-fail-1",
		Type:      processor.EventAuthorizationFailed,
		IntentRef: p.IntentRef,
		Reason:    "card declined",
	})
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if env.repo.p.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", env.repo.p.Status)
	}
}

func TestReleaseDueSweepsEligiblePayments(t *testing.T) {
	env := newTestEnv()
	p := captureReady(t, env)
	if _, err := env.svc.ConfirmCapture(context.Background(), p.ID, "evt-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	env.repo.dueIDs = []string{p.ID}
	env.svc.now = func() time.Time { return baseTime.Add(8 * 24 * time.Hour) }

	released, err := env.svc.ReleaseDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}
	if env.repo.p.Status != StatusReleased {
		t.Errorf("status = %s, want released", env.repo.p.Status)
	}
}

// fakeRepo keeps a single payment in memory and mirrors the conditional
// update semantics of the real repository.
type fakeRepo struct {
	p           Payment
	inserted    int
	settledSum  float64
	openDispute bool
	keys        map[string]bool
	dueIDs      []string
	seq         int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{keys: map[string]bool{}}
}

func (f *fakeRepo) Insert(_ context.Context, _ pgx.Tx, params InsertParams) (Payment, error) {
	f.inserted++
	f.seq++
	due := params.DueDate
	f.p = Payment{
		ID:             "pay-1",
		Reference:      params.Reference,
		ContractID:     params.ContractID,
		MilestoneID:    params.MilestoneID,
		Type:           params.Type,
		PreTax:         params.PreTax,
		Tax:            params.Tax,
		Total:          params.Total,
		IntentRef:      params.IntentRef,
		PayerID:        params.PayerID,
		PayeeID:        params.PayeeID,
		Status:         StatusPending,
		DueDate:        &due,
		FraudScore:     params.FraudScore,
		FraudRules:     params.FraudRules,
		RequiresReview: params.RequiresReview,
		History: []StatusChange{{
			Status:    StatusPending,
			ChangedAt: params.Now,
			ChangedBy: params.CreatedBy,
			Reason:    "payment created",
		}},
		CreatedAt: params.Now,
	}
	return f.p, nil
}

func (f *fakeRepo) get(id string) (Payment, error) {
	if id != f.p.ID {
		return Payment{}, ErrNotFound
	}
	return f.p, nil
}

func (f *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Payment, error) {
	return f.get(id)
}

func (f *fakeRepo) Get(_ context.Context, _ pgx.Tx, id string) (Payment, error) {
	return f.get(id)
}

func (f *fakeRepo) GetByIntentRefForUpdate(_ context.Context, _ pgx.Tx, intentRef string) (Payment, error) {
	if intentRef != f.p.IntentRef {
		return Payment{}, ErrNotFound
	}
	return f.p, nil
}

func (f *fakeRepo) append(status Status, at time.Time, by, reason string) {
	f.p.History = append(f.p.History, StatusChange{Status: status, ChangedAt: at, ChangedBy: by, Reason: reason})
}

func (f *fakeRepo) Transition(_ context.Context, _ pgx.Tx, id string, from, to Status, at time.Time, by, reason string) error {
	if f.p.ID != id || f.p.Status != from {
		return ErrStatusConflict
	}
	if !CanTransition(from, to) {
		return ErrStatusConflict
	}
	f.p.Status = to
	f.append(to, at, by, reason)
	return nil
}

func (f *fakeRepo) MarkHeld(_ context.Context, _ pgx.Tx, id string, from Status, captureRef string, heldUntil, at time.Time, by, reason string) error {
	if f.p.ID != id || f.p.Status != from {
		return ErrStatusConflict
	}
	f.p.Status = StatusHeld
	f.p.CaptureRef = captureRef
	f.p.HeldUntil = &heldUntil
	f.p.PaidAt = &at
	f.append(StatusHeld, at, by, reason)
	return nil
}

func (f *fakeRepo) MarkReleased(_ context.Context, _ pgx.Tx, id string, at time.Time, by, reason string) error {
	if f.p.ID != id || f.p.Status != StatusHeld {
		return ErrStatusConflict
	}
	f.p.Status = StatusReleased
	f.p.ReleasedAt = &at
	f.p.ReleasedBy = by
	f.append(StatusReleased, at, by, reason)
	return nil
}

func (f *fakeRepo) RecordRefund(_ context.Context, _ pgx.Tx, id string, from Status, amount float64, full bool, at time.Time, by, reason string) error {
	if f.p.ID != id || f.p.Status != from {
		return ErrStatusConflict
	}
	f.p.RefundedTotal += amount
	if full {
		f.p.Status = StatusRefunded
	}
	f.append(f.p.Status, at, by, reason)
	return nil
}

func (f *fakeRepo) SettledSum(context.Context, pgx.Tx, string) (float64, error) {
	return f.settledSum, nil
}

func (f *fakeRepo) HasOpenDispute(context.Context, pgx.Tx, string) (bool, error) {
	return f.openDispute, nil
}

func (f *fakeRepo) HasIdempotencyKey(_ context.Context, _ pgx.Tx, key string) (bool, error) {
	return f.keys[key], nil
}

func (f *fakeRepo) InsertIdempotencyKey(_ context.Context, _ pgx.Tx, key string) error {
	if f.keys[key] {
		return ErrDuplicateIdempotencyKey
	}
	f.keys[key] = true
	return nil
}

func (f *fakeRepo) DueForRelease(context.Context, pgx.Tx, time.Time, int) ([]string, error) {
	return f.dueIDs, nil
}

type fakeContracts struct {
	c contract.Contract
}

func (f *fakeContracts) GetForUpdate(context.Context, pgx.Tx, string) (contract.Contract, error) {
	return f.c, nil
}

type fakeEngine struct {
	result fraud.Result
	err    error
}

func (f *fakeEngine) Check(context.Context, fraud.Request) (fraud.Result, error) {
	return f.result, f.err
}

type fakeCompleter struct {
	completed int
}

func (f *fakeCompleter) MarkCompleted(context.Context, pgx.Tx, string) error {
	f.completed++
	return nil
}

type fakeAccounts struct {
	profile       account.Profile
	receivedDelta float64
	pendingDelta  float64
}

func (f *fakeAccounts) GetByUserID(context.Context, string) (account.Profile, error) {
	return f.profile, nil
}

func (f *fakeAccounts) ApplySettlement(_ context.Context, _ pgx.Tx, _ string, receivedDelta, pendingDelta float64) error {
	f.receivedDelta += receivedDelta
	f.pendingDelta += pendingDelta
	return nil
}

type fakeNotifier struct {
	sent []notify.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, _ pgx.Tx, n notify.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
