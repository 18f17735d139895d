package milestone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"escrowflow/contract"
	"escrowflow/logging"
	"escrowflow/notify"
	"escrowflow/proof"
)

const (
	testClientID     = "client-1"
	testEnterpriseID = "enterprise-1"
)

func newTestService(repo *fakeRepo, payments *fakePayments) (*Service, *fakePool, *fakeNotifier) {
	pool := &fakePool{}
	notifier := &fakeNotifier{}
	contracts := &fakeContracts{c: contract.Contract{
		ID:           "contract-1",
		ClientID:     testClientID,
		EnterpriseID: testEnterpriseID,
		TotalPreTax:  10000,
		TaxRate:      0.2,
		Total:        12000,
		Status:       contract.StatusActive,
	}}
	svc := NewService(pool, repo, contracts, payments, notifier, logging.NewNop())
	svc.now = func() time.Time {
		return time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	}
	return svc, pool, notifier
}

func TestSubmitRecordsVerificationWithoutBlocking(t *testing.T) {
	repo := &fakeRepo{m: Milestone{
		ID:         "ms-1",
		ContractID: "contract-1",
		Status:     StatusInProgress,
		Total:      6000,
		PreTax:     5000,
	}}
	svc, pool, notifier := newTestService(repo, &fakePayments{})

	got, err := svc.Submit(context.Background(), SubmitParams{
		MilestoneID: "ms-1",
		Proofs:      []proof.Proof{{Type: proof.TypePhoto, Name: "one.jpg", FileRef: "f1"}},
		Report:      "done",
		ActorID:     testEnterpriseID,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if got.Status != StatusSubmitted {
		t.Errorf("status = %s, want submitted", got.Status)
	}
	if repo.submittedLabel == RiskLow {
		t.Errorf("thin evidence on a 6000 milestone must raise the risk label")
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "milestone.submitted" {
		t.Errorf("expected one milestone.submitted notification, got %+v", notifier.sent)
	}
	if notifier.sent[0].RecipientID != testClientID {
		t.Errorf("submission notifies the client, got %s", notifier.sent[0].RecipientID)
	}
}

func TestSubmitRejectsWrongActor(t *testing.T) {
	repo := &fakeRepo{m: Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusInProgress}}
	svc, pool, _ := newTestService(repo, &fakePayments{})

	_, err := svc.Submit(context.Background(), SubmitParams{
		MilestoneID: "ms-1",
		ActorID:     testClientID,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback on unauthorized submit")
	}
}

func TestSubmitRequiresSubmittableState(t *testing.T) {
	repo := &fakeRepo{m: Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusValidated}}
	svc, _, _ := newTestService(repo, &fakePayments{})

	_, err := svc.Submit(context.Background(), SubmitParams{
		MilestoneID: "ms-1",
		ActorID:     testEnterpriseID,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestValidateApprovedOpensPayment(t *testing.T) {
	repo := &fakeRepo{m: Milestone{
		ID:         "ms-1",
		ContractID: "contract-1",
		Status:     StatusSubmitted,
		PreTax:     5000,
	}}
	payments := &fakePayments{paymentID: "pay-1"}
	svc, pool, notifier := newTestService(repo, payments)

	got, err := svc.Validate(context.Background(), ValidateParams{
		MilestoneID: "ms-1",
		Approved:    true,
		ActorID:     testClientID,
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if got.Status != StatusValidated {
		t.Errorf("status = %s, want validated", got.Status)
	}
	if payments.calls != 1 {
		t.Errorf("expected exactly one payment creation, got %d", payments.calls)
	}
	if payments.lastPreTax != 5000 || payments.lastTaxRate != 0.2 {
		t.Errorf("payment opened with %v at %v, want 5000 at 0.2", payments.lastPreTax, payments.lastTaxRate)
	}
	if !pool.tx.committed {
		t.Errorf("validation must commit before the ledger call")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "milestone.validated" {
		t.Errorf("expected milestone.validated notification, got %+v", notifier.sent)
	}
}

func TestValidateRejectionRequiresReason(t *testing.T) {
	repo := &fakeRepo{m: Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusSubmitted}}
	svc, _, _ := newTestService(repo, &fakePayments{})

	_, err := svc.Validate(context.Background(), ValidateParams{
		MilestoneID: "ms-1",
		Approved:    false,
		ActorID:     testClientID,
	})
	if err == nil {
		t.Fatalf("expected error for rejection without reason")
	}
}

func TestValidateRejectedSendsBackForRework(t *testing.T) {
	repo := &fakeRepo{m: Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusSubmitted}}
	payments := &fakePayments{}
	svc, _, notifier := newTestService(repo, payments)

	got, err := svc.Validate(context.Background(), ValidateParams{
		MilestoneID: "ms-1",
		Approved:    false,
		Reason:      "wall finish below spec",
		ActorID:     testClientID,
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	if payments.calls != 0 {
		t.Errorf("rejection must not open a payment")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "milestone.rejected" {
		t.Errorf("expected milestone.rejected notification, got %+v", notifier.sent)
	}
}

func TestValidateSecondCallerLoses(t *testing.T) {
	// The first caller already moved the row to validated.
	repo := &fakeRepo{m: Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusValidated}}
	payments := &fakePayments{}
	svc, _, _ := newTestService(repo, payments)

	_, err := svc.Validate(context.Background(), ValidateParams{
		MilestoneID: "ms-1",
		Approved:    true,
		ActorID:     testClientID,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for the losing caller, got %v", err)
	}
	if payments.calls != 0 {
		t.Errorf("the losing caller must not open a second payment")
	}
}

func TestValidateConditionalUpdateConflict(t *testing.T) {
	// The row looked submitted but another transaction won the update race.
	repo := &fakeRepo{
		m:               Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusSubmitted},
		markValidateErr: ErrStatusConflict,
	}
	payments := &fakePayments{}
	svc, pool, _ := newTestService(repo, payments)

	_, err := svc.Validate(context.Background(), ValidateParams{
		MilestoneID: "ms-1",
		Approved:    true,
		ActorID:     testClientID,
	})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	if payments.calls != 0 {
		t.Errorf("a lost race must not open a payment")
	}
	if pool.tx.committed {
		t.Errorf("expected rollback on conflict")
	}
}

func TestValidateUnauthorizedActor(t *testing.T) {
	repo := &fakeRepo{m: Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusSubmitted}}
	svc, _, _ := newTestService(repo, &fakePayments{})

	_, err := svc.Validate(context.Background(), ValidateParams{
		MilestoneID: "ms-1",
		Approved:    true,
		ActorID:     testEnterpriseID,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("only the client validates; got %v", err)
	}
}

func TestValidatePaymentFailureKeepsValidation(t *testing.T) {
	repo := &fakeRepo{m: Milestone{ID: "ms-1", ContractID: "contract-1", Status: StatusSubmitted, PreTax: 5000}}
	payments := &fakePayments{err: errors.New("payment blocked")}
	svc, _, _ := newTestService(repo, payments)

	got, err := svc.Validate(context.Background(), ValidateParams{
		MilestoneID: "ms-1",
		Approved:    true,
		ActorID:     testClientID,
	})
	if err == nil {
		t.Fatalf("expected the ledger failure to surface")
	}
	if got.Status != StatusValidated {
		t.Errorf("validation must stand even when the ledger call fails, got %s", got.Status)
	}
}

type fakeRepo struct {
	m               Milestone
	markValidateErr error
	submittedLabel  RiskLabel
}

func (f *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Milestone, error) {
	if id != f.m.ID {
		return Milestone{}, ErrNotFound
	}
	return f.m, nil
}

func (f *fakeRepo) Get(_ context.Context, _ pgx.Tx, id string) (Milestone, error) {
	if id != f.m.ID {
		return Milestone{}, ErrNotFound
	}
	return f.m, nil
}

func (f *fakeRepo) MarkStarted(_ context.Context, _ pgx.Tx, id string) error {
	f.m.Status = StatusInProgress
	return nil
}

func (f *fakeRepo) MarkSubmitted(_ context.Context, _ pgx.Tx, id string, from Status, proofs []proof.Proof, report string, v Verification, label RiskLabel) error {
	f.m.Status = StatusSubmitted
	f.m.Proofs = proofs
	f.m.Report = report
	f.m.Verification = &v
	f.m.RiskLevel = label
	f.submittedLabel = label
	return nil
}

func (f *fakeRepo) MarkValidated(_ context.Context, _ pgx.Tx, id, by string) error {
	if f.markValidateErr != nil {
		return f.markValidateErr
	}
	f.m.Status = StatusValidated
	f.m.ValidatedBy = by
	return nil
}

func (f *fakeRepo) MarkRejected(_ context.Context, _ pgx.Tx, id, by, reason string) error {
	f.m.Status = StatusRejected
	f.m.RejectionReason = reason
	return nil
}

func (f *fakeRepo) AppendProofs(_ context.Context, _ pgx.Tx, id string, proofs []proof.Proof) error {
	f.m.Proofs = append(f.m.Proofs, proofs...)
	return nil
}

type fakeContracts struct {
	c contract.Contract
}

func (f *fakeContracts) Get(context.Context, pgx.Tx, string) (contract.Contract, error) {
	return f.c, nil
}

type fakePayments struct {
	paymentID   string
	err         error
	calls       int
	lastPreTax  float64
	lastTaxRate float64
}

func (f *fakePayments) CreateForMilestone(_ context.Context, contractID, milestoneID string, preTax, taxRate float64, actorID string) (string, error) {
	f.calls++
	f.lastPreTax = preTax
	f.lastTaxRate = taxRate
	if f.err != nil {
		return "", f.err
	}
	return f.paymentID, nil
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
