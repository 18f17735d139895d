package milestone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"escrowflow/contract"
	"escrowflow/logging"
	"escrowflow/notify"
	"escrowflow/proof"
)

var (
	// ErrUnauthorized is returned when the actor is not the party allowed to
	// perform the operation.
	ErrUnauthorized = errors.New("milestone: actor not allowed")
	// ErrInvalidState is returned when the operation is not permitted from
	// the milestone's current status.
	ErrInvalidState = errors.New("milestone: invalid state for operation")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Milestone, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (Milestone, error)
	MarkStarted(ctx context.Context, tx pgx.Tx, id string) error
	MarkSubmitted(ctx context.Context, tx pgx.Tx, id string, from Status, proofs []proof.Proof, report string, v Verification, label RiskLabel) error
	MarkValidated(ctx context.Context, tx pgx.Tx, id, validatedBy string) error
	MarkRejected(ctx context.Context, tx pgx.Tx, id, rejectedBy, reason string) error
	AppendProofs(ctx context.Context, tx pgx.Tx, id string, proofs []proof.Proof) error
}

// ContractReader resolves the contract a milestone belongs to.
type ContractReader interface {
	Get(ctx context.Context, tx pgx.Tx, id string) (contract.Contract, error)
}

// PaymentCreator opens the escrow payment derived from a validated milestone.
// The ledger runs its own transaction: the validation commit and the payment
// creation are deliberately separate so a fraud block never undoes an already
// won validation.
type PaymentCreator interface {
	CreateForMilestone(ctx context.Context, contractID, milestoneID string, preTax, taxRate float64, actorID string) (string, error)
}

type Service struct {
	pool      TxBeginner
	repo      Store
	contracts ContractReader
	payments  PaymentCreator
	notifier  notify.Notifier
	log       *logging.Logger

	now func() time.Time
}

func NewService(pool TxBeginner, repo Store, contracts ContractReader, payments PaymentCreator, notifier notify.Notifier, log *logging.Logger) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:      pool,
		repo:      repo,
		contracts: contracts,
		payments:  payments,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// Start moves a pending milestone to in_progress. Only the enterprise doing
// the work may start it.
func (s *Service) Start(ctx context.Context, milestoneID, actorID string) (Milestone, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Milestone{}, fmt.Errorf("milestone: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := s.repo.GetForUpdate(ctx, tx, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	c, err := s.contracts.Get(ctx, tx, m.ContractID)
	if err != nil {
		return Milestone{}, err
	}
	if actorID != c.EnterpriseID {
		return Milestone{}, ErrUnauthorized
	}
	if m.Status != StatusPending {
		return Milestone{}, fmt.Errorf("%w: cannot start from %s", ErrInvalidState, m.Status)
	}
	if err := s.repo.MarkStarted(ctx, tx, milestoneID); err != nil {
		return Milestone{}, err
	}

	m, err = s.repo.Get(ctx, tx, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Milestone{}, fmt.Errorf("milestone: commit: %w", err)
	}
	return m, nil
}

type SubmitParams struct {
	MilestoneID string
	Proofs      []proof.Proof
	Report      string
	ActorID     string
}

// Submit records the enterprise's completion claim. The automatic
// verification pass labels the submission but never blocks it.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Milestone, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Milestone{}, fmt.Errorf("milestone: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := s.repo.GetForUpdate(ctx, tx, params.MilestoneID)
	if err != nil {
		return Milestone{}, err
	}
	c, err := s.contracts.Get(ctx, tx, m.ContractID)
	if err != nil {
		return Milestone{}, err
	}
	if params.ActorID != c.EnterpriseID {
		return Milestone{}, ErrUnauthorized
	}
	if !CanTransition(m.Status, StatusSubmitted) {
		return Milestone{}, fmt.Errorf("%w: cannot submit from %s", ErrInvalidState, m.Status)
	}

	verification, label := verifySubmission(m, params.Proofs, params.Report, s.now().UTC())
	if label != RiskLow {
		s.log.Warn("milestone submission flagged",
			"milestone_id", m.ID,
			"contract_id", m.ContractID,
			"score", verification.Score,
			"risk_label", string(label),
			"alerts", verification.Alerts,
		)
	}

	if err := s.repo.MarkSubmitted(ctx, tx, m.ID, m.Status, params.Proofs, params.Report, verification, label); err != nil {
		return Milestone{}, err
	}

	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "milestone.submitted",
		RecipientID: c.ClientID,
		Title:       "Milestone submitted",
		Message:     fmt.Sprintf("%q was submitted for validation", m.Designation),
		Data:        map[string]any{"milestone_id": m.ID, "contract_id": c.ID, "risk_label": string(label)},
	})
	if err != nil {
		return Milestone{}, err
	}

	m, err = s.repo.Get(ctx, tx, m.ID)
	if err != nil {
		return Milestone{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Milestone{}, fmt.Errorf("milestone: commit: %w", err)
	}
	return m, nil
}

type ValidateParams struct {
	MilestoneID string
	Approved    bool
	Reason      string
	ActorID     string
}

// Validate is the client's verdict on a submitted milestone. Approval opens
// the escrow payment for the milestone amount; the milestone reaches
// completed only when that payment is captured into custody. Rejection
// requires a reason and sends the milestone back for rework.
func (s *Service) Validate(ctx context.Context, params ValidateParams) (Milestone, error) {
	if !params.Approved && params.Reason == "" {
		return Milestone{}, fmt.Errorf("milestone: rejection requires a reason")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Milestone{}, fmt.Errorf("milestone: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := s.repo.GetForUpdate(ctx, tx, params.MilestoneID)
	if err != nil {
		return Milestone{}, err
	}
	c, err := s.contracts.Get(ctx, tx, m.ContractID)
	if err != nil {
		return Milestone{}, err
	}
	if params.ActorID != c.ClientID {
		return Milestone{}, ErrUnauthorized
	}
	if m.Status != StatusSubmitted {
		return Milestone{}, fmt.Errorf("%w: cannot validate from %s", ErrInvalidState, m.Status)
	}

	if params.Approved {
		if err := s.repo.MarkValidated(ctx, tx, m.ID, params.ActorID); err != nil {
			return Milestone{}, err
		}
	} else {
		if err := s.repo.MarkRejected(ctx, tx, m.ID, params.ActorID, params.Reason); err != nil {
			return Milestone{}, err
		}
	}

	notification := notify.Notification{
		Type:        "milestone.validated",
		RecipientID: c.EnterpriseID,
		Title:       "Milestone validated",
		Message:     fmt.Sprintf("%q was approved, payment is being set up", m.Designation),
		Data:        map[string]any{"milestone_id": m.ID, "contract_id": c.ID},
	}
	if !params.Approved {
		notification.Type = "milestone.rejected"
		notification.Title = "Milestone rejected"
		notification.Message = fmt.Sprintf("%q was rejected: %s", m.Designation, params.Reason)
	}
	if err := s.notifier.Notify(ctx, tx, notification); err != nil {
		return Milestone{}, err
	}

	m, err = s.repo.Get(ctx, tx, m.ID)
	if err != nil {
		return Milestone{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Milestone{}, fmt.Errorf("milestone: commit: %w", err)
	}

	if params.Approved {
		paymentID, err := s.payments.CreateForMilestone(ctx, c.ID, m.ID, m.PreTax, c.TaxRate, params.ActorID)
		if err != nil {
			// The validation stands; the payment can be retried once the
			// block or limit is cleared.
			s.log.Error("milestone payment creation failed",
				"milestone_id", m.ID,
				"contract_id", c.ID,
				"error", err,
			)
			return m, fmt.Errorf("milestone: create payment: %w", err)
		}
		s.log.Info("milestone payment opened",
			"milestone_id", m.ID,
			"payment_id", paymentID,
		)
	}
	return m, nil
}

// AddProof attaches additional evidence to a milestone that has not yet
// settled.
func (s *Service) AddProof(ctx context.Context, milestoneID, actorID string, proofs []proof.Proof) (Milestone, error) {
	if len(proofs) == 0 {
		return Milestone{}, fmt.Errorf("milestone: no proofs given")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Milestone{}, fmt.Errorf("milestone: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := s.repo.GetForUpdate(ctx, tx, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	c, err := s.contracts.Get(ctx, tx, m.ContractID)
	if err != nil {
		return Milestone{}, err
	}
	if actorID != c.EnterpriseID {
		return Milestone{}, ErrUnauthorized
	}
	if m.Status == StatusValidated || m.Status == StatusCompleted {
		return Milestone{}, fmt.Errorf("%w: milestone already settled", ErrInvalidState)
	}
	if err := s.repo.AppendProofs(ctx, tx, milestoneID, proofs); err != nil {
		return Milestone{}, err
	}

	m, err = s.repo.Get(ctx, tx, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Milestone{}, fmt.Errorf("milestone: commit: %w", err)
	}
	return m, nil
}

// ListByContract returns the contract's milestones in schedule order.
func (s *Service) ListByContract(ctx context.Context, contractID string) ([]Milestone, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("milestone: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE contract_id=$1 ORDER BY seq`, contractID)
	if err != nil {
		return nil, fmt.Errorf("milestone: list: %w", err)
	}
	defer rows.Close()

	milestones := []Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("milestone: scan: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("milestone: iterate: %w", err)
	}
	return milestones, tx.Commit(ctx)
}

// PendingValidation lists the submitted milestones awaiting the client's
// verdict.
func (s *Service) PendingValidation(ctx context.Context, clientID string) ([]Milestone, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("milestone: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+qualifiedMilestoneColumns+`
		FROM milestones m
		JOIN contracts c ON c.id = m.contract_id
		WHERE c.client_id = $1 AND m.status = 'submitted'
		ORDER BY m.submitted_at`, clientID)
	if err != nil {
		return nil, fmt.Errorf("milestone: pending validation: %w", err)
	}
	defer rows.Close()

	milestones := []Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("milestone: scan: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("milestone: iterate: %w", err)
	}
	return milestones, tx.Commit(ctx)
}
