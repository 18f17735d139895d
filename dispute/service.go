package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"escrowflow/config"
	"escrowflow/contract"
	"escrowflow/logging"
	"escrowflow/notify"
	"escrowflow/payment"
	"escrowflow/proof"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Dispute, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Dispute, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (Dispute, error)
	Transition(ctx context.Context, tx pgx.Tx, id string, from, to Status, ev Event) error
	AppendEvent(ctx context.Context, tx pgx.Tx, id string, ev Event) error
	AppendProofs(ctx context.Context, tx pgx.Tx, id string, fromOpener bool, proofs []proof.Proof, ev Event) error
	SetMediator(ctx context.Context, tx pgx.Tx, id string, from Status, mediatorID string, ev Event) error
	SetResolution(ctx context.Context, tx pgx.Tx, id string, from, to Status, res Resolution, resolvedBy string, ev Event) error
	OverdueForEscalation(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]string, error)
}

// PaymentStore freezes and unfreezes the contested payment inside the
// dispute's transaction so the dispute row and the payment status commit
// together.
type PaymentStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (payment.Payment, error)
	MarkDisputed(ctx context.Context, tx pgx.Tx, id string, from payment.Status, at time.Time, by, reason string) error
	Unfreeze(ctx context.Context, tx pgx.Tx, id string, at time.Time, by, reason string) error
}

// PaymentSettler moves the unfrozen funds after a resolution has committed.
// The ledger runs its own transactions; a settlement failure leaves the
// resolution standing and is retried out of band.
type PaymentSettler interface {
	Refund(ctx context.Context, paymentID, actorID, reason string, amount float64) (payment.Payment, error)
	Release(ctx context.Context, paymentID, actorID string, force bool) (payment.Payment, error)
}

// ContractStore locks the contract and flips it in and out of disputed.
type ContractStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (contract.Contract, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id string, from, to contract.Status) error
}

// MilestoneReopener sends a milestone back to rework when a resolution
// demands the work be finished.
type MilestoneReopener interface {
	Reopen(ctx context.Context, tx pgx.Tx, id, reason string) error
}

// AccountStore tracks dispute counts on the respondent's settlement profile.
type AccountStore interface {
	CountDispute(ctx context.Context, tx pgx.Tx, userID string) error
}

type Service struct {
	pool       TxBeginner
	repo       Store
	payments   PaymentStore
	settler    PaymentSettler
	contracts  ContractStore
	milestones MilestoneReopener
	accounts   AccountStore
	notifier   notify.Notifier
	cfg        config.DisputeConfig
	log        *logging.Logger

	now   func() time.Time
	newID func() string
}

func NewService(
	pool TxBeginner,
	repo Store,
	payments PaymentStore,
	settler PaymentSettler,
	contracts ContractStore,
	milestones MilestoneReopener,
	accounts AccountStore,
	notifier notify.Notifier,
	cfg config.DisputeConfig,
	log *logging.Logger,
) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:       pool,
		repo:       repo,
		payments:   payments,
		settler:    settler,
		contracts:  contracts,
		milestones: milestones,
		accounts:   accounts,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

type OpenParams struct {
	ContractID  string
	PaymentID   string
	MilestoneID string
	Reason      string
	Title       string
	Description string
	Proofs      []proof.Proof
	ActorID     string
}

// Open files a dispute and freezes the contested payment in the same
// transaction. The partial unique index on open disputes makes a concurrent
// second open lose with ErrAlreadyDisputed.
func (s *Service) Open(ctx context.Context, params OpenParams) (Dispute, error) {
	if params.Reason == "" {
		return Dispute{}, fmt.Errorf("dispute: reason required")
	}
	if params.PaymentID == "" && params.MilestoneID == "" {
		return Dispute{}, fmt.Errorf("dispute: a payment or milestone must be named")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.contracts.GetForUpdate(ctx, tx, params.ContractID)
	if err != nil {
		return Dispute{}, err
	}
	if !c.IsParty(params.ActorID) {
		return Dispute{}, ErrUnauthorized
	}
	respondent := c.CounterpartyOf(params.ActorID)

	now := s.now().UTC()
	contested := 0.0
	if params.PaymentID != "" {
		p, err := s.payments.GetForUpdate(ctx, tx, params.PaymentID)
		if err != nil {
			return Dispute{}, err
		}
		if p.ContractID != c.ID {
			return Dispute{}, fmt.Errorf("dispute: payment belongs to another contract")
		}
		if p.Status == payment.StatusDisputed {
			return Dispute{}, ErrAlreadyDisputed
		}
		if p.Status.IsTerminal() {
			return Dispute{}, fmt.Errorf("%w: payment already settled as %s", ErrInvalidState, p.Status)
		}
		contested = p.Total
		err = s.payments.MarkDisputed(ctx, tx, p.ID, p.Status, now, params.ActorID, "dispute opened")
		if err != nil {
			return Dispute{}, err
		}
	}

	if c.Status == contract.StatusActive {
		if err := s.contracts.SetStatus(ctx, tx, c.ID, contract.StatusActive, contract.StatusDisputed); err != nil {
			return Dispute{}, err
		}
	}

	d, err := s.repo.Insert(ctx, tx, InsertParams{
		Reference:       s.reference(),
		ContractID:      params.ContractID,
		PaymentID:       params.PaymentID,
		MilestoneID:     params.MilestoneID,
		OpenedBy:        params.ActorID,
		Respondent:      respondent,
		Reason:          params.Reason,
		Title:           params.Title,
		Description:     params.Description,
		ContestedAmount: contested,
		Proofs:          params.Proofs,
		RespondBy:       now.Add(time.Duration(s.cfg.ResponseDays) * 24 * time.Hour),
		ResolveBy:       now.Add(time.Duration(s.cfg.ResolutionDays) * 24 * time.Hour),
		Now:             now,
	})
	if err != nil {
		return Dispute{}, err
	}

	if err := s.accounts.CountDispute(ctx, tx, respondent); err != nil {
		return Dispute{}, err
	}

	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "dispute.opened",
		RecipientID: respondent,
		Title:       "Dispute opened",
		Message:     fmt.Sprintf("a dispute was opened against you: %s", params.Reason),
		Data:        map[string]any{"dispute_id": d.ID, "contract_id": c.ID, "respond_by": d.RespondBy},
	})
	if err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}
	s.log.Info("dispute opened",
		"dispute_id", d.ID,
		"contract_id", c.ID,
		"payment_id", params.PaymentID,
		"contested_amount", contested,
	)
	return d, nil
}

// Respond records the respondent's answer and moves the case under review.
func (s *Service) Respond(ctx context.Context, disputeID, actorID, message string, proofs []proof.Proof) (Dispute, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if actorID != d.Respondent {
		return Dispute{}, ErrWrongParty
	}
	if d.Status != StatusOpened {
		return Dispute{}, fmt.Errorf("%w: cannot respond from %s", ErrInvalidState, d.Status)
	}

	now := s.now().UTC()
	err = s.repo.Transition(ctx, tx, d.ID, StatusOpened, StatusUnderReview, Event{
		Type:       EventStatusChange,
		ActorID:    actorID,
		Message:    message,
		OccurredAt: now,
	})
	if err != nil {
		return Dispute{}, err
	}
	if len(proofs) > 0 {
		err = s.repo.AppendProofs(ctx, tx, d.ID, false, proofs, Event{
			Type:       EventProofAdded,
			ActorID:    actorID,
			Message:    fmt.Sprintf("%d proofs added", len(proofs)),
			OccurredAt: now,
		})
		if err != nil {
			return Dispute{}, err
		}
	}

	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "dispute.responded",
		RecipientID: d.OpenedBy,
		Title:       "Dispute response received",
		Message:     "the other party responded, the case is under review",
		Data:        map[string]any{"dispute_id": d.ID},
	})
	if err != nil {
		return Dispute{}, err
	}

	d, err = s.repo.Get(ctx, tx, d.ID)
	if err != nil {
		return Dispute{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}
	return d, nil
}

// AssignMediator hands the case to a neutral mediator. Small contested
// amounts stay in direct review to keep mediation capacity for cases worth
// the overhead.
func (s *Service) AssignMediator(ctx context.Context, disputeID, mediatorID, actorID string) (Dispute, error) {
	if mediatorID == "" {
		return Dispute{}, fmt.Errorf("dispute: mediator required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if !CanTransition(d.Status, StatusMediation) {
		return Dispute{}, fmt.Errorf("%w: cannot mediate from %s", ErrInvalidState, d.Status)
	}
	if d.ContestedAmount < s.cfg.MinAmountForMediation {
		return Dispute{}, fmt.Errorf("%w: %.2f below %.2f", ErrBelowMediationThreshold, d.ContestedAmount, s.cfg.MinAmountForMediation)
	}

	err = s.repo.SetMediator(ctx, tx, d.ID, d.Status, mediatorID, Event{
		Type:       EventAssignment,
		ActorID:    actorID,
		Message:    "mediator assigned",
		Data:       map[string]any{"mediator_id": mediatorID},
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return Dispute{}, err
	}

	for _, recipient := range []string{d.OpenedBy, d.Respondent} {
		err = s.notifier.Notify(ctx, tx, notify.Notification{
			Type:        "dispute.mediation",
			RecipientID: recipient,
			Title:       "Mediation started",
			Message:     "a mediator was assigned to the dispute",
			Data:        map[string]any{"dispute_id": d.ID},
		})
		if err != nil {
			return Dispute{}, err
		}
	}

	d, err = s.repo.Get(ctx, tx, d.ID)
	if err != nil {
		return Dispute{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}
	return d, nil
}

type ResolveParams struct {
	DisputeID   string
	Type        ResolutionType
	Description string
	Amount      float64
	ActorID     string
	// AsAdmin lets a platform administrator resolve without being the
	// assigned mediator.
	AsAdmin bool
}

// Resolve records the verdict, unfreezes the contested payment and puts the
// contract back in play. The actual money movement runs through the ledger
// after the resolution has committed; a ledger failure leaves the verdict
// standing and surfaces to the caller for retry.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (Dispute, error) {
	res := Resolution{
		Type:        params.Type,
		Description: params.Description,
		Amount:      params.Amount,
		Beneficiary: beneficiaryFor(params.Type),
	}
	if err := validateResolution(res); err != nil {
		return Dispute{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, params.DisputeID)
	if err != nil {
		return Dispute{}, err
	}
	if !params.AsAdmin && params.ActorID != d.MediatorID {
		return Dispute{}, ErrUnauthorized
	}
	if !d.Status.Open() {
		return Dispute{}, fmt.Errorf("%w: cannot resolve from %s", ErrInvalidState, d.Status)
	}

	to := StatusResolvedEnterprise
	if res.Beneficiary == BeneficiaryClient {
		to = StatusResolvedClient
	}

	now := s.now().UTC()
	err = s.repo.SetResolution(ctx, tx, d.ID, d.Status, to, res, params.ActorID, Event{
		Type:       EventResolution,
		ActorID:    params.ActorID,
		Message:    params.Description,
		Data:       map[string]any{"resolution_type": string(res.Type), "amount": res.Amount},
		OccurredAt: now,
	})
	if err != nil {
		return Dispute{}, err
	}

	if d.PaymentID != "" {
		p, err := s.payments.GetForUpdate(ctx, tx, d.PaymentID)
		if err != nil {
			return Dispute{}, err
		}
		if p.Status == payment.StatusDisputed {
			err = s.payments.Unfreeze(ctx, tx, p.ID, now, params.ActorID, "dispute resolved")
			if err != nil {
				return Dispute{}, err
			}
		}
	}
	if res.Type == ResolutionWorkCompletion && d.MilestoneID != "" {
		if err := s.milestones.Reopen(ctx, tx, d.MilestoneID, params.Description); err != nil {
			return Dispute{}, err
		}
	}

	c, err := s.contracts.GetForUpdate(ctx, tx, d.ContractID)
	if err != nil {
		return Dispute{}, err
	}
	if c.Status == contract.StatusDisputed {
		if err := s.contracts.SetStatus(ctx, tx, c.ID, contract.StatusDisputed, contract.StatusActive); err != nil {
			return Dispute{}, err
		}
	}

	for _, recipient := range []string{d.OpenedBy, d.Respondent} {
		err = s.notifier.Notify(ctx, tx, notify.Notification{
			Type:        "dispute.resolved",
			RecipientID: recipient,
			Title:       "Dispute resolved",
			Message:     fmt.Sprintf("the dispute was resolved: %s", res.Type),
			Data:        map[string]any{"dispute_id": d.ID, "resolution_type": string(res.Type)},
		})
		if err != nil {
			return Dispute{}, err
		}
	}

	d, err = s.repo.Get(ctx, tx, d.ID)
	if err != nil {
		return Dispute{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}
	s.log.Info("dispute resolved",
		"dispute_id", d.ID,
		"resolution_type", string(res.Type),
		"beneficiary", string(res.Beneficiary),
	)

	if err := s.settle(ctx, d, res, params.ActorID); err != nil {
		return d, err
	}
	return d, nil
}

// settle moves the money the verdict demands, after the resolution commit.
func (s *Service) settle(ctx context.Context, d Dispute, res Resolution, actorID string) error {
	if d.PaymentID == "" {
		return nil
	}
	var err error
	switch res.Type {
	case ResolutionFullRefund:
		_, err = s.settler.Refund(ctx, d.PaymentID, actorID, "dispute resolution: "+res.Description, 0)
	case ResolutionPartialRefund:
		_, err = s.settler.Refund(ctx, d.PaymentID, actorID, "dispute resolution: "+res.Description, res.Amount)
	case ResolutionDismissed:
		if s.cfg.DismissedReleasesFunds {
			_, err = s.settler.Release(ctx, d.PaymentID, actorID, true)
		}
	case ResolutionWorkCompletion:
		// Funds stay in custody until the reworked milestone settles.
	}
	if err != nil {
		s.log.Error("dispute settlement failed",
			"dispute_id", d.ID,
			"payment_id", d.PaymentID,
			"resolution_type", string(res.Type),
			"error", err,
		)
		return fmt.Errorf("dispute: settle resolution: %w", err)
	}
	return nil
}

// Escalate hands the case to external legal handling.
func (s *Service) Escalate(ctx context.Context, disputeID, actorID, reason string) (Dispute, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if !CanTransition(d.Status, StatusEscalated) {
		return Dispute{}, fmt.Errorf("%w: cannot escalate from %s", ErrInvalidState, d.Status)
	}

	err = s.repo.Transition(ctx, tx, d.ID, d.Status, StatusEscalated, Event{
		Type:       EventStatusChange,
		ActorID:    actorID,
		Message:    reason,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return Dispute{}, err
	}

	for _, recipient := range []string{d.OpenedBy, d.Respondent} {
		err = s.notifier.Notify(ctx, tx, notify.Notification{
			Type:        "dispute.escalated",
			RecipientID: recipient,
			Title:       "Dispute escalated",
			Message:     "the dispute was escalated to legal handling",
			Data:        map[string]any{"dispute_id": d.ID, "reason": reason},
		})
		if err != nil {
			return Dispute{}, err
		}
	}

	d, err = s.repo.Get(ctx, tx, d.ID)
	if err != nil {
		return Dispute{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}
	return d, nil
}

// Close archives a resolved dispute.
func (s *Service) Close(ctx context.Context, disputeID, actorID string) (Dispute, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if !CanTransition(d.Status, StatusClosed) {
		return Dispute{}, fmt.Errorf("%w: cannot close from %s", ErrInvalidState, d.Status)
	}

	err = s.repo.Transition(ctx, tx, d.ID, d.Status, StatusClosed, Event{
		Type:       EventStatusChange,
		ActorID:    actorID,
		Message:    "dispute closed",
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return Dispute{}, err
	}

	d, err = s.repo.Get(ctx, tx, d.ID)
	if err != nil {
		return Dispute{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}
	return d, nil
}

// AddProof attaches evidence from either party while the case is open.
func (s *Service) AddProof(ctx context.Context, disputeID, actorID string, proofs []proof.Proof) (Dispute, error) {
	if len(proofs) == 0 {
		return Dispute{}, fmt.Errorf("dispute: no proofs given")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if actorID != d.OpenedBy && actorID != d.Respondent {
		return Dispute{}, ErrUnauthorized
	}
	if !d.Status.Open() {
		return Dispute{}, fmt.Errorf("%w: dispute no longer open", ErrInvalidState)
	}

	err = s.repo.AppendProofs(ctx, tx, d.ID, actorID == d.OpenedBy, proofs, Event{
		Type:       EventProofAdded,
		ActorID:    actorID,
		Message:    fmt.Sprintf("%d proofs added", len(proofs)),
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return Dispute{}, err
	}

	d, err = s.repo.Get(ctx, tx, d.ID)
	if err != nil {
		return Dispute{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}
	return d, nil
}

// AddMessage appends a free-form message to the timeline.
func (s *Service) AddMessage(ctx context.Context, disputeID, actorID, message string) error {
	if message == "" {
		return fmt.Errorf("dispute: empty message")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return err
	}
	if actorID != d.OpenedBy && actorID != d.Respondent && actorID != d.MediatorID {
		return ErrUnauthorized
	}
	if !d.Status.Open() {
		return fmt.Errorf("%w: dispute no longer open", ErrInvalidState)
	}

	err = s.repo.AppendEvent(ctx, tx, d.ID, Event{
		Type:       EventMessage,
		ActorID:    actorID,
		Message:    message,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispute: commit: %w", err)
	}
	return nil
}

// GetByID loads one dispute.
func (s *Service) GetByID(ctx context.Context, disputeID string) (Dispute, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.Get(ctx, tx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	return d, tx.Commit(ctx)
}

// ListForUser returns the disputes the user opened or has to answer.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Dispute, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE opened_by = $1 OR respondent = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	disputes := []Dispute{}
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return disputes, tx.Commit(ctx)
}

// EscalateOverdue escalates disputes whose resolution deadline has passed.
// Run by the periodic sweeper; lost races are skipped, not errors.
func (s *Service) EscalateOverdue(ctx context.Context, batchSize int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispute: begin tx: %w", err)
	}
	ids, err := s.repo.OverdueForEscalation(ctx, tx, s.now().UTC(), batchSize)
	tx.Rollback(ctx)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, id := range ids {
		_, err := s.Escalate(ctx, id, "system", "resolution deadline passed")
		switch {
		case err == nil:
			escalated++
		case errors.Is(err, ErrStatusConflict), errors.Is(err, ErrInvalidState):
			// Resolved or escalated since listing.
		default:
			return escalated, err
		}
	}
	return escalated, nil
}

func beneficiaryFor(t ResolutionType) Beneficiary {
	switch t {
	case ResolutionFullRefund, ResolutionPartialRefund:
		return BeneficiaryClient
	default:
		return BeneficiaryEnterprise
	}
}

func validateResolution(res Resolution) error {
	switch res.Type {
	case ResolutionFullRefund, ResolutionWorkCompletion, ResolutionDismissed:
	case ResolutionPartialRefund:
		if res.Amount <= 0 {
			return fmt.Errorf("dispute: partial refund requires a positive amount")
		}
	default:
		return fmt.Errorf("dispute: unknown resolution type %q", res.Type)
	}
	if res.Description == "" {
		return fmt.Errorf("dispute: resolution description required")
	}
	return nil
}

func (s *Service) reference() string {
	short := strings.ToUpper(strings.ReplaceAll(s.newID(), "-", ""))
	if len(short) > 10 {
		short = short[:10]
	}
	return "DSP-" + short
}
