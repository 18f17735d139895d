package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"escrowflow/account"
	"escrowflow/config"
	"escrowflow/contract"
	"escrowflow/fraud"
	"escrowflow/logging"
	"escrowflow/notify"
	"escrowflow/processor"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Payment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Payment, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (Payment, error)
	GetByIntentRefForUpdate(ctx context.Context, tx pgx.Tx, intentRef string) (Payment, error)
	Transition(ctx context.Context, tx pgx.Tx, id string, from, to Status, at time.Time, by, reason string) error
	MarkHeld(ctx context.Context, tx pgx.Tx, id string, from Status, captureRef string, heldUntil, at time.Time, by, reason string) error
	MarkReleased(ctx context.Context, tx pgx.Tx, id string, at time.Time, by, reason string) error
	RecordRefund(ctx context.Context, tx pgx.Tx, id string, from Status, amount float64, full bool, at time.Time, by, reason string) error
	SettledSum(ctx context.Context, tx pgx.Tx, contractID string) (float64, error)
	HasOpenDispute(ctx context.Context, tx pgx.Tx, paymentID string) (bool, error)
	HasIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (bool, error)
	InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
	DueForRelease(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]string, error)
}

// ContractStore locks and reads the contract a payment belongs to.
type ContractStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (contract.Contract, error)
}

// FraudChecker scores a payment candidate before any money is committed.
type FraudChecker interface {
	Check(ctx context.Context, req fraud.Request) (fraud.Result, error)
}

// MilestoneCompleter marks the linked milestone completed once funds reach
// custody.
type MilestoneCompleter interface {
	MarkCompleted(ctx context.Context, tx pgx.Tx, milestoneID string) error
}

// AccountStore resolves the payee's settlement account and maintains its
// running totals.
type AccountStore interface {
	GetByUserID(ctx context.Context, userID string) (account.Profile, error)
	ApplySettlement(ctx context.Context, tx pgx.Tx, userID string, receivedDelta, pendingDelta float64) error
}

type Service struct {
	pool       TxBeginner
	repo       Store
	contracts  ContractStore
	engine     FraudChecker
	milestones MilestoneCompleter
	accounts   AccountStore
	proc       processor.Processor
	notifier   notify.Notifier
	cfg        config.PaymentConfig
	log        *logging.Logger

	now   func() time.Time
	newID func() string
}

func NewService(
	pool TxBeginner,
	repo Store,
	contracts ContractStore,
	engine FraudChecker,
	milestones MilestoneCompleter,
	accounts AccountStore,
	proc processor.Processor,
	notifier notify.Notifier,
	cfg config.PaymentConfig,
	log *logging.Logger,
) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:       pool,
		repo:       repo,
		contracts:  contracts,
		engine:     engine,
		milestones: milestones,
		accounts:   accounts,
		proc:       proc,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

type CreateParams struct {
	ContractID  string
	MilestoneID string
	Type        Type
	PreTax      float64
	TaxRate     float64
	ActorID     string
}

// Create opens an escrow payment: fraud scoring, hard limit checks, a
// manual-capture authorization on the processor, and the pending row with its
// due date. A fraud block leaves no payment behind, only the engine's log.
func (s *Service) Create(ctx context.Context, params CreateParams) (Payment, error) {
	if params.PreTax <= 0 {
		return Payment{}, fmt.Errorf("payment: amount must be positive")
	}
	if !ValidType(params.Type) {
		return Payment{}, fmt.Errorf("payment: unknown type %q", params.Type)
	}
	if params.TaxRate < 0 || params.TaxRate > 1 {
		return Payment{}, fmt.Errorf("payment: invalid tax rate")
	}

	tax := round2(params.PreTax * params.TaxRate)
	total := round2(params.PreTax + tax)
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The contract row lock serializes every payment creation on the same
	// contract, so the ceiling check below cannot race.
	c, err := s.contracts.GetForUpdate(ctx, tx, params.ContractID)
	if err != nil {
		return Payment{}, err
	}

	check, err := s.engine.Check(ctx, fraud.Request{
		ContractID:  params.ContractID,
		MilestoneID: params.MilestoneID,
		PaymentType: string(params.Type),
		Amount:      total,
		PayeeID:     c.EnterpriseID,
	})
	if err != nil {
		return Payment{}, fmt.Errorf("payment: fraud check: %w", err)
	}
	if check.ShouldBlock {
		s.log.Warn("payment creation blocked",
			"contract_id", params.ContractID,
			"payment_type", string(params.Type),
			"amount", total,
			"rules", check.RulesTriggered,
		)
		return Payment{}, &FraudBlockedError{Rules: check.RulesTriggered}
	}

	if err := s.checkLimits(ctx, tx, c, params.Type, total); err != nil {
		return Payment{}, err
	}

	intent, err := s.authorize(ctx, c, total)
	if err != nil {
		return Payment{}, err
	}

	p, err := s.repo.Insert(ctx, tx, InsertParams{
		Reference:      s.reference(),
		ContractID:     c.ID,
		MilestoneID:    params.MilestoneID,
		Type:           params.Type,
		PreTax:         params.PreTax,
		Tax:            tax,
		Total:          total,
		IntentRef:      intent.Ref,
		PayerID:        c.ClientID,
		PayeeID:        c.EnterpriseID,
		DueDate:        now.Add(s.cfg.DueWindow()),
		FraudScore:     check.TotalScore,
		FraudRules:     check.RulesTriggered,
		RequiresReview: check.RequiresReview,
		CreatedBy:      params.ActorID,
		Now:            now,
	})
	if err != nil {
		return Payment{}, err
	}

	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "payment.created",
		RecipientID: c.ClientID,
		Title:       "Payment requested",
		Message:     fmt.Sprintf("Payment %s of %.2f is due by %s", p.Reference, p.Total, p.DueDate.Format("2006-01-02")),
		Data:        map[string]any{"payment_id": p.ID, "contract_id": c.ID, "total": p.Total},
	})
	if err != nil {
		return Payment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("payment: commit: %w", err)
	}

	s.log.Info("payment created",
		"payment_id", p.ID,
		"contract_id", c.ID,
		"type", string(p.Type),
		"total", p.Total,
		"fraud_score", p.FraudScore,
		"requires_review", p.RequiresReview,
	)
	return p, nil
}

// CreateForMilestone opens the escrow payment derived from a validated
// milestone. The milestone lifecycle manager calls this right after the
// validation commits.
func (s *Service) CreateForMilestone(ctx context.Context, contractID, milestoneID string, preTax, taxRate float64, actorID string) (string, error) {
	p, err := s.Create(ctx, CreateParams{
		ContractID:  contractID,
		MilestoneID: milestoneID,
		Type:        TypeMilestone,
		PreTax:      preTax,
		TaxRate:     taxRate,
		ActorID:     actorID,
	})
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (s *Service) checkLimits(ctx context.Context, tx pgx.Tx, c contract.Contract, t Type, total float64) error {
	if total > s.cfg.MaxSinglePayment {
		return fmt.Errorf("%w: %.2f exceeds single payment cap %.2f", ErrLimitExceeded, total, s.cfg.MaxSinglePayment)
	}
	if t == TypeDeposit && c.Total > 0 {
		ratio := total / c.Total * 100
		if ratio > s.cfg.MaxDepositPercent {
			return fmt.Errorf("%w: deposit is %.1f%% of contract total, cap is %.0f%%", ErrLimitExceeded, ratio, s.cfg.MaxDepositPercent)
		}
	}
	settled, err := s.repo.SettledSum(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	ceiling := c.Total * s.cfg.ContractCeilingPercent / 100
	if settled+total > ceiling {
		return fmt.Errorf("%w: settled %.2f plus %.2f exceeds contract ceiling %.2f", ErrLimitExceeded, settled, total, ceiling)
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, c contract.Contract, total float64) (processor.Intent, error) {
	destination := ""
	profile, err := s.accounts.GetByUserID(ctx, c.EnterpriseID)
	switch {
	case err == nil:
		destination = profile.ProcessorAccountRef
	case errors.Is(err, account.ErrNotFound):
		// The enterprise has not onboarded yet; funds stay on the platform
		// account until release.
	default:
		return processor.Intent{}, err
	}

	fee := round2(total * s.cfg.PlatformFeePercent / 100)
	intent, err := s.proc.CreateAuthorization(ctx, processor.AuthorizationParams{
		Amount:             total,
		Currency:           s.cfg.Currency,
		DestinationAccount: destination,
		FeeAmount:          fee,
		Metadata: map[string]string{
			"contract_id": c.ID,
		},
	})
	if err != nil {
		return processor.Intent{}, fmt.Errorf("payment: create authorization: %w", err)
	}
	return intent, nil
}

// RequestPayment notifies the payer and moves the payment to
// awaiting_payment.
func (s *Service) RequestPayment(ctx context.Context, paymentID, actorID string) (Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.Status != StatusPending {
		return Payment{}, fmt.Errorf("%w: cannot request payment from %s", ErrStatusConflict, p.Status)
	}
	now := s.now().UTC()
	if err := s.repo.Transition(ctx, tx, p.ID, StatusPending, StatusAwaitingPayment, now, actorID, "payer notified"); err != nil {
		return Payment{}, err
	}
	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "payment.requested",
		RecipientID: p.PayerID,
		Title:       "Payment awaiting",
		Message:     fmt.Sprintf("Payment %s of %.2f awaits your confirmation", p.Reference, p.Total),
		Data:        map[string]any{"payment_id": p.ID},
	})
	if err != nil {
		return Payment{}, err
	}

	p, err = s.repo.Get(ctx, tx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("payment: commit: %w", err)
	}
	return p, nil
}

// ConfirmCapture moves funds into custody. It is idempotent per external
// reference: the processor may retry its webhook, and a second confirmation
// on an already-held payment is a no-op. The reference is only consumed once
// the capture went through, so a transient failure stays retryable.
func (s *Service) ConfirmCapture(ctx context.Context, paymentID, externalRef string) (Payment, error) {
	if externalRef == "" {
		return Payment{}, fmt.Errorf("payment: external reference required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return Payment{}, err
	}

	if p.Status == StatusHeld {
		// Custody already happened; duplicate confirmation.
		return p, nil
	}
	if !p.Status.Capturable() {
		seen, err := s.repo.HasIdempotencyKey(ctx, tx, "capture:"+externalRef)
		if err != nil {
			return Payment{}, err
		}
		if seen {
			// Late redelivery of a capture that settled and moved on.
			return p, nil
		}
		return Payment{}, fmt.Errorf("%w: payment is %s", ErrNotCapturable, p.Status)
	}

	intent, err := s.proc.RetrieveAuthorization(ctx, p.IntentRef)
	if err != nil {
		return Payment{}, err
	}
	if intent.Status != processor.IntentRequiresCapture && intent.Status != processor.IntentCaptured {
		return Payment{}, fmt.Errorf("%w: authorization is %s", ErrNotCapturable, intent.Status)
	}

	receipt, err := s.proc.Capture(ctx, p.IntentRef)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: capture: %w", err)
	}

	if err := s.repo.InsertIdempotencyKey(ctx, tx, "capture:"+externalRef); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return p, nil
		}
		return Payment{}, err
	}

	now := s.now().UTC()
	heldUntil := now.Add(s.cfg.EscrowHold())
	if err := s.repo.MarkHeld(ctx, tx, p.ID, p.Status, receipt.Ref, heldUntil, now, "", "capture confirmed"); err != nil {
		return Payment{}, err
	}

	if p.MilestoneID != "" {
		if err := s.milestones.MarkCompleted(ctx, tx, p.MilestoneID); err != nil {
			return Payment{}, err
		}
	}
	if err := s.accounts.ApplySettlement(ctx, tx, p.PayeeID, 0, p.Total); err != nil && !errors.Is(err, account.ErrNotFound) {
		return Payment{}, err
	}

	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "payment.held",
		RecipientID: p.PayeeID,
		Title:       "Funds in escrow",
		Message:     fmt.Sprintf("Payment %s of %.2f is held until %s", p.Reference, p.Total, heldUntil.Format("2006-01-02")),
		Data:        map[string]any{"payment_id": p.ID, "held_until": heldUntil},
	})
	if err != nil {
		return Payment{}, err
	}

	p, err = s.repo.Get(ctx, tx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("payment: commit: %w", err)
	}

	s.log.Info("payment captured into custody",
		"payment_id", p.ID,
		"capture_ref", p.CaptureRef,
		"held_until", heldUntil,
	)
	return p, nil
}

// Release finalizes the transfer to the payee once the escrow window elapsed
// (or force, for an authorized actor). An open dispute always wins over a
// release attempt.
func (s *Service) Release(ctx context.Context, paymentID, actorID string, force bool) (Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.Status == StatusDisputed {
		return Payment{}, ErrDisputeActive
	}
	if p.Status != StatusHeld {
		return Payment{}, fmt.Errorf("%w: payment is %s", ErrNotHeld, p.Status)
	}

	now := s.now().UTC()
	if !force && p.HeldUntil != nil && now.Before(*p.HeldUntil) {
		return Payment{}, fmt.Errorf("%w: held until %s", ErrEscrowActive, p.HeldUntil.Format(time.RFC3339))
	}

	open, err := s.repo.HasOpenDispute(ctx, tx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	if open {
		return Payment{}, ErrDisputeActive
	}

	reason := "escrow window elapsed"
	if force {
		reason = "forced release"
	}
	if err := s.repo.MarkReleased(ctx, tx, p.ID, now, actorID, reason); err != nil {
		return Payment{}, err
	}
	if err := s.accounts.ApplySettlement(ctx, tx, p.PayeeID, p.Total, -p.Total); err != nil && !errors.Is(err, account.ErrNotFound) {
		return Payment{}, err
	}

	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "payment.released",
		RecipientID: p.PayeeID,
		Title:       "Funds released",
		Message:     fmt.Sprintf("Payment %s of %.2f was released", p.Reference, p.Total),
		Data:        map[string]any{"payment_id": p.ID},
	})
	if err != nil {
		return Payment{}, err
	}

	p, err = s.repo.Get(ctx, tx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("payment: commit: %w", err)
	}

	s.log.Info("payment released", "payment_id", p.ID, "released_by", actorID, "forced", force)
	return p, nil
}

// Refund returns funds to the payer. amount <= 0 means everything still
// refundable. Partial refunds keep the status and only record the adjustment;
// a full refund is terminal.
func (s *Service) Refund(ctx context.Context, paymentID, actorID, reason string, amount float64) (Payment, error) {
	if reason == "" {
		return Payment{}, fmt.Errorf("payment: refund reason required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.Status != StatusHeld && p.Status != StatusReleased {
		return Payment{}, fmt.Errorf("%w: payment is %s", ErrNotRefundable, p.Status)
	}

	refundable := round2(p.Total - p.RefundedTotal)
	if refundable <= 0 {
		return Payment{}, fmt.Errorf("%w: nothing left to refund", ErrNotRefundable)
	}
	if amount <= 0 || amount > refundable {
		amount = refundable
	}
	full := amount == refundable

	if _, err := s.proc.Refund(ctx, p.IntentRef, amount); err != nil {
		return Payment{}, fmt.Errorf("payment: processor refund: %w", err)
	}

	now := s.now().UTC()
	refundReason := fmt.Sprintf("refund %.2f: %s", amount, reason)
	if err := s.repo.RecordRefund(ctx, tx, p.ID, p.Status, amount, full, now, actorID, refundReason); err != nil {
		return Payment{}, err
	}

	receivedDelta, pendingDelta := 0.0, 0.0
	if p.Status == StatusHeld {
		pendingDelta = -amount
	} else {
		receivedDelta = -amount
	}
	if err := s.accounts.ApplySettlement(ctx, tx, p.PayeeID, receivedDelta, pendingDelta); err != nil && !errors.Is(err, account.ErrNotFound) {
		return Payment{}, err
	}

	err = s.notifier.Notify(ctx, tx, notify.Notification{
		Type:        "payment.refunded",
		RecipientID: p.PayerID,
		Title:       "Refund issued",
		Message:     fmt.Sprintf("%.2f of payment %s was refunded", amount, p.Reference),
		Data:        map[string]any{"payment_id": p.ID, "amount": amount, "full": full},
	})
	if err != nil {
		return Payment{}, err
	}

	p, err = s.repo.Get(ctx, tx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("payment: commit: %w", err)
	}

	s.log.Info("payment refunded", "payment_id", p.ID, "amount", amount, "full", full)
	return p, nil
}

// Cancel abandons a payment whose funds never reached custody.
func (s *Service) Cancel(ctx context.Context, paymentID, actorID, reason string) (Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if !p.Status.Capturable() {
		return Payment{}, fmt.Errorf("%w: cannot cancel from %s", ErrStatusConflict, p.Status)
	}

	if p.IntentRef != "" {
		if err := s.proc.CancelAuthorization(ctx, p.IntentRef); err != nil {
			s.log.Warn("cancel authorization failed", "payment_id", p.ID, "error", err)
		}
	}

	now := s.now().UTC()
	if reason == "" {
		reason = "payment cancelled"
	}
	if err := s.repo.Transition(ctx, tx, p.ID, p.Status, StatusCancelled, now, actorID, reason); err != nil {
		return Payment{}, err
	}

	p, err = s.repo.Get(ctx, tx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("payment: commit: %w", err)
	}
	return p, nil
}

// HandleWebhook applies a processor event. Events can arrive out of order and
// more than once; each event id is consumed at most once and stale
// transitions degrade to no-ops.
func (s *Service) HandleWebhook(ctx context.Context, ev processor.Event) error {
	if ev.Type == processor.EventCaptureSucceeded {
		return s.captureFromWebhook(ctx, ev)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.InsertIdempotencyKey(ctx, tx, "event:"+ev.ID); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil
		}
		return err
	}

	p, err := s.repo.GetByIntentRefForUpdate(ctx, tx, ev.IntentRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("webhook for unknown intent", "event_id", ev.ID, "intent_ref", ev.IntentRef)
			return tx.Commit(ctx)
		}
		return err
	}

	now := s.now().UTC()
	switch ev.Type {
	case processor.EventAuthorizationSucceeded:
		if p.Status == StatusPending || p.Status == StatusAwaitingPayment {
			if err := s.repo.Transition(ctx, tx, p.ID, p.Status, StatusProcessing, now, "", "payer authorized"); err != nil {
				return err
			}
		}
	case processor.EventAuthorizationFailed, processor.EventCaptureFailed:
		if p.Status.Capturable() {
			reason := fmt.Sprintf("processor reported %s: %s", ev.Type, ev.Reason)
			if err := s.repo.Transition(ctx, tx, p.ID, p.Status, StatusCancelled, now, "", reason); err != nil {
				return err
			}
			err = s.notifier.Notify(ctx, tx, notify.Notification{
				Type:        "payment.failed",
				RecipientID: p.PayerID,
				Title:       "Payment failed",
				Message:     fmt.Sprintf("Payment %s failed at the processor", p.Reference),
				Data:        map[string]any{"payment_id": p.ID, "reason": ev.Reason},
			})
			if err != nil {
				return err
			}
		}
	case processor.EventRefundSucceeded:
		// Refunds are initiated by us; the event only confirms them.
	default:
		s.log.Debug("ignoring webhook event", "event_id", ev.ID, "type", string(ev.Type))
	}

	return tx.Commit(ctx)
}

// captureFromWebhook resolves the payment and defers to ConfirmCapture
// without consuming the event id: a capture that fails transiently must stay
// retryable when the processor redelivers the event, and ConfirmCapture
// already dedupes per capture reference.
func (s *Service) captureFromWebhook(ctx context.Context, ev processor.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payment: begin tx: %w", err)
	}
	p, err := s.repo.GetByIntentRefForUpdate(ctx, tx, ev.IntentRef)
	// The lock must drop before ConfirmCapture opens its own transaction.
	_ = tx.Rollback(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("webhook for unknown intent", "event_id", ev.ID, "intent_ref", ev.IntentRef)
			return nil
		}
		return err
	}

	ref := ev.CaptureRef
	if ref == "" {
		ref = ev.ID
	}
	_, err = s.ConfirmCapture(ctx, p.ID, ref)
	return err
}

// Get returns a payment by id.
func (s *Service) GetByID(ctx context.Context, paymentID string) (Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.Get(ctx, tx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	return p, tx.Commit(ctx)
}

func (s *Service) reference() string {
	short := strings.ToUpper(strings.ReplaceAll(s.newID(), "-", ""))
	if len(short) > 10 {
		short = short[:10]
	}
	return "PAY-" + short
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
