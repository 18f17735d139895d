package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const paymentColumns = `id, reference, contract_id, COALESCE(milestone_id::text, ''), payment_type,
       pre_tax, tax, total, COALESCE(intent_ref, ''), COALESCE(capture_ref, ''),
       payer_id, payee_id, held_until, released_at, COALESCE(released_by::text, ''),
       status, status_history, due_date, paid_at,
       fraud_score, fraud_rules, requires_review, refunded_total, created_at, updated_at`

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

type InsertParams struct {
	Reference      string
	ContractID     string
	MilestoneID    string
	Type           Type
	PreTax         float64
	Tax            float64
	Total          float64
	IntentRef      string
	PayerID        string
	PayeeID        string
	DueDate        time.Time
	FraudScore     int
	FraudRules     []string
	RequiresReview bool
	CreatedBy      string
	Now            time.Time
}

// Insert persists a new pending payment with its first history entry.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Payment, error) {
	history, err := historyEntry(StatusPending, params.Now, params.CreatedBy, "payment created")
	if err != nil {
		return Payment{}, err
	}
	rules := params.FraudRules
	if rules == nil {
		rules = []string{}
	}
	var milestoneID any
	if params.MilestoneID != "" {
		milestoneID = params.MilestoneID
	}

	insertSQL := `
        INSERT INTO payments
            (reference, contract_id, milestone_id, payment_type, pre_tax, tax, total,
             intent_ref, payer_id, payee_id, status, status_history, due_date,
             fraud_score, fraud_rules, requires_review)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending',$11::jsonb,$12,$13,$14,$15)
        RETURNING ` + paymentColumns

	row := tx.QueryRow(ctx, insertSQL,
		params.Reference, params.ContractID, milestoneID, params.Type,
		params.PreTax, params.Tax, params.Total,
		params.IntentRef, params.PayerID, params.PayeeID,
		history, params.DueDate, params.FraudScore, rules, params.RequiresReview,
	)
	p, err := scanPayment(row)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: insert: %w", err)
	}
	return p, nil
}

// GetForUpdate loads a payment and holds its row lock until the transaction
// ends.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Payment, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("payment: get for update: %w", err)
	}
	return p, nil
}

func (r *Repository) Get(ctx context.Context, tx pgx.Tx, id string) (Payment, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("payment: get: %w", err)
	}
	return p, nil
}

// GetByIntentRefForUpdate resolves a payment from its processor intent
// reference, locking the row. Webhook handlers only know the intent.
func (r *Repository) GetByIntentRefForUpdate(ctx context.Context, tx pgx.Tx, intentRef string) (Payment, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE intent_ref=$1 FOR UPDATE`, intentRef)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("payment: get by intent: %w", err)
	}
	return p, nil
}

// Transition moves the payment between statuses with a conditional update and
// appends the audit history entry in the same statement. A lost race surfaces
// as ErrStatusConflict.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, id string, from, to Status, at time.Time, by, reason string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s not allowed", ErrStatusConflict, from, to)
	}
	history, err := historyEntry(to, at, by, reason)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status=$3,
		    status_history = status_history || $4::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status=$2`,
		id, from, to, history)
	if err != nil {
		return fmt.Errorf("payment: transition %s -> %s: %w", from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkHeld captures the funds into custody: capture reference, hold deadline,
// and paid timestamp land together with the status flip.
func (r *Repository) MarkHeld(ctx context.Context, tx pgx.Tx, id string, from Status, captureRef string, heldUntil, at time.Time, by, reason string) error {
	if !CanTransition(from, StatusHeld) {
		return fmt.Errorf("%w: %s -> held not allowed", ErrStatusConflict, from)
	}
	history, err := historyEntry(StatusHeld, at, by, reason)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status='held',
		    capture_ref=$3,
		    held_until=$4,
		    paid_at=get_tx_timestamp(),
		    status_history = status_history || $5::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status=$2`,
		id, from, captureRef, heldUntil, history)
	if err != nil {
		return fmt.Errorf("payment: mark held: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkReleased finalizes the transfer to the payee.
func (r *Repository) MarkReleased(ctx context.Context, tx pgx.Tx, id string, at time.Time, by, reason string) error {
	history, err := historyEntry(StatusReleased, at, by, reason)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status='released',
		    released_at=get_tx_timestamp(),
		    released_by=$2,
		    status_history = status_history || $3::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status='held'`,
		id, by, history)
	if err != nil {
		return fmt.Errorf("payment: mark released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// RecordRefund accumulates the refunded amount. When full is set the payment
// flips to refunded; a partial refund keeps the current status and only the
// history records the adjustment.
func (r *Repository) RecordRefund(ctx context.Context, tx pgx.Tx, id string, from Status, amount float64, full bool, at time.Time, by, reason string) error {
	status := from
	if full {
		status = StatusRefunded
		if !CanTransition(from, StatusRefunded) && from != StatusReleased {
			return fmt.Errorf("%w: %s -> refunded not allowed", ErrStatusConflict, from)
		}
	}
	history, err := historyEntry(status, at, by, reason)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status=$3,
		    refunded_total = refunded_total + $4,
		    status_history = status_history || $5::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status=$2`,
		id, from, status, amount, history)
	if err != nil {
		return fmt.Errorf("payment: record refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkDisputed freezes the payment. Dispute opening calls this inside its own
// transaction so the freeze and the dispute row commit atomically.
func (r *Repository) MarkDisputed(ctx context.Context, tx pgx.Tx, id string, from Status, at time.Time, by, reason string) error {
	return r.Transition(ctx, tx, id, from, StatusDisputed, at, by, reason)
}

// Unfreeze returns a disputed payment to held so a resolution can release or
// refund it through the normal paths.
func (r *Repository) Unfreeze(ctx context.Context, tx pgx.Tx, id string, at time.Time, by, reason string) error {
	return r.Transition(ctx, tx, id, StatusDisputed, StatusHeld, at, by, reason)
}

// SettledSum computes the contract's exposure inside the caller's
// transaction. Creation limit checks run this under the contract row lock.
func (r *Repository) SettledSum(ctx context.Context, tx pgx.Tx, contractID string) (float64, error) {
	var sum float64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM payments
		WHERE contract_id = $1
		  AND status IN ('awaiting_payment', 'processing', 'held', 'released')`,
		contractID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("payment: settled sum: %w", err)
	}
	return sum, nil
}

// HasOpenDispute reports whether a non-terminal dispute references the
// payment.
func (r *Repository) HasOpenDispute(ctx context.Context, tx pgx.Tx, paymentID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
		    SELECT 1 FROM disputes
		    WHERE payment_id = $1 AND status IN ('opened', 'under_review', 'mediation')
		)`, paymentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("payment: check open dispute: %w", err)
	}
	return exists, nil
}

// HasIdempotencyKey reports whether the key was already consumed by a
// committed confirmation.
func (r *Repository) HasIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM idempotency WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("payment: check idempotency key: %w", err)
	}
	return exists, nil
}

// InsertIdempotencyKey reserves the key inside the active transaction so
// replayed external confirmations become no-ops.
func (r *Repository) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("payment: empty idempotency key")
	}
	_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("payment: insert idempotency key: %w", err)
	}
	return nil
}

// DueForRelease lists held payments whose escrow window elapsed and which no
// open dispute references.
func (r *Repository) DueForRelease(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := tx.Query(ctx, `
		SELECT id FROM payments p
		WHERE status = 'held'
		  AND held_until <= $1
		  AND NOT EXISTS (
		      SELECT 1 FROM disputes d
		      WHERE d.payment_id = p.id AND d.status IN ('opened', 'under_review', 'mediation')
		  )
		ORDER BY held_until
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("payment: due for release: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("payment: scan due id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment: iterate due ids: %w", err)
	}
	return ids, nil
}

func historyEntry(status Status, at time.Time, by, reason string) (string, error) {
	entry := []StatusChange{{
		Status:    status,
		ChangedAt: at.UTC(),
		ChangedBy: by,
		Reason:    reason,
	}}
	b, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("payment: marshal history entry: %w", err)
	}
	return string(b), nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p          Payment
		historyRaw []byte
	)
	err := row.Scan(
		&p.ID, &p.Reference, &p.ContractID, &p.MilestoneID, &p.Type,
		&p.PreTax, &p.Tax, &p.Total, &p.IntentRef, &p.CaptureRef,
		&p.PayerID, &p.PayeeID, &p.HeldUntil, &p.ReleasedAt, &p.ReleasedBy,
		&p.Status, &historyRaw, &p.DueDate, &p.PaidAt,
		&p.FraudScore, &p.FraudRules, &p.RequiresReview, &p.RefundedTotal,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Payment{}, err
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &p.History); err != nil {
			return Payment{}, fmt.Errorf("payment: decode history: %w", err)
		}
	}
	return p, nil
}
