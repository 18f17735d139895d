package milestone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"escrowflow/contract"
	"escrowflow/proof"
)

var (
	// ErrNotFound is returned when no milestone row exists for the identifier.
	ErrNotFound = errors.New("milestone: not found")
	// ErrStatusConflict signals the milestone was not in the expected status.
	// Concurrent callers racing on the same transition see this error.
	ErrStatusConflict = errors.New("milestone: status conflict")
)

const milestoneColumns = `id, contract_id, seq, designation, pre_tax, total, percent,
       planned_at, submitted_at, validated_at, paid_at,
       trigger_conditions, deliverables, status,
       COALESCE(validated_by::text, ''), COALESCE(rejection_reason, ''),
       proofs, COALESCE(report, ''), verification, risk_level, created_at, updated_at`

const qualifiedMilestoneColumns = `m.id, m.contract_id, m.seq, m.designation, m.pre_tax, m.total, m.percent,
       m.planned_at, m.submitted_at, m.validated_at, m.paid_at,
       m.trigger_conditions, m.deliverables, m.status,
       COALESCE(m.validated_by::text, ''), COALESCE(m.rejection_reason, ''),
       m.proofs, COALESCE(m.report, ''), m.verification, m.risk_level, m.created_at, m.updated_at`

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// CreateSchedule materializes the agreed payment schedule as milestone rows.
// Amounts are derived from the contract totals by percentage, rounded to
// cents.
func (r *Repository) CreateSchedule(ctx context.Context, tx pgx.Tx, c contract.Contract, entries []contract.ScheduleEntry) error {
	const insertSQL = `
        INSERT INTO milestones (contract_id, seq, designation, pre_tax, total, percent, planned_at, trigger_conditions, deliverables)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	for _, e := range entries {
		preTax := math.Round(c.TotalPreTax*e.Percent) / 100
		total := math.Round(c.Total*e.Percent) / 100
		conditions := e.TriggerConditions
		if conditions == nil {
			conditions = []string{}
		}
		deliverables := e.Deliverables
		if deliverables == nil {
			deliverables = []string{}
		}
		if _, err := tx.Exec(ctx, insertSQL,
			c.ID, e.Seq, e.Designation, preTax, total, e.Percent,
			e.PlannedAt, conditions, deliverables,
		); err != nil {
			return fmt.Errorf("milestone: insert schedule entry %d: %w", e.Seq, err)
		}
	}
	return nil
}

// GetForUpdate loads a milestone and holds its row lock until the transaction
// ends.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Milestone, error) {
	row := tx.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id=$1 FOR UPDATE`, id)
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Milestone{}, ErrNotFound
		}
		return Milestone{}, fmt.Errorf("milestone: get for update: %w", err)
	}
	return m, nil
}

func (r *Repository) Get(ctx context.Context, tx pgx.Tx, id string) (Milestone, error) {
	row := tx.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id=$1`, id)
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Milestone{}, ErrNotFound
		}
		return Milestone{}, fmt.Errorf("milestone: get: %w", err)
	}
	return m, nil
}

// conditional runs an update keyed on $1=id and reports ErrStatusConflict
// when no row matched.
func (r *Repository) conditional(ctx context.Context, tx pgx.Tx, id, query string) error {
	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("milestone: conditional update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkStarted moves pending → in_progress.
func (r *Repository) MarkStarted(ctx context.Context, tx pgx.Tx, id string) error {
	return r.conditional(ctx, tx, id, `
		UPDATE milestones
		SET status='in_progress', updated_at=get_tx_timestamp()
		WHERE id=$1 AND status='pending'`)
}

// MarkSubmitted records the submission payload and flips the status. The
// expected pre-state is passed by the caller who holds the row lock, so a
// concurrent submit loses on the conditional update.
func (r *Repository) MarkSubmitted(ctx context.Context, tx pgx.Tx, id string, from Status, proofs []proof.Proof, report string, v Verification, label RiskLabel) error {
	if !CanTransition(from, StatusSubmitted) {
		return fmt.Errorf("%w: cannot submit from %s", ErrStatusConflict, from)
	}
	proofsJSON, err := json.Marshal(proofs)
	if err != nil {
		return fmt.Errorf("milestone: marshal proofs: %w", err)
	}
	verificationJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("milestone: marshal verification: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE milestones
		SET status='submitted',
		    submitted_at=get_tx_timestamp(),
		    proofs=$3::jsonb,
		    report=$4,
		    verification=$5::jsonb,
		    risk_level=$6,
		    rejection_reason=NULL,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status=$2`,
		id, from, proofsJSON, report, verificationJSON, label)
	if err != nil {
		return fmt.Errorf("milestone: mark submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkValidated moves submitted → validated. Exactly one concurrent caller
// wins; the rest observe ErrStatusConflict.
func (r *Repository) MarkValidated(ctx context.Context, tx pgx.Tx, id, validatedBy string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE milestones
		SET status='validated', validated_at=get_tx_timestamp(), validated_by=$2, updated_at=get_tx_timestamp()
		WHERE id=$1 AND status='submitted'`,
		id, validatedBy)
	if err != nil {
		return fmt.Errorf("milestone: mark validated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkRejected moves submitted → rejected with the reviewer's reason.
func (r *Repository) MarkRejected(ctx context.Context, tx pgx.Tx, id, rejectedBy, reason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE milestones
		SET status='rejected', validated_by=$2, rejection_reason=$3, updated_at=get_tx_timestamp()
		WHERE id=$1 AND status='submitted'`,
		id, rejectedBy, reason)
	if err != nil {
		return fmt.Errorf("milestone: mark rejected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// Reopen pushes a validated, completed, or submitted milestone back to
// rejected. Dispute resolutions of type work_completion use this to demand
// rework after the fact.
func (r *Repository) Reopen(ctx context.Context, tx pgx.Tx, id, reason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE milestones
		SET status='rejected', rejection_reason=$2, updated_at=get_tx_timestamp()
		WHERE id=$1 AND status IN ('submitted', 'validated', 'completed')`,
		id, reason)
	if err != nil {
		return fmt.Errorf("milestone: reopen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkCompleted moves validated → completed once the derived payment reached
// custody. When this was the last open milestone the contract completes too.
// A milestone already completed is a no-op so capture confirmations can
// replay.
func (r *Repository) MarkCompleted(ctx context.Context, tx pgx.Tx, id string) error {
	var contractID string
	err := tx.QueryRow(ctx, `
		UPDATE milestones
		SET status='completed', paid_at=get_tx_timestamp(), updated_at=get_tx_timestamp()
		WHERE id=$1 AND status='validated'
		RETURNING contract_id`, id).Scan(&contractID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var status Status
			if err := tx.QueryRow(ctx, `SELECT status FROM milestones WHERE id=$1`, id).Scan(&status); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("milestone: mark completed: %w", err)
			}
			if status == StatusCompleted {
				return nil
			}
			return fmt.Errorf("%w: cannot complete from %s", ErrStatusConflict, status)
		}
		return fmt.Errorf("milestone: mark completed: %w", err)
	}

	var remaining int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM milestones WHERE contract_id=$1 AND status <> 'completed'`,
		contractID).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("milestone: count remaining: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE contracts SET status='completed', updated_at=get_tx_timestamp()
			WHERE id=$1 AND status='active'`, contractID); err != nil {
			return fmt.Errorf("milestone: complete contract: %w", err)
		}
	}
	return nil
}

// AppendProofs merges additional proofs into the stored set.
func (r *Repository) AppendProofs(ctx context.Context, tx pgx.Tx, id string, proofs []proof.Proof) error {
	proofsJSON, err := json.Marshal(proofs)
	if err != nil {
		return fmt.Errorf("milestone: marshal proofs: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE milestones
		SET proofs = proofs || $2::jsonb, updated_at=get_tx_timestamp()
		WHERE id=$1`,
		id, proofsJSON)
	if err != nil {
		return fmt.Errorf("milestone: append proofs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMilestone(row pgx.Row) (Milestone, error) {
	var (
		m               Milestone
		proofsRaw       []byte
		verificationRaw []byte
	)
	err := row.Scan(
		&m.ID, &m.ContractID, &m.Seq, &m.Designation, &m.PreTax, &m.Total, &m.Percent,
		&m.PlannedAt, &m.SubmittedAt, &m.ValidatedAt, &m.PaidAt,
		&m.TriggerConditions, &m.Deliverables, &m.Status,
		&m.ValidatedBy, &m.RejectionReason,
		&proofsRaw, &m.Report, &verificationRaw, &m.RiskLevel, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return Milestone{}, err
	}
	if len(proofsRaw) > 0 {
		if err := json.Unmarshal(proofsRaw, &m.Proofs); err != nil {
			return Milestone{}, fmt.Errorf("milestone: decode proofs: %w", err)
		}
	}
	if len(verificationRaw) > 0 {
		var v Verification
		if err := json.Unmarshal(verificationRaw, &v); err != nil {
			return Milestone{}, fmt.Errorf("milestone: decode verification: %w", err)
		}
		m.Verification = &v
	}
	return m, nil
}
