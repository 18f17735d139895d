package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"escrowflow/proof"
)

const disputeColumns = `id, reference, contract_id, COALESCE(payment_id::text, ''), COALESCE(milestone_id::text, ''),
       opened_by, respondent, reason, title, description, COALESCE(contested_amount, 0),
       opener_proofs, respondent_proofs, status, COALESCE(mediator_id::text, ''),
       COALESCE(resolution_type, ''), COALESCE(resolution_description, ''), COALESCE(resolution_amount, 0),
       COALESCE(beneficiary, ''), resolved_at, COALESCE(resolved_by::text, ''),
       respond_by, resolve_by, events, created_at, updated_at`

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

type InsertParams struct {
	Reference       string
	ContractID      string
	PaymentID       string
	MilestoneID     string
	OpenedBy        string
	Respondent      string
	Reason          string
	Title           string
	Description     string
	ContestedAmount float64
	Proofs          []proof.Proof
	RespondBy       time.Time
	ResolveBy       time.Time
	Now             time.Time
}

// Insert persists a new dispute. The partial unique index on open disputes
// turns a concurrent second open into ErrAlreadyDisputed.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Dispute, error) {
	proofs := params.Proofs
	if proofs == nil {
		proofs = []proof.Proof{}
	}
	proofsJSON, err := json.Marshal(proofs)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: marshal proofs: %w", err)
	}
	events, err := eventEntry(Event{
		Type:       EventStatusChange,
		ActorID:    params.OpenedBy,
		Message:    "dispute opened",
		Data:       map[string]any{"reason": params.Reason},
		OccurredAt: params.Now,
	})
	if err != nil {
		return Dispute{}, err
	}

	var paymentID, milestoneID any
	if params.PaymentID != "" {
		paymentID = params.PaymentID
	}
	if params.MilestoneID != "" {
		milestoneID = params.MilestoneID
	}

	insertSQL := `
        INSERT INTO disputes
            (reference, contract_id, payment_id, milestone_id, opened_by, respondent,
             reason, title, description, contested_amount, opener_proofs, status,
             respond_by, resolve_by, events)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,'opened',$12,$13,$14::jsonb)
        RETURNING ` + disputeColumns

	row := tx.QueryRow(ctx, insertSQL,
		params.Reference, params.ContractID, paymentID, milestoneID,
		params.OpenedBy, params.Respondent, params.Reason, params.Title,
		params.Description, params.ContestedAmount, proofsJSON,
		params.RespondBy, params.ResolveBy, events,
	)
	d, err := scanDispute(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Dispute{}, ErrAlreadyDisputed
		}
		return Dispute{}, fmt.Errorf("dispute: insert: %w", err)
	}
	return d, nil
}

// GetForUpdate loads a dispute and holds its row lock until the transaction
// ends.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Dispute, error) {
	row := tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id=$1 FOR UPDATE`, id)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get for update: %w", err)
	}
	return d, nil
}

func (r *Repository) Get(ctx context.Context, tx pgx.Tx, id string) (Dispute, error) {
	row := tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id=$1`, id)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}
	return d, nil
}

// Transition moves the dispute between statuses conditionally and appends the
// timeline event in the same statement.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, id string, from, to Status, ev Event) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s not allowed", ErrStatusConflict, from, to)
	}
	events, err := eventEntry(ev)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status=$3,
		    events = events || $4::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status=$2`,
		id, from, to, events)
	if err != nil {
		return fmt.Errorf("dispute: transition %s -> %s: %w", from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// AppendEvent adds a timeline entry without changing status.
func (r *Repository) AppendEvent(ctx context.Context, tx pgx.Tx, id string, ev Event) error {
	events, err := eventEntry(ev)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes SET events = events || $2::jsonb, updated_at=get_tx_timestamp()
		WHERE id=$1`, id, events)
	if err != nil {
		return fmt.Errorf("dispute: append event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendProofs merges proofs into the opener's or respondent's set.
func (r *Repository) AppendProofs(ctx context.Context, tx pgx.Tx, id string, fromOpener bool, proofs []proof.Proof, ev Event) error {
	proofsJSON, err := json.Marshal(proofs)
	if err != nil {
		return fmt.Errorf("dispute: marshal proofs: %w", err)
	}
	events, err := eventEntry(ev)
	if err != nil {
		return err
	}
	column := "respondent_proofs"
	if fromOpener {
		column = "opener_proofs"
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET `+column+` = `+column+` || $2::jsonb,
		    events = events || $3::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1`, id, proofsJSON, events)
	if err != nil {
		return fmt.Errorf("dispute: append proofs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMediator assigns the mediator and moves the dispute to mediation.
func (r *Repository) SetMediator(ctx context.Context, tx pgx.Tx, id string, from Status, mediatorID string, ev Event) error {
	if !CanTransition(from, StatusMediation) {
		return fmt.Errorf("%w: %s -> mediation not allowed", ErrStatusConflict, from)
	}
	events, err := eventEntry(ev)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status='mediation',
		    mediator_id=$3,
		    events = events || $4::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status=$2`,
		id, from, mediatorID, events)
	if err != nil {
		return fmt.Errorf("dispute: set mediator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// SetResolution records the verdict and flips to the resolved status.
func (r *Repository) SetResolution(ctx context.Context, tx pgx.Tx, id string, from, to Status, res Resolution, resolvedBy string, ev Event) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s not allowed", ErrStatusConflict, from, to)
	}
	events, err := eventEntry(ev)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status=$3,
		    resolution_type=$4,
		    resolution_description=$5,
		    resolution_amount=$6,
		    beneficiary=$7,
		    resolved_at=get_tx_timestamp(),
		    resolved_by=$8,
		    events = events || $9::jsonb,
		    updated_at=get_tx_timestamp()
		WHERE id=$1 AND status=$2`,
		id, from, to, res.Type, res.Description, res.Amount, res.Beneficiary, resolvedBy, events)
	if err != nil {
		return fmt.Errorf("dispute: set resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// OverdueForEscalation lists open disputes past their resolution deadline.
func (r *Repository) OverdueForEscalation(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := tx.Query(ctx, `
		SELECT id FROM disputes
		WHERE status IN ('opened', 'under_review', 'mediation')
		  AND resolve_by IS NOT NULL AND resolve_by <= $1
		ORDER BY resolve_by
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("dispute: overdue: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("dispute: scan overdue id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate overdue ids: %w", err)
	}
	return ids, nil
}

func eventEntry(ev Event) (string, error) {
	b, err := json.Marshal([]Event{ev})
	if err != nil {
		return "", fmt.Errorf("dispute: marshal event: %w", err)
	}
	return string(b), nil
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var (
		d             Dispute
		openerRaw     []byte
		respondentRaw []byte
		eventsRaw     []byte
	)
	err := row.Scan(
		&d.ID, &d.Reference, &d.ContractID, &d.PaymentID, &d.MilestoneID,
		&d.OpenedBy, &d.Respondent, &d.Reason, &d.Title, &d.Description, &d.ContestedAmount,
		&openerRaw, &respondentRaw, &d.Status, &d.MediatorID,
		&d.ResolutionType, &d.ResolutionDescription, &d.ResolutionAmount,
		&d.Beneficiary, &d.ResolvedAt, &d.ResolvedBy,
		&d.RespondBy, &d.ResolveBy, &eventsRaw, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return Dispute{}, err
	}
	if len(openerRaw) > 0 {
		if err := json.Unmarshal(openerRaw, &d.OpenerProofs); err != nil {
			return Dispute{}, fmt.Errorf("dispute: decode opener proofs: %w", err)
		}
	}
	if len(respondentRaw) > 0 {
		if err := json.Unmarshal(respondentRaw, &d.RespondentProofs); err != nil {
			return Dispute{}, fmt.Errorf("dispute: decode respondent proofs: %w", err)
		}
	}
	if len(eventsRaw) > 0 {
		if err := json.Unmarshal(eventsRaw, &d.Events); err != nil {
			return Dispute{}, fmt.Errorf("dispute: decode events: %w", err)
		}
	}
	return d, nil
}
