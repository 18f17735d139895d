package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested settlement account does not exist.
var ErrNotFound = errors.New("account: not found")

const profileColumns = `id, user_id, COALESCE(processor_account_ref, ''), charges_enabled, payouts_enabled,
       identity_verified, total_received, total_pending, total_disputes, created_at, updated_at`

// Repository provides access to enterprise settlement accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByUserID fetches the settlement account owned by the given user.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM enterprise_accounts WHERE user_id = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("account: query by user id: %w", err)
	}
	return p, nil
}

// Create provisions an empty settlement account for an enterprise user.
func (r *Repository) Create(ctx context.Context, userID string) (Profile, error) {
	query := `
		INSERT INTO enterprise_accounts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING ` + profileColumns

	p, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return Profile{}, fmt.Errorf("account: create: %w", err)
	}
	return p, nil
}

// SetProcessorAccount records the processor-side account reference and its
// capability flags after onboarding completes.
func (r *Repository) SetProcessorAccount(ctx context.Context, userID, ref string, chargesEnabled, payoutsEnabled, identityVerified bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE enterprise_accounts
		SET processor_account_ref = $2,
		    charges_enabled = $3,
		    payouts_enabled = $4,
		    identity_verified = $5,
		    updated_at = now()
		WHERE user_id = $1`,
		userID, ref, chargesEnabled, payoutsEnabled, identityVerified)
	if err != nil {
		return fmt.Errorf("account: set processor account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplySettlement adjusts the running totals inside the caller's transaction.
// A capture moves funds into pending; a release moves pending into received; a
// refund simply drains pending.
func (r *Repository) ApplySettlement(ctx context.Context, tx pgx.Tx, userID string, receivedDelta, pendingDelta float64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE enterprise_accounts
		SET total_received = total_received + $2,
		    total_pending = total_pending + $3,
		    updated_at = get_tx_timestamp()
		WHERE user_id = $1`,
		userID, receivedDelta, pendingDelta)
	if err != nil {
		return fmt.Errorf("account: apply settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDispute bumps the lifetime dispute counter used by risk scoring.
func (r *Repository) CountDispute(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE enterprise_accounts
		SET total_disputes = total_disputes + 1, updated_at = get_tx_timestamp()
		WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("account: count dispute: %w", err)
	}
	return nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.UserID, &p.ProcessorAccountRef, &p.ChargesEnabled, &p.PayoutsEnabled,
		&p.IdentityVerified, &p.TotalReceived, &p.TotalPending, &p.TotalDisputes,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
