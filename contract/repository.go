package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when no contract row exists for the identifier.
	ErrNotFound = errors.New("contract: not found")
	// ErrStatusConflict signals the contract was not in the expected status.
	ErrStatusConflict = errors.New("contract: status conflict")
)

const contractColumns = `id, reference, title, client_id, enterprise_id, total_pre_tax, tax_rate, total, status, signed_at, created_at, updated_at`

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

type InsertParams struct {
	Reference    string
	Title        string
	ClientID     string
	EnterpriseID string
	TotalPreTax  float64
	TaxRate      float64
	Total        float64
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Contract, error) {
	insertSQL := `
        INSERT INTO contracts (reference, title, client_id, enterprise_id, total_pre_tax, tax_rate, total, status, signed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'active', get_tx_timestamp())
        RETURNING ` + contractColumns

	row := tx.QueryRow(ctx, insertSQL,
		params.Reference,
		params.Title,
		params.ClientID,
		params.EnterpriseID,
		params.TotalPreTax,
		params.TaxRate,
		params.Total,
	)
	c, err := scanContract(row)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: insert: %w", err)
	}
	return c, nil
}

// GetForUpdate loads a contract and holds its row lock until the transaction
// ends. Every settlement mutation locks the contract first so concurrent
// payments on the same contract serialize.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Contract, error) {
	row := tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=$1 FOR UPDATE`, id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: get for update: %w", err)
	}
	return c, nil
}

func (r *Repository) Get(ctx context.Context, tx pgx.Tx, id string) (Contract, error) {
	row := tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=$1`, id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: get: %w", err)
	}
	return c, nil
}

// SetStatus moves the contract from one status to another. The WHERE clause
// carries the expected current status so a lost race surfaces as
// ErrStatusConflict instead of a silent overwrite.
func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s not allowed", ErrStatusConflict, from, to)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE contracts SET status=$3, updated_at=get_tx_timestamp() WHERE id=$1 AND status=$2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("contract: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current Status
		if err := tx.QueryRow(ctx, `SELECT status FROM contracts WHERE id=$1`, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("contract: set status: %w", err)
		}
		return fmt.Errorf("%w: expected %s, found %s", ErrStatusConflict, from, current)
	}
	return nil
}

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	err := row.Scan(
		&c.ID, &c.Reference, &c.Title, &c.ClientID, &c.EnterpriseID,
		&c.TotalPreTax, &c.TaxRate, &c.Total, &c.Status,
		&c.SignedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
