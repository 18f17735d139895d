package contract

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/notify"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MilestonePlanner materializes the agreed payment schedule inside the same
// transaction that creates the contract.
type MilestonePlanner interface {
	CreateSchedule(ctx context.Context, tx pgx.Tx, c Contract, entries []ScheduleEntry) error
}

type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Contract, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (Contract, error)
}

type CreateParams struct {
	Title        string
	ClientID     string
	EnterpriseID string
	TotalPreTax  float64
	TaxRate      float64
	Schedule     []ScheduleEntry
}

type Service struct {
	pool     TxBeginner
	repo     Store
	planner  MilestonePlanner
	notifier notify.Notifier

	now   func() time.Time
	newID func() string
}

func NewService(pool TxBeginner, repo Store, planner MilestonePlanner, notifier notify.Notifier) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		planner:  planner,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create records a signed contract together with its full milestone schedule.
// The schedule percentages must cover the contract total exactly.
func (s *Service) Create(ctx context.Context, params CreateParams) (Contract, error) {
	if params.Title == "" {
		return Contract{}, fmt.Errorf("contract: title required")
	}
	if params.ClientID == "" || params.EnterpriseID == "" {
		return Contract{}, fmt.Errorf("contract: both parties required")
	}
	if params.ClientID == params.EnterpriseID {
		return Contract{}, fmt.Errorf("contract: parties must be distinct")
	}
	if params.TotalPreTax <= 0 {
		return Contract{}, fmt.Errorf("contract: total must be positive")
	}
	if params.TaxRate < 0 || params.TaxRate > 1 {
		return Contract{}, fmt.Errorf("contract: invalid tax rate")
	}
	if err := validateSchedule(params.Schedule); err != nil {
		return Contract{}, err
	}

	total := math.Round(params.TotalPreTax*(1+params.TaxRate)*100) / 100

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.Insert(ctx, tx, InsertParams{
		Reference:    s.reference(),
		Title:        params.Title,
		ClientID:     params.ClientID,
		EnterpriseID: params.EnterpriseID,
		TotalPreTax:  params.TotalPreTax,
		TaxRate:      params.TaxRate,
		Total:        total,
	})
	if err != nil {
		return Contract{}, err
	}

	if err := s.planner.CreateSchedule(ctx, tx, rec, params.Schedule); err != nil {
		return Contract{}, err
	}

	for _, recipient := range []string{rec.ClientID, rec.EnterpriseID} {
		err := s.notifier.Notify(ctx, tx, notify.Notification{
			Type:        "contract.created",
			RecipientID: recipient,
			Title:       "Contract signed",
			Message:     fmt.Sprintf("Contract %s is active with %d milestones", rec.Reference, len(params.Schedule)),
			Data:        map[string]any{"contract_id": rec.ID, "total": rec.Total},
		})
		if err != nil {
			return Contract{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit: %w", err)
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, tx pgx.Tx, id string) (Contract, error) {
	return s.repo.Get(ctx, tx, id)
}

// GetByID loads one contract in its own read transaction.
func (s *Service) GetByID(ctx context.Context, id string) (Contract, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.Get(ctx, tx, id)
	if err != nil {
		return Contract{}, err
	}
	return c, tx.Commit(ctx)
}

// ListForUser returns the contracts where the user is a party, newest first.
func (s *Service) ListForUser(ctx context.Context, pool *pgxpool.Pool, userID string, page, pageSize int) ([]Contract, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := `
        SELECT ` + contractColumns + `
        FROM contracts
        WHERE client_id = $1 OR enterprise_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3
    `
	rows, err := pool.Query(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("contract: list: %w", err)
	}
	defer rows.Close()

	contracts := []Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, err
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("contract: list: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM contracts WHERE client_id=$1 OR enterprise_id=$1`
	if err := pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return contracts, total, nil
}

func validateSchedule(entries []ScheduleEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("contract: at least one milestone required")
	}
	seen := make(map[int]bool, len(entries))
	var sum float64
	for _, e := range entries {
		if e.Seq <= 0 {
			return fmt.Errorf("contract: milestone sequence must be positive")
		}
		if seen[e.Seq] {
			return fmt.Errorf("contract: duplicate milestone sequence %d", e.Seq)
		}
		seen[e.Seq] = true
		if e.Designation == "" {
			return fmt.Errorf("contract: milestone %d missing designation", e.Seq)
		}
		if e.Percent <= 0 {
			return fmt.Errorf("contract: milestone %d percent must be positive", e.Seq)
		}
		sum += e.Percent
	}
	if math.Abs(sum-100) > 0.01 {
		return fmt.Errorf("contract: schedule percentages sum to %.2f, want 100", sum)
	}
	return nil
}

func (s *Service) reference() string {
	short := strings.ToUpper(strings.ReplaceAll(s.newID(), "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("CTR-%d-%s", s.now().UTC().Year(), short)
}
