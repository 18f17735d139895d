package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAlertNotFound is returned when the alert to acknowledge does not exist.
var ErrAlertNotFound = errors.New("fraud: alert not found")

// Store backs the engine's Source and Recorder with the shared pool. Reads run
// outside any transaction: the ledger re-checks hard limits under its row
// locks, so slightly stale rule inputs are acceptable.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ContractSnapshot(ctx context.Context, contractID string) (ContractSnapshot, error) {
	var snap ContractSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT total, created_at, client_id, enterprise_id FROM contracts WHERE id=$1`,
		contractID,
	).Scan(&snap.Total, &snap.CreatedAt, &snap.ClientID, &snap.EnterpriseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContractSnapshot{}, fmt.Errorf("fraud: contract %s not found", contractID)
		}
		return ContractSnapshot{}, fmt.Errorf("fraud: contract snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) SettledSum(ctx context.Context, contractID string) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM payments
		WHERE contract_id = $1
		  AND status IN ('awaiting_payment', 'processing', 'held', 'released')`,
		contractID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("fraud: settled sum: %w", err)
	}
	return sum, nil
}

func (s *Store) PaymentsSince(ctx context.Context, contractID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM payments
		WHERE contract_id = $1 AND created_at >= $2 AND status <> 'cancelled'`,
		contractID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("fraud: payment velocity: %w", err)
	}
	return count, nil
}

func (s *Store) PayeeAccount(ctx context.Context, payeeID string) (time.Duration, bool, error) {
	var createdAt time.Time
	err := s.pool.QueryRow(ctx, `SELECT created_at FROM users WHERE id=$1`, payeeID).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("fraud: payee account: %w", err)
	}
	return time.Since(createdAt), true, nil
}

func (s *Store) DisputesAgainst(ctx context.Context, payeeID string, since time.Time) (int, int, error) {
	var total, lost int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'resolved_client')
		FROM disputes
		WHERE respondent = $1 AND created_at >= $2`,
		payeeID, since,
	).Scan(&total, &lost)
	if err != nil {
		return 0, 0, fmt.Errorf("fraud: dispute history: %w", err)
	}
	return total, lost, nil
}

func (s *Store) CompletedContracts(ctx context.Context, payeeID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contracts WHERE enterprise_id = $1 AND status = 'completed'`,
		payeeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("fraud: completed contracts: %w", err)
	}
	return count, nil
}

func (s *Store) MilestoneSnapshot(ctx context.Context, milestoneID string) (MilestoneSnapshot, error) {
	var (
		snap      MilestoneSnapshot
		proofsRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT total, planned_at, proofs FROM milestones WHERE id=$1`,
		milestoneID,
	).Scan(&snap.Amount, &snap.PlannedAt, &proofsRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MilestoneSnapshot{}, fmt.Errorf("fraud: milestone %s not found", milestoneID)
		}
		return MilestoneSnapshot{}, fmt.Errorf("fraud: milestone snapshot: %w", err)
	}
	if len(proofsRaw) > 0 {
		if err := json.Unmarshal(proofsRaw, &snap.Proofs); err != nil {
			return MilestoneSnapshot{}, fmt.Errorf("fraud: decode proofs: %w", err)
		}
	}
	return snap, nil
}

func (s *Store) RecordCheck(ctx context.Context, rec CheckRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("fraud: marshal check details: %w", err)
	}

	var milestoneID any
	if rec.MilestoneID != "" {
		milestoneID = rec.MilestoneID
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO fraud_checks
		    (contract_id, milestone_id, payment_type, amount, total_score, risk_level, rules_triggered, details, blocked, requires_review)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10)`,
		rec.ContractID, milestoneID, rec.PaymentType, rec.Amount,
		rec.TotalScore, rec.RiskLevel, rec.RulesTriggered, details,
		rec.Blocked, rec.RequiresReview,
	)
	if err != nil {
		return fmt.Errorf("fraud: record check: %w", err)
	}
	return nil
}

func (s *Store) RecordAlerts(ctx context.Context, alerts []Alert) error {
	for _, a := range alerts {
		details, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("fraud: marshal alert details: %w", err)
		}
		var milestoneID, paymentID any
		if a.MilestoneID != "" {
			milestoneID = a.MilestoneID
		}
		if a.PaymentID != "" {
			paymentID = a.PaymentID
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO fraud_alerts (contract_id, milestone_id, payment_id, rule_code, severity, message, details)
			VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb)`,
			a.ContractID, milestoneID, paymentID, a.RuleCode, a.Severity, a.Message, details,
		)
		if err != nil {
			return fmt.Errorf("fraud: record alert: %w", err)
		}
	}
	return nil
}

// PendingAlerts lists unacknowledged alerts, newest first, for the review UI.
func (s *Store) PendingAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, contract_id, COALESCE(milestone_id::text, ''), COALESCE(payment_id::text, ''),
		       rule_code, severity, message, details, created_at
		FROM fraud_alerts
		WHERE NOT acknowledged
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fraud: pending alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var (
			a          Alert
			detailsRaw []byte
		)
		if err := rows.Scan(&a.ID, &a.ContractID, &a.MilestoneID, &a.PaymentID,
			&a.RuleCode, &a.Severity, &a.Message, &detailsRaw, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("fraud: scan alert: %w", err)
		}
		if len(detailsRaw) > 0 {
			if err := json.Unmarshal(detailsRaw, &a.Details); err != nil {
				return nil, fmt.Errorf("fraud: decode alert details: %w", err)
			}
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fraud: iterate alerts: %w", err)
	}
	return alerts, nil
}

// Stats aggregates recent engine activity for the review dashboard.
type Stats struct {
	TotalChecks   int
	Blocked       int
	RequireReview int
	AverageScore  float64
	ByRiskLevel   map[RiskLevel]int
}

// RecentStats summarizes the checks recorded in the trailing window.
func (s *Store) RecentStats(ctx context.Context, since time.Time) (Stats, error) {
	stats := Stats{ByRiskLevel: map[RiskLevel]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE blocked),
		       COUNT(*) FILTER (WHERE requires_review),
		       COALESCE(AVG(total_score), 0)
		FROM fraud_checks
		WHERE created_at >= $1`, since,
	).Scan(&stats.TotalChecks, &stats.Blocked, &stats.RequireReview, &stats.AverageScore)
	if err != nil {
		return Stats{}, fmt.Errorf("fraud: stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT risk_level, COUNT(*)
		FROM fraud_checks
		WHERE created_at >= $1
		GROUP BY risk_level`, since)
	if err != nil {
		return Stats{}, fmt.Errorf("fraud: stats by level: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			level RiskLevel
			count int
		)
		if err := rows.Scan(&level, &count); err != nil {
			return Stats{}, fmt.Errorf("fraud: scan stats: %w", err)
		}
		stats.ByRiskLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("fraud: iterate stats: %w", err)
	}
	return stats, nil
}

// AcknowledgeAlert marks an alert reviewed and records the action taken.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID, reviewerID, action string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fraud_alerts
		SET acknowledged = true, acknowledged_by = $2, acknowledged_at = now(), action_taken = $3
		WHERE id = $1 AND NOT acknowledged`,
		alertID, reviewerID, action)
	if err != nil {
		return fmt.Errorf("fraud: acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}
