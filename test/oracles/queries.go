package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks run against a live database under
// concurrent load. Each query selects violating rows, so an empty result
// means the invariant held.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_escrow_ceiling",
			SQL: `SELECT p.contract_id, SUM(p.total - p.refunded_total) AS committed, c.total
                  FROM payments p
                  JOIN contracts c ON c.id = p.contract_id
                  WHERE p.status IN ('held', 'released', 'disputed')
                  GROUP BY p.contract_id, c.total
                  HAVING SUM(p.total - p.refunded_total) > c.total * 1.05`,
		},
		{
			Name: "O2_single_hold_per_payment",
			SQL: `SELECT p.id, COUNT(*) FROM payments p,
                       jsonb_array_elements(p.status_history) e
                  WHERE e->>'status' = 'held'
                  GROUP BY p.id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_one_open_dispute_per_payment",
			SQL: `SELECT payment_id, COUNT(*) FROM disputes
                  WHERE payment_id IS NOT NULL
                    AND status IN ('opened', 'under_review', 'mediation')
                  GROUP BY payment_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_released_never_disputed",
			SQL: `SELECT p.id, d.id AS dispute_id FROM payments p
                  JOIN disputes d ON d.payment_id = p.id
                  WHERE p.status = 'released'
                    AND d.status IN ('opened', 'under_review', 'mediation')`,
		},
		{
			Name: "O5_validated_milestone_attribution",
			SQL: `SELECT id, status FROM milestones
                  WHERE status IN ('validated', 'completed')
                    AND (validated_by IS NULL OR validated_at IS NULL)`,
		},
		{
			Name: "O6_release_stamps",
			SQL: `SELECT id FROM payments
                  WHERE (status = 'released' AND (released_at IS NULL OR released_by IS NULL))
                     OR (status = 'held' AND paid_at IS NULL)`,
		},
		{
			Name: "O7_resolved_dispute_complete",
			SQL: `SELECT id FROM disputes
                  WHERE status IN ('resolved_client', 'resolved_enterprise')
                    AND (resolution_type IS NULL OR beneficiary IS NULL OR resolved_at IS NULL)`,
		},
		{
			Name: "O8_contract_dispute_consistency",
			SQL: `SELECT c.id FROM contracts c
                  WHERE c.status = 'disputed'
                    AND NOT EXISTS (
                        SELECT 1 FROM disputes d
                        WHERE d.contract_id = c.id
                          AND d.status IN ('opened', 'under_review', 'mediation'))`,
		},
		{
			Name: "O9_outbox_drains",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O10_idempotency_gate",
			SQL: `SELECT p.id, p.reference FROM payments p
                  WHERE p.reference LIKE 'IDM-%'
                    AND NOT EXISTS (
                        SELECT 1 FROM idempotency k WHERE 'IDM-' || k.key = p.reference)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if every invariant held.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
