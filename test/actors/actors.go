package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errPaymentMoved = errors.New("payment left held state")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func historyEntry(status, by, reason string) string {
	return fmt.Sprintf(`[{"status":%q,"changed_at":%q,"changed_by":%q,"reason":%q}]`,
		status, time.Now().UTC().Format(time.RFC3339Nano), by, reason)
}

// Capturer opens milestone payments and walks them through the capture
// pipeline: pending -> awaiting_payment -> processing -> held. Creation locks
// the contract row and enforces the escrow ceiling (total + 5%) against the
// sum of in-flight and settled payments, the same guard the payment service
// applies, so concurrent capturers cannot jointly overshoot. Every later hop
// is a conditional update guarded by the previous status.
func Capturer(ctx context.Context, pool *pgxpool.Pool, contractID, milestoneID, payerID, payeeID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var total float64
		if err := tx.QueryRow(ctx, `SELECT total FROM contracts WHERE id=$1 FOR UPDATE`, contractID).Scan(&total); err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		var committed float64
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(total - refunded_total), 0) FROM payments
			WHERE contract_id=$1
			  AND status IN ('pending','awaiting_payment','processing','held','released','disputed')`,
			contractID).Scan(&committed); err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if committed+120 > total*1.05 {
			_ = tx.Rollback(ctx)
			time.Sleep(time.Duration(50+rand.Intn(50)) * time.Millisecond)
			continue
		}
		ref := fmt.Sprintf("PAY-%012X", rand.Int63())
		var payID string
		err = tx.QueryRow(ctx, `
			INSERT INTO payments
			    (reference, contract_id, milestone_id, payment_type, pre_tax, tax, total,
			     payer_id, payee_id, status, status_history, held_until)
			VALUES ($1,$2,$3,'milestone',100,20,120,$4,$5,'pending',$6::jsonb, now())
			RETURNING id`,
			ref, contractID, milestoneID, payerID, payeeID,
			historyEntry("pending", payerID, "payment created")).Scan(&payID)
		if err != nil {
			_ = tx.Rollback(ctx)
			if !isUniqueViolation(err) {
				time.Sleep(50 * time.Millisecond)
			}
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			continue
		}
		hops := []struct{ from, to string }{
			{"pending", "awaiting_payment"},
			{"awaiting_payment", "processing"},
		}
		for _, h := range hops {
			_, err = pool.Exec(ctx, `
				UPDATE payments
				SET status=$3, status_history = status_history || $4::jsonb, updated_at=now()
				WHERE id=$1 AND status=$2`,
				payID, h.from, h.to, historyEntry(h.to, payerID, "capture pipeline"))
			if err != nil {
				// chaos may kill the backend mid-pipeline; the payment
				// simply stalls in its current status
				break
			}
		}
		tx, err = pool.Begin(ctx)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE payments
			SET status='held', capture_ref=$2, paid_at=now(),
			    status_history = status_history || $3::jsonb, updated_at=now()
			WHERE id=$1 AND status='processing'`,
			payID, "ch_"+payID[:8], historyEntry("held", payerID, "funds escrowed"))
		if err == nil && tag.RowsAffected() == 1 {
			_, err = tx.Exec(ctx, `
				INSERT INTO outbox (topic, recipient_id, payload)
				VALUES ('payment.held', $1, jsonb_build_object('payment_id', $2))`,
				payeeID, payID)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		_ = tx.Commit(ctx)
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Releaser sweeps held payments whose hold window elapsed. SKIP LOCKED keeps
// concurrent sweepers off each other's rows; the status guard makes a release
// racing a dispute lose cleanly.
func Releaser(ctx context.Context, pool *pgxpool.Pool, contractID, releasedBy string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var payID, payeeID string
		err = tx.QueryRow(ctx, `
			SELECT id, payee_id FROM payments
			WHERE contract_id=$1 AND status='held' AND held_until <= now()
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1`, contractID).Scan(&payID, &payeeID)
		if err == nil {
			tag, uerr := tx.Exec(ctx, `
				UPDATE payments
				SET status='released', released_at=now(), released_by=$2,
				    status_history = status_history || $3::jsonb, updated_at=now()
				WHERE id=$1 AND status='held'`,
				payID, releasedBy, historyEntry("released", releasedBy, "hold window elapsed"))
			if uerr == nil && tag.RowsAffected() == 1 {
				_, uerr = tx.Exec(ctx, `
					INSERT INTO outbox (topic, recipient_id, payload)
					VALUES ('payment.released', $1, jsonb_build_object('payment_id', $2))`,
					payeeID, payID)
			}
			if uerr != nil {
				_ = tx.Rollback(ctx)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Disputer freezes a held payment behind a dispute, then resolves it with a
// refund. Open and freeze share a transaction: if the payment slipped out of
// 'held' first, or the partial unique index already carries an open dispute,
// the whole open rolls back.
func Disputer(ctx context.Context, pool *pgxpool.Pool, contractID, clientID, enterpriseID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var payID string
		err = tx.QueryRow(ctx, `
			SELECT id FROM payments
			WHERE contract_id=$1 AND status='held'
			ORDER BY random()
			FOR UPDATE SKIP LOCKED
			LIMIT 1`, contractID).Scan(&payID)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		var dispID string
		err = tx.QueryRow(ctx, `
			INSERT INTO disputes
			    (reference, contract_id, payment_id, opened_by, respondent,
			     reason, title, description, contested_amount)
			VALUES ($1,$2,$3,$4,$5,'quality','stress dispute','deliverable contested',120)
			RETURNING id`,
			fmt.Sprintf("DSP-%012X", rand.Int63()), contractID, payID, clientID, enterpriseID).Scan(&dispID)
		if err == nil {
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx, `
				UPDATE payments
				SET status='disputed', status_history = status_history || $2::jsonb, updated_at=now()
				WHERE id=$1 AND status='held'`,
				payID, historyEntry("disputed", clientID, "dispute opened"))
			if err == nil && tag.RowsAffected() == 0 {
				err = errPaymentMoved
			}
			if err == nil {
				_, err = tx.Exec(ctx, `UPDATE contracts SET status='disputed', updated_at=now()
				                       WHERE id=$1 AND status='active'`, contractID)
			}
		}
		if err != nil {
			// unique violations and lost holds are expected under
			// contention; anything else is likely chaos cutting the
			// connection
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			continue
		}

		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)

		// Resolve with a full refund: verdict, unfreeze and contract
		// reactivation land atomically.
		tx, err = pool.Begin(ctx)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE disputes
			SET status='resolved_client', resolution_type='full_refund',
			    resolution_description='stress resolution', beneficiary='client',
			    resolved_at=now(), resolved_by=$2, updated_at=now()
			WHERE id=$1 AND status IN ('opened','under_review','mediation')`,
			dispID, clientID)
		if err == nil {
			_, err = tx.Exec(ctx, `
				UPDATE payments
				SET status='refunded', refunded_total=total,
				    status_history = status_history || $2::jsonb, updated_at=now()
				WHERE id=$1 AND status='disputed'`,
				payID, historyEntry("refunded", clientID, "dispute resolved"))
		}
		if err == nil {
			_, err = tx.Exec(ctx, `
				UPDATE contracts SET status='active', updated_at=now()
				WHERE id=$1 AND status='disputed'
				  AND NOT EXISTS (
				      SELECT 1 FROM disputes
				      WHERE contract_id=$1 AND id <> $2
				        AND status IN ('opened','under_review','mediation'))`,
				contractID, dispID)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		_ = tx.Commit(ctx)
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// Submitter drives the milestone delivery loop from the enterprise side:
// pending -> in_progress -> submitted, and resubmits after a rejection.
func Submitter(ctx context.Context, pool *pgxpool.Pool, milestoneID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = pool.Exec(ctx, `UPDATE milestones SET status='in_progress', updated_at=now()
		                       WHERE id=$1 AND status='pending'`, milestoneID)
		_, _ = pool.Exec(ctx, `
			UPDATE milestones
			SET status='submitted', submitted_at=now(),
			    proofs = proofs || '[{"kind":"url","value":"https://proof.example/x"}]'::jsonb,
			    updated_at=now()
			WHERE id=$1 AND status IN ('in_progress','rejected')`, milestoneID)
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Validator reviews submitted milestones, mostly rejecting so the delivery
// loop keeps cycling. Validation always stamps validated_by and validated_at
// in the same statement as the status flip.
func Validator(ctx context.Context, pool *pgxpool.Pool, milestoneID, validatorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(4) == 0 {
			_, _ = pool.Exec(ctx, `
				UPDATE milestones
				SET status='validated', validated_by=$2, validated_at=now(), updated_at=now()
				WHERE id=$1 AND status='submitted'`, milestoneID, validatorID)
			// Reopen so the cycle continues for the rest of the run.
			_, _ = pool.Exec(ctx, `
				UPDATE milestones
				SET status='in_progress', validated_by=NULL, validated_at=NULL, updated_at=now()
				WHERE id=$1 AND status='validated'`, milestoneID)
		} else {
			_, _ = pool.Exec(ctx, `
				UPDATE milestones
				SET status='rejected', rejection_reason='insufficient proofs', updated_at=now()
				WHERE id=$1 AND status='submitted'`, milestoneID)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending notifications with SKIP LOCKED, marking them
// processed or bumping attempts on a simulated delivery failure.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending'
		                            ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]int64, 0, 10)
		for rows.Next() {
			var id int64
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1 WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// IdempotencyRacer hammers a single idempotency key. Only the racer that wins
// the key insert creates the deposit; everyone else must see the conflict and
// back off, so the key maps to at most one payment.
func IdempotencyRacer(ctx context.Context, pool *pgxpool.Pool, key, contractID, payerID, payeeID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1) ON CONFLICT DO NOTHING`, key)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if tag.RowsAffected() == 1 {
			_, err = tx.Exec(ctx, `
				INSERT INTO payments
				    (reference, contract_id, payment_type, pre_tax, tax, total,
				     payer_id, payee_id, status, status_history)
				VALUES ('IDM-'||$1, $2, 'deposit', 500, 100, 600, $3, $4, 'pending', $5::jsonb)`,
				key, contractID, payerID, payeeID, historyEntry("pending", payerID, "payment created"))
			if err != nil {
				// key insert rolls back with the payment, so a loser can
				// retry later
				_ = tx.Rollback(ctx)
				time.Sleep(50 * time.Millisecond)
				continue
			}
		}
		_ = tx.Commit(ctx)
		time.Sleep(80 * time.Millisecond)
	}
}
