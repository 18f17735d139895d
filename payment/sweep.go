package payment

import (
	"context"
	"errors"
	"fmt"
)

// ReleaseDue releases every held payment whose escrow window elapsed and that
// no open dispute references. It is driven by an external periodic trigger;
// nothing in the ledger blocks waiting for escrow expiry. Returns the number
// of payments released.
func (s *Service) ReleaseDue(ctx context.Context, batchSize int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("payment: begin tx: %w", err)
	}
	ids, err := s.repo.DueForRelease(ctx, tx, s.now().UTC(), batchSize)
	tx.Rollback(ctx)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if _, err := s.Release(ctx, id, "system", false); err != nil {
			// A dispute opened or another releaser won between listing and
			// locking; both are normal under concurrency.
			if errors.Is(err, ErrDisputeActive) || errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrNotHeld) {
				s.log.Debug("skipping due payment", "payment_id", id, "error", err)
				continue
			}
			return released, fmt.Errorf("payment: release due %s: %w", id, err)
		}
		released++
	}
	if released > 0 {
		s.log.Info("escrow sweep released payments", "count", released)
	}
	return released, nil
}
