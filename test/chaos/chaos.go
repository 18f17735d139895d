package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend kills a random backend of the escrow test database at
// unpredictable intervals so actors exercise their retry paths mid-settlement.
// When appLike is non-empty only backends whose application_name matches the
// pattern are candidates.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, appLike string, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) != 0 {
				continue
			}
			// Never our own pid; the killer has to survive the run.
			_, _ = pool.Exec(ctx, `
				SELECT pg_terminate_backend(pid)
				FROM pg_stat_activity
				WHERE datname = current_database()
				  AND pid <> pg_backend_pid()
				  AND ($1 = '' OR application_name LIKE $1)
				ORDER BY random()
				LIMIT 1`, appLike)
		}
	}
}
