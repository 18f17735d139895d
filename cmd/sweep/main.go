package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"escrowflow/account"
	"escrowflow/config"
	"escrowflow/contract"
	"escrowflow/db"
	"escrowflow/dispute"
	"escrowflow/fraud"
	"escrowflow/logging"
	"escrowflow/milestone"
	"escrowflow/notify"
	"escrowflow/payment"
	"escrowflow/processor"
)

const (
	sweepInterval = 15 * time.Minute
	batchSize     = 100
)

// The sweeper runs the periodic settlement chores: releasing escrowed funds
// whose hold window elapsed and escalating disputes that blew their
// resolution deadline.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("bootstrap database pool", "error", err)
	}
	defer pool.Close()

	notifier := notify.NewOutbox()
	proc := processor.WithRetry(processor.NewFake(), processor.DefaultRetryConfig())

	accountRepo := account.NewRepository(pool)
	fraudStore := fraud.NewStore(pool)
	engine := fraud.NewEngine(fraudStore, fraudStore, cfg.Fraud, logger)
	milestoneRepo := milestone.NewRepository()

	paymentService := payment.NewService(
		pool, nil, contract.NewRepository(), engine, milestoneRepo,
		accountRepo, proc, notifier, cfg.Payment, logger,
	)
	disputeService := dispute.NewService(
		pool, nil, payment.NewRepository(), paymentService, contract.NewRepository(),
		milestoneRepo, accountRepo, notifier, cfg.Dispute, logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runEvery(ctx, sweepInterval, func() {
			released, err := paymentService.ReleaseDue(ctx, batchSize)
			if err != nil {
				logger.Error("escrow release sweep failed", "error", err)
				return
			}
			if released > 0 {
				logger.Info("escrow release sweep", "released", released)
			}
		})
	})
	g.Go(func() error {
		return runEvery(ctx, sweepInterval, func() {
			escalated, err := disputeService.EscalateOverdue(ctx, batchSize)
			if err != nil {
				logger.Error("dispute escalation sweep failed", "error", err)
				return
			}
			if escalated > 0 {
				logger.Info("dispute escalation sweep", "escalated", escalated)
			}
		})
	})

	logger.Info("sweeper running", "interval", sweepInterval.String())
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("sweeper stopped", "error", err)
	}
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn()
		}
	}
}
