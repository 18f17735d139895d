package main

import (
	"context"
	"log"

	"escrowflow/account"
	"escrowflow/api"
	"escrowflow/auth"
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

func main() {
	ctx := context.Background()

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

	authService := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	accountRepo := account.NewRepository(pool)
	accountService := account.NewService(accountRepo)

	fraudStore := fraud.NewStore(pool)
	engine := fraud.NewEngine(fraudStore, fraudStore, cfg.Fraud, logger)

	milestoneRepo := milestone.NewRepository()
	contractService := contract.NewService(pool, nil, milestoneRepo, notifier)
	paymentService := payment.NewService(
		pool, nil, contract.NewRepository(), engine, milestoneRepo,
		accountRepo, proc, notifier, cfg.Payment, logger,
	)
	milestoneService := milestone.NewService(pool, milestoneRepo, contract.NewRepository(), paymentService, notifier, logger)
	disputeService := dispute.NewService(
		pool, nil, payment.NewRepository(), paymentService, contract.NewRepository(),
		milestoneRepo, accountRepo, notifier, cfg.Dispute, logger,
	)

	authMW := api.NewAuthMiddleware(authService)
	router := api.NewRouter(api.RouterConfig{
		AuthHandler:      api.NewAuthHandler(authService),
		AuthMiddleware:   authMW,
		AccountHandler:   api.NewAccountHandler(accountService),
		ContractHandler:  api.NewContractHandler(contractService, milestoneService, pool),
		MilestoneHandler: api.NewMilestoneHandler(milestoneService),
		PaymentHandler:   api.NewPaymentHandler(paymentService, logger),
		DisputeHandler:   api.NewDisputeHandler(disputeService),
		FraudHandler:     api.NewFraudHandler(fraudStore),
	})

	logger.Info("api listening", "addr", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("api server stopped", "error", err)
	}
}
