package api

import (
	"github.com/gin-gonic/gin"

	"escrowflow/auth"
)

type RouterConfig struct {
	AuthHandler      *AuthHandler
	AuthMiddleware   *AuthMiddleware
	AccountHandler   *AccountHandler
	ContractHandler  *ContractHandler
	MilestoneHandler *MilestoneHandler
	PaymentHandler   *PaymentHandler
	DisputeHandler   *DisputeHandler
	FraudHandler     *FraudHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(CORS())

	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Processor callbacks are authenticated by event parsing, not by user
	// tokens.
	r.POST("/webhooks/processor", cfg.PaymentHandler.Webhook)

	api := r.Group("/api")
	{
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
	}

	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	{
		protected.GET("/me", cfg.AuthHandler.Me)

		protected.GET("/account", cfg.AccountHandler.Get)
		protected.POST("/account/onboard", cfg.AccountHandler.Onboard)

		protected.POST("/contracts", cfg.AuthMiddleware.RequireRole(auth.RoleClient), cfg.ContractHandler.Create)
		protected.GET("/contracts", cfg.ContractHandler.List)
		protected.GET("/contracts/:id", cfg.ContractHandler.Get)
		protected.GET("/contracts/:id/milestones", cfg.ContractHandler.Milestones)

		protected.POST("/milestones/:id/start", cfg.MilestoneHandler.Start)
		protected.POST("/milestones/:id/submit", cfg.MilestoneHandler.Submit)
		protected.POST("/milestones/:id/validate", cfg.MilestoneHandler.Validate)
		protected.POST("/milestones/:id/proofs", cfg.MilestoneHandler.AddProof)
		protected.GET("/milestones/pending", cfg.MilestoneHandler.PendingValidation)

		protected.POST("/payments", cfg.PaymentHandler.Create)
		protected.GET("/payments/:id", cfg.PaymentHandler.Get)
		protected.POST("/payments/:id/request", cfg.PaymentHandler.Request)
		protected.POST("/payments/:id/confirm", cfg.PaymentHandler.Confirm)
		protected.POST("/payments/:id/release", cfg.PaymentHandler.Release)
		protected.POST("/payments/:id/refund", cfg.PaymentHandler.Refund)
		protected.POST("/payments/:id/cancel", cfg.PaymentHandler.Cancel)

		protected.POST("/disputes", cfg.DisputeHandler.Open)
		protected.GET("/disputes", cfg.DisputeHandler.List)
		protected.GET("/disputes/:id", cfg.DisputeHandler.Get)
		protected.POST("/disputes/:id/respond", cfg.DisputeHandler.Respond)
		protected.POST("/disputes/:id/proofs", cfg.DisputeHandler.AddProof)
		protected.POST("/disputes/:id/messages", cfg.DisputeHandler.AddMessage)
		protected.POST("/disputes/:id/mediator",
			cfg.AuthMiddleware.RequireRole(auth.RoleAdmin), cfg.DisputeHandler.AssignMediator)
		protected.POST("/disputes/:id/resolve",
			cfg.AuthMiddleware.RequireRole(auth.RoleMediator, auth.RoleAdmin), cfg.DisputeHandler.Resolve)
		protected.POST("/disputes/:id/escalate",
			cfg.AuthMiddleware.RequireRole(auth.RoleMediator, auth.RoleAdmin), cfg.DisputeHandler.Escalate)
		protected.POST("/disputes/:id/close",
			cfg.AuthMiddleware.RequireRole(auth.RoleMediator, auth.RoleAdmin), cfg.DisputeHandler.Close)

		admin := protected.Group("/fraud")
		admin.Use(cfg.AuthMiddleware.RequireRole(auth.RoleAdmin))
		{
			admin.GET("/alerts", cfg.FraudHandler.PendingAlerts)
			admin.POST("/alerts/:id/ack", cfg.FraudHandler.AcknowledgeAlert)
			admin.GET("/stats", cfg.FraudHandler.Stats)
		}
	}

	return r
}
