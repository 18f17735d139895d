package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"escrowflow/fraud"
)

type FraudHandler struct {
	store *fraud.Store
}

func NewFraudHandler(store *fraud.Store) *FraudHandler {
	return &FraudHandler{store: store}
}

func (h *FraudHandler) PendingAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	alerts, err := h.store.PendingAlerts(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, alerts)
}

func (h *FraudHandler) AcknowledgeAlert(c *gin.Context) {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.store.AcknowledgeAlert(c.Request.Context(), c.Param("id"), currentUserID(c), req.Action); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"ok": true})
}

func (h *FraudHandler) Stats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := h.store.RecentStats(c.Request.Context(), since)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"since":           since,
		"total_checks":    stats.TotalChecks,
		"blocked":         stats.Blocked,
		"requires_review": stats.RequireReview,
		"average_score":   stats.AverageScore,
		"by_risk_level":   stats.ByRiskLevel,
	})
}
