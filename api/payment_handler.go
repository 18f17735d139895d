package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowflow/auth"
	"escrowflow/logging"
	"escrowflow/payment"
	"escrowflow/processor"
)

type PaymentHandler struct {
	payments *payment.Service
	log      *logging.Logger
}

func NewPaymentHandler(payments *payment.Service, log *logging.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

type createPaymentRequest struct {
	ContractID  string  `json:"contract_id"`
	MilestoneID string  `json:"milestone_id"`
	Type        string  `json:"type"`
	PreTax      float64 `json:"pre_tax"`
	TaxRate     float64 `json:"tax_rate"`
}

// Create opens an escrow payment outside the milestone flow, typically a
// deposit or the final balance.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.payments.Create(c.Request.Context(), payment.CreateParams{
		ContractID:  req.ContractID,
		MilestoneID: req.MilestoneID,
		Type:        payment.Type(req.Type),
		PreTax:      req.PreTax,
		TaxRate:     req.TaxRate,
		ActorID:     currentUserID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, p)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.payments.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func (h *PaymentHandler) Request(c *gin.Context) {
	p, err := h.payments.RequestPayment(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

// Confirm captures an authorized payment into escrow custody. The external
// reference doubles as the idempotency key.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req struct {
		ExternalRef string `json:"external_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.payments.ConfirmCapture(c.Request.Context(), c.Param("id"), req.ExternalRef)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func (h *PaymentHandler) Release(c *gin.Context) {
	var req struct {
		Force bool `json:"force"`
	}
	// The body is optional for a plain release.
	_ = c.ShouldBindJSON(&req)
	if req.Force && currentRole(c) != auth.RoleAdmin {
		respondError(c, http.StatusForbidden, "forbidden", errForceReleaseAdminOnly)
		return
	}
	p, err := h.payments.Release(c.Request.Context(), c.Param("id"), currentUserID(c), req.Force)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	var req struct {
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.payments.Refund(c.Request.Context(), c.Param("id"), currentUserID(c), req.Reason, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	p, err := h.payments.Cancel(c.Request.Context(), c.Param("id"), currentUserID(c), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

// Webhook receives the processor's callbacks. It always answers 200 once the
// event is parsed; replays and unknown intents are absorbed by the ledger.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ev, err := processor.ParseEvent(body)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_event", err)
		return
	}
	if err := h.payments.HandleWebhook(c.Request.Context(), ev); err != nil {
		h.log.Error("webhook handling failed", "event_id", ev.ID, "type", string(ev.Type), "error", err)
		respondError(c, http.StatusInternalServerError, "webhook_failed", err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"received": true})
}
