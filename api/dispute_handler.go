package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowflow/auth"
	"escrowflow/dispute"
	"escrowflow/proof"
)

type DisputeHandler struct {
	disputes *dispute.Service
}

func NewDisputeHandler(disputes *dispute.Service) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

type openDisputeRequest struct {
	ContractID  string        `json:"contract_id"`
	PaymentID   string        `json:"payment_id"`
	MilestoneID string        `json:"milestone_id"`
	Reason      string        `json:"reason"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Proofs      []proof.Proof `json:"proofs"`
}

func (h *DisputeHandler) Open(c *gin.Context) {
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	d, err := h.disputes.Open(c.Request.Context(), dispute.OpenParams{
		ContractID:  req.ContractID,
		PaymentID:   req.PaymentID,
		MilestoneID: req.MilestoneID,
		Reason:      req.Reason,
		Title:       req.Title,
		Description: req.Description,
		Proofs:      req.Proofs,
		ActorID:     currentUserID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, d)
}

func (h *DisputeHandler) Get(c *gin.Context) {
	d, err := h.disputes.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, d)
}

func (h *DisputeHandler) List(c *gin.Context) {
	list, err := h.disputes.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

func (h *DisputeHandler) Respond(c *gin.Context) {
	var req struct {
		Message string        `json:"message"`
		Proofs  []proof.Proof `json:"proofs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	d, err := h.disputes.Respond(c.Request.Context(), c.Param("id"), currentUserID(c), req.Message, req.Proofs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, d)
}

func (h *DisputeHandler) AssignMediator(c *gin.Context) {
	var req struct {
		MediatorID string `json:"mediator_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	d, err := h.disputes.AssignMediator(c.Request.Context(), c.Param("id"), req.MediatorID, currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, d)
}

func (h *DisputeHandler) Resolve(c *gin.Context) {
	var req struct {
		Type        string  `json:"type"`
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	d, err := h.disputes.Resolve(c.Request.Context(), dispute.ResolveParams{
		DisputeID:   c.Param("id"),
		Type:        dispute.ResolutionType(req.Type),
		Description: req.Description,
		Amount:      req.Amount,
		ActorID:     currentUserID(c),
		AsAdmin:     currentRole(c) == auth.RoleAdmin,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, d)
}

func (h *DisputeHandler) Escalate(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	d, err := h.disputes.Escalate(c.Request.Context(), c.Param("id"), currentUserID(c), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, d)
}

func (h *DisputeHandler) Close(c *gin.Context) {
	d, err := h.disputes.Close(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, d)
}

func (h *DisputeHandler) AddProof(c *gin.Context) {
	var req struct {
		Proofs []proof.Proof `json:"proofs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	d, err := h.disputes.AddProof(c.Request.Context(), c.Param("id"), currentUserID(c), req.Proofs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, d)
}

func (h *DisputeHandler) AddMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.disputes.AddMessage(c.Request.Context(), c.Param("id"), currentUserID(c), req.Message); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"ok": true})
}
