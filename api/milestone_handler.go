package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowflow/milestone"
	"escrowflow/proof"
)

type MilestoneHandler struct {
	milestones *milestone.Service
}

func NewMilestoneHandler(milestones *milestone.Service) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones}
}

func (h *MilestoneHandler) Start(c *gin.Context) {
	m, err := h.milestones.Start(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}

func (h *MilestoneHandler) Submit(c *gin.Context) {
	var req struct {
		Proofs []proof.Proof `json:"proofs"`
		Report string        `json:"report"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	m, err := h.milestones.Submit(c.Request.Context(), milestone.SubmitParams{
		MilestoneID: c.Param("id"),
		Proofs:      req.Proofs,
		Report:      req.Report,
		ActorID:     currentUserID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}

func (h *MilestoneHandler) Validate(c *gin.Context) {
	var req struct {
		Approved bool   `json:"approved"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	m, err := h.milestones.Validate(c.Request.Context(), milestone.ValidateParams{
		MilestoneID: c.Param("id"),
		Approved:    req.Approved,
		Reason:      req.Reason,
		ActorID:     currentUserID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}

func (h *MilestoneHandler) AddProof(c *gin.Context) {
	var req struct {
		Proofs []proof.Proof `json:"proofs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	m, err := h.milestones.AddProof(c.Request.Context(), c.Param("id"), currentUserID(c), req.Proofs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}

// PendingValidation lists the calling client's submissions awaiting a
// verdict.
func (h *MilestoneHandler) PendingValidation(c *gin.Context) {
	list, err := h.milestones.PendingValidation(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}
