package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowflow/account"
)

type AccountHandler struct {
	accounts *account.Service
}

func NewAccountHandler(accounts *account.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) Get(c *gin.Context) {
	profile, err := h.accounts.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, profile)
}

// Onboard links the enterprise to its processor account so captures can route
// payouts.
func (h *AccountHandler) Onboard(c *gin.Context) {
	var req struct {
		ProcessorAccountRef string `json:"processor_account_ref"`
		ChargesEnabled      bool   `json:"charges_enabled"`
		PayoutsEnabled      bool   `json:"payouts_enabled"`
		IdentityVerified    bool   `json:"identity_verified"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	profile, err := h.accounts.Onboard(c.Request.Context(), currentUserID(c),
		req.ProcessorAccountRef, req.ChargesEnabled, req.PayoutsEnabled, req.IdentityVerified)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, profile)
}
