package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowflow/account"
	"escrowflow/auth"
	"escrowflow/contract"
	"escrowflow/dispute"
	"escrowflow/fraud"
	"escrowflow/milestone"
	"escrowflow/payment"
)

var (
	errNotParty              = errors.New("api: not a party to this contract")
	errForceReleaseAdminOnly = errors.New("api: forced release requires an administrator")
)

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func respondError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, gin.H{
		"error": gin.H{"code": code, "message": err.Error()},
	})
}

// respondServiceError translates domain sentinels to HTTP statuses. Anything
// unmatched is treated as a rejected request, not a server fault: services
// wrap infrastructure failures distinctly and those are rare enough to
// surface through logs.
func respondServiceError(c *gin.Context, err error) {
	var fraudErr *payment.FraudBlockedError
	if errors.As(err, &fraudErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": gin.H{
				"code":    "fraud_blocked",
				"message": err.Error(),
				"rules":   fraudErr.Rules,
			},
		})
		return
	}

	status, code := http.StatusBadRequest, "invalid_request"
	switch {
	case errors.Is(err, contract.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, milestone.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, fraud.ErrAlertNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, contract.ErrStatusConflict),
		errors.Is(err, payment.ErrStatusConflict),
		errors.Is(err, milestone.ErrStatusConflict),
		errors.Is(err, dispute.ErrStatusConflict),
		errors.Is(err, payment.ErrDuplicateIdempotencyKey):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, dispute.ErrAlreadyDisputed):
		status, code = http.StatusConflict, "already_disputed"
	case errors.Is(err, milestone.ErrUnauthorized),
		errors.Is(err, dispute.ErrUnauthorized),
		errors.Is(err, dispute.ErrWrongParty):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, auth.ErrDuplicateEmail):
		status, code = http.StatusConflict, "email_taken"
	case errors.Is(err, payment.ErrLimitExceeded):
		status, code = http.StatusUnprocessableEntity, "limit_exceeded"
	case errors.Is(err, payment.ErrEscrowActive):
		status, code = http.StatusUnprocessableEntity, "escrow_active"
	case errors.Is(err, payment.ErrDisputeActive):
		status, code = http.StatusUnprocessableEntity, "dispute_active"
	case errors.Is(err, payment.ErrNotHeld),
		errors.Is(err, payment.ErrNotRefundable),
		errors.Is(err, payment.ErrNotCapturable),
		errors.Is(err, milestone.ErrInvalidState),
		errors.Is(err, dispute.ErrInvalidState),
		errors.Is(err, dispute.ErrBelowMediationThreshold):
		status, code = http.StatusUnprocessableEntity, "invalid_state"
	}
	respondError(c, status, code, err)
}
