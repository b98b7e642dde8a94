package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// respondError maps domain errors onto HTTP status codes. Unrecognized
// errors become a 500 with a generic body; the detail stays in the logs.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case domainerrors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, domainerrors.ErrInvalidInput),
		errors.Is(err, domainerrors.ErrUnsupportedNetwork),
		errors.Is(err, domainerrors.ErrSelfTransfer),
		errors.Is(err, domainerrors.ErrReceiverNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, domainerrors.ErrInsufficientBalance),
		errors.Is(err, domainerrors.ErrQuoteExpired),
		errors.Is(err, domainerrors.ErrInvalidOrderState),
		errors.Is(err, domainerrors.ErrDuplicateTransaction):
		status = http.StatusConflict
	case errors.Is(err, domainerrors.ErrTwoFARequired),
		errors.Is(err, domainerrors.ErrTwoFAInvalid),
		errors.Is(err, domainerrors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domainerrors.ErrSecurityRequirements),
		errors.Is(err, domainerrors.ErrProfileIncomplete),
		errors.Is(err, domainerrors.ErrOrderLimitExceeded):
		status = http.StatusForbidden
	case domainerrors.IsRateLimit(err):
		status = http.StatusTooManyRequests
	case errors.Is(err, domainerrors.ErrBroadcastFailed),
		errors.Is(err, domainerrors.ErrMasterWalletUnfunded),
		errors.Is(err, domainerrors.ErrProviderUnavailable),
		errors.Is(err, domainerrors.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"error": err.Error(), "code": domainerrors.GetErrorCode(err)}
	if status == http.StatusInternalServerError {
		body = gin.H{"error": "internal error", "code": "INTERNAL_ERROR"}
	}

	c.JSON(status, body)
}
