package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/commerce"
	"github.com/corekit/storefront/pkg/errors"
)

// respondError writes err as an ErrorResponse with the status its kind maps to
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validation *errors.ValidationError
		notFound   *errors.ErrNotFound
		conflict   *errors.ConflictError
		setup      *errors.PaymentSetupError
		declined   *errors.PaymentDeclinedError
		transition *errors.ErrInvalidStateTransition
	)

	switch {
	case stderrors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, commerce.ErrorResponse{Error: "validation_failed", Message: validation.Message, Details: validation.Details})
	case stderrors.As(err, &notFound):
		c.JSON(http.StatusNotFound, commerce.ErrorResponse{Error: "not_found", Message: notFound.Error()})
	case stderrors.As(err, &conflict):
		c.JSON(http.StatusConflict, commerce.ErrorResponse{Error: "conflict", Message: conflict.Message})
	case stderrors.As(err, &setup):
		c.JSON(http.StatusConflict, commerce.ErrorResponse{Error: "payment_not_allowed", Message: setup.Error()})
	case stderrors.As(err, &declined):
		c.JSON(http.StatusPaymentRequired, commerce.ErrorResponse{Error: "payment_declined", Message: declined.UserMessage()})
	case stderrors.As(err, &transition):
		c.JSON(http.StatusConflict, commerce.ErrorResponse{Error: "invalid_state", Message: transition.Error()})
	default:
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, commerce.ErrorResponse{Error: "internal_error", Message: "internal error"})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, commerce.ErrorResponse{
		Error:   "validation_failed",
		Message: "invalid request body",
		Details: []string{err.Error()},
	})
}
