package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/middleware"
	"complaint-workflow-service/internal/services"
)

// statusFor maps service error kinds to HTTP status codes and error codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, middleware.ErrCodeValidationFailed
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, middleware.ErrCodeNotFound
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, middleware.ErrCodeInvalidTransition
	case errors.Is(err, services.ErrNoMatchingCondition):
		return http.StatusUnprocessableEntity, middleware.ErrCodeNoMatchingCondition
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, middleware.ErrCodeConflict
	case errors.Is(err, services.ErrNoEligibleEmployee):
		return http.StatusConflict, middleware.ErrCodeNoEligibleEmployee
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, middleware.ErrCodeForbidden
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusInternalServerError, middleware.ErrCodeConfiguration
	}
	return http.StatusInternalServerError, middleware.ErrCodeInternalServer
}

// respondError writes the error envelope. Unexpected errors are logged and
// never leak their message.
func respondError(c *gin.Context, logger *logrus.Entry, err error) {
	status, code := statusFor(err)
	details := middleware.ErrorDetails{
		Code:      code,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}

	if svcErr, ok := services.AsError(err); ok {
		details.Details = svcErr.Details
		details.CurrentStatus = svcErr.CurrentStatus
		details.AllowedActions = svcErr.AllowedActions
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request failed")
		if code == middleware.ErrCodeInternalServer {
			details.Message = "An internal error occurred"
		}
	}

	c.JSON(status, middleware.ErrorResponse{Error: details})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, middleware.ErrorResponse{
		Error: middleware.ErrorDetails{
			Code:      middleware.ErrCodeBadRequest,
			Message:   message,
			Timestamp: time.Now().UTC(),
		},
	})
}
