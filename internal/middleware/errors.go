package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// ErrorDetails contains the error information
type ErrorDetails struct {
	Code           string    `json:"code"`
	Message        string    `json:"message"`
	Details        []string  `json:"details,omitempty"`
	CurrentStatus  string    `json:"currentStatus,omitempty"`
	AllowedActions []string  `json:"allowedActions,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Error codes
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeNoMatchingCondition = "NO_MATCHING_CONDITION"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeNoEligibleEmployee  = "NO_ELIGIBLE_EMPLOYEE"
	ErrCodeConfiguration       = "CONFIGURATION_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternalServer      = "INTERNAL_SERVER_ERROR"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetails{Code: code, Message: message, Timestamp: time.Now().UTC()},
	})
}
