package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/logger"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Ok writes a success envelope.
func Ok(c *gin.Context, status int, data any, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Error writes an error envelope.
func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// statusFor maps a service error to an HTTP status and client message.
// Internal failures are not described to the client.
func statusFor(err error) (int, string) {
	var authErr *domain.AuthError
	var sigErr *domain.SignatureError
	switch {
	case errors.As(err, &sigErr):
		return http.StatusUnauthorized, "signature verification failed"
	case errors.As(err, &authErr):
		return http.StatusBadRequest, authErr.Reason
	case errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusNotFound, "unknown provider"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrConnectionRevoked):
		return http.StatusConflict, "connection revoked"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// fail writes the error response for err and logs server-side failures.
func fail(c *gin.Context, op string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s: %s: %v", c.Request.Method, c.FullPath(), op, err)
	}
	Error(c, status, message, nil)
}
