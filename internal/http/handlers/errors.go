package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/domain"
	"bookingcore/internal/http/middleware"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}

// RespondDomainError maps domain errors to HTTP responses. Anything the
// domain does not name is logged and reported as a bare 500.
func (h *Handler) RespondDomainError(c *gin.Context, err error) {
	var mismatch domain.AmountMismatchError
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case domain.IsForbidden(err):
		respondError(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "version_conflict", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidState):
		respondError(c, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.As(err, &mismatch):
		respondError(c, http.StatusUnprocessableEntity, "amount_mismatch", err.Error(), gin.H{
			"expected": mismatch.Expected,
			"got":      mismatch.Got,
		})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		respondError(c, http.StatusServiceUnavailable, "gateway_unavailable", "payment gateway unavailable, retry later", nil)
	default:
		h.Log.Error("unhandled error", "request_id", middleware.GetRequestID(c), "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
