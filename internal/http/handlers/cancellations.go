package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/services"
)

type cancelRequest struct {
	Version int64  `json:"version"`
	Reason  string `json:"reason"`
	Notes   string `json:"notes"`
}

type decisionRequest struct {
	Version      int64   `json:"version"`
	RefundAmount *amount `json:"refundAmount"`
	Notes        string  `json:"notes"`
}

func (h *Handler) RequestCancellation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	v, err := services.NewCancellationService(h.deps(c)).RequestCancellation(c.Request.Context(), id, services.CancelRequest{
		ExpectedVersion: expectedVersion(c, req.Version),
		Actor:           actor(c),
		Reason:          req.Reason,
		Notes:           req.Notes,
	})
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}

func (h *Handler) ApproveCancellation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req decisionRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	v, err := services.NewCancellationService(h.deps(c)).ApproveCancellation(c.Request.Context(), id, services.Decision{
		ExpectedVersion: expectedVersion(c, req.Version),
		Actor:           actor(c),
		RefundAmount:    optionalMoney(req.RefundAmount),
		Notes:           req.Notes,
	})
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}

func (h *Handler) RejectCancellation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req decisionRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	v, err := services.NewCancellationService(h.deps(c)).RejectCancellation(c.Request.Context(), id, services.Decision{
		ExpectedVersion: expectedVersion(c, req.Version),
		Actor:           actor(c),
		Notes:           req.Notes,
	})
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}
