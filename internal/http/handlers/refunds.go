package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/domain"
	"bookingcore/internal/services"
)

type initiateRefundRequest struct {
	Version   int64  `json:"version"`
	Method    string `json:"method" binding:"required"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
	Reference string `json:"reference"`
}

type completeRefundRequest struct {
	Version   int64  `json:"version"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

func (h *Handler) InitiateRefund(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req initiateRefundRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	method, err := domain.ParseRefundMethod(req.Method)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	v, err := services.NewRefundService(h.deps(c)).InitiateRefund(c.Request.Context(), id, services.RefundInitiation{
		ExpectedVersion: expectedVersion(c, req.Version),
		Actor:           actor(c),
		Method:          method,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Reference:       req.Reference,
	})
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}

func (h *Handler) CompleteRefund(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req completeRefundRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	v, err := services.NewRefundService(h.deps(c)).CompleteRefund(c.Request.Context(), id, services.RefundCompletion{
		ExpectedVersion: expectedVersion(c, req.Version),
		Actor:           actor(c),
		Reference:       req.Reference,
		Notes:           req.Notes,
	})
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}

func (h *Handler) GetRefundReceipt(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pdf, filename, err := services.NewDocsService(h.deps(c)).RefundReceipt(c.Request.Context(), id)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
