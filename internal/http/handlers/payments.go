package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/domain"
	"bookingcore/internal/services"
)

type paymentIntentRequest struct {
	Version               int64  `json:"version"`
	Method                string `json:"method" binding:"required"`
	Amount                amount `json:"amount"`
	IsPartialPayment      bool   `json:"isPartialPayment"`
	PartialPaymentDetails *struct {
		OnlineAmount amount `json:"onlineAmount"`
		CashAmount   amount `json:"cashAmount"`
	} `json:"partialPaymentDetails"`
}

func (h *Handler) RecordPaymentIntent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req paymentIntentRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	in := services.PaymentIntent{
		ExpectedVersion:  expectedVersion(c, req.Version),
		Actor:            actor(c),
		Method:           method,
		Amount:           req.Amount.Money(),
		IsPartialPayment: req.IsPartialPayment,
	}
	if d := req.PartialPaymentDetails; d != nil {
		in.Split = &services.Split{Online: d.OnlineAmount.Money(), Cash: d.CashAmount.Money()}
	}
	v, err := services.NewPaymentService(h.deps(c)).RecordPaymentIntent(c.Request.Context(), id, in)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}

type cashCollectedRequest struct {
	Version          int64  `json:"version"`
	CollectedBy      string `json:"collectedBy"`
	CollectedByModel string `json:"collectedByModel"`
	IdempotencyKey   string `json:"idempotencyKey"`
}

func (h *Handler) MarkCashCollected(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req cashCollectedRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	in := services.CashCollection{
		ExpectedVersion: expectedVersion(c, req.Version),
		Actor:           actor(c),
		CollectedBy:     req.CollectedBy,
		IdempotencyKey:  req.IdempotencyKey,
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	if req.CollectedByModel != "" {
		role, err := domain.ParseActorRole(req.CollectedByModel)
		if err != nil {
			h.RespondDomainError(c, err)
			return
		}
		in.CollectedByModel = role
	}
	res, err := services.NewPaymentService(h.deps(c)).MarkCashCollected(c.Request.Context(), id, in)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, res.Booking.Version)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetLedger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	st, err := services.NewPaymentService(h.deps(c)).Ledger(c.Request.Context(), id)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
