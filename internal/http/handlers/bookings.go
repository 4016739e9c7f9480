package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/domain"
	"bookingcore/internal/repositories"
	"bookingcore/internal/services"
)

func (h *Handler) CreateBooking(c *gin.Context) {
	var in services.CreateBookingInput
	if !BindJSONOrError(c, &in) {
		return
	}
	v, err := services.NewBookingService(h.deps(c)).CreateBooking(c.Request.Context(), in, actor(c))
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	v, err := services.NewBookingService(h.deps(c)).GetBooking(c.Request.Context(), id)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}

func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, domain.ValidationError{Msg: "expected RFC3339 or YYYY-MM-DD, got " + raw}
}

func (h *Handler) ListBookings(c *gin.Context) {
	var q repositories.ListQuery
	if raw := c.Query("status"); raw != "" {
		st, err := domain.ParseBookingStatus(raw)
		if err != nil {
			h.RespondDomainError(c, err)
			return
		}
		q.Status = st
	}
	if raw := c.Query("paymentStatus"); raw != "" {
		ps, err := domain.ParsePaymentStatus(raw)
		if err != nil {
			h.RespondDomainError(c, err)
			return
		}
		q.PaymentStatus = ps
	}
	from, to := c.Query("from"), c.Query("to")
	if raw := c.Query("dateRange"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 2 {
			h.RespondDomainError(c, domain.ValidationError{Field: "dateRange", Msg: "expected from,to"})
			return
		}
		// An explicit from or to wins over the matching half of dateRange.
		if from == "" {
			from = parts[0]
		}
		if to == "" {
			to = parts[1]
		}
	}
	var err error
	if q.From, err = parseTimeParam(from); err != nil {
		h.RespondDomainError(c, domain.ValidationError{Field: "from", Msg: err.Error()})
		return
	}
	if q.To, err = parseTimeParam(to); err != nil {
		h.RespondDomainError(c, domain.ValidationError{Field: "to", Msg: err.Error()})
		return
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, page, err := services.NewBookingService(h.deps(c)).ListBookings(c.Request.Context(), q)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "pagination": page})
}

func (h *Handler) GetHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	entries, err := services.NewBookingService(h.deps(c)).History(c.Request.Context(), id)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookingId": id, "history": entries})
}

type statusRequest struct {
	TargetStatus string  `json:"targetStatus"`
	Status       string  `json:"status"`
	Version      int64   `json:"version"`
	Reason       string  `json:"reason"`
	Notes        string  `json:"notes"`
	RefundAmount *amount `json:"refundAmount"`
}

func (r statusRequest) target() string {
	if r.TargetStatus != "" {
		return r.TargetStatus
	}
	return r.Status
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req statusRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	if req.target() == "" {
		h.RespondDomainError(c, domain.ValidationError{Field: "targetStatus", Msg: "is required"})
		return
	}
	target, err := domain.ParseBookingStatus(req.target())
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	v, err := services.NewBookingService(h.deps(c)).RequestTransition(c.Request.Context(), id, services.TransitionRequest{
		Target:          target,
		ExpectedVersion: expectedVersion(c, req.Version),
		Actor:           actor(c),
		Reason:          req.Reason,
		Notes:           req.Notes,
		RefundAmount:    optionalMoney(req.RefundAmount),
	})
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	setETag(c, v.Version)
	c.JSON(http.StatusOK, v)
}
