package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/domain"
	"bookingcore/internal/gateway"
	"bookingcore/internal/services"
)

const maxWebhookBody = 64 << 10

type paymentWebhook struct {
	BookingID      int64  `json:"bookingId"`
	TransactionID  string `json:"transactionId"`
	Outcome        string `json:"outcome"`
	Status         string `json:"status"`
	Amount         amount `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// PaymentWebhook applies a provider confirmation. When a webhook secret is
// configured the raw body must carry a valid X-Gateway-Signature.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(body) == 0 {
		respondError(c, http.StatusBadRequest, "validation_error", "empty body", nil)
		return
	}
	if h.WebhookSecret != "" && !gateway.VerifySignature(h.WebhookSecret, body, c.GetHeader("X-Gateway-Signature")) {
		respondError(c, http.StatusUnauthorized, "invalid_signature", "signature mismatch", nil)
		return
	}

	var in paymentWebhook
	if err := json.Unmarshal(body, &in); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid payload", err.Error())
		return
	}
	raw := in.Outcome
	if raw == "" {
		raw = in.Status
	}
	outcome, err := domain.ParsePaymentStatus(raw)
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	res, err := services.NewPaymentService(h.deps(c)).ApplyGatewayConfirmation(c.Request.Context(), services.GatewayConfirmation{
		BookingID:      in.BookingID,
		TransactionID:  in.TransactionID,
		Outcome:        outcome,
		Amount:         in.Amount.Money(),
		IdempotencyKey: key,
	})
	if err != nil {
		h.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"replayed":             res.Replayed,
		"bookingId":            res.Booking.ID,
		"version":              res.Booking.Version,
		"payment":              res.Booking.Payment,
		"overallPaymentStatus": res.Booking.OverallPaymentStatus,
	})
}
