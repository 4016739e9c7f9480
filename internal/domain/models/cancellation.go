package models

import (
	"time"

	"bookingcore/internal/domain"
)

// CancellationRecord is created on the first cancellation request (or a
// direct cancellation) and only ever moves forward.
type CancellationRecord struct {
	State            domain.CancellationState `json:"state"`
	CancelledBy      string                   `json:"cancelledBy"`
	CancelledByModel domain.ActorRole         `json:"cancelledByModel"`
	CancelledAt      time.Time                `json:"cancelledAt"`
	Reason           string                   `json:"reason"`
	PriorStatus      domain.BookingStatus     `json:"priorStatus,omitempty"`
	RefundAmount     domain.Money             `json:"refundAmount"`
	// UnrefundedAmount is money settled after the refund left pending.
	UnrefundedAmount  domain.Money        `json:"unrefundedAmount,omitempty"`
	RefundStatus      domain.RefundStatus `json:"refundStatus"`
	RefundMethod      domain.RefundMethod `json:"refundMethod,omitempty"`
	RefundReference   string              `json:"refundReference,omitempty"`
	RefundReason      string              `json:"refundReason,omitempty"`
	RefundNotes       string              `json:"refundNotes,omitempty"`
	RefundInitiatedAt *time.Time          `json:"refundInitiatedAt,omitempty"`
	RefundCompletedAt *time.Time          `json:"refundCompletedAt,omitempty"`
	DecidedBy         string              `json:"decidedBy,omitempty"`
	DecidedAt         *time.Time          `json:"decidedAt,omitempty"`
	DecisionNotes     string              `json:"decisionNotes,omitempty"`
}

// Active reports whether the record still blocks a new cancellation request.
func (c *CancellationRecord) Active() bool {
	return c != nil && c.State != domain.CancellationRejected
}
