package models

import (
	"time"

	"bookingcore/internal/domain"
)

type LedgerLeg string

const (
	LegFull   LedgerLeg = "full"
	LegOnline LedgerLeg = "online"
	LegCash   LedgerLeg = "cash"
	LegRefund LedgerLeg = "refund"
)

type LedgerKind string

const (
	KindIntent          LedgerKind = "intent"
	KindConfirmation    LedgerKind = "confirmation"
	KindCashCollected   LedgerKind = "cash_collected"
	KindRefundInitiated LedgerKind = "refund_initiated"
	KindRefundProcessed LedgerKind = "refund_processed"
	KindRefundCompleted LedgerKind = "refund_completed"
	// KindDuplicateSettlement records a second transaction settling an
	// already paid leg. It is never credited.
	KindDuplicateSettlement LedgerKind = "duplicate_settlement"
)

// LedgerEntry records one payment attempt, settlement or refund step.
// IdempotencyKey is unique across the ledger when set.
type LedgerEntry struct {
	ID             int64        `json:"id"`
	BookingID      int64        `json:"bookingId"`
	Leg            LedgerLeg    `json:"leg"`
	Kind           LedgerKind   `json:"kind"`
	Outcome        string       `json:"outcome,omitempty"`
	Amount         domain.Money `json:"amount"`
	Reference      string       `json:"reference,omitempty"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
	Actor          string       `json:"actor,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Credited reports whether the entry moved money into the booking.
func (e LedgerEntry) Credited() bool {
	switch e.Kind {
	case KindCashCollected:
		return true
	case KindConfirmation:
		return e.Outcome == string(domain.PaymentCompleted)
	}
	return false
}

// LedgerBalance returns money credited minus money refunded.
func LedgerBalance(entries []LedgerEntry) domain.Money {
	var bal domain.Money
	for _, e := range entries {
		if e.Credited() {
			bal += e.Amount
		}
		if e.Kind == KindRefundCompleted {
			bal -= e.Amount
		}
	}
	return bal
}
