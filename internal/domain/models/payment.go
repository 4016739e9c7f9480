package models

import (
	"time"

	"bookingcore/internal/domain"
)

// PaymentState is the booking's embedded payment record. For a full payment
// Status is the state of its single leg; for a split payment Status is derived
// from the legs in PartialPaymentDetails.
type PaymentState struct {
	Method                domain.PaymentMethod   `json:"method"`
	Status                domain.PaymentStatus   `json:"status"`
	IsPartialPayment      bool                   `json:"isPartialPayment"`
	PartialPaymentDetails *PartialPaymentDetails `json:"partialPaymentDetails,omitempty"`
	Amount                domain.Money           `json:"amount"`
	TransactionID         string                 `json:"transactionId,omitempty"`
	SettledAt             *time.Time             `json:"settledAt,omitempty"`
	CollectedBy           string                 `json:"collectedBy,omitempty"`
	CollectedByModel      domain.ActorRole       `json:"collectedByModel,omitempty"`
	// DuplicateAmount sums settlements from other transactions that landed
	// on an already completed online leg. They need a manual refund.
	DuplicateAmount domain.Money `json:"duplicateAmount,omitempty"`
}

type PartialPaymentDetails struct {
	OnlineAmount         domain.Money         `json:"onlineAmount"`
	CashAmount           domain.Money         `json:"cashAmount"`
	OnlinePaymentStatus  domain.PaymentStatus `json:"onlinePaymentStatus"`
	CashPaymentStatus    domain.CashStatus    `json:"cashPaymentStatus"`
	OnlinePaymentID      string               `json:"onlinePaymentId,omitempty"`
	CashCollectedAt      *time.Time           `json:"cashCollectedAt,omitempty"`
	CashCollectedBy      string               `json:"cashCollectedBy,omitempty"`
	CashCollectedByModel domain.ActorRole     `json:"cashCollectedByModel,omitempty"`
}

func (p PaymentState) clone() PaymentState {
	out := p
	if p.PartialPaymentDetails != nil {
		d := *p.PartialPaymentDetails
		out.PartialPaymentDetails = &d
	}
	return out
}

// Recorded reports whether a payment intent was ever recorded.
func (p PaymentState) Recorded() bool { return p.Method != "" }

// HasCashLeg reports whether the booking expects cash to be collected.
func (p PaymentState) HasCashLeg() bool {
	if p.IsPartialPayment {
		return p.PartialPaymentDetails != nil
	}
	return p.Method == domain.MethodCash
}

// HasOnlineLeg reports whether the booking expects a gateway confirmation.
func (p PaymentState) HasOnlineLeg() bool {
	if p.IsPartialPayment {
		return p.PartialPaymentDetails != nil
	}
	return p.Recorded() && p.Method.Online()
}

// CashLegStatus returns the cash leg state, mapping a full cash payment onto
// the cash vocabulary.
func (p PaymentState) CashLegStatus() domain.CashStatus {
	if p.IsPartialPayment && p.PartialPaymentDetails != nil {
		return p.PartialPaymentDetails.CashPaymentStatus
	}
	switch p.Status {
	case domain.PaymentCompleted:
		return domain.CashCollected
	case domain.PaymentFailed:
		return domain.CashNotCollected
	}
	return domain.CashPending
}

// OnlineLegStatus returns the online leg state.
func (p PaymentState) OnlineLegStatus() domain.PaymentStatus {
	if p.IsPartialPayment && p.PartialPaymentDetails != nil {
		return p.PartialPaymentDetails.OnlinePaymentStatus
	}
	return p.Status
}

// AnySettled reports whether at least one leg has been paid.
func (p PaymentState) AnySettled() bool {
	return p.SettledAmount() > 0
}

// SettledAmount sums the legs that are completed or collected.
func (p PaymentState) SettledAmount() domain.Money {
	if p.IsPartialPayment && p.PartialPaymentDetails != nil {
		d := p.PartialPaymentDetails
		var sum domain.Money
		if d.OnlinePaymentStatus == domain.PaymentCompleted {
			sum += d.OnlineAmount
		}
		if d.CashPaymentStatus == domain.CashCollected {
			sum += d.CashAmount
		}
		return sum
	}
	if p.Status == domain.PaymentCompleted {
		return p.Amount
	}
	return 0
}

// OverallPaymentStatus derives the booking-level status: completed iff every
// present leg is completed or collected, failed iff a leg failed without a
// successful retry, pending otherwise.
func OverallPaymentStatus(p PaymentState) domain.PaymentStatus {
	if !p.IsPartialPayment || p.PartialPaymentDetails == nil {
		switch p.Status {
		case domain.PaymentCompleted, domain.PaymentFailed:
			return p.Status
		}
		return domain.PaymentPending
	}

	d := p.PartialPaymentDetails
	online := d.OnlinePaymentStatus
	cash := d.CashPaymentStatus
	if online == domain.PaymentCompleted && cash == domain.CashCollected {
		return domain.PaymentCompleted
	}
	if online == domain.PaymentFailed || cash == domain.CashNotCollected {
		return domain.PaymentFailed
	}
	return domain.PaymentPending
}
