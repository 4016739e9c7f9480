package models

import "bookingcore/internal/domain"

const (
	FlagUnpaidBalance        = "unpaid_balance"
	FlagAwaitingRefund       = "awaiting_refund"
	FlagUnrefundedSettlement = "unrefunded_settlement"
	FlagDuplicateSettlement  = "duplicate_settlement"
)

// BookingView is the projection returned to callers. Financial fields are
// computed here so clients never derive them.
type BookingView struct {
	Booking
	OverallPaymentStatus domain.PaymentStatus `json:"overallPaymentStatus"`
	SettledAmount        domain.Money         `json:"settledAmount"`
	OutstandingAmount    domain.Money         `json:"outstandingAmount"`
	Flags                []string             `json:"flags"`
}

func NewBookingView(b Booking) BookingView {
	v := BookingView{
		Booking:              b,
		OverallPaymentStatus: OverallPaymentStatus(b.Payment),
		SettledAmount:        b.Payment.SettledAmount(),
		Flags:                []string{},
	}
	if b.Status != domain.StatusCancelled {
		v.OutstandingAmount = b.Pricing.TotalAmount - v.SettledAmount
		if v.OutstandingAmount < 0 {
			v.OutstandingAmount = 0
		}
	}
	if b.Status == domain.StatusCompleted && v.OverallPaymentStatus != domain.PaymentCompleted {
		v.Flags = append(v.Flags, FlagUnpaidBalance)
	}
	if b.Payment.DuplicateAmount > 0 {
		v.Flags = append(v.Flags, FlagDuplicateSettlement)
	}
	if c := b.Cancellation; b.Status == domain.StatusCancelled && c != nil {
		if c.RefundStatus != domain.RefundCompleted && c.RefundAmount > 0 {
			v.Flags = append(v.Flags, FlagAwaitingRefund)
		}
		if c.UnrefundedAmount > 0 {
			v.Flags = append(v.Flags, FlagUnrefundedSettlement)
		}
	}
	return v
}
