package domain

import (
	"fmt"
	"strings"
)

// Money is an amount in currency minor units. Amounts are compared exactly.
type Money int64

// BookingStatus is the lifecycle status of a booking.
type BookingStatus string

const (
	StatusPending               BookingStatus = "pending"
	StatusAccepted              BookingStatus = "accepted"
	StatusStarted               BookingStatus = "started"
	StatusCompleted             BookingStatus = "completed"
	StatusCancelled             BookingStatus = "cancelled"
	StatusCancellationRequested BookingStatus = "cancellation_requested"
)

var bookingStatuses = []BookingStatus{
	StatusPending,
	StatusAccepted,
	StatusStarted,
	StatusCompleted,
	StatusCancelled,
	StatusCancellationRequested,
}

// AllBookingStatuses returns every status in declaration order.
func AllBookingStatuses() []BookingStatus {
	out := make([]BookingStatus, len(bookingStatuses))
	copy(out, bookingStatuses)
	return out
}

func (s BookingStatus) Valid() bool {
	for _, v := range bookingStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q, expected one of %v", raw, AllBookingStatuses())}
	}
	return s, nil
}

// PaymentStatus is used for the booking-level status and the online leg.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return s, nil
	}
	return "", ValidationError{Field: "paymentStatus", Msg: fmt.Sprintf("unknown payment status %q", raw)}
}

// CashStatus is the state of the cash leg of a split payment.
type CashStatus string

const (
	CashPending      CashStatus = "pending"
	CashCollected    CashStatus = "collected"
	CashNotCollected CashStatus = "not_collected"
)

type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodUPI        PaymentMethod = "upi"
	MethodNetbanking PaymentMethod = "netbanking"
	MethodCard       PaymentMethod = "card"
	MethodGateway    PaymentMethod = "gateway"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case MethodCash, MethodUPI, MethodNetbanking, MethodCard, MethodGateway:
		return m, nil
	case "razorpay":
		return MethodGateway, nil
	}
	return "", ValidationError{Field: "method", Msg: fmt.Sprintf("unknown payment method %q", raw)}
}

// Online reports whether settlement of this method is confirmed by the gateway.
func (m PaymentMethod) Online() bool { return m != MethodCash }

// RefundStatus only ever moves forward, see Rank.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundInitiated RefundStatus = "initiated"
	RefundProcessed RefundStatus = "processed"
	RefundCompleted RefundStatus = "completed"
)

func (s RefundStatus) Rank() int {
	switch s {
	case RefundPending:
		return 0
	case RefundInitiated:
		return 1
	case RefundProcessed:
		return 2
	case RefundCompleted:
		return 3
	}
	return -1
}

type RefundMethod string

const (
	RefundViaGateway RefundMethod = "gateway"
	RefundManual     RefundMethod = "manual"
)

func ParseRefundMethod(raw string) (RefundMethod, error) {
	m := RefundMethod(strings.ToLower(strings.TrimSpace(raw)))
	if m != RefundViaGateway && m != RefundManual {
		return "", ValidationError{Field: "method", Msg: fmt.Sprintf("unknown refund method %q", raw)}
	}
	return m, nil
}

type CancellationState string

const (
	CancellationRequested CancellationState = "requested"
	CancellationApproved  CancellationState = "approved"
	CancellationRejected  CancellationState = "rejected"
)

// ActorRole doubles as the cancelledByModel / updatedByModel value.
type ActorRole string

const (
	RoleUser   ActorRole = "User"
	RoleDriver ActorRole = "Driver"
	RoleAdmin  ActorRole = "Admin"
	// RoleSystem is used for gateway webhooks and background jobs.
	RoleSystem ActorRole = "System"
)

func ParseActorRole(raw string) (ActorRole, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "rider", "customer":
		return RoleUser, nil
	case "driver":
		return RoleDriver, nil
	case "admin":
		return RoleAdmin, nil
	case "system":
		return RoleSystem, nil
	}
	return "", ValidationError{Field: "role", Msg: fmt.Sprintf("unknown role %q", raw)}
}

// Actor identifies who asked for a mutation.
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ValidationError{Field: "actor", Msg: "identity required"}
	}
	switch a.Role {
	case RoleUser, RoleDriver, RoleAdmin, RoleSystem:
		return nil
	}
	return ValidationError{Field: "actor", Msg: "role required"}
}

// Pagination carries paging params and totals.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total,omitempty"`
}
