package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
	"bookingcore/internal/events"
	"bookingcore/internal/gateway"
	"bookingcore/internal/repositories"
)

// RefundService moves the refund of an approved cancellation forward:
// pending -> initiated -> processed -> completed, never back.
type RefundService struct {
	Deps
}

func NewRefundService(d Deps) RefundService { return RefundService{Deps: d} }

type RefundInitiation struct {
	ExpectedVersion int64
	Actor           domain.Actor
	Method          domain.RefundMethod
	Reason          string
	Notes           string
	// Reference is the bank or cash reference for a manual refund.
	Reference string
}

type RefundCompletion struct {
	ExpectedVersion int64
	Actor           domain.Actor
	Reference       string
	Notes           string
}

func refundable(op string, b models.Booking) (*models.CancellationRecord, error) {
	c := b.Cancellation
	if b.Status != domain.StatusCancelled || c == nil || c.State != domain.CancellationApproved {
		return nil, domain.StateError{Op: op, Msg: "booking has no approved cancellation"}
	}
	return c, nil
}

func refundKey(id int64, st domain.RefundStatus) string {
	return fmt.Sprintf("refund:%d:%s", id, st)
}

// gatewayRefundKey is stable for one cancellation, so a retried initiation
// after a lost response cannot refund twice at the provider.
func gatewayRefundKey(b models.Booking) string {
	return fmt.Sprintf("refund:%s:%d", b.BookingNumber, b.Cancellation.CancelledAt.UnixNano())
}

// InitiateRefund starts the refund. A manual refund is settled off-platform
// and completes at once; a gateway refund is submitted to the provider and
// tracked from there.
func (s RefundService) InitiateRefund(ctx context.Context, id int64, in RefundInitiation) (models.BookingView, error) {
	if err := in.Actor.Validate(); err != nil {
		return models.BookingView{}, err
	}
	if in.Actor.Role != domain.RoleAdmin {
		return models.BookingView{}, domain.ForbiddenError{Role: in.Actor.Role, Op: "initiate a refund"}
	}
	b, err := s.load(ctx, id, in.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}
	c, err := refundable("initiate refund", b)
	if err != nil {
		return models.BookingView{}, err
	}
	if c.RefundStatus != domain.RefundPending {
		return models.BookingView{}, domain.StateError{Op: "initiate refund", Msg: "refund already " + string(c.RefundStatus)}
	}

	switch in.Method {
	case domain.RefundManual:
		return s.manualRefund(ctx, b, in)
	case domain.RefundViaGateway:
		return s.gatewayRefund(ctx, b, in)
	}
	return models.BookingView{}, domain.ValidationError{Field: "method", Msg: "must be gateway or manual"}
}

func (s RefundService) manualRefund(ctx context.Context, b models.Booking, in RefundInitiation) (models.BookingView, error) {
	now := s.now()
	ref := strings.TrimSpace(in.Reference)
	if ref == "" {
		ref = "MAN-" + s.shortID(12)
	}

	next := b.Clone()
	c := next.Cancellation
	c.RefundMethod = domain.RefundManual
	c.RefundStatus = domain.RefundCompleted
	c.RefundReference = ref
	c.RefundReason = strings.TrimSpace(in.Reason)
	c.RefundNotes = strings.TrimSpace(in.Notes)
	c.RefundInitiatedAt = &now
	c.RefundCompletedAt = &now

	after, err := s.commit(ctx, "refund_manual", events.TypeRefundUpdated, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Ledger: []models.LedgerEntry{{
			Leg:            models.LegRefund,
			Kind:           models.KindRefundCompleted,
			Outcome:        string(domain.RefundCompleted),
			Amount:         c.RefundAmount,
			Reference:      ref,
			IdempotencyKey: refundKey(b.ID, domain.RefundCompleted),
			Actor:          in.Actor.ID,
			CreatedAt:      now,
		}},
	}, in.Actor)
	if err != nil {
		return models.BookingView{}, err
	}
	s.Metrics.Refund(string(domain.RefundManual), "completed")
	return models.NewBookingView(after), nil
}

func (s RefundService) gatewayRefund(ctx context.Context, b models.Booking, in RefundInitiation) (models.BookingView, error) {
	if s.Gateway == nil {
		return models.BookingView{}, domain.GatewayError{Op: "refund", Err: errors.New("gateway not configured")}
	}
	p := b.Payment
	if !p.HasOnlineLeg() || p.OnlineLegStatus() != domain.PaymentCompleted {
		return models.BookingView{}, domain.StateError{Op: "gateway refund", Msg: "no settled online payment to refund"}
	}
	amount := b.Cancellation.RefundAmount
	if amount <= 0 {
		return models.BookingView{}, domain.StateError{Op: "gateway refund", Msg: "nothing to refund"}
	}
	if amount > onlineLegAmount(p) {
		return models.BookingView{}, domain.StateError{Op: "gateway refund", Msg: "refund exceeds the online settlement, use a manual refund"}
	}
	paymentID := p.TransactionID
	if p.IsPartialPayment && p.PartialPaymentDetails.OnlinePaymentID != "" {
		paymentID = p.PartialPaymentDetails.OnlinePaymentID
	}

	receipt, err := s.Gateway.Refund(ctx, gateway.RefundRequest{
		BookingNumber:  b.BookingNumber,
		PaymentID:      paymentID,
		Amount:         amount,
		Reason:         strings.TrimSpace(in.Reason),
		IdempotencyKey: gatewayRefundKey(b),
	})
	if err != nil {
		s.Metrics.Refund(string(domain.RefundViaGateway), "error")
		s.log().Warn("gateway refund failed", "booking_id", b.ID, "error", err)
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = domain.GatewayError{Op: "refund", Err: err}
		}
		return models.BookingView{}, err
	}

	now := s.now()
	next := b.Clone()
	c := next.Cancellation
	c.RefundMethod = domain.RefundViaGateway
	c.RefundStatus = domain.RefundInitiated
	c.RefundReference = receipt.Reference
	c.RefundReason = strings.TrimSpace(in.Reason)
	c.RefundNotes = strings.TrimSpace(in.Notes)
	c.RefundInitiatedAt = &now
	ledger := []models.LedgerEntry{{
		Leg:            models.LegRefund,
		Kind:           models.KindRefundInitiated,
		Outcome:        string(domain.RefundInitiated),
		Amount:         amount,
		Reference:      receipt.Reference,
		IdempotencyKey: refundKey(b.ID, domain.RefundInitiated),
		Actor:          in.Actor.ID,
		CreatedAt:      now,
	}}
	// Some providers settle synchronously.
	if receipt.State == gateway.RefundStateCompleted {
		c.RefundStatus = domain.RefundCompleted
		c.RefundCompletedAt = &now
		ledger = append(ledger, models.LedgerEntry{
			Leg:            models.LegRefund,
			Kind:           models.KindRefundCompleted,
			Outcome:        string(domain.RefundCompleted),
			Amount:         amount,
			Reference:      receipt.Reference,
			IdempotencyKey: refundKey(b.ID, domain.RefundCompleted),
			Actor:          gatewayActor.ID,
			CreatedAt:      now,
		})
	}

	after, err := s.commit(ctx, "refund_gateway", events.TypeRefundUpdated, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Ledger:          ledger,
	}, in.Actor)
	if err != nil {
		return models.BookingView{}, err
	}
	s.Metrics.Refund(string(domain.RefundViaGateway), string(c.RefundStatus))
	return models.NewBookingView(after), nil
}

// CompleteRefund marks an initiated or processed refund as completed.
func (s RefundService) CompleteRefund(ctx context.Context, id int64, in RefundCompletion) (models.BookingView, error) {
	if err := in.Actor.Validate(); err != nil {
		return models.BookingView{}, err
	}
	if in.Actor.Role != domain.RoleAdmin && in.Actor.Role != domain.RoleSystem {
		return models.BookingView{}, domain.ForbiddenError{Role: in.Actor.Role, Op: "complete a refund"}
	}
	b, err := s.load(ctx, id, in.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}
	return s.advance(ctx, b, domain.RefundCompleted, in.Actor, in.Reference, in.Notes)
}

// advance moves the refund to a later status and records the step in the
// ledger. Going backwards or standing still is a state error.
func (s RefundService) advance(ctx context.Context, b models.Booking, to domain.RefundStatus, actor domain.Actor, reference, notes string) (models.BookingView, error) {
	op := "advance refund to " + string(to)
	c, err := refundable(op, b)
	if err != nil {
		return models.BookingView{}, err
	}
	if c.RefundStatus == domain.RefundPending {
		return models.BookingView{}, domain.StateError{Op: op, Msg: "refund not initiated"}
	}
	if to.Rank() <= c.RefundStatus.Rank() {
		return models.BookingView{}, domain.StateError{Op: op, Msg: "refund already " + string(c.RefundStatus)}
	}

	now := s.now()
	next := b.Clone()
	nc := next.Cancellation
	nc.RefundStatus = to
	if ref := strings.TrimSpace(reference); ref != "" && nc.RefundReference == "" {
		nc.RefundReference = ref
	}
	if n := strings.TrimSpace(notes); n != "" {
		nc.RefundNotes = n
	}
	kind := models.KindRefundProcessed
	if to == domain.RefundCompleted {
		kind = models.KindRefundCompleted
		nc.RefundCompletedAt = &now
	}

	after, err := s.commit(ctx, "refund_"+string(to), events.TypeRefundUpdated, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Ledger: []models.LedgerEntry{{
			Leg:            models.LegRefund,
			Kind:           kind,
			Outcome:        string(to),
			Amount:         nc.RefundAmount,
			Reference:      nc.RefundReference,
			IdempotencyKey: refundKey(b.ID, to),
			Actor:          actor.ID,
			CreatedAt:      now,
		}},
	}, actor)
	if isReplay(err) {
		return models.BookingView{}, domain.StateError{Op: op, Msg: "refund already " + string(to)}
	}
	if err != nil {
		return models.BookingView{}, err
	}
	s.Metrics.Refund(string(nc.RefundMethod), string(to))
	return models.NewBookingView(after), nil
}
