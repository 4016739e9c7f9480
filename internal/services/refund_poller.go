package services

import (
	"context"

	"bookingcore/internal/domain"
	"bookingcore/internal/gateway"
)

var pollerActor = domain.Actor{ID: "refund-poller", Role: domain.RoleSystem}

// RefundPoller asks the gateway about refunds still in flight and moves them
// forward. A conflict with a concurrent writer is left for the next run.
type RefundPoller struct {
	Deps
	BatchSize int
}

func NewRefundPoller(d Deps, batch int) RefundPoller {
	return RefundPoller{Deps: d, BatchSize: batch}
}

// Poll runs one pass and returns how many refunds advanced.
func (p RefundPoller) Poll(ctx context.Context) (int, error) {
	if p.Gateway == nil {
		return 0, nil
	}
	pending, err := p.Store.ListByRefundStatus(ctx, []domain.RefundStatus{domain.RefundInitiated, domain.RefundProcessed}, p.BatchSize)
	if err != nil {
		return 0, err
	}

	refunds := RefundService{Deps: p.Deps}
	advanced := 0
	for _, b := range pending {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}
		c := b.Cancellation
		if c == nil || c.RefundMethod != domain.RefundViaGateway || c.RefundReference == "" {
			continue
		}
		state, err := p.Gateway.RefundStatus(ctx, c.RefundReference)
		if err != nil {
			p.log().Warn("refund status lookup failed", "booking_id", b.ID, "reference", c.RefundReference, "error", err)
			continue
		}

		var to domain.RefundStatus
		switch state {
		case gateway.RefundStateProcessed:
			to = domain.RefundProcessed
		case gateway.RefundStateCompleted:
			to = domain.RefundCompleted
		case gateway.RefundStateFailed:
			p.log().Error("gateway reported refund failure", "booking_id", b.ID, "reference", c.RefundReference)
			continue
		default:
			continue
		}
		if to.Rank() <= c.RefundStatus.Rank() {
			continue
		}
		if _, err := refunds.advance(ctx, b, to, pollerActor, "", ""); err != nil {
			p.log().Warn("refund advance failed", "booking_id", b.ID, "to", to, "error", err)
			continue
		}
		advanced++
	}
	return advanced, nil
}
