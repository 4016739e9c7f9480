package services

import (
	"context"
	"fmt"
	"strings"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
	"bookingcore/internal/events"
	"bookingcore/internal/repositories"
)

// CancellationService runs the request / approve / reject workflow and
// direct cancellations.
type CancellationService struct {
	Deps
}

func NewCancellationService(d Deps) CancellationService { return CancellationService{Deps: d} }

type CancelRequest struct {
	ExpectedVersion int64
	Actor           domain.Actor
	Reason          string
	Notes           string
	RefundAmount    *domain.Money
}

type Decision struct {
	ExpectedVersion int64
	Actor           domain.Actor
	// RefundAmount overrides the default refund of everything settled.
	RefundAmount *domain.Money
	Notes        string
}

func (s CancellationService) RequestCancellation(ctx context.Context, id int64, req CancelRequest) (models.BookingView, error) {
	b, err := s.load(ctx, id, req.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}
	return s.request(ctx, b, req.Actor, req.Reason, req.Notes)
}

func (s CancellationService) ApproveCancellation(ctx context.Context, id int64, d Decision) (models.BookingView, error) {
	b, err := s.load(ctx, id, d.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}
	return s.approve(ctx, b, d.Actor, d.RefundAmount, d.Notes)
}

// RejectCancellation restores the status the booking had before the request,
// read from the audit trail rather than from the record itself.
func (s CancellationService) RejectCancellation(ctx context.Context, id int64, d Decision) (models.BookingView, error) {
	if err := d.Actor.Validate(); err != nil {
		return models.BookingView{}, err
	}
	if d.Actor.Role != domain.RoleAdmin {
		return models.BookingView{}, domain.ForbiddenError{Role: d.Actor.Role, Op: "reject a cancellation"}
	}
	b, err := s.load(ctx, id, d.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}
	if b.Status != domain.StatusCancellationRequested || b.Cancellation == nil || b.Cancellation.State != domain.CancellationRequested {
		return models.BookingView{}, domain.TransitionError{From: b.Status, To: domain.StatusCancellationRequested, Msg: "no pending cancellation request"}
	}

	prior, err := s.priorStatus(ctx, b.ID)
	if err != nil {
		return models.BookingView{}, err
	}

	now := s.now()
	next := b.Clone()
	next.Status = prior
	next.Cancellation.State = domain.CancellationRejected
	next.Cancellation.DecidedBy = d.Actor.ID
	next.Cancellation.DecidedAt = &now
	next.Cancellation.DecisionNotes = strings.TrimSpace(d.Notes)

	after, err := s.commit(ctx, "reject_cancellation", events.TypeCancellation, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Audit:           s.auditEntry(prior, d.Actor, "cancellation rejected", d.Notes),
	}, d.Actor)
	if err != nil {
		return models.BookingView{}, err
	}
	return models.NewBookingView(after), nil
}

// CancelDirect cancels without the request step. Only drivers and admins
// may, and a started trip needs an admin.
func (s CancellationService) CancelDirect(ctx context.Context, id int64, req CancelRequest) (models.BookingView, error) {
	b, err := s.load(ctx, id, req.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}
	return s.cancelDirect(ctx, b, req.Actor, req.Reason, req.Notes, req.RefundAmount)
}

func (s CancellationService) request(ctx context.Context, b models.Booking, actor domain.Actor, reason, notes string) (models.BookingView, error) {
	reason = strings.TrimSpace(reason)
	if err := domain.CheckTransition(b.Status, domain.StatusCancellationRequested, actor, reason); err != nil {
		return models.BookingView{}, err
	}
	if b.Cancellation.Active() {
		return models.BookingView{}, domain.TransitionError{From: b.Status, To: domain.StatusCancellationRequested, Msg: "cancellation already recorded"}
	}

	next := b.Clone()
	archiveRejected(&next)
	next.Status = domain.StatusCancellationRequested
	next.Cancellation = &models.CancellationRecord{
		State:            domain.CancellationRequested,
		CancelledBy:      actor.ID,
		CancelledByModel: actor.Role,
		CancelledAt:      s.now(),
		Reason:           reason,
		PriorStatus:      b.Status,
		RefundStatus:     domain.RefundPending,
	}

	after, err := s.commit(ctx, "request_cancellation", events.TypeCancellation, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Audit:           s.auditEntry(domain.StatusCancellationRequested, actor, reason, notes),
	}, actor)
	if err != nil {
		return models.BookingView{}, err
	}
	return models.NewBookingView(after), nil
}

func (s CancellationService) approve(ctx context.Context, b models.Booking, actor domain.Actor, refund *domain.Money, notes string) (models.BookingView, error) {
	c := b.Cancellation
	if b.Status != domain.StatusCancellationRequested || c == nil || c.State != domain.CancellationRequested {
		return models.BookingView{}, domain.TransitionError{From: b.Status, To: domain.StatusCancelled, Msg: "no pending cancellation request"}
	}
	if err := domain.CheckTransition(b.Status, domain.StatusCancelled, actor, c.Reason); err != nil {
		return models.BookingView{}, err
	}
	amount, err := refundAmountFor(b, refund)
	if err != nil {
		return models.BookingView{}, err
	}

	now := s.now()
	next := b.Clone()
	next.Status = domain.StatusCancelled
	next.Cancellation.State = domain.CancellationApproved
	next.Cancellation.DecidedBy = actor.ID
	next.Cancellation.DecidedAt = &now
	next.Cancellation.DecisionNotes = strings.TrimSpace(notes)
	next.Cancellation.RefundAmount = amount
	next.Cancellation.RefundStatus = domain.RefundPending

	after, err := s.commit(ctx, "approve_cancellation", events.TypeCancellation, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Audit:           s.auditEntry(domain.StatusCancelled, actor, c.Reason, notes),
	}, actor)
	if err != nil {
		return models.BookingView{}, err
	}
	return models.NewBookingView(after), nil
}

func (s CancellationService) cancelDirect(ctx context.Context, b models.Booking, actor domain.Actor, reason, notes string, refund *domain.Money) (models.BookingView, error) {
	if b.Status == domain.StatusCancellationRequested {
		return s.approve(ctx, b, actor, refund, notes)
	}
	reason = strings.TrimSpace(reason)
	if err := domain.CheckTransition(b.Status, domain.StatusCancelled, actor, reason); err != nil {
		return models.BookingView{}, err
	}
	amount, err := refundAmountFor(b, refund)
	if err != nil {
		return models.BookingView{}, err
	}

	now := s.now()
	next := b.Clone()
	archiveRejected(&next)
	next.Status = domain.StatusCancelled
	next.Cancellation = &models.CancellationRecord{
		State:            domain.CancellationApproved,
		CancelledBy:      actor.ID,
		CancelledByModel: actor.Role,
		CancelledAt:      now,
		Reason:           reason,
		PriorStatus:      b.Status,
		RefundAmount:     amount,
		RefundStatus:     domain.RefundPending,
		DecidedBy:        actor.ID,
		DecidedAt:        &now,
		DecisionNotes:    strings.TrimSpace(notes),
	}

	after, err := s.commit(ctx, "cancel", events.TypeCancellation, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Audit:           s.auditEntry(domain.StatusCancelled, actor, reason, notes),
	}, actor)
	if err != nil {
		return models.BookingView{}, err
	}
	return models.NewBookingView(after), nil
}

// priorStatus finds the status recorded just before the latest
// cancellation_requested entry.
func (s CancellationService) priorStatus(ctx context.Context, id int64) (domain.BookingStatus, error) {
	var prev, prior domain.BookingStatus
	for e, err := range s.Audit.List(ctx, id) {
		if err != nil {
			return "", domain.InternalError{Msg: "read audit trail", Err: err}
		}
		if e.Status == domain.StatusCancellationRequested {
			prior = prev
		}
		prev = e.Status
	}
	if prior == "" || prior == domain.StatusCancellationRequested {
		return "", domain.InternalError{Msg: fmt.Sprintf("booking %d: no status recorded before cancellation request", id)}
	}
	return prior, nil
}

// refundAmountFor defaults to everything settled and rejects amounts outside
// [0, settled].
func refundAmountFor(b models.Booking, requested *domain.Money) (domain.Money, error) {
	settled := b.Payment.SettledAmount()
	if requested == nil {
		return settled, nil
	}
	if *requested < 0 || *requested > settled {
		return 0, domain.ValidationError{Field: "refundAmount", Msg: fmt.Sprintf("must be between 0 and %d", settled)}
	}
	return *requested, nil
}
