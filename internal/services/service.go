package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
	"bookingcore/internal/events"
	"bookingcore/internal/gateway"
	"bookingcore/internal/logger"
	"bookingcore/internal/metrics"
	"bookingcore/internal/repositories"
)

// RefundGateway is the slice of the payment provider the refund flow needs.
type RefundGateway interface {
	Refund(ctx context.Context, req gateway.RefundRequest) (gateway.RefundReceipt, error)
	RefundStatus(ctx context.Context, reference string) (gateway.RefundState, error)
}

// ViewCache holds booking projections between writes. Set must not replace a
// cached view with an older version and reports whether it stored v.
type ViewCache interface {
	Get(ctx context.Context, id int64) (models.BookingView, bool, error)
	Set(ctx context.Context, v models.BookingView) (bool, error)
	Invalidate(ctx context.Context, id int64) error
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

const defaultConflictRetries = 3

// Deps are shared by every service. Store and Audit are required; the rest
// may be left zero.
type Deps struct {
	Store   repositories.BookingStore
	Audit   repositories.AuditTrail
	Gateway RefundGateway
	Cache   ViewCache
	Events  EventPublisher
	Metrics *metrics.Metrics
	Log     logger.Logger
	Now     func() time.Time
	NewID   func() string

	// ConflictRetries bounds internal re-reads for writers that carry no
	// caller version (webhooks, the refund poller).
	ConflictRetries int
	RequestID       string
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

// shortID returns up to n upper-case characters of a fresh id.
func (d Deps) shortID(n int) string {
	id := strings.ToUpper(strings.ReplaceAll(d.newID(), "-", ""))
	if len(id) > n {
		id = id[:n]
	}
	return id
}

func (d Deps) log() logger.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.Nop()
}

func (d Deps) conflictRetries() int {
	if d.ConflictRetries > 0 {
		return d.ConflictRetries
	}
	return defaultConflictRetries
}

// WithRequestID returns a copy whose log lines carry the request id.
func (d Deps) WithRequestID(id string) Deps {
	d.RequestID = id
	return d
}

// load reads a booking and checks the caller's version before any work is
// done. The store re-checks it atomically on write.
func (d Deps) load(ctx context.Context, id, expectedVersion int64) (models.Booking, error) {
	if id <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "id", Msg: "invalid booking id"}
	}
	if expectedVersion <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "version", Msg: "expected version required"}
	}
	b, err := d.Store.Get(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Version != expectedVersion {
		return models.Booking{}, domain.ConflictError{
			Resource: "booking",
			Msg:      "booking was modified, reload and retry",
		}
	}
	return b, nil
}

func (d Deps) auditEntry(status domain.BookingStatus, actor domain.Actor, reason, notes string) *models.AuditEntry {
	return &models.AuditEntry{
		Status:         status,
		Timestamp:      d.now(),
		UpdatedBy:      actor.ID,
		UpdatedByModel: actor.Role,
		Reason:         reason,
		Notes:          notes,
	}
}

// commit applies a mutation and runs the post-commit side effects. Cache and
// event failures are logged and never undo the write.
func (d Deps) commit(ctx context.Context, op, eventType string, before models.Booking, m repositories.Mutation, actor domain.Actor) (models.Booking, error) {
	after, err := d.Store.Apply(ctx, m)
	if err != nil {
		if domain.IsConflict(err) {
			d.Metrics.Conflict(op)
		}
		return models.Booking{}, err
	}
	if before.Status != after.Status {
		d.Metrics.Transition(string(before.Status), string(after.Status))
	}
	d.afterWrite(ctx, op, eventType, after, actor)
	return after, nil
}

func (d Deps) afterWrite(ctx context.Context, op, eventType string, b models.Booking, actor domain.Actor) {
	if d.Cache != nil {
		if _, err := d.Cache.Set(ctx, models.NewBookingView(b)); err != nil {
			d.log().Warn("cache refresh failed", "booking_id", b.ID, "error", err)
			if err := d.Cache.Invalidate(ctx, b.ID); err != nil {
				d.log().Warn("cache invalidate failed", "booking_id", b.ID, "error", err)
			}
		}
	}
	if d.Events != nil {
		ev := events.Event{
			Type:          eventType,
			BookingID:     b.ID,
			BookingNumber: b.BookingNumber,
			Status:        b.Status,
			Version:       b.Version,
			Actor:         actor.ID,
			OccurredAt:    d.now(),
		}
		if err := d.Events.Publish(ctx, ev); err != nil {
			d.log().Warn("event publish failed", "booking_id", b.ID, "type", eventType, "error", err)
		}
	}
	logger.Event(d.log(), d.RequestID, "booking", op, "booking updated",
		"booking_id", b.ID, "status", b.Status, "version", b.Version, "actor", actor.ID)
}

func isReplay(err error) bool { return errors.Is(err, domain.ErrIdempotentReplay) }

// keyApplied reports whether key was already applied to booking id. A key
// recorded against a different booking is rejected rather than replayed.
func (d Deps) keyApplied(ctx context.Context, id int64, key string) (bool, error) {
	owner, found, err := d.Store.KeyOwner(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if owner != id {
		return false, domain.ValidationError{Field: "idempotencyKey", Msg: fmt.Sprintf("already used by booking %d", owner)}
	}
	return true, nil
}

// archiveRejected moves a rejected record into history so a fresh request
// can start.
func archiveRejected(b *models.Booking) {
	if b.Cancellation != nil && b.Cancellation.State == domain.CancellationRejected {
		b.PastCancellations = append(b.PastCancellations, *b.Cancellation)
		b.Cancellation = nil
	}
}
