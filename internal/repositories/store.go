package repositories

import (
	"context"
	"iter"
	"time"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

// Mutation is one all-or-nothing write against a booking. Booking holds the
// desired state; the store assigns Version = ExpectedVersion+1 when the stored
// version still equals ExpectedVersion.
type Mutation struct {
	Booking         models.Booking
	ExpectedVersion int64
	Audit           *models.AuditEntry
	Ledger          []models.LedgerEntry
}

// ListQuery filters the read-only booking projection.
type ListQuery struct {
	Status        domain.BookingStatus
	PaymentStatus domain.PaymentStatus
	From          *time.Time
	To            *time.Time
	Page          int
	Limit         int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize clamps paging values.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	return q
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// BookingStore is the only shared mutable resource. Apply fails with a
// ConflictError on a stale version and with domain.ErrIdempotentReplay when a
// ledger idempotency key was already written; in both cases nothing is stored.
// Keys are unique across bookings; KeyOwner tells callers which booking a
// key was recorded against.
type BookingStore interface {
	Create(ctx context.Context, b models.Booking, first models.AuditEntry) (models.Booking, error)
	Get(ctx context.Context, id int64) (models.Booking, error)
	Apply(ctx context.Context, m Mutation) (models.Booking, error)
	Query(ctx context.Context, q ListQuery) ([]models.Booking, int, error)
	ListByRefundStatus(ctx context.Context, statuses []domain.RefundStatus, limit int) ([]models.Booking, error)
	Ledger(ctx context.Context, bookingID int64) ([]models.LedgerEntry, error)
	KeyOwner(ctx context.Context, key string) (bookingID int64, found bool, err error)
}

// AuditTrail is append-only. List yields entries oldest first and reads lazily.
type AuditTrail interface {
	Append(ctx context.Context, entry models.AuditEntry) error
	List(ctx context.Context, bookingID int64) iter.Seq2[models.AuditEntry, error]
}

func refundStatusOf(b models.Booking) string {
	if b.Cancellation == nil {
		return ""
	}
	return string(b.Cancellation.RefundStatus)
}
