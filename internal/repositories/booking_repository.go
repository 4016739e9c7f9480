package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	intdb "bookingcore/internal/db"
	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

// BookingRepository is the MySQL BookingStore. Indexed columns back the list
// filters; pricing, payment and cancellation live in the document column.
type BookingRepository struct {
	DB            *sql.DB
	RetryAttempts int
	Now           func() time.Time
}

func NewBookingRepository(conn *sql.DB, retryAttempts int) BookingRepository {
	return BookingRepository{DB: conn, RetryAttempts: retryAttempts}
}

func (r BookingRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r BookingRepository) audit() AuditRepository   { return AuditRepository{DB: r.DB} }
func (r BookingRepository) ledger() LedgerRepository { return LedgerRepository{DB: r.DB} }

// AuditTrail exposes the audit table behind this store.
func (r BookingRepository) AuditTrail() AuditTrail { return r.audit() }

const bookingColumns = `id, booking_number, status, version, customer_id, COALESCE(driver_id, ''), document, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b      models.Booking
		status string
		doc    []byte
	)
	if err := row.Scan(&b.ID, &b.BookingNumber, &status, &b.Version, &b.CustomerID, &b.DriverID, &doc, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return models.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)

	var d models.Document
	if err := json.Unmarshal(doc, &d); err != nil {
		return models.Booking{}, domain.InternalError{Msg: fmt.Sprintf("booking %d document unreadable", b.ID), Err: err}
	}
	b.ApplyDocument(d)
	return b, nil
}

func (r BookingRepository) Create(ctx context.Context, b models.Booking, first models.AuditEntry) (models.Booking, error) {
	now := r.now()
	b.Version = 1
	b.CreatedAt, b.UpdatedAt = now, now
	doc, err := json.Marshal(b.Document())
	if err != nil {
		return models.Booking{}, domain.InternalError{Msg: "encode booking", Err: err}
	}

	err = intdb.Retry(ctx, r.RetryAttempts, func() error {
		return intdb.InTx(ctx, r.DB, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO bookings (booking_number, status, payment_status, refund_status, version, customer_id, driver_id, total_amount, document, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.BookingNumber,
				string(b.Status),
				string(models.OverallPaymentStatus(b.Payment)),
				intdb.NullIfEmpty(refundStatusOf(b)),
				b.Version,
				b.CustomerID,
				intdb.NullIfEmpty(b.DriverID),
				int64(b.Pricing.TotalAmount),
				doc,
				b.CreatedAt,
				b.UpdatedAt,
			)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			b.ID = id
			first.BookingID = id
			_, err = r.audit().insert(ctx, tx, first)
			return err
		})
	})
	if err != nil {
		return models.Booking{}, r.wrap(err)
	}
	return b, nil
}

func (r BookingRepository) Get(ctx context.Context, id int64) (models.Booking, error) {
	var b models.Booking
	err := intdb.Retry(ctx, r.RetryAttempts, func() error {
		var err error
		b, err = scanBooking(r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? LIMIT 1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, domain.NotFoundError{Resource: "booking", Err: err}
	}
	if err != nil {
		return models.Booking{}, r.wrap(err)
	}
	return b, nil
}

func (r BookingRepository) Apply(ctx context.Context, m Mutation) (models.Booking, error) {
	next := m.Booking.Clone()
	next.Version = m.ExpectedVersion + 1
	next.UpdatedAt = r.now()
	doc, err := json.Marshal(next.Document())
	if err != nil {
		return models.Booking{}, domain.InternalError{Msg: "encode booking", Err: err}
	}

	err = intdb.Retry(ctx, r.RetryAttempts, func() error {
		return intdb.InTx(ctx, r.DB, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE bookings
				SET status = ?, payment_status = ?, refund_status = ?, driver_id = ?, version = ?, document = ?, updated_at = ?
				WHERE id = ? AND version = ?`,
				string(next.Status),
				string(models.OverallPaymentStatus(next.Payment)),
				intdb.NullIfEmpty(refundStatusOf(next)),
				intdb.NullIfEmpty(next.DriverID),
				next.Version,
				doc,
				next.UpdatedAt,
				next.ID,
				m.ExpectedVersion,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				var current int64
				err := tx.QueryRowContext(ctx, `SELECT version FROM bookings WHERE id = ?`, next.ID).Scan(&current)
				if errors.Is(err, sql.ErrNoRows) {
					return domain.NotFoundError{Resource: "booking", Err: err}
				}
				if err != nil {
					return err
				}
				return domain.ConflictError{
					Resource: "booking",
					Msg:      fmt.Sprintf("expected version %d, stored version %d", m.ExpectedVersion, current),
				}
			}

			if m.Audit != nil {
				entry := *m.Audit
				entry.BookingID = next.ID
				if _, err := r.audit().insert(ctx, tx, entry); err != nil {
					return err
				}
			}
			for _, e := range m.Ledger {
				e.BookingID = next.ID
				if err := r.ledger().insert(ctx, tx, e); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return models.Booking{}, r.wrap(err)
	}
	return next, nil
}

func (r BookingRepository) Query(ctx context.Context, q ListQuery) ([]models.Booking, int, error) {
	q = q.Normalize()

	where := []string{"1=1"}
	args := []any{}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.PaymentStatus != "" {
		where = append(where, "payment_status = ?")
		args = append(args, string(q.PaymentStatus))
	}
	if q.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *q.From)
	}
	if q.To != nil {
		where = append(where, "created_at < ?")
		args = append(args, *q.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, r.wrap(err)
	}

	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset())
	rows, err := r.DB.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE `+cond+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, r.wrap(err)
	}
	defer rows.Close()

	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, r.wrap(err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.wrap(err)
	}
	return out, total, nil
}

func (r BookingRepository) ListByRefundStatus(ctx context.Context, statuses []domain.RefundStatus, limit int) ([]models.Booking, error) {
	if len(statuses) == 0 {
		return []models.Booking{}, nil
	}
	if limit <= 0 {
		limit = maxPageSize
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	args = append(args, string(domain.StatusCancelled))
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status = ? AND refund_status IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY updated_at ASC LIMIT ?`, args...)
	if err != nil {
		return nil, r.wrap(err)
	}
	defer rows.Close()

	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, r.wrap(err)
		}
		out = append(out, b)
	}
	return out, r.wrap(rows.Err())
}

func (r BookingRepository) Ledger(ctx context.Context, bookingID int64) ([]models.LedgerEntry, error) {
	out, err := r.ledger().ListByBooking(ctx, bookingID)
	return out, r.wrap(err)
}

func (r BookingRepository) KeyOwner(ctx context.Context, key string) (int64, bool, error) {
	id, ok, err := r.ledger().KeyOwner(ctx, key)
	return id, ok, r.wrap(err)
}

// History streams the audit trail of a booking.
func (r BookingRepository) History(ctx context.Context, bookingID int64) iter.Seq2[models.AuditEntry, error] {
	return r.audit().List(ctx, bookingID)
}

// wrap leaves domain errors untouched and marks everything else internal.
func (r BookingRepository) wrap(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrIdempotentReplay),
		domain.IsInternal(err):
		return err
	}
	return domain.InternalError{Msg: "booking store unavailable", Err: err}
}
