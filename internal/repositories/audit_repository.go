package repositories

import (
	"context"
	"database/sql"
	"iter"

	intdb "bookingcore/internal/db"
	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AuditRepository stores booking_audit rows.
type AuditRepository struct {
	DB *sql.DB
}

// Append writes one entry outside a booking transaction.
func (r AuditRepository) Append(ctx context.Context, entry models.AuditEntry) error {
	_, err := r.insert(ctx, r.DB, entry)
	return err
}

func (r AuditRepository) insert(ctx context.Context, ex execer, e models.AuditEntry) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO booking_audit (booking_id, status, updated_by, updated_by_model, reason, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.BookingID,
		string(e.Status),
		e.UpdatedBy,
		string(e.UpdatedByModel),
		intdb.NullIfEmpty(e.Reason),
		intdb.NullIfEmpty(e.Notes),
		e.Timestamp,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// List streams the booking's entries oldest first. Rows are scanned as the
// caller iterates; stopping early closes the cursor.
func (r AuditRepository) List(ctx context.Context, bookingID int64) iter.Seq2[models.AuditEntry, error] {
	return func(yield func(models.AuditEntry, error) bool) {
		rows, err := r.DB.QueryContext(ctx, `
			SELECT id, booking_id, status, updated_by, updated_by_model,
			       COALESCE(reason, ''), COALESCE(notes, ''), created_at
			FROM booking_audit
			WHERE booking_id = ?
			ORDER BY id ASC`, bookingID)
		if err != nil {
			yield(models.AuditEntry{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e            models.AuditEntry
				status, role string
			)
			if err := rows.Scan(&e.ID, &e.BookingID, &status, &e.UpdatedBy, &role, &e.Reason, &e.Notes, &e.Timestamp); err != nil {
				yield(models.AuditEntry{}, err)
				return
			}
			e.Status = domain.BookingStatus(status)
			e.UpdatedByModel = domain.ActorRole(role)
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.AuditEntry{}, err)
		}
	}
}
