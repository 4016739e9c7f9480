package repositories

import (
	"context"
	"database/sql"
	"errors"

	intdb "bookingcore/internal/db"
	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

// LedgerRepository stores ledger_entries rows. idempotency_key is unique, so
// a replayed confirmation cannot be inserted twice.
type LedgerRepository struct {
	DB *sql.DB
}

func (r LedgerRepository) insert(ctx context.Context, ex execer, e models.LedgerEntry) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO ledger_entries (booking_id, leg, kind, outcome, amount, reference, idempotency_key, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BookingID,
		string(e.Leg),
		string(e.Kind),
		intdb.NullIfEmpty(e.Outcome),
		int64(e.Amount),
		intdb.NullIfEmpty(e.Reference),
		intdb.NullIfEmpty(e.IdempotencyKey),
		intdb.NullIfEmpty(e.Actor),
		e.CreatedAt,
	)
	if intdb.IsDuplicateKey(err) {
		return domain.ErrIdempotentReplay
	}
	return err
}

func (r LedgerRepository) ListByBooking(ctx context.Context, bookingID int64) ([]models.LedgerEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, booking_id, leg, kind, COALESCE(outcome, ''), amount,
		       COALESCE(reference, ''), COALESCE(idempotency_key, ''), COALESCE(actor, ''), created_at
		FROM ledger_entries
		WHERE booking_id = ?
		ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.LedgerEntry{}
	for rows.Next() {
		var (
			e         models.LedgerEntry
			leg, kind string
			amount    int64
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &leg, &kind, &e.Outcome, &amount, &e.Reference, &e.IdempotencyKey, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Leg = models.LedgerLeg(leg)
		e.Kind = models.LedgerKind(kind)
		e.Amount = domain.Money(amount)
		out = append(out, e)
	}
	return out, rows.Err()
}

// KeyOwner returns the booking a key was recorded against.
func (r LedgerRepository) KeyOwner(ctx context.Context, key string) (int64, bool, error) {
	if key == "" {
		return 0, false, nil
	}
	var bookingID int64
	err := r.DB.QueryRowContext(ctx, `SELECT booking_id FROM ledger_entries WHERE idempotency_key = ? LIMIT 1`, key).Scan(&bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return bookingID, true, nil
}
