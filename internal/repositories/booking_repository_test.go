package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (BookingRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewBookingRepository(db, 2)
	repo.Now = func() time.Time { return fixedNow }
	return repo, mock
}

func sampleBooking() models.Booking {
	return models.Booking{
		ID:            9,
		BookingNumber: "BK-20250301-ABC",
		Status:        domain.StatusAccepted,
		Version:       4,
		CustomerID:    "cust-1",
		DriverID:      "drv-1",
		Pricing:       models.PricingSnapshot{TotalAmount: 1000, RatePerKm: 100, DistanceKm: 10, TripType: "city", Category: models.Car{}},
	}
}

func TestBookingRepositoryApply_WritesBookingAuditAndLedger(t *testing.T) {
	repo, mock := newMockRepo(t)
	b := sampleBooking()
	b.Status = domain.StatusStarted

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO booking_audit").WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectCommit()

	got, err := repo.Apply(context.Background(), Mutation{
		Booking:         b,
		ExpectedVersion: 4,
		Audit:           &models.AuditEntry{Status: domain.StatusStarted, UpdatedBy: "drv-1", UpdatedByModel: domain.RoleDriver, Timestamp: fixedNow},
		Ledger:          []models.LedgerEntry{{Leg: models.LegFull, Kind: models.KindIntent, Amount: 1000, CreatedAt: fixedNow}},
	})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if got.Version != 5 {
		t.Fatalf("expected version 5, got %d", got.Version)
	}
	if !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("updated_at not stamped: %v", got.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingRepositoryApply_StaleVersionIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM bookings").WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(6))
	mock.ExpectRollback()

	_, err := repo.Apply(context.Background(), Mutation{Booking: sampleBooking(), ExpectedVersion: 4})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingRepositoryApply_MissingRowIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM bookings").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectRollback()

	_, err := repo.Apply(context.Background(), Mutation{Booking: sampleBooking(), ExpectedVersion: 4})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBookingRepositoryApply_DuplicateKeyIsReplay(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'txn:1:completed'"})
	mock.ExpectRollback()

	_, err := repo.Apply(context.Background(), Mutation{
		Booking:         sampleBooking(),
		ExpectedVersion: 4,
		Ledger:          []models.LedgerEntry{{Kind: models.KindConfirmation, IdempotencyKey: "txn:1:completed"}},
	})
	if !errors.Is(err, domain.ErrIdempotentReplay) {
		t.Fatalf("expected idempotent replay, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingRepositoryApply_RetriesDeadlock(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := repo.Apply(context.Background(), Mutation{Booking: sampleBooking(), ExpectedVersion: 4}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingRepositoryGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	doc := `{"pricingSnapshot":{"ratePerKm":100,"totalAmount":1000,"tripType":"city","distance":10,"category":"bus"},"payment":{"method":"upi","status":"completed","isPartialPayment":false,"amount":1000}}`
	cols := []string{"id", "booking_number", "status", "version", "customer_id", "driver_id", "document", "created_at", "updated_at"}

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\?").WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(9, "BK-1", "completed", 7, "cust-1", "", []byte(doc), fixedNow, fixedNow))

	b, err := repo.Get(context.Background(), 9)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if b.Status != domain.StatusCompleted || b.Version != 7 {
		t.Fatalf("unexpected booking %+v", b)
	}
	if _, ok := b.Pricing.Category.(models.Bus); !ok {
		t.Fatalf("category not decoded, got %T", b.Pricing.Category)
	}
	if models.OverallPaymentStatus(b.Payment) != domain.PaymentCompleted {
		t.Fatalf("payment not decoded: %+v", b.Payment)
	}

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\?").WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(cols))
	if _, err := repo.Get(context.Background(), 10); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBookingRepositoryKeyOwner(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT booking_id FROM ledger_entries WHERE idempotency_key = \\?").WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"booking_id"}).AddRow(int64(9)))
	owner, found, err := repo.KeyOwner(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("KeyOwner returned error: %v", err)
	}
	if !found || owner != 9 {
		t.Fatalf("expected evt_1 owned by booking 9, got %d found=%v", owner, found)
	}

	mock.ExpectQuery("SELECT booking_id FROM ledger_entries WHERE idempotency_key = \\?").WithArgs("evt_2").
		WillReturnRows(sqlmock.NewRows([]string{"booking_id"}))
	if _, found, err := repo.KeyOwner(context.Background(), "evt_2"); err != nil || found {
		t.Fatalf("expected unknown key, got found=%v err=%v", found, err)
	}

	if _, found, err := repo.KeyOwner(context.Background(), ""); err != nil || found {
		t.Fatalf("empty key must not hit the database, got found=%v err=%v", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditRepositoryList_IsLazy(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "booking_id", "status", "updated_by", "updated_by_model", "reason", "notes", "created_at"}).
		AddRow(1, 9, "pending", "cust-1", "User", "", "", fixedNow).
		AddRow(2, 9, "accepted", "drv-1", "Driver", "", "", fixedNow).
		AddRow(3, 9, "cancellation_requested", "cust-1", "User", "sick", "", fixedNow)
	mock.ExpectQuery("FROM booking_audit").WithArgs(int64(9)).WillReturnRows(rows).RowsWillBeClosed()

	var seen []domain.BookingStatus
	for e, err := range (AuditRepository{DB: db}).List(context.Background(), 9) {
		if err != nil {
			t.Fatalf("List yielded error: %v", err)
		}
		seen = append(seen, e.Status)
		if len(seen) == 2 {
			break
		}
	}
	if len(seen) != 2 || seen[1] != domain.StatusAccepted {
		t.Fatalf("unexpected entries %v", seen)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("cursor not closed: %v", err)
	}
}

func TestAuditRepositoryList_YieldsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("FROM booking_audit").WillReturnError(errors.New("boom"))

	for _, err := range (AuditRepository{DB: db}).List(context.Background(), 9) {
		if err == nil {
			t.Fatalf("expected an error")
		}
	}
}
