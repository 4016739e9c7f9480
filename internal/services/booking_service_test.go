package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingcore/internal/domain"
	"bookingcore/internal/events"
	"bookingcore/internal/repositories"
)

func TestCreateBooking_Validates(t *testing.T) {
	h := newHarness(t)
	_, err := h.bookings().CreateBooking(context.Background(), CreateBookingInput{
		CustomerID:  "c",
		Category:    "rocket",
		TripType:    "city",
		DistanceKm:  3,
		TotalAmount: 100,
	}, rider)
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "category", ve.Field)

	_, err = h.bookings().CreateBooking(context.Background(), CreateBookingInput{
		CustomerID: "c", Category: "bus", TripType: "outstation", DistanceKm: 3,
	}, rider)
	assert.True(t, domain.IsValidation(err))
}

func TestCreateBooking_StartsPending(t *testing.T) {
	h := newHarness(t)
	v := h.create(t, 1000)

	assert.Equal(t, domain.StatusPending, v.Status)
	assert.EqualValues(t, 1, v.Version)
	assert.Regexp(t, `^BK-20250301-[0-9A-F]{10}$`, v.BookingNumber)
	assert.Equal(t, "car", v.Pricing.Category.Kind())
	assert.Equal(t, domain.Money(1000), v.OutstandingAmount)
	assert.Equal(t, []domain.BookingStatus{domain.StatusPending}, statuses(t, h, v.ID))
	require.NotEmpty(t, h.events.events)
	assert.Equal(t, events.TypeBookingCreated, h.events.events[0].Type)
}

// Full online payment through to a completed trip.
func TestLifecycle_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v := h.create(t, 1000)
	v = h.move(t, v, domain.StatusAccepted, driver, "")
	assert.Equal(t, driver.ID, v.DriverID)

	v = h.payOnline(t, v)
	assert.Equal(t, domain.PaymentCompleted, v.OverallPaymentStatus)
	assert.NotNil(t, v.Payment.SettledAt)

	v = h.move(t, v, domain.StatusStarted, driver, "")
	v = h.move(t, v, domain.StatusCompleted, driver, "")
	assert.Empty(t, v.Flags)
	assert.Zero(t, v.OutstandingAmount)

	assert.Equal(t, []domain.BookingStatus{
		domain.StatusPending, domain.StatusAccepted, domain.StatusStarted, domain.StatusCompleted,
	}, statuses(t, h, v.ID))

	st, err := h.payments().Ledger(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(1000), st.Balance)

	_, err = h.bookings().RequestTransition(ctx, v.ID, TransitionRequest{
		Target: domain.StatusCancelled, ExpectedVersion: v.Version, Actor: admin, Reason: "late",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRequestTransition_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.create(t, 500)

	_, err := h.bookings().RequestTransition(ctx, v.ID, TransitionRequest{Target: domain.StatusAccepted, ExpectedVersion: v.Version, Actor: rider})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.bookings().RequestTransition(ctx, v.ID, TransitionRequest{Target: domain.StatusStarted, ExpectedVersion: v.Version, Actor: driver})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.bookings().RequestTransition(ctx, v.ID, TransitionRequest{Target: domain.StatusAccepted, ExpectedVersion: v.Version + 3, Actor: driver})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = h.bookings().RequestTransition(ctx, v.ID, TransitionRequest{Target: domain.StatusAccepted, Actor: driver})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.bookings().RequestTransition(ctx, 404, TransitionRequest{Target: domain.StatusAccepted, ExpectedVersion: 1, Actor: driver})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := h.bookings().GetBooking(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Version, got.Version, "failed transitions must not write")
	assert.Len(t, statuses(t, h, v.ID), 1)
}

func TestRequestTransition_AdminOverrideNeedsReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.create(t, 800)
	v = h.move(t, v, domain.StatusAccepted, driver, "")
	v = h.move(t, v, domain.StatusStarted, driver, "")

	_, err := h.bookings().RequestTransition(ctx, v.ID, TransitionRequest{Target: domain.StatusCancelled, ExpectedVersion: v.Version, Actor: admin})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.bookings().RequestTransition(ctx, v.ID, TransitionRequest{Target: domain.StatusCancelled, ExpectedVersion: v.Version, Actor: driver, Reason: "breakdown"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	v = h.move(t, v, domain.StatusCancelled, admin, "rider no-show after pickup")
	require.NotNil(t, v.Cancellation)
	assert.Equal(t, domain.StatusStarted, v.Cancellation.PriorStatus)
	assert.Equal(t, domain.CancellationApproved, v.Cancellation.State)
}

func TestListBookings_FiltersByDerivedPaymentStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paid := h.payOnline(t, h.create(t, 1000))
	h.create(t, 700)

	items, page, err := h.bookings().ListBookings(ctx, repositories.ListQuery{PaymentStatus: domain.PaymentCompleted})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, paid.ID, items[0].ID)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 20, page.PageSize)
}

func TestVersionsStrictlyIncrease(t *testing.T) {
	h := newHarness(t)
	v := h.create(t, 1000)
	versions := []int64{v.Version}
	v = h.move(t, v, domain.StatusAccepted, driver, "")
	versions = append(versions, v.Version)
	v = h.payOnline(t, v)
	versions = append(versions, v.Version)
	v = h.move(t, v, domain.StatusCancellationRequested, rider, "changed plans")
	versions = append(versions, v.Version)

	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestGetBooking_StaleReaderCannotOverwriteCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.create(t, 1000)

	views := newVersionedCache()
	paused := &pausingStore{BookingStore: h.store}
	h.deps.Cache = views
	h.deps.Store = paused

	// The reader holds version 1 while a driver accepts the booking.
	paused.afterGet = func() { h.move(t, v, domain.StatusAccepted, driver, "") }
	stale, err := h.bookings().GetBooking(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.Version)

	cached, ok, err := views.Get(ctx, v.ID)
	require.NoError(t, err)
	require.True(t, ok, "writer stores the fresh view")
	assert.Equal(t, int64(2), cached.Version)

	got, err := h.bookings().GetBooking(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, got.Status)
	assert.Equal(t, int64(2), got.Version)
}
