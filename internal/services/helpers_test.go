package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
	"bookingcore/internal/events"
	"bookingcore/internal/gateway"
	"bookingcore/internal/logger"
	"bookingcore/internal/metrics"
	"bookingcore/internal/repositories"
)

var (
	rider  = domain.Actor{ID: "cust-1", Role: domain.RoleUser}
	driver = domain.Actor{ID: "drv-1", Role: domain.RoleDriver}
	admin  = domain.Actor{ID: "ops-1", Role: domain.RoleAdmin}
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []gateway.RefundRequest
	receipt  gateway.RefundReceipt
	err      error
	states   map[string]gateway.RefundState
}

func (g *fakeGateway) Refund(ctx context.Context, req gateway.RefundRequest) (gateway.RefundReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return gateway.RefundReceipt{}, g.err
	}
	r := g.receipt
	if r.Reference == "" {
		r = gateway.RefundReceipt{Reference: fmt.Sprintf("rf_%d", len(g.requests)), State: gateway.RefundStateInitiated}
	}
	return r, nil
}

func (g *fakeGateway) RefundStatus(ctx context.Context, ref string) (gateway.RefundState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.states[ref]; ok {
		return st, nil
	}
	return gateway.RefundStateInitiated, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type harness struct {
	deps   Deps
	store  *repositories.MemoryStore
	gw     *fakeGateway
	events *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	var (
		mu  sync.Mutex
		now = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		seq int
	)
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	store := repositories.NewMemoryStore()
	store.Now = tick
	h := &harness{
		store:  store,
		gw:     &fakeGateway{states: map[string]gateway.RefundState{}},
		events: &recordingPublisher{},
	}
	h.deps = Deps{
		Store:   store,
		Audit:   store,
		Gateway: h.gw,
		Events:  h.events,
		Metrics: metrics.New("test", prometheus.NewRegistry()),
		Log:     logger.Nop(),
		Now:     tick,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("0000%04d-aaaa-bbbb-cccc-dddddddddddd", seq)
		},
	}
	return h
}

func (h *harness) bookings() BookingService           { return NewBookingService(h.deps) }
func (h *harness) payments() PaymentService           { return NewPaymentService(h.deps) }
func (h *harness) cancellations() CancellationService { return NewCancellationService(h.deps) }
func (h *harness) refunds() RefundService             { return NewRefundService(h.deps) }

func (h *harness) create(t *testing.T, total domain.Money) models.BookingView {
	t.Helper()
	v, err := h.bookings().CreateBooking(context.Background(), CreateBookingInput{
		CustomerID:  rider.ID,
		Category:    "car",
		TripType:    "city",
		DistanceKm:  12.5,
		RatePerKm:   80,
		TotalAmount: total,
	}, rider)
	require.NoError(t, err)
	return v
}

func (h *harness) move(t *testing.T, v models.BookingView, to domain.BookingStatus, a domain.Actor, reason string) models.BookingView {
	t.Helper()
	out, err := h.bookings().RequestTransition(context.Background(), v.ID, TransitionRequest{
		Target:          to,
		ExpectedVersion: v.Version,
		Actor:           a,
		Reason:          reason,
	})
	require.NoError(t, err)
	require.Equal(t, v.Version+1, out.Version)
	return out
}

func (h *harness) payOnline(t *testing.T, v models.BookingView) models.BookingView {
	t.Helper()
	v, err := h.payments().RecordPaymentIntent(context.Background(), v.ID, PaymentIntent{
		ExpectedVersion: v.Version,
		Actor:           rider,
		Method:          domain.MethodUPI,
		Amount:          v.Pricing.TotalAmount,
	})
	require.NoError(t, err)
	res, err := h.payments().ApplyGatewayConfirmation(context.Background(), GatewayConfirmation{
		BookingID:     v.ID,
		TransactionID: fmt.Sprintf("pay_%d", v.ID),
		Outcome:       domain.PaymentCompleted,
	})
	require.NoError(t, err)
	return res.Booking
}

func statuses(t *testing.T, h *harness, id int64) []domain.BookingStatus {
	t.Helper()
	entries, err := h.bookings().History(context.Background(), id)
	require.NoError(t, err)
	out := make([]domain.BookingStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Status)
	}
	return out
}

// versionedCache keeps the newest view per booking, like the redis cache.
type versionedCache struct {
	mu    sync.Mutex
	views map[int64]models.BookingView
}

func newVersionedCache() *versionedCache {
	return &versionedCache{views: map[int64]models.BookingView{}}
}

func (c *versionedCache) Get(ctx context.Context, id int64) (models.BookingView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	return v, ok, nil
}

func (c *versionedCache) Set(ctx context.Context, v models.BookingView) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.views[v.ID]; ok && cur.Version >= v.Version {
		return false, nil
	}
	c.views[v.ID] = v
	return true, nil
}

func (c *versionedCache) Invalidate(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	return nil
}

// pausingStore runs afterGet once, between a Get and its return, to stage a
// write landing while a reader holds an old snapshot.
type pausingStore struct {
	repositories.BookingStore
	afterGet func()
}

func (s *pausingStore) Get(ctx context.Context, id int64) (models.Booking, error) {
	b, err := s.BookingStore.Get(ctx, id)
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		hook()
	}
	return b, err
}
