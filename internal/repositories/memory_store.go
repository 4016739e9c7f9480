package repositories

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

// MemoryStore is a BookingStore and AuditTrail kept in process memory. It is
// used when no database is configured and in tests. Apply is a
// compare-and-swap under one mutex, so its behaviour matches the MySQL store.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	nextSeq  int64
	bookings map[int64]models.Booking
	audit    map[int64][]models.AuditEntry
	ledger   map[int64][]models.LedgerEntry
	keys     map[string]int64
	Now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: map[int64]models.Booking{},
		audit:    map[int64][]models.AuditEntry{},
		ledger:   map[int64][]models.LedgerEntry{},
		keys:     map[string]int64{},
	}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *MemoryStore) Create(ctx context.Context, b models.Booking, first models.AuditEntry) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.bookings {
		if existing.BookingNumber == b.BookingNumber {
			return models.Booking{}, domain.ConflictError{Resource: "booking", Msg: "booking number already used"}
		}
	}

	s.nextID++
	now := s.now()
	b = b.Clone()
	b.ID = s.nextID
	b.Version = 1
	b.CreatedAt, b.UpdatedAt = now, now
	s.bookings[b.ID] = b

	first.BookingID = b.ID
	s.appendAuditLocked(first)
	return b.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	return b.Clone(), nil
}

func (s *MemoryStore) Apply(ctx context.Context, m Mutation) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[m.Booking.ID]
	if !ok {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	if current.Version != m.ExpectedVersion {
		return models.Booking{}, domain.ConflictError{
			Resource: "booking",
			Msg:      fmt.Sprintf("expected version %d, stored version %d", m.ExpectedVersion, current.Version),
		}
	}
	for _, e := range m.Ledger {
		if e.IdempotencyKey == "" {
			continue
		}
		if _, seen := s.keys[e.IdempotencyKey]; seen {
			return models.Booking{}, domain.ErrIdempotentReplay
		}
	}

	next := m.Booking.Clone()
	next.Version = m.ExpectedVersion + 1
	next.UpdatedAt = s.now()
	s.bookings[next.ID] = next

	if m.Audit != nil {
		entry := *m.Audit
		entry.BookingID = next.ID
		s.appendAuditLocked(entry)
	}
	for _, e := range m.Ledger {
		s.nextSeq++
		e.ID = s.nextSeq
		e.BookingID = next.ID
		s.ledger[next.ID] = append(s.ledger[next.ID], e)
		if e.IdempotencyKey != "" {
			s.keys[e.IdempotencyKey] = next.ID
		}
	}
	return next.Clone(), nil
}

func (s *MemoryStore) Query(ctx context.Context, q ListQuery) ([]models.Booking, int, error) {
	q = q.Normalize()

	s.mu.RLock()
	matched := []models.Booking{}
	for _, b := range s.bookings {
		if q.Status != "" && b.Status != q.Status {
			continue
		}
		if q.PaymentStatus != "" && models.OverallPaymentStatus(b.Payment) != q.PaymentStatus {
			continue
		}
		if q.From != nil && b.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && !b.CreatedAt.Before(*q.To) {
			continue
		}
		matched = append(matched, b.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := q.Offset()
	if start >= total {
		return []models.Booking{}, total, nil
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) ListByRefundStatus(ctx context.Context, statuses []domain.RefundStatus, limit int) ([]models.Booking, error) {
	want := map[domain.RefundStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	out := []models.Booking{}
	for _, b := range s.bookings {
		if b.Status == domain.StatusCancelled && b.Cancellation != nil && want[b.Cancellation.RefundStatus] {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Ledger(ctx context.Context, bookingID int64) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LedgerEntry{}, s.ledger[bookingID]...), nil
}

func (s *MemoryStore) KeyOwner(ctx context.Context, key string) (int64, bool, error) {
	if key == "" {
		return 0, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.keys[key]
	return id, ok, nil
}

// Append adds an entry outside a booking mutation.
func (s *MemoryStore) Append(ctx context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(entry)
	return nil
}

func (s *MemoryStore) appendAuditLocked(e models.AuditEntry) {
	s.nextSeq++
	e.ID = s.nextSeq
	s.audit[e.BookingID] = append(s.audit[e.BookingID], e)
}

// List yields a snapshot of the trail taken when iteration starts.
func (s *MemoryStore) List(ctx context.Context, bookingID int64) iter.Seq2[models.AuditEntry, error] {
	return func(yield func(models.AuditEntry, error) bool) {
		s.mu.RLock()
		snapshot := append([]models.AuditEntry(nil), s.audit[bookingID]...)
		s.mu.RUnlock()

		for _, e := range snapshot {
			if !yield(e, nil) {
				return
			}
		}
	}
}
