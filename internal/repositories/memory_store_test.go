package repositories

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

func createSample(t *testing.T, s *MemoryStore) models.Booking {
	t.Helper()
	b := sampleBooking()
	b.ID, b.Version = 0, 0
	b.Status = domain.StatusPending
	created, err := s.Create(context.Background(), b, models.AuditEntry{Status: domain.StatusPending, UpdatedBy: "cust-1", UpdatedByModel: domain.RoleUser})
	require.NoError(t, err)
	return created
}

func TestMemoryStoreApply_OneWinnerPerVersion(t *testing.T) {
	s := NewMemoryStore()
	b := createSample(t, s)

	const writers = 16
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := b.Clone()
			next.Status = domain.StatusAccepted
			_, err := s.Apply(context.Background(), Mutation{Booking: next, ExpectedVersion: b.Version})
			switch {
			case err == nil:
				wins.Add(1)
			case domain.IsConflict(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, writers-1, conflicts.Load())
	got, err := s.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Version+1, got.Version)
}

func TestMemoryStoreApply_IdempotencyKeyIsSingleUse(t *testing.T) {
	s := NewMemoryStore()
	b := createSample(t, s)
	entry := models.LedgerEntry{Kind: models.KindConfirmation, Outcome: "completed", IdempotencyKey: "txn:T1:completed"}

	after, err := s.Apply(context.Background(), Mutation{Booking: b, ExpectedVersion: b.Version, Ledger: []models.LedgerEntry{entry}})
	require.NoError(t, err)

	_, err = s.Apply(context.Background(), Mutation{Booking: after, ExpectedVersion: after.Version, Ledger: []models.LedgerEntry{entry}})
	assert.True(t, errors.Is(err, domain.ErrIdempotentReplay))

	owner, found, err := s.KeyOwner(context.Background(), "txn:T1:completed")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, b.ID, owner)

	_, found, err = s.KeyOwner(context.Background(), "txn:T2:completed")
	require.NoError(t, err)
	assert.False(t, found)

	ledger, err := s.Ledger(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestMemoryStoreQuery_FiltersAndPages(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		b := sampleBooking()
		b.BookingNumber = b.BookingNumber + string(rune('A'+i))
		b.Status = domain.StatusPending
		if i%2 == 0 {
			b.Status = domain.StatusAccepted
		}
		_, err := s.Create(context.Background(), b, models.AuditEntry{Status: b.Status})
		require.NoError(t, err)
	}

	page, total, err := s.Query(context.Background(), ListQuery{Status: domain.StatusAccepted, Limit: 2, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	page, _, err = s.Query(context.Background(), ListQuery{Status: domain.StatusAccepted, Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestMemoryStoreCreate_RejectsDuplicateNumber(t *testing.T) {
	s := NewMemoryStore()
	createSample(t, s)
	_, err := s.Create(context.Background(), sampleBooking(), models.AuditEntry{})
	assert.True(t, domain.IsConflict(err))
}
