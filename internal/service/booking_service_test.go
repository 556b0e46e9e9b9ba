package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/database"
	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/events"
	"github.com/thiagoooop/morada-de-praia/internal/interval"
	"github.com/thiagoooop/morada-de-praia/internal/models"
	"github.com/thiagoooop/morada-de-praia/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error {
	return m.Called(ctx, taskType, bookingID, booking, status).Error(0)
}

var testNow = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db        *database.DB
	index     *interval.Index
	publisher *mockPublisher
	worker    *mockSyncWorker
	bookings  *BookingService
	apartment *models.Apartment
	guest     *models.Guest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	apt := &models.Apartment{Name: "Apto 101", Capacity: 4, IsActive: true}
	require.NoError(t, db.CreateApartment(ctx, apt))
	guest := &models.Guest{Name: "Ana Souza", Email: "ana@example.com"}
	require.NoError(t, db.CreateGuest(ctx, guest))

	publisher := new(mockPublisher)
	publisher.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	syncWorker := new(mockSyncWorker)
	syncWorker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	index := interval.New()
	policy := BookingPolicy{Now: func() time.Time { return testNow }}
	return &fixture{
		db:        db,
		index:     index,
		publisher: publisher,
		worker:    syncWorker,
		bookings:  NewBookingService(db, index, publisher, syncWorker, policy, &logger),
		apartment: apt,
		guest:     guest,
	}
}

func (f *fixture) create(t *testing.T, start, end string) *models.Booking {
	t.Helper()
	b, err := f.bookings.Create(context.Background(), f.request(start, end))
	require.NoError(t, err)
	return b
}

func (f *fixture) request(start, end string) CreateBookingRequest {
	return CreateBookingRequest{
		ApartmentID: f.apartment.ID,
		GuestID:     f.guest.ID,
		Start:       day(start),
		End:         day(end),
		Price:       120000,
	}
}

func day(s string) time.Time {
	d, err := daterange.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBookingService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request("2025-02-10", "2025-02-15")
	req.Note = "chega tarde"
	b, err := f.bookings.Create(ctx, req)
	require.NoError(t, err)

	assert.NotZero(t, b.ID)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, "Ana Souza", b.GuestName)
	assert.True(t, f.index.Contains(b.ID))

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "chega tarde", stored.Note)
	assert.Equal(t, models.ChannelDirect, stored.Origin())

	f.publisher.AssertCalled(t, "PublishJSON", events.EventBookingCreated, mock.Anything)
	f.worker.AssertCalled(t, "EnqueueTask", mock.Anything, worker.TaskUpsert, b.ID, mock.Anything, "")
}

func TestBookingService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.Create(ctx, f.request("2025-02-10", "2025-02-10"))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = f.bookings.Create(ctx, f.request("2025-02-10", "2025-02-08"))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	req := f.request("2025-02-10", "2025-02-12")
	req.Price = -1
	_, err = f.bookings.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req = f.request("2025-02-10", "2025-02-12")
	req.ApartmentID = 999
	_, err = f.bookings.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	req = f.request("2025-02-10", "2025-02-12")
	req.GuestID = 999
	_, err = f.bookings.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	closed := &models.Apartment{Name: "Fechado", Capacity: 2, IsActive: false}
	require.NoError(t, f.db.CreateApartment(ctx, closed))
	req = f.request("2025-02-10", "2025-02-12")
	req.ApartmentID = closed.ID
	_, err = f.bookings.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrApartmentInactive)

	assert.Equal(t, 0, f.index.Size())
	f.worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "2025-01-10", "2025-01-15")

	_, err := f.bookings.Create(ctx, f.request("2025-01-12", "2025-01-18"))
	require.ErrorIs(t, err, domain.ErrOverlapConflict)
	assert.Equal(t, []int64{first.ID}, domain.ConflictingIDs(err))

	// checkout day equals next check-in: no overlap
	second, err := f.bookings.Create(ctx, f.request("2025-01-15", "2025-01-18"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.index.Size())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBookingService_CreateWithStaleIndex(t *testing.T) {
	f := newFixture(t)
	existing := f.create(t, "2025-03-01", "2025-03-05")

	// a second service over the same storage has not seen the booking
	logger := zerolog.Nop()
	other := NewBookingService(f.db, interval.New(), nil, nil, BookingPolicy{}, &logger)

	_, err := other.Create(context.Background(), f.request("2025-03-03", "2025-03-04"))
	require.ErrorIs(t, err, domain.ErrOverlapConflict)
	assert.Equal(t, []int64{existing.ID}, domain.ConflictingIDs(err))
}

func TestBookingService_ConcurrentCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.Create(ctx, f.request("2025-04-01", "2025-04-08"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrOverlapConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, 1, f.index.Size())
}

func TestBookingService_Transition(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.BookingStatus
		target  models.BookingStatus
		wantErr bool
	}{
		{"check in", nil, models.StatusCheckedIn, false},
		{"cancel confirmed", nil, models.StatusCancelled, false},
		{"check out", []models.BookingStatus{models.StatusCheckedIn}, models.StatusCheckedOut, false},
		{"cancel checked in", []models.BookingStatus{models.StatusCheckedIn}, models.StatusCancelled, false},
		{"skip check in", nil, models.StatusCheckedOut, true},
		{"back to confirmed", []models.BookingStatus{models.StatusCheckedIn}, models.StatusConfirmed, true},
		{"cancel checked out", []models.BookingStatus{models.StatusCheckedIn, models.StatusCheckedOut}, models.StatusCancelled, true},
		{"revive cancelled", []models.BookingStatus{models.StatusCancelled}, models.StatusConfirmed, true},
		{"unknown status", nil, models.BookingStatus("archived"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			b := f.create(t, "2025-02-01", "2025-02-05")
			for _, step := range tt.path {
				_, err := f.bookings.Transition(ctx, b.ID, step)
				require.NoError(t, err)
			}
			before, err := f.db.GetBooking(ctx, b.ID)
			require.NoError(t, err)

			got, err := f.bookings.Transition(ctx, b.ID, tt.target)
			if tt.wantErr {
				var invalid *domain.InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, before.Status, invalid.From)
				assert.Equal(t, tt.target, invalid.To)

				after, err := f.db.GetBooking(ctx, b.ID)
				require.NoError(t, err)
				assert.Equal(t, before.Version, after.Version)
				assert.Equal(t, before.Status, after.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Status)
			assert.Equal(t, before.Version+1, got.Version)
		})
	}
}

func TestBookingService_CancelFreesRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "2025-02-01", "2025-02-05")

	cancelled, err := f.bookings.Transition(ctx, b.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.False(t, f.index.Contains(b.ID))

	f.publisher.AssertCalled(t, "PublishJSON", events.EventBookingCancelled, mock.Anything)
	f.worker.AssertCalled(t, "EnqueueTask", mock.Anything, worker.TaskUpdateStatus, b.ID, mock.Anything, "cancelled")

	_, err = f.bookings.Create(ctx, f.request("2025-02-01", "2025-02-05"))
	assert.NoError(t, err)
}

func TestBookingService_CheckOutKeepsRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "2025-02-01", "2025-02-05")

	_, err := f.bookings.Transition(ctx, b.ID, models.StatusCheckedIn)
	require.NoError(t, err)
	_, err = f.bookings.Transition(ctx, b.ID, models.StatusCheckedOut)
	require.NoError(t, err)

	assert.True(t, f.index.Contains(b.ID))
	_, err = f.bookings.Create(ctx, f.request("2025-02-03", "2025-02-04"))
	assert.ErrorIs(t, err, domain.ErrOverlapConflict)
}

func TestBookingService_Reschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "2025-02-10", "2025-02-15")
	other := f.create(t, "2025-02-20", "2025-02-25")

	// overlapping its own old range is fine
	moved, err := f.bookings.Reschedule(ctx, b.ID, day("2025-02-12"), day("2025-02-18"))
	require.NoError(t, err)
	assert.Equal(t, day("2025-02-12"), moved.Start)
	assert.Equal(t, int64(2), moved.Version)

	entries := f.index.Entries(f.apartment.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, day("2025-02-18"), entries[0].Range.End)

	_, err = f.bookings.Reschedule(ctx, b.ID, day("2025-02-17"), day("2025-02-21"))
	require.ErrorIs(t, err, domain.ErrOverlapConflict)
	assert.Equal(t, []int64{other.ID}, domain.ConflictingIDs(err))

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, day("2025-02-12"), stored.Start)
	assert.Equal(t, day("2025-02-18"), stored.End)

	_, err = f.bookings.Reschedule(ctx, b.ID, day("2025-02-12"), day("2025-02-12"))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	f.publisher.AssertCalled(t, "PublishJSON", events.EventBookingRescheduled, mock.Anything)
}

func TestBookingService_ReschedulePastRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "2025-02-10", "2025-02-15")

	_, err := f.bookings.Reschedule(ctx, b.ID, day("2024-12-01"), day("2024-12-05"))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	logger := zerolog.Nop()
	lenient := NewBookingService(f.db, f.index, nil, nil, BookingPolicy{
		AllowPastReschedule: true,
		Now:                 func() time.Time { return testNow },
	}, &logger)
	moved, err := lenient.Reschedule(ctx, b.ID, day("2024-12-01"), day("2024-12-05"))
	require.NoError(t, err)
	assert.Equal(t, day("2024-12-01"), moved.Start)
}

func TestBookingService_RescheduleClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "2025-02-10", "2025-02-15")
	_, err := f.bookings.Transition(ctx, b.ID, models.StatusCancelled)
	require.NoError(t, err)

	_, err = f.bookings.Reschedule(ctx, b.ID, day("2025-03-10"), day("2025-03-15"))
	assert.ErrorIs(t, err, domain.ErrBookingClosed)

	_, err = f.bookings.Reschedule(ctx, 999, day("2025-03-10"), day("2025-03-15"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_RescheduleTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "2025-03-01", "2025-03-05")
	b := f.create(t, "2025-03-05", "2025-03-09")
	c := f.create(t, "2025-03-10", "2025-03-12")

	// one at a time the swap cannot happen
	_, err := f.bookings.Reschedule(ctx, a.ID, day("2025-03-05"), day("2025-03-09"))
	require.ErrorIs(t, err, domain.ErrOverlapConflict)
	assert.Equal(t, []int64{b.ID}, domain.ConflictingIDs(err))

	t.Run("OutsiderBlocks", func(t *testing.T) {
		_, err := f.bookings.RescheduleTogether(ctx, f.apartment.ID, []RescheduleTarget{
			{BookingID: a.ID, Start: day("2025-03-05"), End: day("2025-03-11")},
			{BookingID: b.ID, Start: day("2025-03-01"), End: day("2025-03-05")},
		})
		require.ErrorIs(t, err, domain.ErrOverlapConflict)
		assert.Equal(t, []int64{c.ID}, domain.ConflictingIDs(err))
	})

	t.Run("TargetsOverlap", func(t *testing.T) {
		_, err := f.bookings.RescheduleTogether(ctx, f.apartment.ID, []RescheduleTarget{
			{BookingID: a.ID, Start: day("2025-03-05"), End: day("2025-03-09")},
			{BookingID: b.ID, Start: day("2025-03-04"), End: day("2025-03-06")},
		})
		require.ErrorIs(t, err, domain.ErrOverlapConflict)
		assert.Equal(t, []int64{a.ID}, domain.ConflictingIDs(err))
	})

	t.Run("Rejected", func(t *testing.T) {
		_, err := f.bookings.RescheduleTogether(ctx, f.apartment.ID, []RescheduleTarget{
			{BookingID: a.ID, Start: day("2024-12-01"), End: day("2024-12-05")},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRange)

		_, err = f.bookings.RescheduleTogether(ctx, f.apartment.ID+1, []RescheduleTarget{
			{BookingID: a.ID, Start: day("2025-04-01"), End: day("2025-04-05")},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Swap", func(t *testing.T) {
		moved, err := f.bookings.RescheduleTogether(ctx, f.apartment.ID, []RescheduleTarget{
			{BookingID: a.ID, Start: day("2025-03-05"), End: day("2025-03-09")},
			{BookingID: b.ID, Start: day("2025-03-01"), End: day("2025-03-05")},
		})
		require.NoError(t, err)
		require.Len(t, moved, 2)
		assert.Equal(t, day("2025-03-05"), moved[0].Start)
		assert.Equal(t, int64(2), moved[0].Version)

		entries := f.index.Entries(f.apartment.ID)
		require.Len(t, entries, 3)
		assert.Equal(t, b.ID, entries[0].BookingID)
		assert.Equal(t, a.ID, entries[1].BookingID)
		assert.Equal(t, c.ID, entries[2].BookingID)

		stored, err := f.db.GetBooking(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, day("2025-03-09"), stored.End)
	})
}

func TestBookingService_Reprice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "2025-02-10", "2025-02-15")

	repriced, err := f.bookings.Reprice(ctx, b.ID, 99000)
	require.NoError(t, err)
	assert.Equal(t, int64(99000), repriced.Price)
	assert.Equal(t, int64(2), repriced.Version)

	unchanged, err := f.bookings.Reprice(ctx, b.ID, 99000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unchanged.Version)

	_, err = f.bookings.Reprice(ctx, b.ID, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.bookings.Transition(ctx, b.ID, models.StatusCancelled)
	require.NoError(t, err)
	_, err = f.bookings.Reprice(ctx, b.ID, 1000)
	assert.ErrorIs(t, err, domain.ErrBookingClosed)
}

func TestBookingService_RebuildIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "2025-02-01", "2025-02-05")
	c := f.create(t, "2025-02-10", "2025-02-12")
	_, err := f.bookings.Transition(ctx, c.ID, models.StatusCancelled)
	require.NoError(t, err)

	f.index.Reset()
	n, err := f.bookings.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.index.Contains(a.ID))
	assert.False(t, f.index.Contains(c.ID))
}

func TestBookingService_Calendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "2025-02-01", "2025-02-05")
	f.create(t, "2025-03-01", "2025-03-05")
	c := f.create(t, "2025-02-10", "2025-02-12")
	_, err := f.bookings.Transition(ctx, c.ID, models.StatusCancelled)
	require.NoError(t, err)

	bookings, err := f.bookings.Calendar(ctx, f.apartment.ID, daterange.MustNew(day("2025-02-01"), day("2025-03-01")))
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, a.ID, bookings[0].ID)

	_, err = f.bookings.Calendar(ctx, 999, daterange.MustNew(day("2025-02-01"), day("2025-03-01")))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "conflict", resultLabel(&domain.OverlapConflictError{BookingIDs: []int64{1}}))
	assert.Equal(t, "rejected", resultLabel(&domain.InvalidTransitionError{}))
	assert.Equal(t, "stale", resultLabel(domain.ErrConcurrentModification))
	assert.Equal(t, "not_found", resultLabel(domain.NotFoundf("booking", 1)))
	assert.Equal(t, "error", resultLabel(assert.AnError))
}
