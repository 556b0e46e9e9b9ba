package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/events"
	"github.com/thiagoooop/morada-de-praia/internal/interval"
	"github.com/thiagoooop/morada-de-praia/internal/metrics"
	"github.com/thiagoooop/morada-de-praia/internal/models"
	"github.com/thiagoooop/morada-de-praia/internal/worker"

	"github.com/rs/zerolog"
)

// CreateBookingRequest carries the fields of a new stay. Sync is set only by the
// reconciler so the channel link is stored in the same transaction.
type CreateBookingRequest struct {
	ApartmentID int64
	GuestID     int64
	Start       time.Time
	End         time.Time
	Price       int64
	Note        string
	Sync        *models.SyncRecord
}

// BookingPolicy holds the tunable rules of the lifecycle.
type BookingPolicy struct {
	AllowPastReschedule bool
	Now                 func() time.Time
}

// BookingService owns every booking mutation. Mutations on one apartment are
// serialized; storage re-checks overlap inside its transaction.
type BookingService struct {
	repo         domain.BookingRepository
	index        *interval.Index
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	policy       BookingPolicy
	locks        sync.Map // apartment id -> *sync.Mutex
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	index *interval.Index,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	policy BookingPolicy,
	logger *zerolog.Logger,
) *BookingService {
	if index == nil {
		index = interval.New()
	}
	if policy.Now == nil {
		policy.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:         repo,
		index:        index,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		policy:       policy,
		logger:       logger,
	}
}

// Create persists a confirmed booking if the range is free on the apartment.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	booking, err := s.create(ctx, req)
	observe("create", err)
	return booking, err
}

func (s *BookingService) create(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	r, err := daterange.New(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if req.Price < 0 {
		return nil, fmt.Errorf("price must not be negative: %w", domain.ErrInvalidInput)
	}

	apt, err := s.repo.GetApartment(ctx, req.ApartmentID)
	if err != nil {
		return nil, err
	}
	if !apt.IsActive {
		return nil, fmt.Errorf("apartment %d: %w", apt.ID, domain.ErrApartmentInactive)
	}
	guest, err := s.repo.GetGuest(ctx, req.GuestID)
	if err != nil {
		return nil, err
	}

	mu := s.apartmentLock(apt.ID)
	mu.Lock()
	defer mu.Unlock()

	if hits := s.index.Query(apt.ID, r); len(hits) > 0 {
		return nil, overlapError(apt.ID, hits)
	}

	booking := &models.Booking{
		ApartmentID: apt.ID,
		GuestID:     guest.ID,
		GuestName:   guest.Name,
		Start:       r.Start,
		End:         r.End,
		Price:       req.Price,
		Status:      models.StatusConfirmed,
		Note:        req.Note,
	}
	if err := s.repo.CreateBookingWithLock(ctx, booking, req.Sync); err != nil {
		return nil, err
	}

	if err := s.index.Insert(apt.ID, booking.ID, r); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("index out of sync after create")
	}
	metrics.SetIndexedRanges(s.index.Size())

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("apartment_id", apt.ID).
		Str("range", r.String()).
		Str("origin", string(booking.Origin())).
		Msg("booking created")

	s.publishEvent(events.EventBookingCreated, *booking, "")
	s.enqueueSync(ctx, *booking, worker.TaskUpsert)
	return booking, nil
}

// Transition moves a booking along the status table. Cancelling frees the range.
func (s *BookingService) Transition(ctx context.Context, id int64, target models.BookingStatus) (*models.Booking, error) {
	booking, err := s.transition(ctx, id, target)
	observe("transition", err)
	return booking, err
}

func (s *BookingService) transition(ctx context.Context, id int64, target models.BookingStatus) (*models.Booking, error) {
	booking, unlock, err := s.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	previous := booking.Status
	if !previous.CanTransitionTo(target) {
		return nil, &domain.InvalidTransitionError{From: previous, To: target}
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, target); err != nil {
		return nil, err
	}
	if target == models.StatusCancelled {
		s.index.Remove(booking.ApartmentID, booking.ID)
		metrics.SetIndexedRanges(s.index.Size())
	}

	booking.Status = target
	booking.Version++
	booking.UpdatedAt = s.policy.Now()

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("from", string(previous)).
		Str("to", string(target)).
		Msg("booking status changed")

	s.publishEvent(statusEvent(target), *booking, previous)
	s.enqueueSync(ctx, *booking, worker.TaskUpdateStatus)
	return booking, nil
}

// Reschedule moves a booking to a new range, checking overlap against every
// other active booking of the apartment. On conflict nothing changes.
func (s *BookingService) Reschedule(ctx context.Context, id int64, start, end time.Time) (*models.Booking, error) {
	booking, err := s.reschedule(ctx, id, start, end)
	observe("reschedule", err)
	return booking, err
}

func (s *BookingService) reschedule(ctx context.Context, id int64, start, end time.Time) (*models.Booking, error) {
	r, err := daterange.New(start, end)
	if err != nil {
		return nil, err
	}
	if !s.policy.AllowPastReschedule && !r.End.After(daterange.Day(s.policy.Now())) {
		return nil, fmt.Errorf("range %s is in the past: %w", r, domain.ErrInvalidRange)
	}

	booking, unlock, err := s.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !booking.Status.Reschedulable() {
		return nil, fmt.Errorf("booking %d is %s: %w", booking.ID, booking.Status, domain.ErrBookingClosed)
	}
	if r.Equal(booking.Range()) {
		return booking, nil
	}

	if hits := s.index.QueryExcluding(booking.ApartmentID, r, booking.ID); len(hits) > 0 {
		return nil, overlapError(booking.ApartmentID, hits)
	}
	if err := s.repo.RescheduleBookingWithLock(ctx, booking.ID, booking.Version, r); err != nil {
		return nil, err
	}

	if s.index.Contains(booking.ID) {
		err = s.index.Move(booking.ApartmentID, booking.ID, r)
	} else {
		err = s.index.Insert(booking.ApartmentID, booking.ID, r)
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("index out of sync after reschedule")
	}

	old := booking.Range()
	booking.Start, booking.End = r.Start, r.End
	booking.Version++
	booking.UpdatedAt = s.policy.Now()

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("from", old.String()).
		Str("to", r.String()).
		Msg("booking rescheduled")

	s.publishEvent(events.EventBookingRescheduled, *booking, "")
	s.enqueueSync(ctx, *booking, worker.TaskUpsert)
	return booking, nil
}

// RescheduleTarget is one booking's requested range in RescheduleTogether.
type RescheduleTarget struct {
	BookingID int64
	Start     time.Time
	End       time.Time
}

// RescheduleTogether moves bookings of one apartment in a single commit, so
// stays that trade dates never collide with each other's old ranges. Either
// every booking moves or none does.
func (s *BookingService) RescheduleTogether(ctx context.Context, apartmentID int64, targets []RescheduleTarget) ([]models.Booking, error) {
	moved, err := s.rescheduleTogether(ctx, apartmentID, targets)
	observe("reschedule", err)
	return moved, err
}

func (s *BookingService) rescheduleTogether(ctx context.Context, apartmentID int64, targets []RescheduleTarget) ([]models.Booking, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	today := daterange.Day(s.policy.Now())
	group := make(map[int64]bool, len(targets))
	ranges := make([]daterange.Range, len(targets))
	for i, t := range targets {
		r, err := daterange.New(t.Start, t.End)
		if err != nil {
			return nil, err
		}
		if !s.policy.AllowPastReschedule && !r.End.After(today) {
			return nil, fmt.Errorf("range %s is in the past: %w", r, domain.ErrInvalidRange)
		}
		if group[t.BookingID] {
			return nil, fmt.Errorf("booking %d listed twice: %w", t.BookingID, domain.ErrInvalidInput)
		}
		for j := range ranges[:i] {
			if ranges[j].Overlaps(r) {
				return nil, &domain.OverlapConflictError{ApartmentID: apartmentID, BookingIDs: []int64{targets[j].BookingID}}
			}
		}
		group[t.BookingID] = true
		ranges[i] = r
	}

	mu := s.apartmentLock(apartmentID)
	mu.Lock()
	defer mu.Unlock()

	bookings := make([]models.Booking, len(targets))
	moves := make([]models.BookingMove, len(targets))
	for i, t := range targets {
		booking, err := s.repo.GetBooking(ctx, t.BookingID)
		if err != nil {
			return nil, err
		}
		if booking.ApartmentID != apartmentID {
			return nil, fmt.Errorf("booking %d is not on apartment %d: %w", booking.ID, apartmentID, domain.ErrInvalidInput)
		}
		if !booking.Status.Reschedulable() {
			return nil, fmt.Errorf("booking %d is %s: %w", booking.ID, booking.Status, domain.ErrBookingClosed)
		}

		var hits []interval.Entry
		for _, h := range s.index.QueryExcluding(apartmentID, ranges[i], booking.ID) {
			if !group[h.BookingID] {
				hits = append(hits, h)
			}
		}
		if len(hits) > 0 {
			return nil, overlapError(apartmentID, hits)
		}

		bookings[i] = *booking
		moves[i] = models.BookingMove{BookingID: booking.ID, Version: booking.Version, Range: ranges[i]}
	}

	if err := s.repo.RescheduleBookingsWithLock(ctx, moves); err != nil {
		return nil, err
	}

	// free every old range before placing the new ones
	for _, m := range moves {
		s.index.Remove(apartmentID, m.BookingID)
	}
	now := s.policy.Now()
	for i := range bookings {
		booking := &bookings[i]
		if err := s.index.Insert(apartmentID, booking.ID, ranges[i]); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("index out of sync after joint reschedule")
		}
		booking.Start, booking.End = ranges[i].Start, ranges[i].End
		booking.Version++
		booking.UpdatedAt = now

		s.publishEvent(events.EventBookingRescheduled, *booking, "")
		s.enqueueSync(ctx, *booking, worker.TaskUpsert)
	}

	s.logger.Info().
		Int64("apartment_id", apartmentID).
		Int("bookings", len(bookings)).
		Msg("bookings rescheduled together")
	return bookings, nil
}

// Reprice changes the agreed price of a booking that is not cancelled.
func (s *BookingService) Reprice(ctx context.Context, id, price int64) (*models.Booking, error) {
	booking, err := s.reprice(ctx, id, price)
	observe("reprice", err)
	return booking, err
}

func (s *BookingService) reprice(ctx context.Context, id, price int64) (*models.Booking, error) {
	if price < 0 {
		return nil, fmt.Errorf("price must not be negative: %w", domain.ErrInvalidInput)
	}

	booking, unlock, err := s.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if booking.Status == models.StatusCancelled {
		return nil, fmt.Errorf("booking %d is %s: %w", booking.ID, booking.Status, domain.ErrBookingClosed)
	}
	if booking.Price == price {
		return booking, nil
	}

	if err := s.repo.UpdateBookingPriceWithVersion(ctx, booking.ID, booking.Version, price); err != nil {
		return nil, err
	}
	booking.Price = price
	booking.Version++
	booking.UpdatedAt = s.policy.Now()

	s.publishEvent(events.EventBookingRepriced, *booking, "")
	s.enqueueSync(ctx, *booking, worker.TaskUpsert)
	return booking, nil
}

// RebuildIndex reloads every active booking from storage into the index.
func (s *BookingService) RebuildIndex(ctx context.Context) (int, error) {
	bookings, err := s.repo.ListActiveBookings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active bookings: %w", err)
	}

	s.index.Reset()
	for _, b := range bookings {
		if err := s.index.Insert(b.ApartmentID, b.ID, b.Range()); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("stored booking overlaps another, not indexed")
		}
	}

	n := s.index.Size()
	metrics.SetIndexedRanges(n)
	s.logger.Info().Int("ranges", n).Msg("interval index rebuilt")
	return n, nil
}

// Calendar lists the active bookings of an apartment intersecting r.
func (s *BookingService) Calendar(ctx context.Context, apartmentID int64, r daterange.Range) ([]models.Booking, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetApartment(ctx, apartmentID); err != nil {
		return nil, err
	}
	return s.repo.GetBookingsOverlapping(ctx, apartmentID, r)
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// lockBooking takes the apartment lock of a booking and re-reads it under the
// lock so the version used for the update is current.
func (s *BookingService) lockBooking(ctx context.Context, id int64) (*models.Booking, func(), error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	mu := s.apartmentLock(booking.ApartmentID)
	mu.Lock()

	booking, err = s.repo.GetBooking(ctx, id)
	if err != nil {
		mu.Unlock()
		return nil, nil, err
	}
	return booking, mu.Unlock, nil
}

func (s *BookingService) apartmentLock(apartmentID int64) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(apartmentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *BookingService) publishEvent(eventType string, booking models.Booking, previous models.BookingStatus) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:      booking.ID,
		ApartmentID:    booking.ApartmentID,
		GuestID:        booking.GuestID,
		GuestName:      booking.GuestName,
		Status:         string(booking.Status),
		PreviousStatus: string(previous),
		Start:          booking.Start,
		End:            booking.End,
		Price:          booking.Price,
		Origin:         string(booking.Origin()),
		Version:        booking.Version,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == worker.TaskUpdateStatus {
		status = string(booking.Status)
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking.ID, &booking, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func statusEvent(status models.BookingStatus) string {
	switch status {
	case models.StatusCheckedIn:
		return events.EventBookingCheckedIn
	case models.StatusCheckedOut:
		return events.EventBookingCheckedOut
	default:
		return events.EventBookingCancelled
	}
}

func overlapError(apartmentID int64, hits []interval.Entry) error {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.BookingID
	}
	return &domain.OverlapConflictError{ApartmentID: apartmentID, BookingIDs: ids}
}

func observe(operation string, err error) {
	metrics.IncBookingOp(operation, resultLabel(err))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOverlapConflict):
		return "conflict"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "stale"
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrBookingClosed),
		errors.Is(err, domain.ErrApartmentInactive):
		return "rejected"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
