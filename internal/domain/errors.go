package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

var (
	ErrInvalidRange           = daterange.ErrInvalidRange
	ErrOverlapConflict        = errors.New("range overlaps an active booking")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrUnmappedListing        = errors.New("external listing is not mapped to an apartment")
	ErrSyncConflict           = errors.New("external booking could not be placed")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrInvalidInput           = errors.New("invalid input")
	ErrApartmentInactive      = errors.New("apartment is inactive")
	ErrBookingClosed          = errors.New("booking no longer accepts changes")
	ErrIntegrationInactive    = errors.New("integration is inactive")
	ErrSyncInProgress         = errors.New("sync already running for integration")
	ErrLockHeld               = errors.New("lock is held by another owner")
	ErrLockLost               = errors.New("lock expired or owned by another token")
)

// OverlapConflictError lists the active bookings that block a range.
type OverlapConflictError struct {
	ApartmentID int64
	BookingIDs  []int64
}

func (e *OverlapConflictError) Error() string {
	ids := make([]string, len(e.BookingIDs))
	for i, id := range e.BookingIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("apartment %d: %s (bookings %s)", e.ApartmentID, ErrOverlapConflict, strings.Join(ids, ", "))
}

func (e *OverlapConflictError) Is(target error) bool {
	return target == ErrOverlapConflict
}

// InvalidTransitionError carries the current status and the rejected target.
type InvalidTransitionError struct {
	From models.BookingStatus
	To   models.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// SyncConflictError wraps the overlap that kept an external booking off the calendar.
type SyncConflictError struct {
	Channel    models.Channel
	ExternalID string
	Cause      error
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", ErrSyncConflict, e.Channel, e.ExternalID, e.Cause)
}

func (e *SyncConflictError) Is(target error) bool {
	return target == ErrSyncConflict
}

func (e *SyncConflictError) Unwrap() error {
	return e.Cause
}

// ConflictingIDs extracts booking ids from an overlap error anywhere in the chain.
func ConflictingIDs(err error) []int64 {
	var overlap *OverlapConflictError
	if errors.As(err, &overlap) {
		return overlap.BookingIDs
	}
	return nil
}

// NotFoundf wraps ErrNotFound with the entity and id that were missing.
func NotFoundf(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}
