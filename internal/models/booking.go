package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
)

// BookingStatus is the closed set of lifecycle states of a booking.
type BookingStatus string

const (
	StatusConfirmed  BookingStatus = "confirmed"
	StatusCheckedIn  BookingStatus = "checked_in"
	StatusCheckedOut BookingStatus = "checked_out"
	StatusCancelled  BookingStatus = "cancelled"
)

// bookingTransitions is the only source of allowed status changes.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusConfirmed: {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {StatusCheckedOut, StatusCancelled},
}

// ParseBookingStatus accepts the canonical values case-insensitively.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
	return s, nil
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCheckedIn, StatusCheckedOut, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status occupies the apartment calendar.
func (s BookingStatus) IsActive() bool {
	return s == StatusConfirmed || s == StatusCheckedIn || s == StatusCheckedOut
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Reschedulable reports whether the stay dates may still be edited.
func (s BookingStatus) Reschedulable() bool {
	return s == StatusConfirmed || s == StatusCheckedIn
}

type Booking struct {
	ID          int64         `json:"id"`
	ApartmentID int64         `json:"apartment_id"`
	GuestID     int64         `json:"guest_id"`
	GuestName   string        `json:"guest_name,omitempty"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Price       int64         `json:"price"` // centavos
	Status      BookingStatus `json:"status"`
	Note        string        `json:"note,omitempty"`
	Sync        *SyncRecord   `json:"sync,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Version     int64         `json:"version"`
}

func (b *Booking) Range() daterange.Range {
	return daterange.Range{Start: b.Start, End: b.End}
}

func (b *Booking) Nights() int {
	return b.Range().Nights()
}

// Origin is the channel the booking came from, derived from its sync link.
func (b *Booking) Origin() Channel {
	if b.Sync == nil || b.Sync.Channel == "" {
		return ChannelDirect
	}
	return b.Sync.Channel
}

// BookingMove is one booking's new range within a joint reschedule.
type BookingMove struct {
	BookingID int64
	Version   int64
	Range     daterange.Range
}
