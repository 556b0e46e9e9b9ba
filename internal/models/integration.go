package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Channel identifies where a booking originated.
type Channel string

const (
	ChannelDirect     Channel = "direct"
	ChannelAirbnb     Channel = "AIRBNB"
	ChannelBookingCom Channel = "BOOKING_COM"
)

// ParseChannel accepts external channel names; "direct" is not a valid integration.
func ParseChannel(raw string) (Channel, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(ChannelAirbnb):
		return ChannelAirbnb, nil
	case string(ChannelBookingCom), "BOOKING.COM", "BOOKING":
		return ChannelBookingCom, nil
	}
	return "", fmt.Errorf("unknown channel %q", raw)
}

// Label is the badge text shown next to a booking.
func (c Channel) Label() string {
	switch c {
	case ChannelAirbnb:
		return "Airbnb"
	case ChannelBookingCom:
		return "Booking.com"
	case ChannelDirect, "":
		return "Direct"
	}
	return "External"
}

type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationDisconnected IntegrationStatus = "disconnected"
	IntegrationError        IntegrationStatus = "error"
)

type Integration struct {
	ID         int64             `json:"id"`
	Channel    Channel           `json:"channel"`
	Label      string            `json:"label"`
	Status     IntegrationStatus `json:"status"`
	LastSyncAt *time.Time        `json:"last_sync_at,omitempty"`
	IsActive   bool              `json:"is_active"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ApartmentMapping links a local apartment to a listing id inside one integration.
type ApartmentMapping struct {
	ID                int64  `json:"id"`
	IntegrationID     int64  `json:"integration_id"`
	ApartmentID       int64  `json:"apartment_id"`
	ExternalListingID string `json:"external_listing_id"`
	ExternalName      string `json:"external_name,omitempty"`
}

// SyncRecord ties a booking to its (channel, external id) and keeps the last
// snapshot received from the channel.
type SyncRecord struct {
	ID            int64     `json:"id"`
	BookingID     int64     `json:"booking_id"`
	IntegrationID int64     `json:"integration_id"`
	Channel       Channel   `json:"channel"`
	ExternalID    string    `json:"external_id"`
	Start         time.Time `json:"-"`
	End           time.Time `json:"-"`
	Price         int64     `json:"-"`
	Cancelled     bool      `json:"-"`
	RawPayload    string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SyncSnapshot is the material part of an external record: what the reconciler
// compares between passes.
type SyncSnapshot struct {
	Start     time.Time
	End       time.Time
	Price     int64
	Cancelled bool
}

func (s SyncSnapshot) Equal(other SyncSnapshot) bool {
	return s.Start.Equal(other.Start) && s.End.Equal(other.End) &&
		s.Price == other.Price && s.Cancelled == other.Cancelled
}

func (s SyncSnapshot) SameDates(other SyncSnapshot) bool {
	return s.Start.Equal(other.Start) && s.End.Equal(other.End)
}

func (r *SyncRecord) Snapshot() SyncSnapshot {
	return SyncSnapshot{Start: r.Start, End: r.End, Price: r.Price, Cancelled: r.Cancelled}
}

func (r *SyncRecord) ApplySnapshot(s SyncSnapshot, raw string) {
	r.Start, r.End, r.Price, r.Cancelled = s.Start, s.End, s.Price, s.Cancelled
	r.RawPayload = raw
}

// ExternalGuest is the guest block of an inbound channel record.
type ExternalGuest struct {
	Name  string
	Email string
	Phone string
}

// ExternalBooking is one record of an inbound channel batch.
type ExternalBooking struct {
	Channel           Channel
	ExternalID        string
	ExternalListingID string
	Guest             ExternalGuest
	Start             time.Time
	End               time.Time
	Price             int64
	Cancelled         bool
	Raw               json.RawMessage
}

func (e ExternalBooking) Snapshot() SyncSnapshot {
	return SyncSnapshot{Start: e.Start, End: e.End, Price: e.Price, Cancelled: e.Cancelled}
}
