package models

import (
	"strings"
	"time"
)

type Guest struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
	Notes    string `json:"notes,omitempty"`
	// BookingCount is filled by listing queries; it is never stored.
	BookingCount int       `json:"booking_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsRepeat reports whether the guest has stayed (or booked) more than once.
func (g Guest) IsRepeat() bool {
	return g.BookingCount > 1
}

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
