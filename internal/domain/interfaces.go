package domain

import (
	"context"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

// BookingRepository is the storage the lifecycle manager commits through.
// CreateBookingWithLock and RescheduleBookingWithLock re-check overlap inside a
// transaction; the versioned updates fail with ErrConcurrentModification.
type BookingRepository interface {
	GetApartment(ctx context.Context, id int64) (*models.Apartment, error)
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking, sync *models.SyncRecord) error
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error
	RescheduleBookingWithLock(ctx context.Context, id, version int64, r daterange.Range) error
	RescheduleBookingsWithLock(ctx context.Context, moves []models.BookingMove) error
	UpdateBookingPriceWithVersion(ctx context.Context, id, version, price int64) error
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
	GetBookingsOverlapping(ctx context.Context, apartmentID int64, r daterange.Range) ([]models.Booking, error)
}

// SyncRepository is what the reconciler reads and writes besides bookings.
type SyncRepository interface {
	GetIntegration(ctx context.Context, id int64) (*models.Integration, error)
	GetMappingByListing(ctx context.Context, integrationID int64, listingID string) (*models.ApartmentMapping, error)
	GetSyncRecord(ctx context.Context, channel models.Channel, externalID string) (*models.SyncRecord, error)
	UpdateSyncSnapshot(ctx context.Context, record *models.SyncRecord) error
	TouchIntegrationSync(ctx context.Context, id int64, at time.Time, status models.IntegrationStatus) error
	GetOrCreateGuest(ctx context.Context, guest *models.Guest) (*models.Guest, bool, error)
}

// ReportRepository serves point-in-time reads for reports and the dashboard.
type ReportRepository interface {
	ListApartments(ctx context.Context, activeOnly bool) ([]models.Apartment, error)
	GetBookingsInWindow(ctx context.Context, window daterange.Range) ([]models.Booking, error)
	GetExpensesInWindow(ctx context.Context, window daterange.Range) ([]models.Expense, error)
	ListPendingTasks(ctx context.Context) ([]models.MaintenanceTask, error)
}

type ApartmentRepository interface {
	CreateApartment(ctx context.Context, apt *models.Apartment) error
	UpdateApartment(ctx context.Context, apt *models.Apartment) error
	GetApartment(ctx context.Context, id int64) (*models.Apartment, error)
	ListApartments(ctx context.Context, activeOnly bool) ([]models.Apartment, error)
}

type GuestRepository interface {
	CreateGuest(ctx context.Context, guest *models.Guest) error
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
	GetGuestByEmail(ctx context.Context, email string) (*models.Guest, error)
	ListGuests(ctx context.Context) ([]models.Guest, error)
	GetGuestBookings(ctx context.Context, guestID int64) ([]models.Booking, error)
}

// OperationsRepository stores the cost side of the business: expenses and
// maintenance tasks.
type OperationsRepository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetApartment(ctx context.Context, id int64) (*models.Apartment, error)
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, id int64) (*models.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	CreateMaintenanceTask(ctx context.Context, task *models.MaintenanceTask) error
	GetMaintenanceTask(ctx context.Context, id int64) (*models.MaintenanceTask, error)
	UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) error
	ListPendingTasks(ctx context.Context) ([]models.MaintenanceTask, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker mirrors booking changes to the outbound spreadsheet.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}

// Locker is a lease-based mutual exclusion keyed by name.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
