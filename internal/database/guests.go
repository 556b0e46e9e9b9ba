package database

import (
	"context"
	"fmt"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

const guestColumns = `g.id, g.name, g.email, g.phone, g.document, g.notes, g.created_at, g.updated_at`

func scanGuest(row rowScanner, extra ...any) (*models.Guest, error) {
	var g models.Guest
	dest := []any{&g.ID, &g.Name, &g.Email, &g.Phone, &g.Document, &g.Notes, &g.CreatedAt, &g.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &g, nil
}

func (db *DB) CreateGuest(ctx context.Context, guest *models.Guest) error {
	guest.Email = models.NormalizeEmail(guest.Email)
	if guest.Email == "" {
		return fmt.Errorf("guest email is required: %w", domain.ErrInvalidInput)
	}

	query := `INSERT INTO guests (name, email, phone, document, notes, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, guest.Name, guest.Email, guest.Phone, guest.Document, guest.Notes, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("guest %s already exists: %w", guest.Email, domain.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create guest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	guest.ID = id
	guest.CreatedAt = now
	guest.UpdatedAt = now
	return nil
}

func (db *DB) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	query := `SELECT ` + guestColumns + `,
                     (SELECT COUNT(*) FROM bookings b WHERE b.guest_id = g.id AND b.status != 'cancelled')
              FROM guests g WHERE g.id = ?`
	var count int
	guest, err := scanGuest(db.QueryRowContext(ctx, query, id), &count)
	if err != nil {
		return nil, notFound(err, "guest", id)
	}
	guest.BookingCount = count
	return guest, nil
}

func (db *DB) GetGuestByEmail(ctx context.Context, email string) (*models.Guest, error) {
	email = models.NormalizeEmail(email)
	query := `SELECT ` + guestColumns + `,
                     (SELECT COUNT(*) FROM bookings b WHERE b.guest_id = g.id AND b.status != 'cancelled')
              FROM guests g WHERE g.email = ? COLLATE NOCASE`
	var count int
	guest, err := scanGuest(db.QueryRowContext(ctx, query, email), &count)
	if err != nil {
		return nil, notFound(err, "guest", email)
	}
	guest.BookingCount = count
	return guest, nil
}

// GetOrCreateGuest resolves a guest by email, inserting it when missing. The
// boolean reports whether a row was created.
func (db *DB) GetOrCreateGuest(ctx context.Context, guest *models.Guest) (*models.Guest, bool, error) {
	email := models.NormalizeEmail(guest.Email)
	if email == "" {
		return nil, false, fmt.Errorf("guest email is required: %w", domain.ErrInvalidInput)
	}

	query := `INSERT INTO guests (name, email, phone, document, notes, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(email) DO NOTHING`
	now := time.Now()
	name := guest.Name
	if name == "" {
		name = email
	}
	result, err := db.ExecContext(ctx, query, name, email, guest.Phone, guest.Document, guest.Notes, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert guest: %w", err)
	}
	created, _ := result.RowsAffected()

	existing, err := db.GetGuestByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return existing, created > 0, nil
}

// ListGuests returns every guest with the number of non-cancelled bookings.
func (db *DB) ListGuests(ctx context.Context) ([]models.Guest, error) {
	query := `SELECT ` + guestColumns + `, COUNT(b.id)
              FROM guests g
              LEFT JOIN bookings b ON b.guest_id = g.id AND b.status != 'cancelled'
              GROUP BY g.id
              ORDER BY g.name ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	defer rows.Close()

	var out []models.Guest
	for rows.Next() {
		var count int
		g, err := scanGuest(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		g.BookingCount = count
		out = append(out, *g)
	}
	return out, rows.Err()
}
