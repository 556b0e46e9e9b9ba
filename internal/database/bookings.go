package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

const bookingSelect = `SELECT b.id, b.apartment_id, b.guest_id, g.name, b.start_date, b.end_date, b.price,
                 b.status, b.note, b.created_at, b.updated_at, b.version,
                 s.id, s.integration_id, s.channel, s.external_id, s.start_date, s.end_date,
                 s.price, s.cancelled, s.raw_payload, s.created_at, s.updated_at
          FROM bookings b
          JOIN guests g ON g.id = b.guest_id
          LEFT JOIN sync_records s ON s.booking_id = b.id`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                        models.Booking
		start, end, status                       string
		syncID, syncIntegration, syncPrice       sql.NullInt64
		syncChannel, syncExternal, syncStart     sql.NullString
		syncEnd, syncRaw                         sql.NullString
		syncCancelled                            sql.NullBool
		syncCreated, syncUpdated                 sql.NullTime
	)

	err := row.Scan(
		&b.ID, &b.ApartmentID, &b.GuestID, &b.GuestName, &start, &end, &b.Price,
		&status, &b.Note, &b.CreatedAt, &b.UpdatedAt, &b.Version,
		&syncID, &syncIntegration, &syncChannel, &syncExternal, &syncStart, &syncEnd,
		&syncPrice, &syncCancelled, &syncRaw, &syncCreated, &syncUpdated,
	)
	if err != nil {
		return nil, err
	}

	b.Status = models.BookingStatus(status)
	if b.Start, err = parseDate(start); err != nil {
		return nil, err
	}
	if b.End, err = parseDate(end); err != nil {
		return nil, err
	}

	if syncID.Valid {
		rec := &models.SyncRecord{
			ID:            syncID.Int64,
			BookingID:     b.ID,
			IntegrationID: syncIntegration.Int64,
			Channel:       models.Channel(syncChannel.String),
			ExternalID:    syncExternal.String,
			Price:         syncPrice.Int64,
			Cancelled:     syncCancelled.Bool,
			RawPayload:    syncRaw.String,
			CreatedAt:     syncCreated.Time,
			UpdatedAt:     syncUpdated.Time,
		}
		if rec.Start, err = parseDate(syncStart.String); err != nil {
			return nil, err
		}
		if rec.End, err = parseDate(syncEnd.String); err != nil {
			return nil, err
		}
		b.Sync = rec
	}
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// overlappingIDs runs the half-open overlap predicate against active bookings.
func overlappingIDs(ctx context.Context, q queryer, apartmentID int64, r daterange.Range, excludeID int64) ([]int64, error) {
	query := `SELECT id FROM bookings
              WHERE apartment_id = ? AND status != ? AND start_date < ? AND end_date > ? AND id != ?
              ORDER BY start_date ASC`
	rows, err := q.QueryContext(ctx, query, apartmentID, models.StatusCancelled, formatDate(r.End), formatDate(r.Start), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to check overlap: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan overlapping id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateBookingWithLock re-checks overlap and inserts the booking (and its sync
// link, when given) in one transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking, sync *models.SyncRecord) error {
	r, err := daterange.New(booking.Start, booking.End)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ids, err := overlappingIDs(ctx, tx, booking.ApartmentID, r, 0)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return &domain.OverlapConflictError{ApartmentID: booking.ApartmentID, BookingIDs: ids}
	}

	if booking.Status == "" {
		booking.Status = models.StatusConfirmed
	}
	now := time.Now()
	result, err := tx.ExecContext(ctx, `INSERT INTO bookings (
                apartment_id, guest_id, start_date, end_date, price, status, note, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		booking.ApartmentID, booking.GuestID, formatDate(r.Start), formatDate(r.End),
		booking.Price, booking.Status, booking.Note, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if sync != nil {
		sync.BookingID = id
		if err := insertSyncRecord(ctx, tx, sync, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.Start, booking.End = r.Start, r.End
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	booking.Sync = sync
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := scanBooking(db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return booking, nil
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// RescheduleBookingWithLock moves a booking to a new range when no other active
// booking on the apartment overlaps it and the version still matches.
func (db *DB) RescheduleBookingWithLock(ctx context.Context, id, version int64, r daterange.Range) error {
	if err := r.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var apartmentID int64
	if err := tx.QueryRowContext(ctx, `SELECT apartment_id FROM bookings WHERE id = ?`, id).Scan(&apartmentID); err != nil {
		return notFound(err, "booking", id)
	}

	ids, err := overlappingIDs(ctx, tx, apartmentID, r, id)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return &domain.OverlapConflictError{ApartmentID: apartmentID, BookingIDs: ids}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET start_date = ?, end_date = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND version = ?`,
		formatDate(r.Start), formatDate(r.End), time.Now(), id, version,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrConcurrentModification
	}
	return tx.Commit()
}

// RescheduleBookingsWithLock moves bookings of one apartment together in a
// single transaction. Overlap is checked among the new ranges and against every
// active booking outside the group, so bookings may trade places.
func (db *DB) RescheduleBookingsWithLock(ctx context.Context, moves []models.BookingMove) error {
	group := make(map[int64]bool, len(moves))
	for _, m := range moves {
		if err := m.Range.Validate(); err != nil {
			return err
		}
		if group[m.BookingID] {
			return fmt.Errorf("booking %d moved twice: %w", m.BookingID, domain.ErrInvalidInput)
		}
		group[m.BookingID] = true
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var apartmentID int64
	for i, m := range moves {
		var apt int64
		if err := tx.QueryRowContext(ctx, `SELECT apartment_id FROM bookings WHERE id = ?`, m.BookingID).Scan(&apt); err != nil {
			return notFound(err, "booking", m.BookingID)
		}
		if i == 0 {
			apartmentID = apt
		} else if apt != apartmentID {
			return fmt.Errorf("bookings span apartments %d and %d: %w", apartmentID, apt, domain.ErrInvalidInput)
		}
		for _, prev := range moves[:i] {
			if prev.Range.Overlaps(m.Range) {
				return &domain.OverlapConflictError{ApartmentID: apt, BookingIDs: []int64{prev.BookingID}}
			}
		}
	}

	for _, m := range moves {
		ids, err := overlappingIDs(ctx, tx, apartmentID, m.Range, m.BookingID)
		if err != nil {
			return err
		}
		var outside []int64
		for _, id := range ids {
			if !group[id] {
				outside = append(outside, id)
			}
		}
		if len(outside) > 0 {
			return &domain.OverlapConflictError{ApartmentID: apartmentID, BookingIDs: outside}
		}
	}

	now := time.Now()
	for _, m := range moves {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET start_date = ?, end_date = ?, version = version + 1, updated_at = ?
             WHERE id = ? AND version = ?`,
			formatDate(m.Range.Start), formatDate(m.Range.End), now, m.BookingID, m.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to reschedule booking %d: %w", m.BookingID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return domain.ErrConcurrentModification
		}
	}
	return tx.Commit()
}

func (db *DB) UpdateBookingPriceWithVersion(ctx context.Context, id, version, price int64) error {
	query := `UPDATE bookings SET price = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, price, time.Now(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update booking price: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// ListActiveBookings feeds the interval index rebuild.
func (db *DB) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	return db.queryBookings(ctx, bookingSelect+` WHERE b.status != ? ORDER BY b.apartment_id, b.start_date`,
		models.StatusCancelled)
}

// GetBookingsOverlapping lists active bookings of one apartment intersecting r.
func (db *DB) GetBookingsOverlapping(ctx context.Context, apartmentID int64, r daterange.Range) ([]models.Booking, error) {
	return db.queryBookings(ctx,
		bookingSelect+` WHERE b.apartment_id = ? AND b.status != ? AND b.start_date < ? AND b.end_date > ?
                        ORDER BY b.start_date ASC`,
		apartmentID, models.StatusCancelled, formatDate(r.End), formatDate(r.Start),
	)
}

// GetBookingsInWindow lists bookings of every status that intersect the window.
func (db *DB) GetBookingsInWindow(ctx context.Context, window daterange.Range) ([]models.Booking, error) {
	return db.queryBookings(ctx,
		bookingSelect+` WHERE b.start_date < ? AND b.end_date > ? ORDER BY b.start_date ASC, b.id ASC`,
		formatDate(window.End), formatDate(window.Start),
	)
}

func (db *DB) GetGuestBookings(ctx context.Context, guestID int64) ([]models.Booking, error) {
	return db.queryBookings(ctx, bookingSelect+` WHERE b.guest_id = ? ORDER BY b.start_date DESC`, guestID)
}
