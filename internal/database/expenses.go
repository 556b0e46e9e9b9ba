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

const expenseSelect = `SELECT e.id, e.description, e.amount, e.date, e.category, e.booking_id,
                 COALESCE(b.apartment_id, 0), e.created_at, e.updated_at
          FROM expenses e
          LEFT JOIN bookings b ON b.id = e.booking_id`

func scanExpense(row rowScanner) (*models.Expense, error) {
	var (
		e         models.Expense
		date      string
		category  string
		bookingID sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.Description, &e.Amount, &date, &category, &bookingID,
		&e.ApartmentID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if e.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	e.Category = models.ExpenseCategory(category)
	if bookingID.Valid {
		id := bookingID.Int64
		e.BookingID = &id
	}
	return &e, nil
}

func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	if e.Category == "" {
		e.Category = models.ExpenseOther
	}
	var bookingID any
	if e.BookingID != nil {
		bookingID = *e.BookingID
	}

	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO expenses (description, amount, date, category, booking_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Description, e.Amount, formatDate(daterange.Day(e.Date)), e.Category, bookingID, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	e.Date = daterange.Day(e.Date)
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (db *DB) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	e, err := scanExpense(db.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "expense", id)
	}
	return e, nil
}

func (db *DB) DeleteExpense(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.NotFoundf("expense", id)
	}
	return nil
}

// GetExpensesInWindow lists expenses dated inside [window.Start, window.End).
func (db *DB) GetExpensesInWindow(ctx context.Context, window daterange.Range) ([]models.Expense, error) {
	rows, err := db.QueryContext(ctx,
		expenseSelect+` WHERE e.date >= ? AND e.date < ? ORDER BY e.date ASC, e.id ASC`,
		formatDate(window.Start), formatDate(window.End),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var out []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
