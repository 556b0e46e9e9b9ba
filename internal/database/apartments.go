package database

import (
	"context"
	"fmt"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

const apartmentColumns = `id, name, description, address, capacity, is_active, created_at, updated_at`

func scanApartment(row rowScanner) (*models.Apartment, error) {
	var a models.Apartment
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Address, &a.Capacity, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (db *DB) CreateApartment(ctx context.Context, apt *models.Apartment) error {
	query := `INSERT INTO apartments (name, description, address, capacity, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, apt.Name, apt.Description, apt.Address, apt.Capacity, apt.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create apartment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	apt.ID = id
	apt.CreatedAt = now
	apt.UpdatedAt = now
	return nil
}

// UpdateApartment edits the descriptive fields and the active flag.
func (db *DB) UpdateApartment(ctx context.Context, apt *models.Apartment) error {
	query := `UPDATE apartments SET name = ?, description = ?, address = ?, capacity = ?, is_active = ?, updated_at = ?
              WHERE id = ?`
	result, err := db.ExecContext(ctx, query, apt.Name, apt.Description, apt.Address, apt.Capacity, apt.IsActive, time.Now(), apt.ID)
	if err != nil {
		return fmt.Errorf("failed to update apartment: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.NotFoundf("apartment", apt.ID)
	}
	return nil
}

func (db *DB) GetApartment(ctx context.Context, id int64) (*models.Apartment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+apartmentColumns+` FROM apartments WHERE id = ?`, id)
	apt, err := scanApartment(row)
	if err != nil {
		return nil, notFound(err, "apartment", id)
	}
	return apt, nil
}

func (db *DB) GetApartmentByName(ctx context.Context, name string) (*models.Apartment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+apartmentColumns+` FROM apartments WHERE name = ?`, name)
	apt, err := scanApartment(row)
	if err != nil {
		return nil, notFound(err, "apartment", name)
	}
	return apt, nil
}

func (db *DB) ListApartments(ctx context.Context, activeOnly bool) ([]models.Apartment, error) {
	query := `SELECT ` + apartmentColumns + ` FROM apartments`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list apartments: %w", err)
	}
	defer rows.Close()

	var out []models.Apartment
	for rows.Next() {
		apt, err := scanApartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan apartment: %w", err)
		}
		out = append(out, *apt)
	}
	return out, rows.Err()
}
