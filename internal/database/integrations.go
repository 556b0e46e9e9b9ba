package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

const integrationColumns = `id, channel, label, status, last_sync_at, is_active, created_at, updated_at`

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var (
		in       models.Integration
		channel  string
		status   string
		lastSync sql.NullTime
	)
	if err := row.Scan(&in.ID, &channel, &in.Label, &status, &lastSync, &in.IsActive, &in.CreatedAt, &in.UpdatedAt); err != nil {
		return nil, err
	}
	in.Channel = models.Channel(channel)
	in.Status = models.IntegrationStatus(status)
	if lastSync.Valid {
		t := lastSync.Time
		in.LastSyncAt = &t
	}
	return &in, nil
}

func (db *DB) CreateIntegration(ctx context.Context, in *models.Integration) error {
	if in.Status == "" {
		in.Status = models.IntegrationDisconnected
	}
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO integrations (channel, label, status, is_active, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		in.Channel, in.Label, in.Status, in.IsActive, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("integration %s/%s already exists: %w", in.Channel, in.Label, domain.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create integration: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	in.ID = id
	in.CreatedAt = now
	in.UpdatedAt = now
	return nil
}

func (db *DB) GetIntegration(ctx context.Context, id int64) (*models.Integration, error) {
	in, err := scanIntegration(db.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "integration", id)
	}
	return in, nil
}

func (db *DB) ListIntegrations(ctx context.Context) ([]models.Integration, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	defer rows.Close()

	var out []models.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// TouchIntegrationSync records the end of a sync pass.
func (db *DB) TouchIntegrationSync(ctx context.Context, id int64, at time.Time, status models.IntegrationStatus) error {
	result, err := db.ExecContext(ctx,
		`UPDATE integrations SET last_sync_at = ?, status = ?, updated_at = ? WHERE id = ?`,
		at, status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch integration: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.NotFoundf("integration", id)
	}
	return nil
}

func (db *DB) CreateMapping(ctx context.Context, m *models.ApartmentMapping) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO apartment_mappings (integration_id, apartment_id, external_listing_id, external_name)
         VALUES (?, ?, ?, ?)`,
		m.IntegrationID, m.ApartmentID, m.ExternalListingID, m.ExternalName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("mapping for listing %s already exists: %w", m.ExternalListingID, domain.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create mapping: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	return nil
}

// GetMappingByListing resolves an external listing to the local apartment.
func (db *DB) GetMappingByListing(ctx context.Context, integrationID int64, listingID string) (*models.ApartmentMapping, error) {
	var m models.ApartmentMapping
	err := db.QueryRowContext(ctx,
		`SELECT id, integration_id, apartment_id, external_listing_id, external_name
         FROM apartment_mappings WHERE integration_id = ? AND external_listing_id = ?`,
		integrationID, listingID,
	).Scan(&m.ID, &m.IntegrationID, &m.ApartmentID, &m.ExternalListingID, &m.ExternalName)
	if err != nil {
		return nil, notFound(err, "mapping", listingID)
	}
	return &m, nil
}

func (db *DB) ListMappings(ctx context.Context, integrationID int64) ([]models.ApartmentMapping, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, integration_id, apartment_id, external_listing_id, external_name
         FROM apartment_mappings WHERE integration_id = ? ORDER BY apartment_id`,
		integrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var out []models.ApartmentMapping
	for rows.Next() {
		var m models.ApartmentMapping
		if err := rows.Scan(&m.ID, &m.IntegrationID, &m.ApartmentID, &m.ExternalListingID, &m.ExternalName); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
