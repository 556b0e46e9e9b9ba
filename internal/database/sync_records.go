package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

func insertSyncRecord(ctx context.Context, tx *sql.Tx, rec *models.SyncRecord, now time.Time) error {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO sync_records (
            booking_id, integration_id, channel, external_id, start_date, end_date,
            price, cancelled, raw_payload, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BookingID, rec.IntegrationID, rec.Channel, rec.ExternalID,
		formatDate(rec.Start), formatDate(rec.End), rec.Price, rec.Cancelled, rec.RawPayload, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sync record %s/%s already exists: %w", rec.Channel, rec.ExternalID, domain.ErrInvalidInput)
		}
		return fmt.Errorf("failed to insert sync record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get sync record id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// GetSyncRecord looks up the link for an external booking by its natural key.
func (db *DB) GetSyncRecord(ctx context.Context, channel models.Channel, externalID string) (*models.SyncRecord, error) {
	var (
		rec        models.SyncRecord
		ch         string
		start, end string
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, booking_id, integration_id, channel, external_id, start_date, end_date,
                price, cancelled, raw_payload, created_at, updated_at
         FROM sync_records WHERE channel = ? AND external_id = ?`,
		channel, externalID,
	).Scan(&rec.ID, &rec.BookingID, &rec.IntegrationID, &ch, &rec.ExternalID, &start, &end,
		&rec.Price, &rec.Cancelled, &rec.RawPayload, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "sync record", fmt.Sprintf("%s/%s", channel, externalID))
	}
	rec.Channel = models.Channel(ch)
	if rec.Start, err = parseDate(start); err != nil {
		return nil, err
	}
	if rec.End, err = parseDate(end); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateSyncSnapshot stores the last snapshot seen from the channel.
func (db *DB) UpdateSyncSnapshot(ctx context.Context, rec *models.SyncRecord) error {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE sync_records SET start_date = ?, end_date = ?, price = ?, cancelled = ?, raw_payload = ?, updated_at = ?
         WHERE id = ?`,
		formatDate(rec.Start), formatDate(rec.End), rec.Price, rec.Cancelled, rec.RawPayload, now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync record: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.NotFoundf("sync record", rec.ID)
	}
	rec.UpdatedAt = now
	return nil
}
