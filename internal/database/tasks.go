package database

import (
	"context"
	"fmt"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

const taskColumns = `id, apartment_id, title, description, date, status, kind, created_at, updated_at`

func scanTask(row rowScanner) (*models.MaintenanceTask, error) {
	var (
		t                  models.MaintenanceTask
		date, status, kind string
	)
	if err := row.Scan(&t.ID, &t.ApartmentID, &t.Title, &t.Description, &date, &status, &kind,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.Kind = models.TaskKind(kind)
	return &t, nil
}

func (db *DB) CreateMaintenanceTask(ctx context.Context, t *models.MaintenanceTask) error {
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if t.Kind == "" {
		t.Kind = models.TaskOther
	}
	t.Date = daterange.Day(t.Date)

	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO maintenance_tasks (apartment_id, title, description, date, status, kind, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ApartmentID, t.Title, t.Description, formatDate(t.Date), t.Status, t.Kind, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create maintenance task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (db *DB) GetMaintenanceTask(ctx context.Context, id int64) (*models.MaintenanceTask, error) {
	t, err := scanTask(db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM maintenance_tasks WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return t, nil
}

func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) error {
	result, err := db.ExecContext(ctx,
		`UPDATE maintenance_tasks SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.NotFoundf("task", id)
	}
	return nil
}

// ListPendingTasks returns tasks not yet done, oldest date first.
func (db *DB) ListPendingTasks(ctx context.Context) ([]models.MaintenanceTask, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM maintenance_tasks WHERE status != ? ORDER BY date ASC, id ASC`,
		models.TaskDone,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []models.MaintenanceTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
