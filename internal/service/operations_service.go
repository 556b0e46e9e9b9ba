package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/rs/zerolog"
)

// OperationsService records expenses and drives maintenance tasks.
type OperationsService struct {
	repo   domain.OperationsRepository
	logger *zerolog.Logger
}

func NewOperationsService(repo domain.OperationsRepository, logger *zerolog.Logger) *OperationsService {
	return &OperationsService{repo: repo, logger: logger}
}

func (s *OperationsService) RecordExpense(ctx context.Context, e *models.Expense) error {
	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" || e.Amount <= 0 || e.Date.IsZero() {
		return fmt.Errorf("expense needs a description, a positive amount and a date: %w", domain.ErrInvalidInput)
	}
	category, err := models.ParseExpenseCategory(string(e.Category))
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	e.Category = category
	e.Date = daterange.Day(e.Date)

	if e.BookingID != nil {
		booking, err := s.repo.GetBooking(ctx, *e.BookingID)
		if err != nil {
			return err
		}
		e.ApartmentID = booking.ApartmentID
	}

	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return err
	}
	s.logger.Info().Int64("expense_id", e.ID).Int64("amount", e.Amount).Str("category", string(e.Category)).Msg("expense recorded")
	return nil
}

func (s *OperationsService) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

func (s *OperationsService) DeleteExpense(ctx context.Context, id int64) error {
	return s.repo.DeleteExpense(ctx, id)
}

func (s *OperationsService) CreateTask(ctx context.Context, t *models.MaintenanceTask) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" || t.Date.IsZero() {
		return fmt.Errorf("task needs a title and a date: %w", domain.ErrInvalidInput)
	}
	kind, err := models.ParseTaskKind(string(t.Kind))
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	t.Kind = kind
	t.Status = models.TaskPending
	t.Date = daterange.Day(t.Date)

	if _, err := s.repo.GetApartment(ctx, t.ApartmentID); err != nil {
		return err
	}
	return s.repo.CreateMaintenanceTask(ctx, t)
}

// UpdateTaskStatus moves a task forward: pending, in progress, done.
func (s *OperationsService) UpdateTaskStatus(ctx context.Context, id int64, target models.TaskStatus) (*models.MaintenanceTask, error) {
	task, err := s.repo.GetMaintenanceTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status == target {
		return task, nil
	}
	if !task.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("task %d: %s -> %s: %w", id, task.Status, target, domain.ErrInvalidTransition)
	}

	if err := s.repo.UpdateTaskStatus(ctx, id, target); err != nil {
		return nil, err
	}
	task.Status = target
	s.logger.Info().Int64("task_id", id).Str("status", string(target)).Msg("task status changed")
	return task, nil
}

func (s *OperationsService) ListPendingTasks(ctx context.Context) ([]models.MaintenanceTask, error) {
	return s.repo.ListPendingTasks(ctx)
}
