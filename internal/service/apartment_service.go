package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/rs/zerolog"
)

// ApartmentService keeps the active fleet in memory; writes refresh the cache.
type ApartmentService struct {
	repo          domain.ApartmentRepository
	logger        *zerolog.Logger
	apartments    []models.Apartment
	apartmentsMap map[int64]models.Apartment
	mu            sync.RWMutex
}

func NewApartmentService(repo domain.ApartmentRepository, logger *zerolog.Logger) *ApartmentService {
	return &ApartmentService{
		repo:          repo,
		logger:        logger,
		apartmentsMap: make(map[int64]models.Apartment),
	}
}

func (s *ApartmentService) GetActiveApartments(ctx context.Context) ([]models.Apartment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Apartment(nil), s.apartments...), nil
}

// GetApartment serves active apartments from the cache and falls back to
// storage for inactive or unknown ids.
func (s *ApartmentService) GetApartment(ctx context.Context, id int64) (*models.Apartment, error) {
	s.mu.RLock()
	apt, ok := s.apartmentsMap[id]
	s.mu.RUnlock()
	if ok {
		return &apt, nil
	}
	return s.repo.GetApartment(ctx, id)
}

func (s *ApartmentService) ListApartments(ctx context.Context, activeOnly bool) ([]models.Apartment, error) {
	if activeOnly {
		return s.GetActiveApartments(ctx)
	}
	return s.repo.ListApartments(ctx, false)
}

func (s *ApartmentService) CreateApartment(ctx context.Context, apt *models.Apartment) error {
	apt.Name = strings.TrimSpace(apt.Name)
	if apt.Name == "" {
		return fmt.Errorf("apartment name is required: %w", domain.ErrInvalidInput)
	}
	if err := s.repo.CreateApartment(ctx, apt); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *ApartmentService) UpdateApartment(ctx context.Context, apt *models.Apartment) error {
	if err := s.repo.UpdateApartment(ctx, apt); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *ApartmentService) Refresh(ctx context.Context) error {
	apartments, err := s.repo.ListApartments(ctx, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apartments = apartments
	s.apartmentsMap = make(map[int64]models.Apartment, len(apartments))
	for _, apt := range apartments {
		s.apartmentsMap[apt.ID] = apt
	}
	s.logger.Debug().Int("apartments", len(apartments)).Msg("apartment cache refreshed")
	return nil
}
