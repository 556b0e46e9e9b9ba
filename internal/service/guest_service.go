package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/rs/zerolog"
)

type GuestService struct {
	repo   domain.GuestRepository
	logger *zerolog.Logger
}

func NewGuestService(repo domain.GuestRepository, logger *zerolog.Logger) *GuestService {
	return &GuestService{repo: repo, logger: logger}
}

// CreateGuest registers a guest; the email is the identity and must be unique.
func (s *GuestService) CreateGuest(ctx context.Context, guest *models.Guest) error {
	guest.Name = strings.TrimSpace(guest.Name)
	guest.Email = models.NormalizeEmail(guest.Email)
	if guest.Name == "" || guest.Email == "" || !strings.Contains(guest.Email, "@") {
		return fmt.Errorf("guest needs a name and a valid email: %w", domain.ErrInvalidInput)
	}
	if err := s.repo.CreateGuest(ctx, guest); err != nil {
		return err
	}
	s.logger.Info().Int64("guest_id", guest.ID).Str("email", guest.Email).Msg("guest created")
	return nil
}

func (s *GuestService) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	return s.repo.GetGuest(ctx, id)
}

func (s *GuestService) FindByEmail(ctx context.Context, email string) (*models.Guest, error) {
	return s.repo.GetGuestByEmail(ctx, email)
}

func (s *GuestService) ListGuests(ctx context.Context) ([]models.Guest, error) {
	return s.repo.ListGuests(ctx)
}

// History returns the guest's bookings, newest stay first.
func (s *GuestService) History(ctx context.Context, guestID int64) ([]models.Booking, error) {
	if _, err := s.repo.GetGuest(ctx, guestID); err != nil {
		return nil, err
	}
	return s.repo.GetGuestBookings(ctx, guestID)
}
