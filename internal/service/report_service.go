package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
	"github.com/thiagoooop/morada-de-praia/internal/report"

	"github.com/rs/zerolog"
)

// ReportService loads point-in-time snapshots and hands them to the report package.
type ReportService struct {
	repo   domain.ReportRepository
	now    func() time.Time
	logger *zerolog.Logger
}

func NewReportService(repo domain.ReportRepository, logger *zerolog.Logger) *ReportService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReportService{repo: repo, now: time.Now, logger: logger}
}

// DefaultWindow is the last DefaultReportMonths months up to and including today.
func (s *ReportService) DefaultWindow() daterange.Range {
	today := daterange.Day(s.now())
	return daterange.Range{
		Start: today.AddDate(0, -models.DefaultReportMonths, 0),
		End:   today.AddDate(0, 0, 1),
	}
}

// Financial builds the report of the window; a zero window means DefaultWindow.
func (s *ReportService) Financial(ctx context.Context, window daterange.Range, apartmentID int64) (*report.Report, error) {
	if window.Start.IsZero() && window.End.IsZero() {
		window = s.DefaultWindow()
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	apartments, err := s.repo.ListApartments(ctx, false)
	if err != nil {
		return nil, err
	}
	if apartmentID != 0 && !containsApartment(apartments, apartmentID) {
		return nil, domain.NotFoundf("apartment", apartmentID)
	}
	bookings, err := s.repo.GetBookingsInWindow(ctx, window)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.GetExpensesInWindow(ctx, window)
	if err != nil {
		return nil, err
	}

	rep := report.Build(report.Input{
		Window:      window,
		Apartments:  activeApartments(apartments, apartmentID),
		Bookings:    bookings,
		Expenses:    expenses,
		ApartmentID: apartmentID,
	})
	return &rep, nil
}

// Dashboard summarizes today's fleet state.
func (s *ReportService) Dashboard(ctx context.Context) (*report.Dashboard, error) {
	today := daterange.Day(s.now())

	apartments, err := s.repo.ListApartments(ctx, true)
	if err != nil {
		return nil, err
	}
	bookings, err := s.repo.GetBookingsInWindow(ctx, report.DashboardWindow(today))
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.GetExpensesInWindow(ctx, daterange.Range{Start: daterange.Month(today).Start, End: today.AddDate(0, 0, 1)})
	if err != nil {
		return nil, err
	}
	tasks, err := s.repo.ListPendingTasks(ctx)
	if err != nil {
		return nil, err
	}

	dash := report.BuildDashboard(report.DashboardInput{
		Today:      today,
		Apartments: apartments,
		Bookings:   bookings,
		Expenses:   expenses,
		Tasks:      tasks,
	})
	return &dash, nil
}

func (s *ReportService) WriteFinancialXLSX(w io.Writer, rep *report.Report) error {
	if err := report.WriteXLSX(w, *rep); err != nil {
		s.logger.Error().Err(err).Msg("xlsx export failed")
		return fmt.Errorf("export report: %w", err)
	}
	return nil
}

func containsApartment(apartments []models.Apartment, id int64) bool {
	for _, apt := range apartments {
		if apt.ID == id {
			return true
		}
	}
	return false
}

// activeApartments keeps the fleet occupancy to active units, unless one
// apartment was asked for explicitly.
func activeApartments(apartments []models.Apartment, id int64) []models.Apartment {
	out := make([]models.Apartment, 0, len(apartments))
	for _, apt := range apartments {
		if apt.IsActive || apt.ID == id {
			out = append(out, apt)
		}
	}
	return out
}
