package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newReportService(f *fixture, now time.Time) *ReportService {
	logger := zerolog.Nop()
	svc := NewReportService(f.db, &logger)
	svc.now = func() time.Time { return now }
	return svc
}

func TestReportService_Financial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger := zerolog.Nop()
	ops := NewOperationsService(f.db, &logger)

	f.create(t, "2025-01-10", "2025-01-14")
	f.create(t, "2025-01-28", "2025-02-03")
	cancelled := f.create(t, "2025-01-20", "2025-01-22")
	_, err := f.bookings.Transition(ctx, cancelled.ID, models.StatusCancelled)
	require.NoError(t, err)
	require.NoError(t, ops.RecordExpense(ctx, &models.Expense{Description: "Luz", Amount: 30000, Date: day("2025-01-15"), Category: "utilities"}))

	svc := newReportService(f, testNow)
	window := daterange.Range{Start: day("2025-01-01"), End: day("2025-02-01")}
	rep, err := svc.Financial(ctx, window, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(240000), rep.Revenue)
	assert.Equal(t, int64(30000), rep.Expenses)
	assert.Equal(t, int64(210000), rep.Profit)
	require.Len(t, rep.Occupancy, 1)
	assert.Equal(t, 8, rep.Occupancy[0].OccupiedNights)
	assert.Equal(t, 31, rep.Occupancy[0].WindowNights)

	filtered, err := svc.Financial(ctx, window, f.apartment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(240000), filtered.Revenue)
	assert.Zero(t, filtered.Expenses)

	_, err = svc.Financial(ctx, window, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Financial(ctx, daterange.Range{Start: day("2025-02-01"), End: day("2025-01-01")}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteFinancialXLSX(&buf, rep))
	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()
	assert.Contains(t, wb.GetSheetList(), "Resumo")
}

func TestReportService_DefaultWindow(t *testing.T) {
	f := newFixture(t)
	svc := newReportService(f, time.Date(2025, 5, 20, 15, 0, 0, 0, time.UTC))

	w := svc.DefaultWindow()
	assert.Equal(t, day("2025-02-20"), w.Start)
	assert.Equal(t, day("2025-05-21"), w.End)

	f.create(t, "2025-03-01", "2025-03-04")
	rep, err := svc.Financial(context.Background(), daterange.Range{}, 0)
	require.NoError(t, err)
	assert.Equal(t, w, rep.Window)
	assert.Equal(t, int64(120000), rep.Revenue)
}

func TestReportService_Dashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	current := f.create(t, "2024-12-30", "2025-01-03")
	next := f.create(t, "2025-01-05", "2025-01-09")

	svc := newReportService(f, testNow)
	dash, err := svc.Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, dash.OccupiedCount)
	assert.Equal(t, 0, dash.VacantCount)
	require.Len(t, dash.Apartments, 1)
	assert.Equal(t, current.ID, dash.Apartments[0].CurrentBookingID)
	assert.Equal(t, next.ID, dash.Apartments[0].NextBookingID)

	// check-out on the 3rd, check-in on the 5th
	require.Len(t, dash.Upcoming, 2)
	assert.Equal(t, day("2025-01-03"), dash.Upcoming[0].Date)
	assert.Equal(t, day("2025-01-05"), dash.Upcoming[1].Date)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestReportService_XLSXWriteErrorWithoutLogger(t *testing.T) {
	f := newFixture(t)
	svc := NewReportService(f.db, nil)

	rep, err := svc.Financial(context.Background(), daterange.MustNew(day("2025-01-01"), day("2025-02-01")), 0)
	require.NoError(t, err)

	err = svc.WriteFinancialXLSX(brokenWriter{}, rep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export report")
}
