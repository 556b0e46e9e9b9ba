package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thiagoooop/morada-de-praia/internal/config"
	"github.com/thiagoooop/morada-de-praia/internal/database"
	"github.com/thiagoooop/morada-de-praia/internal/interval"
	"github.com/thiagoooop/morada-de-praia/internal/models"
	"github.com/thiagoooop/morada-de-praia/internal/repository"
	"github.com/thiagoooop/morada-de-praia/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db        *database.DB
	ts        *httptest.Server
	apartment *models.Apartment
	headers   map[string]string
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	apt := &models.Apartment{Name: "Apto 101", Capacity: 4, IsActive: true}
	require.NoError(t, db.CreateApartment(context.Background(), apt))

	bookings := service.NewBookingService(db, interval.New(), nil, nil, service.BookingPolicy{AllowPastReschedule: true}, &logger)
	apartments := service.NewApartmentService(db, &logger)
	require.NoError(t, apartments.Refresh(context.Background()))

	svc := Services{
		Apartments: apartments,
		Guests:     service.NewGuestService(db, &logger),
		Bookings:   bookings,
		Reconciler: service.NewReconcileService(db, bookings, repository.NewMemoryLocker(), nil, service.ReconcileConfig{}, &logger),
		Operations: service.NewOperationsService(db, &logger),
		Reports:    service.NewReportService(db, &logger),
	}

	server := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{db: db, ts: ts, apartment: apt, headers: map[string]string{}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) createGuest(t *testing.T, email string) models.Guest {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/guests", map[string]any{"name": "Ana Souza", "email": email})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var guest models.Guest
	require.NoError(t, json.Unmarshal(body, &guest))
	return guest
}

func (e *testEnv) createBooking(t *testing.T, guestID int64, start, end string) (*http.Response, []byte) {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"apartment_id": e.apartment.ID,
		"guest_id":     guestID,
		"start":        start,
		"end":          end,
		"price":        120000,
	})
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	env.headers[requestIDHeader] = "req-123"
	resp, _ := env.do(t, http.MethodGet, "/api/v1/apartments", nil)
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))
}

func TestListApartments(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	resp, body := env.do(t, http.MethodGet, "/api/v1/apartments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Apartments []models.Apartment `json:"apartments"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Apartments, 1)
	assert.Equal(t, "Apto 101", out.Apartments[0].Name)
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	guest := env.createGuest(t, "ana@example.com")

	resp, body := env.createBooking(t, guest.ID, "2025-02-10", "2025-02-15")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var booking models.Booking
	require.NoError(t, json.Unmarshal(body, &booking))
	assert.Equal(t, models.StatusConfirmed, booking.Status)

	t.Run("overlap is a conflict listing the blocker", func(t *testing.T) {
		resp, body := env.createBooking(t, guest.ID, "2025-02-14", "2025-02-16")
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		var out errorBody
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, []int64{booking.ID}, out.ConflictingBookingIDs)
	})

	t.Run("abutting stay is accepted", func(t *testing.T) {
		resp, body := env.createBooking(t, guest.ID, "2025-02-15", "2025-02-18")
		assert.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	})

	t.Run("bad input", func(t *testing.T) {
		resp, _ := env.createBooking(t, guest.ID, "2025-02-20", "2025-02-20")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, _ = env.createBooking(t, guest.ID, "20/02/2025", "2025-02-22")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{"unknown": 1})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, _ = env.createBooking(t, 999, "2025-03-01", "2025-03-02")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	path := fmt.Sprintf("/api/v1/bookings/%d", booking.ID)
	resp, body = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"origin":"direct"`)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/bookings/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/bookings/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, path+"/reschedule", map[string]any{"start": "2025-02-09", "end": "2025-02-14"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodPost, path+"/price", map[string]any{"price": 99000})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &booking))
	assert.Equal(t, int64(99000), booking.Price)

	resp, body = env.do(t, http.MethodPost, path+"/status", map[string]any{"status": "checked_in"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = env.do(t, http.MethodPost, path+"/status", map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, path+"/status", map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/guests/%d/bookings", guest.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), fmt.Sprintf(`"id":%d`, booking.ID))
}

func TestCalendar(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	guest := env.createGuest(t, "ana@example.com")
	resp, _ := env.createBooking(t, guest.ID, "2025-02-10", "2025-02-15")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	path := fmt.Sprintf("/api/v1/apartments/%d/calendar", env.apartment.ID)
	resp, body := env.do(t, http.MethodGet, path+"?from=2025-02-01&to=2025-03-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Bookings []struct {
			ID     int64          `json:"id"`
			Origin models.Channel `json:"origin"`
		} `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Bookings, 1)
	assert.Equal(t, models.ChannelDirect, out.Bookings[0].Origin)

	resp, _ = env.do(t, http.MethodGet, path+"?from=2025-02-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/apartments/999/calendar?from=2025-02-01&to=2025-03-01", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncEndpoint(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	ctx := context.Background()
	integration := &models.Integration{Channel: models.ChannelAirbnb, Label: "Airbnb", IsActive: true}
	require.NoError(t, env.db.CreateIntegration(ctx, integration))
	require.NoError(t, env.db.CreateMapping(ctx, &models.ApartmentMapping{
		IntegrationID: integration.ID, ApartmentID: env.apartment.ID, ExternalListingID: "L-101",
	}))

	batch := map[string]any{"records": []map[string]any{{
		"external_id": "HM1",
		"listing_id":  "L-101",
		"guest":       map[string]any{"name": "Carla", "email": "carla@example.com"},
		"start":       "2025-02-01",
		"end":         "2025-02-05",
		"price":       80000,
		"host_notes":  "fields the feed adds are kept in the raw payload",
	}}}
	path := fmt.Sprintf("/api/v1/integrations/%d/sync", integration.ID)

	resp, body := env.do(t, http.MethodPost, path, batch)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var result service.SyncResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, service.SyncSummary{Created: 1}, result.Summary)

	resp, body = env.do(t, http.MethodPost, path, batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, service.SyncSummary{Skipped: 1}, result.Summary)

	link, err := env.db.GetSyncRecord(ctx, models.ChannelAirbnb, "HM1")
	require.NoError(t, err)
	assert.Contains(t, link.RawPayload, "host_notes")

	bad := map[string]any{"records": []map[string]any{{"external_id": "HM2", "start": "tomorrow", "end": "2025-02-05"}}}
	resp, _ = env.do(t, http.MethodPost, path, bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/integrations/999/sync", map[string]any{"records": []any{}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOperationsEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	resp, body := env.do(t, http.MethodPost, "/api/v1/expenses", map[string]any{
		"description": "Conta de luz", "amount": 25000, "date": "2025-02-03", "category": "utilities",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var expense models.Expense
	require.NoError(t, json.Unmarshal(body, &expense))

	resp, _ = env.do(t, http.MethodPost, "/api/v1/expenses", map[string]any{"description": "x", "amount": -1, "date": "2025-02-03"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/expenses/%d", expense.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/expenses/%d", expense.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"apartment_id": env.apartment.ID, "title": "Limpeza", "date": "2025-02-05", "kind": "cleaning",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var task models.MaintenanceTask
	require.NoError(t, json.Unmarshal(body, &task))
	assert.Equal(t, models.TaskPending, task.Status)

	resp, body = env.do(t, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Limpeza")

	statusPath := fmt.Sprintf("/api/v1/tasks/%d/status", task.ID)
	resp, _ = env.do(t, http.MethodPost, statusPath, map[string]any{"status": "done"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, statusPath, map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	guest := env.createGuest(t, "ana@example.com")
	resp, _ := env.createBooking(t, guest.ID, "2025-01-10", "2025-01-14")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/v1/reports/financial?from=2025-01-01&to=2025-02-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rep struct {
		Revenue       int64   `json:"revenue"`
		OccupancyRate float64 `json:"occupancy_rate"`
	}
	require.NoError(t, json.Unmarshal(body, &rep))
	assert.Equal(t, int64(120000), rep.Revenue)
	assert.InDelta(t, 4.0/31*100, rep.OccupancyRate, 0.001)

	resp, body = env.do(t, http.MethodGet, "/api/v1/reports/financial?from=2025-01-01&to=2025-02-01&format=xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "relatorio_2025-01-01_2025-02-01.xlsx")
	assert.Equal(t, "PK", string(body[:2]))

	resp, _ = env.do(t, http.MethodGet, "/api/v1/reports/financial?from=2025-02-01&to=2025-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/reports/financial?apartment_id=999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"apartments"`)
}
