package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/config"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/metrics"
	"github.com/thiagoooop/morada-de-praia/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
	maxSyncBodySize = 8 << 20
)

// Services is everything the HTTP API drives.
type Services struct {
	Apartments *service.ApartmentService
	Guests     *service.GuestService
	Bookings   *service.BookingService
	Reconciler *service.ReconcileService
	Operations *service.OperationsService
	Reports    *service.ReportService
}

// HTTPServer exposes the reservation core over JSON.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	auth   *HTTPAuth
	mux    *http.ServeMux
	server *http.Server
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:    cfg,
		svc:    svc,
		auth:   NewHTTPAuth(cfg),
		mux:    http.NewServeMux(),
		logger: base,
	}
	srv.routes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.handle("GET /api/v1/apartments", permReadBookings, s.handleListApartments)
	s.handle("GET /api/v1/apartments/{id}/calendar", permReadBookings, s.handleCalendar)

	s.handle("POST /api/v1/guests", permWriteBookings, s.handleCreateGuest)
	s.handle("GET /api/v1/guests", permReadBookings, s.handleListGuests)
	s.handle("GET /api/v1/guests/{id}/bookings", permReadBookings, s.handleGuestHistory)

	s.handle("POST /api/v1/bookings", permWriteBookings, s.handleCreateBooking)
	s.handle("GET /api/v1/bookings/{id}", permReadBookings, s.handleGetBooking)
	s.handle("POST /api/v1/bookings/{id}/status", permWriteBookings, s.handleTransition)
	s.handle("POST /api/v1/bookings/{id}/reschedule", permWriteBookings, s.handleReschedule)
	s.handle("POST /api/v1/bookings/{id}/price", permWriteBookings, s.handleReprice)

	s.handle("POST /api/v1/integrations/{id}/sync", permWriteSync, s.handleSync)

	s.handle("POST /api/v1/expenses", permWriteOperations, s.handleCreateExpense)
	s.handle("DELETE /api/v1/expenses/{id}", permWriteOperations, s.handleDeleteExpense)
	s.handle("GET /api/v1/tasks", permReadBookings, s.handleListTasks)
	s.handle("POST /api/v1/tasks", permWriteOperations, s.handleCreateTask)
	s.handle("POST /api/v1/tasks/{id}/status", permWriteOperations, s.handleTaskStatus)

	s.handle("GET /api/v1/reports/financial", permReadReports, s.handleFinancialReport)
	s.handle("GET /api/v1/dashboard", permReadReports, s.handleDashboard)
}

// handle registers an authenticated route and counts its responses under the
// route pattern.
func (s *HTTPServer) handle(pattern, permission string, h http.HandlerFunc) {
	guarded := s.auth.Require(permission, h)
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		guarded.ServeHTTP(recorder, r)
		metrics.IncHTTP(pattern, recorder.status)
	}))
}

// Handler is the full middleware chain; tests serve it through httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error                 string  `json:"error"`
	ConflictingBookingIDs []int64 `json:"conflicting_booking_ids,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorBody{Error: message})
}

// writeServiceError maps domain errors to status codes; anything unknown is
// logged and reported as a 500 without details.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	if statusCode == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, statusCode, "internal error")
		return
	}
	writeJSON(w, statusCode, errorBody{Error: err.Error(), ConflictingBookingIDs: domain.ConflictingIDs(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnmappedListing):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOverlapConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrBookingClosed),
		errors.Is(err, domain.ErrApartmentInactive),
		errors.Is(err, domain.ErrIntegrationInactive),
		errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, domain.ErrInvalidInput)
	}
	return id, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
