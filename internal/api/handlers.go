package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
	"github.com/thiagoooop/morada-de-praia/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type bookingRequest struct {
	ApartmentID int64  `json:"apartment_id"`
	GuestID     int64  `json:"guest_id"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Price       int64  `json:"price"`
	Note        string `json:"note"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type rescheduleRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type priceRequest struct {
	Price int64 `json:"price"`
}

type guestRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
	Notes    string `json:"notes"`
}

type expenseRequest struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	BookingID   *int64 `json:"booking_id"`
}

type taskRequest struct {
	ApartmentID int64  `json:"apartment_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
}

// syncRequest is one inbound feed batch. Records stay raw so the exact
// payload can be stored next to the parsed snapshot.
type syncRequest struct {
	Records []json.RawMessage `json:"records"`
}

type feedRecord struct {
	Channel    string `json:"channel"`
	ExternalID string `json:"external_id"`
	ListingID  string `json:"listing_id"`
	Guest      struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"guest"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Price     int64  `json:"price"`
	Cancelled bool   `json:"cancelled"`
}

type calendarEntry struct {
	*models.Booking
	Origin models.Channel `json:"origin"`
}

func (s *HTTPServer) handleListApartments(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	apartments, err := s.svc.Apartments.ListApartments(r.Context(), !all)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apartments": nonNil(apartments)})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	window, err := queryRange(r, true)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	bookings, err := s.svc.Bookings.Calendar(r.Context(), id, window)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	entries := make([]calendarEntry, 0, len(bookings))
	for i := range bookings {
		entries = append(entries, calendarEntry{Booking: &bookings[i], Origin: bookings[i].Origin()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"apartment_id": id, "window": window, "bookings": entries})
}

func (s *HTTPServer) handleCreateGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	guest := &models.Guest{Name: req.Name, Email: req.Email, Phone: req.Phone, Document: req.Document, Notes: req.Notes}
	if err := s.svc.Guests.CreateGuest(r.Context(), guest); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, guest)
}

func (s *HTTPServer) handleListGuests(w http.ResponseWriter, r *http.Request) {
	if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
		guest, err := s.svc.Guests.FindByEmail(r.Context(), email)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"guests": []models.Guest{*guest}})
		return
	}

	guests, err := s.svc.Guests.ListGuests(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guests": nonNil(guests)})
}

func (s *HTTPServer) handleGuestHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	bookings, err := s.svc.Guests.History(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guest_id": id, "bookings": nonNil(bookings)})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	window, err := parseRange(req.Start, req.End)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.Create(r.Context(), service.CreateBookingRequest{
		ApartmentID: req.ApartmentID,
		GuestID:     req.GuestID,
		Start:       window.Start,
		End:         window.End,
		Price:       req.Price,
		Note:        req.Note,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarEntry{Booking: booking, Origin: booking.Origin()})
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	target, err := models.ParseBookingStatus(req.Status)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput))
		return
	}

	booking, err := s.svc.Bookings.Transition(r.Context(), id, target)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	window, err := parseRange(req.Start, req.End)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.Reschedule(r.Context(), id, window.Start, window.End)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleReprice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req priceRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.Reprice(r.Context(), id, req.Price)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req syncRequest
	if err := decodeJSON(w, r, maxSyncBodySize, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	records := make([]models.ExternalBooking, 0, len(req.Records))
	for i, raw := range req.Records {
		rec, err := parseFeedRecord(raw)
		if err != nil {
			s.writeServiceError(w, r, fmt.Errorf("record %d: %w", i, err))
			return
		}
		records = append(records, rec)
	}

	result, err := s.svc.Reconciler.Reconcile(r.Context(), id, records)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseFeedRecord(raw json.RawMessage) (models.ExternalBooking, error) {
	var fr feedRecord
	if err := json.Unmarshal(raw, &fr); err != nil {
		return models.ExternalBooking{}, fmt.Errorf("invalid record: %v: %w", err, domain.ErrInvalidInput)
	}

	rec := models.ExternalBooking{
		ExternalID:        fr.ExternalID,
		ExternalListingID: strings.TrimSpace(fr.ListingID),
		Guest:             models.ExternalGuest{Name: fr.Guest.Name, Email: fr.Guest.Email, Phone: fr.Guest.Phone},
		Price:             fr.Price,
		Cancelled:         fr.Cancelled,
		Raw:               raw,
	}
	if fr.Channel != "" {
		channel, err := models.ParseChannel(fr.Channel)
		if err != nil {
			return rec, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
		}
		rec.Channel = channel
	}

	var err error
	if rec.Start, err = daterange.ParseDay(fr.Start); err != nil {
		return rec, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	if rec.End, err = daterange.ParseDay(fr.End); err != nil {
		return rec, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	return rec, nil
}

func (s *HTTPServer) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	date, err := daterange.ParseDay(req.Date)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput))
		return
	}

	expense := &models.Expense{
		Description: req.Description,
		Amount:      req.Amount,
		Date:        date,
		Category:    models.ExpenseCategory(req.Category),
		BookingID:   req.BookingID,
	}
	if err := s.svc.Operations.RecordExpense(r.Context(), expense); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *HTTPServer) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Operations.DeleteExpense(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Operations.ListPendingTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	date, err := daterange.ParseDay(req.Date)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput))
		return
	}

	task := &models.MaintenanceTask{
		ApartmentID: req.ApartmentID,
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		Kind:        models.TaskKind(req.Kind),
	}
	if err := s.svc.Operations.CreateTask(r.Context(), task); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *HTTPServer) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	target, err := models.ParseTaskStatus(req.Status)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput))
		return
	}

	task, err := s.svc.Operations.UpdateTaskStatus(r.Context(), id, target)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleFinancialReport(w http.ResponseWriter, r *http.Request) {
	window, err := queryRange(r, false)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var apartmentID int64
	if raw := r.URL.Query().Get("apartment_id"); raw != "" {
		apartmentID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || apartmentID <= 0 {
			s.writeServiceError(w, r, fmt.Errorf("invalid apartment_id %q: %w", raw, domain.ErrInvalidInput))
			return
		}
	}

	rep, err := s.svc.Reports.Financial(r.Context(), window, apartmentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") != "xlsx" {
		writeJSON(w, http.StatusOK, rep)
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Reports.WriteFinancialXLSX(&buf, rep); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	filename := fmt.Sprintf("relatorio_%s_%s.xlsx",
		rep.Window.Start.Format(daterange.Layout), rep.Window.End.Format(daterange.Layout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.svc.Reports.Dashboard(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// queryRange reads from/to as a half-open date range. When optional and both
// are absent it returns the zero range.
func queryRange(r *http.Request, required bool) (daterange.Range, error) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if !required && from == "" && to == "" {
		return daterange.Range{}, nil
	}
	if from == "" || to == "" {
		return daterange.Range{}, fmt.Errorf("from and to are required: %w", domain.ErrInvalidInput)
	}
	return parseRange(from, to)
}

func parseRange(start, end string) (daterange.Range, error) {
	window, err := daterange.Parse(start, end)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRange) {
			return window, err
		}
		return window, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	return window, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
