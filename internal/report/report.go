// Package report derives financial and occupancy figures from a booking and
// expense snapshot. Nothing here touches storage; every function is pure.
//
// Revenue is attributed to the window containing the booking's check-in day:
// the whole price counts once, in that window, with no pro-rating.
package report

import (
	"sort"
	"strconv"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

const monthLayout = "2006-01"

type Input struct {
	Window     daterange.Range
	Apartments []models.Apartment
	Bookings   []models.Booking
	Expenses   []models.Expense
	// ApartmentID restricts the report to one apartment; zero means the fleet.
	ApartmentID int64
}

type Report struct {
	Window             daterange.Range      `json:"window"`
	ApartmentID        int64                `json:"apartment_id,omitempty"`
	Revenue            int64                `json:"revenue"`
	Expenses           int64                `json:"expenses"`
	Profit             int64                `json:"profit"`
	OccupancyRate      float64              `json:"occupancy_rate"`
	Occupancy          []ApartmentOccupancy `json:"occupancy"`
	ExpensesByCategory []CategoryTotal      `json:"expenses_by_category"`
	RevenueByMonth     []MonthTotal         `json:"revenue_by_month"`
	Transactions       []Transaction        `json:"transactions"`
}

type ApartmentOccupancy struct {
	ApartmentID    int64   `json:"apartment_id"`
	Name           string  `json:"name"`
	OccupiedNights int     `json:"occupied_nights"`
	WindowNights   int     `json:"window_nights"`
	Rate           float64 `json:"rate"`
}

type CategoryTotal struct {
	Category models.ExpenseCategory `json:"category"`
	Total    int64                  `json:"total"`
}

type MonthTotal struct {
	Month string `json:"month"`
	Total int64  `json:"total"`
}

type TransactionKind string

const (
	TransactionRevenue TransactionKind = "revenue"
	TransactionExpense TransactionKind = "expense"
)

type Transaction struct {
	Kind        TransactionKind `json:"kind"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      int64           `json:"amount"`
	ApartmentID int64           `json:"apartment_id,omitempty"`
	BookingID   int64           `json:"booking_id,omitempty"`
	ExpenseID   int64           `json:"expense_id,omitempty"`
}

// Build computes the financial report of the window.
func Build(in Input) Report {
	rep := Report{
		Window:             in.Window,
		ApartmentID:        in.ApartmentID,
		Occupancy:          []ApartmentOccupancy{},
		ExpensesByCategory: []CategoryTotal{},
		Transactions:       []Transaction{},
	}

	monthly := make(map[string]int64)
	for _, b := range in.Bookings {
		if !b.Status.IsActive() || !in.matches(b.ApartmentID) || !in.Window.Contains(b.Start) {
			continue
		}
		rep.Revenue += b.Price
		monthly[b.Start.Format(monthLayout)] += b.Price
		rep.Transactions = append(rep.Transactions, Transaction{
			Kind:        TransactionRevenue,
			Date:        b.Start,
			Description: bookingDescription(b),
			Amount:      b.Price,
			ApartmentID: b.ApartmentID,
			BookingID:   b.ID,
		})
	}
	rep.RevenueByMonth = monthSeries(in.Window, monthly)

	byCategory := make(map[models.ExpenseCategory]int64)
	for _, e := range in.Expenses {
		// unattributed expenses belong to the fleet, not to a single apartment
		if !in.Window.Contains(e.Date) || (in.ApartmentID != 0 && e.ApartmentID != in.ApartmentID) {
			continue
		}
		rep.Expenses += e.Amount
		byCategory[e.Category] += e.Amount
		rep.Transactions = append(rep.Transactions, Transaction{
			Kind:        TransactionExpense,
			Date:        e.Date,
			Description: e.Description,
			Amount:      e.Amount,
			ApartmentID: e.ApartmentID,
			ExpenseID:   e.ID,
		})
	}
	for category, total := range byCategory {
		rep.ExpensesByCategory = append(rep.ExpensesByCategory, CategoryTotal{Category: category, Total: total})
	}
	sort.Slice(rep.ExpensesByCategory, func(i, j int) bool {
		return rep.ExpensesByCategory[i].Category < rep.ExpensesByCategory[j].Category
	})

	rep.Profit = rep.Revenue - rep.Expenses

	windowNights := in.Window.Nights()
	var occupied, capacity int
	for _, apt := range in.Apartments {
		if !in.matches(apt.ID) {
			continue
		}
		nights := OccupiedNights(in.Bookings, apt.ID, in.Window)
		rep.Occupancy = append(rep.Occupancy, ApartmentOccupancy{
			ApartmentID:    apt.ID,
			Name:           apt.Name,
			OccupiedNights: nights,
			WindowNights:   windowNights,
			Rate:           Rate(nights, windowNights),
		})
		occupied += nights
		capacity += windowNights
	}
	rep.OccupancyRate = Rate(occupied, capacity)

	sort.SliceStable(rep.Transactions, func(i, j int) bool {
		return rep.Transactions[i].Date.After(rep.Transactions[j].Date)
	})
	if len(rep.Transactions) > models.RecentTransactionsLimit {
		rep.Transactions = rep.Transactions[:models.RecentTransactionsLimit]
	}
	return rep
}

func (in Input) matches(apartmentID int64) bool {
	return in.ApartmentID == 0 || in.ApartmentID == apartmentID
}

// OccupiedNights counts the nights of the window covered by at least one active
// booking of the apartment.
func OccupiedNights(bookings []models.Booking, apartmentID int64, window daterange.Range) int {
	var clipped []daterange.Range
	for _, b := range bookings {
		if b.ApartmentID != apartmentID || !b.Status.IsActive() {
			continue
		}
		if r, ok := b.Range().Intersect(window); ok {
			clipped = append(clipped, r)
		}
	}
	if len(clipped) == 0 {
		return 0
	}

	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start.Before(clipped[j].Start) })
	nights := 0
	cur := clipped[0]
	for _, r := range clipped[1:] {
		if r.Start.After(cur.End) {
			nights += cur.Nights()
			cur = r
			continue
		}
		if r.End.After(cur.End) {
			cur.End = r.End
		}
	}
	return nights + cur.Nights()
}

// Rate is occupied/total as a percentage clamped to [0, 100].
func Rate(occupied, total int) float64 {
	if total <= 0 || occupied <= 0 {
		return 0
	}
	rate := float64(occupied) / float64(total) * 100
	if rate > 100 {
		return 100
	}
	return rate
}

// monthSeries lists every calendar month the window touches, zero-filled.
func monthSeries(window daterange.Range, totals map[string]int64) []MonthTotal {
	series := []MonthTotal{}
	if window.Validate() != nil {
		return series
	}
	last := window.End.AddDate(0, 0, -1)
	for m := daterange.Month(window.Start).Start; !m.After(last); m = m.AddDate(0, 1, 0) {
		key := m.Format(monthLayout)
		series = append(series, MonthTotal{Month: key, Total: totals[key]})
	}
	return series
}

func bookingDescription(b models.Booking) string {
	desc := "Reserva #" + strconv.FormatInt(b.ID, 10)
	if b.GuestName != "" {
		desc += " - " + b.GuestName
	}
	if origin := b.Origin(); origin != models.ChannelDirect {
		desc += " (" + origin.Label() + ")"
	}
	return desc
}
