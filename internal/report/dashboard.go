package report

import (
	"sort"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

type EventKind string

const (
	EventCheckIn  EventKind = "check_in"
	EventCheckOut EventKind = "check_out"
)

type DashboardInput struct {
	Today      time.Time
	Apartments []models.Apartment
	// Bookings should cover the current month through the look-ahead horizon.
	Bookings []models.Booking
	Expenses []models.Expense
	Tasks    []models.MaintenanceTask
}

type Dashboard struct {
	Date          time.Time                `json:"date"`
	OccupiedCount int                      `json:"occupied_count"`
	VacantCount   int                      `json:"vacant_count"`
	Apartments    []ApartmentStatus        `json:"apartments"`
	Upcoming      []UpcomingEvent          `json:"upcoming"`
	MonthToDate   Summary                  `json:"month_to_date"`
	PendingTasks  []models.MaintenanceTask `json:"pending_tasks"`
}

type ApartmentStatus struct {
	ApartmentID      int64      `json:"apartment_id"`
	Name             string     `json:"name"`
	Occupied         bool       `json:"occupied"`
	CurrentBookingID int64      `json:"current_booking_id,omitempty"`
	CurrentGuest     string     `json:"current_guest,omitempty"`
	CheckOut         *time.Time `json:"check_out,omitempty"`
	NextBookingID    int64      `json:"next_booking_id,omitempty"`
	NextGuest        string     `json:"next_guest,omitempty"`
	NextCheckIn      *time.Time `json:"next_check_in,omitempty"`
}

type UpcomingEvent struct {
	Kind          EventKind      `json:"kind"`
	Date          time.Time      `json:"date"`
	BookingID     int64          `json:"booking_id"`
	ApartmentID   int64          `json:"apartment_id"`
	ApartmentName string         `json:"apartment_name"`
	GuestName     string         `json:"guest_name"`
	Origin        models.Channel `json:"origin"`
}

type Summary struct {
	Revenue       int64   `json:"revenue"`
	Expenses      int64   `json:"expenses"`
	Profit        int64   `json:"profit"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

// DashboardWindow is the booking range BuildDashboard needs for a given day.
func DashboardWindow(today time.Time) daterange.Range {
	d := daterange.Day(today)
	return daterange.Range{
		Start: daterange.Month(d).Start,
		End:   d.AddDate(0, 0, models.DashboardHorizonDays+1),
	}
}

// BuildDashboard summarizes the fleet as of Today.
func BuildDashboard(in DashboardInput) Dashboard {
	today := daterange.Day(in.Today)
	dash := Dashboard{
		Date:         today,
		Apartments:   []ApartmentStatus{},
		Upcoming:     []UpcomingEvent{},
		PendingTasks: []models.MaintenanceTask{},
	}

	names := make(map[int64]string, len(in.Apartments))
	for _, apt := range in.Apartments {
		names[apt.ID] = apt.Name
	}

	active := make([]models.Booking, 0, len(in.Bookings))
	for _, b := range in.Bookings {
		if b.Status.IsActive() {
			active = append(active, b)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Start.Before(active[j].Start) })

	horizon := today.AddDate(0, 0, models.DashboardHorizonDays)
	for _, apt := range in.Apartments {
		status := ApartmentStatus{ApartmentID: apt.ID, Name: apt.Name}
		for _, b := range active {
			if b.ApartmentID != apt.ID || b.Status == models.StatusCheckedOut {
				continue
			}
			switch {
			case b.Range().Contains(today) && status.CurrentBookingID == 0:
				end := b.End
				status.Occupied = true
				status.CurrentBookingID = b.ID
				status.CurrentGuest = b.GuestName
				status.CheckOut = &end
			case !b.Start.Before(today) && b.Start.Before(horizon) && status.NextBookingID == 0:
				start := b.Start
				status.NextBookingID = b.ID
				status.NextGuest = b.GuestName
				status.NextCheckIn = &start
			}
		}
		if status.Occupied {
			dash.OccupiedCount++
		} else {
			dash.VacantCount++
		}
		dash.Apartments = append(dash.Apartments, status)
	}

	upcoming := daterange.Range{Start: today, End: today.AddDate(0, 0, models.UpcomingEventsDays)}
	for _, b := range active {
		if upcoming.Contains(b.Start) && b.Status == models.StatusConfirmed {
			dash.Upcoming = append(dash.Upcoming, upcomingEvent(EventCheckIn, b.Start, b, names))
		}
		if upcoming.Contains(b.End) && b.Status != models.StatusCheckedOut {
			dash.Upcoming = append(dash.Upcoming, upcomingEvent(EventCheckOut, b.End, b, names))
		}
	}
	sort.SliceStable(dash.Upcoming, func(i, j int) bool {
		a, b := dash.Upcoming[i], dash.Upcoming[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		// check-outs free the apartment before the same day's check-ins
		return a.Kind == EventCheckOut && b.Kind == EventCheckIn
	})

	mtd := Build(Input{
		Window:     daterange.Range{Start: daterange.Month(today).Start, End: today.AddDate(0, 0, 1)},
		Apartments: in.Apartments,
		Bookings:   in.Bookings,
		Expenses:   in.Expenses,
	})
	dash.MonthToDate = Summary{
		Revenue:       mtd.Revenue,
		Expenses:      mtd.Expenses,
		Profit:        mtd.Profit,
		OccupancyRate: mtd.OccupancyRate,
	}

	for _, t := range in.Tasks {
		if t.Status != models.TaskDone {
			dash.PendingTasks = append(dash.PendingTasks, t)
		}
	}
	sort.SliceStable(dash.PendingTasks, func(i, j int) bool {
		return dash.PendingTasks[i].Date.Before(dash.PendingTasks[j].Date)
	})
	return dash
}

func upcomingEvent(kind EventKind, date time.Time, b models.Booking, names map[int64]string) UpcomingEvent {
	return UpcomingEvent{
		Kind:          kind,
		Date:          date,
		BookingID:     b.ID,
		ApartmentID:   b.ApartmentID,
		ApartmentName: names[b.ApartmentID],
		GuestName:     b.GuestName,
		Origin:        b.Origin(),
	}
}
