// Package interval keeps, per apartment, the ranges held by active bookings.
//
// Each apartment has a track sorted by start date. Ranges on a track never
// overlap (Insert and Move refuse to create an overlap), so end dates are sorted
// as well and both bounds of a query resolve with a binary search.
package interval

import (
	"fmt"
	"sort"
	"sync"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
)

// Entry is one booking's occupied range.
type Entry struct {
	BookingID int64
	Range     daterange.Range
}

type Index struct {
	mu     sync.RWMutex
	tracks map[int64][]Entry
	owner  map[int64]int64 // booking id -> apartment id
}

func New() *Index {
	return &Index{
		tracks: make(map[int64][]Entry),
		owner:  make(map[int64]int64),
	}
}

// Query lists the entries on the apartment that overlap r.
func (ix *Index) Query(apartmentID int64, r daterange.Range) []Entry {
	return ix.QueryExcluding(apartmentID, r, 0)
}

// QueryExcluding is Query ignoring one booking, used when moving that booking.
func (ix *Index) QueryExcluding(apartmentID int64, r daterange.Range, excludeID int64) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return overlapping(ix.tracks[apartmentID], r, excludeID)
}

// Insert adds a booking range. It fails with *domain.OverlapConflictError when
// the range collides with another entry on the same apartment.
func (ix *Index) Insert(apartmentID, bookingID int64, r daterange.Range) error {
	if err := r.Validate(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if apt, ok := ix.owner[bookingID]; ok {
		return fmt.Errorf("booking %d already indexed on apartment %d", bookingID, apt)
	}
	track := ix.tracks[apartmentID]
	if hits := overlapping(track, r, 0); len(hits) > 0 {
		return conflict(apartmentID, hits)
	}
	ix.tracks[apartmentID] = insertSorted(track, Entry{BookingID: bookingID, Range: r})
	ix.owner[bookingID] = apartmentID
	return nil
}

// Remove drops a booking's range. It reports whether the booking was indexed.
func (ix *Index) Remove(apartmentID, bookingID int64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.owner[bookingID] != apartmentID {
		return false
	}
	ix.tracks[apartmentID] = removeEntry(ix.tracks[apartmentID], bookingID)
	if len(ix.tracks[apartmentID]) == 0 {
		delete(ix.tracks, apartmentID)
	}
	delete(ix.owner, bookingID)
	return true
}

// Move replaces a booking's range, checking overlap against every other entry.
// On conflict the index is left untouched.
func (ix *Index) Move(apartmentID, bookingID int64, r daterange.Range) error {
	if err := r.Validate(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.owner[bookingID] != apartmentID {
		return fmt.Errorf("booking %d is not indexed on apartment %d", bookingID, apartmentID)
	}
	track := ix.tracks[apartmentID]
	if hits := overlapping(track, r, bookingID); len(hits) > 0 {
		return conflict(apartmentID, hits)
	}
	track = removeEntry(track, bookingID)
	ix.tracks[apartmentID] = insertSorted(track, Entry{BookingID: bookingID, Range: r})
	return nil
}

// Contains reports whether the booking currently holds a range.
func (ix *Index) Contains(bookingID int64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.owner[bookingID]
	return ok
}

// Entries returns a copy of the apartment track in start order.
func (ix *Index) Entries(apartmentID int64) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Entry(nil), ix.tracks[apartmentID]...)
}

// Size is the number of indexed bookings across all apartments.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.owner)
}

func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tracks = make(map[int64][]Entry)
	ix.owner = make(map[int64]int64)
}

func overlapping(track []Entry, r daterange.Range, excludeID int64) []Entry {
	// first entry starting at or after r.End cannot overlap, nor anything after it
	hi := sort.Search(len(track), func(i int) bool {
		return !track[i].Range.Start.Before(r.End)
	})
	// ends are sorted too: skip entries that finish on or before r.Start
	lo := sort.Search(hi, func(i int) bool {
		return track[i].Range.End.After(r.Start)
	})

	var out []Entry
	for _, e := range track[lo:hi] {
		if e.BookingID != excludeID {
			out = append(out, e)
		}
	}
	return out
}

func insertSorted(track []Entry, e Entry) []Entry {
	pos := sort.Search(len(track), func(i int) bool {
		return !track[i].Range.Start.Before(e.Range.Start)
	})
	track = append(track, Entry{})
	copy(track[pos+1:], track[pos:])
	track[pos] = e
	return track
}

func removeEntry(track []Entry, bookingID int64) []Entry {
	for i, e := range track {
		if e.BookingID == bookingID {
			return append(track[:i], track[i+1:]...)
		}
	}
	return track
}

func conflict(apartmentID int64, hits []Entry) error {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.BookingID
	}
	return &domain.OverlapConflictError{ApartmentID: apartmentID, BookingIDs: ids}
}
