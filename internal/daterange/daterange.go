// Package daterange models half-open stay ranges [Start, End) measured in nights.
package daterange

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the wire and storage format for calendar dates.
const Layout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid date range: end must be after start")

// Range is a half-open interval of calendar days. End is the checkout day and is
// not occupied.
type Range struct {
	Start time.Time
	End   time.Time
}

// New normalizes both bounds to UTC midnight and validates End > Start.
func New(start, end time.Time) (Range, error) {
	r := Range{Start: Day(start), End: Day(end)}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// MustNew is New for literals in tests and fixtures.
func MustNew(start, end time.Time) Range {
	r, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// Parse builds a range from two YYYY-MM-DD strings.
func Parse(start, end string) (Range, error) {
	s, err := ParseDay(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseDay(end)
	if err != nil {
		return Range{}, err
	}
	return New(s, e)
}

// ParseDay parses a YYYY-MM-DD date into UTC midnight.
func ParseDay(raw string) (time.Time, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r Range) Validate() error {
	if !r.End.After(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Nights is the number of nights in the range.
func (r Range) Nights() int {
	if !r.End.After(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Overlaps reports whether two half-open ranges share at least one night.
// Back-to-back ranges (one ends the day the other starts) do not overlap.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether the night starting at day t is inside the range.
func (r Range) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.Start) && d.Before(r.End)
}

// Intersect clips r to other. The second result is false when they do not overlap.
func (r Range) Intersect(other Range) (Range, bool) {
	if !r.Overlaps(other) {
		return Range{}, false
	}
	start, end := r.Start, r.End
	if other.Start.After(start) {
		start = other.Start
	}
	if other.End.Before(end) {
		end = other.End
	}
	return Range{Start: start, End: end}, true
}

func (r Range) Equal(other Range) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(Layout), r.End.Format(Layout))
}

type rangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(rangeJSON{Start: r.Start.Format(Layout), End: r.End.Format(Layout)})
}

func (r *Range) UnmarshalJSON(data []byte) error {
	var raw rangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Month returns the first day of t's month and the first day of the next month.
func Month(t time.Time) Range {
	d := Day(t)
	start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: start, End: start.AddDate(0, 1, 0)}
}
