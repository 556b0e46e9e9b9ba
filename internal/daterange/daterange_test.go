package daterange

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewRejectsEmptyAndInvertedRanges(t *testing.T) {
	_, err := New(day(1, 10), day(1, 10))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = New(day(1, 12), day(1, 10))
	assert.ErrorIs(t, err, ErrInvalidRange)

	r, err := New(day(1, 10).Add(15*time.Hour), day(1, 15))
	require.NoError(t, err)
	assert.Equal(t, day(1, 10), r.Start)
	assert.Equal(t, 5, r.Nights())
}

func TestOverlaps(t *testing.T) {
	base := MustNew(day(1, 10), day(1, 15))

	tests := []struct {
		name  string
		other Range
		want  bool
	}{
		{"inside", MustNew(day(1, 11), day(1, 12)), true},
		{"straddles start", MustNew(day(1, 8), day(1, 11)), true},
		{"straddles end", MustNew(day(1, 12), day(1, 18)), true},
		{"covers", MustNew(day(1, 1), day(1, 31)), true},
		{"abuts after", MustNew(day(1, 15), day(1, 18)), false},
		{"abuts before", MustNew(day(1, 5), day(1, 10)), false},
		{"disjoint", MustNew(day(2, 1), day(2, 3)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base))
		})
	}
}

func TestIntersect(t *testing.T) {
	window := MustNew(day(1, 1), day(2, 1))
	stay := MustNew(day(1, 28), day(2, 4))

	clipped, ok := stay.Intersect(window)
	require.True(t, ok)
	assert.Equal(t, 4, clipped.Nights())

	_, ok = MustNew(day(2, 1), day(2, 4)).Intersect(window)
	assert.False(t, ok)
}

func TestContainsIsHalfOpen(t *testing.T) {
	r := MustNew(day(1, 10), day(1, 15))
	assert.True(t, r.Contains(day(1, 10)))
	assert.True(t, r.Contains(day(1, 14).Add(23*time.Hour)))
	assert.False(t, r.Contains(day(1, 15)))
}

func TestRangeJSON(t *testing.T) {
	r := MustNew(day(3, 1), day(3, 4))
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2025-03-01","end":"2025-03-04"}`, string(data))

	var back Range
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(r))

	assert.Error(t, json.Unmarshal([]byte(`{"start":"2025-03-04","end":"2025-03-01"}`), &back))
}

func TestMonth(t *testing.T) {
	m := Month(day(2, 17))
	assert.Equal(t, day(2, 1), m.Start)
	assert.Equal(t, day(3, 1), m.End)
	assert.Equal(t, 28, m.Nights())
}
