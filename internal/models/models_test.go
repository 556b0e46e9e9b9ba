package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatusTransitions(t *testing.T) {
	all := []BookingStatus{StatusConfirmed, StatusCheckedIn, StatusCheckedOut, StatusCancelled}
	allowed := map[BookingStatus]map[BookingStatus]bool{
		StatusConfirmed: {StatusCheckedIn: true, StatusCancelled: true},
		StatusCheckedIn: {StatusCheckedOut: true, StatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestBookingStatusActive(t *testing.T) {
	assert.True(t, StatusConfirmed.IsActive())
	assert.True(t, StatusCheckedIn.IsActive())
	assert.True(t, StatusCheckedOut.IsActive())
	assert.False(t, StatusCancelled.IsActive())

	assert.True(t, StatusCheckedIn.Reschedulable())
	assert.False(t, StatusCheckedOut.Reschedulable())
}

func TestParseBookingStatus(t *testing.T) {
	s, err := ParseBookingStatus(" Checked_In ")
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, s)

	_, err = ParseBookingStatus("pending")
	assert.Error(t, err)
}

func TestBookingOrigin(t *testing.T) {
	b := &Booking{}
	assert.Equal(t, ChannelDirect, b.Origin())
	assert.Equal(t, "Direct", b.Origin().Label())

	b.Sync = &SyncRecord{Channel: ChannelAirbnb}
	assert.Equal(t, ChannelAirbnb, b.Origin())
	assert.Equal(t, "Airbnb", b.Origin().Label())

	b.Sync.Channel = ChannelBookingCom
	assert.Equal(t, "Booking.com", b.Origin().Label())
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("booking.com")
	require.NoError(t, err)
	assert.Equal(t, ChannelBookingCom, c)

	_, err = ParseChannel("direct")
	assert.Error(t, err)
}

func TestGuestRepeatAndEmail(t *testing.T) {
	assert.False(t, Guest{BookingCount: 1}.IsRepeat())
	assert.True(t, Guest{BookingCount: 2}.IsRepeat())
	assert.Equal(t, "ana@example.com", NormalizeEmail("  Ana@Example.COM "))
}

func TestTaskStatusTransitions(t *testing.T) {
	assert.True(t, TaskPending.CanTransitionTo(TaskInProgress))
	assert.True(t, TaskInProgress.CanTransitionTo(TaskDone))
	assert.False(t, TaskDone.CanTransitionTo(TaskPending))
	assert.False(t, TaskInProgress.CanTransitionTo(TaskPending))
}

func TestParseExpenseCategory(t *testing.T) {
	c, err := ParseExpenseCategory("")
	require.NoError(t, err)
	assert.Equal(t, ExpenseOther, c)

	_, err = ParseExpenseCategory("fuel")
	assert.Error(t, err)
}
