package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
)

func TestScanFreeSlotsOpenWindow(t *testing.T) {
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	slots := scanFreeSlots(start, end, time.Hour, nil)

	// 9:00, 9:30 and 10:00 all fit a one-hour slot before 11:00.
	assert.Len(t, slots, 3)
	assert.Contains(t, slots[0], "09:00")
}

func TestScanFreeSlotsRespectsEveryCalendarsBusyBlocks(t *testing.T) {
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	// One block from the organizer, one from an attendee; a slot must
	// clear both.
	busy := []*calendar.TimePeriod{
		{Start: "2026-04-01T09:00:00Z", End: "2026-04-01T10:00:00Z"},
		{Start: "2026-04-01T11:00:00Z", End: "2026-04-01T11:30:00Z"},
	}

	slots := scanFreeSlots(start, end, time.Hour, busy)

	require.Len(t, slots, 1)
	assert.Contains(t, slots[0], "10:00")
}

func TestScanFreeSlotsNoRoom(t *testing.T) {
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	busy := []*calendar.TimePeriod{
		{Start: "2026-04-01T09:30:00Z", End: "2026-04-01T09:45:00Z"},
	}

	slots := scanFreeSlots(start, end, time.Hour, busy)
	assert.Empty(t, slots)
}

func TestScanFreeSlotsSkipsUnparseablePeriods(t *testing.T) {
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	busy := []*calendar.TimePeriod{{Start: "not-a-time", End: "also-not"}}

	slots := scanFreeSlots(start, end, time.Hour, busy)
	assert.Len(t, slots, 1)
}
