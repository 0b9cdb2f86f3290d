package workhours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func moscowSchedule(t *testing.T) Schedule {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	return Schedule{
		Location: loc,
		Days: map[int]Window{
			1: {Start: 9 * 60, End: 18 * 60},
			2: {Start: 9 * 60, End: 18 * 60},
			3: {Start: 9 * 60, End: 18 * 60},
			4: {Start: 9 * 60, End: 18 * 60},
			5: {Start: 9 * 60, End: 18 * 60},
		},
		Holidays: map[string]struct{}{},
	}
}

func TestParseClock(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "18:00", want: 1080},
		{in: "00:00", want: 0},
		{in: "23:59", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "nine", wantErr: true},
	} {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestWorkingMinutesWithinOneDay(t *testing.T) {
	s := moscowSchedule(t)
	// Wednesday.
	from := time.Date(2025, 3, 5, 10, 0, 0, 0, s.Location)
	to := time.Date(2025, 3, 5, 11, 30, 0, 0, s.Location)
	require.Equal(t, 90, WorkingMinutes(from, to, s))
}

func TestWorkingMinutesClampsToWindow(t *testing.T) {
	s := moscowSchedule(t)
	// Before open until after close on a Wednesday: only 09:00-18:00 counts.
	from := time.Date(2025, 3, 5, 7, 0, 0, 0, s.Location)
	to := time.Date(2025, 3, 5, 20, 0, 0, 0, s.Location)
	require.Equal(t, 9*60, WorkingMinutes(from, to, s))
}

func TestWorkingMinutesSkipsWeekend(t *testing.T) {
	s := moscowSchedule(t)
	// Friday 17:00 through Monday 10:00: 60 min Friday + 60 min Monday.
	from := time.Date(2025, 3, 7, 17, 0, 0, 0, s.Location)
	to := time.Date(2025, 3, 10, 10, 0, 0, 0, s.Location)
	require.Equal(t, 120, WorkingMinutes(from, to, s))
}

func TestWorkingMinutesSkipsHoliday(t *testing.T) {
	s := moscowSchedule(t)
	s.Holidays["2025-03-10"] = struct{}{}
	// Friday 17:00 through Tuesday 10:00 with Monday a holiday.
	from := time.Date(2025, 3, 7, 17, 0, 0, 0, s.Location)
	to := time.Date(2025, 3, 11, 10, 0, 0, 0, s.Location)
	require.Equal(t, 120, WorkingMinutes(from, to, s))
}

func TestWorkingMinutesOutsideHoursIsZero(t *testing.T) {
	s := moscowSchedule(t)
	// Saturday entirely.
	from := time.Date(2025, 3, 8, 10, 0, 0, 0, s.Location)
	to := time.Date(2025, 3, 8, 16, 0, 0, 0, s.Location)
	require.Equal(t, 0, WorkingMinutes(from, to, s))

	require.Equal(t, 0, WorkingMinutes(to, from, s))
}

func TestWorkingMinutesAdditive(t *testing.T) {
	s := moscowSchedule(t)
	a := time.Date(2025, 3, 7, 16, 0, 0, 0, s.Location)
	b := time.Date(2025, 3, 8, 12, 0, 0, 0, s.Location)
	c := time.Date(2025, 3, 10, 11, 0, 0, 0, s.Location)
	require.Equal(t, WorkingMinutes(a, c, s), WorkingMinutes(a, b, s)+WorkingMinutes(b, c, s))
}

func TestWorkingMinutesAlwaysMatchesWallClock(t *testing.T) {
	s := moscowSchedule(t)
	s.Always = true
	from := time.Date(2025, 3, 7, 17, 0, 0, 0, s.Location)
	to := time.Date(2025, 3, 10, 10, 0, 0, 0, s.Location)
	require.Equal(t, int(to.Sub(from)/time.Minute), WorkingMinutes(from, to, s))
}

func TestDelayUntilBreachSameDay(t *testing.T) {
	s := moscowSchedule(t)
	from := time.Date(2025, 3, 5, 10, 0, 0, 0, s.Location)
	delay, err := DelayUntilBreach(from, from, 60, s)
	require.NoError(t, err)
	require.Equal(t, time.Hour, delay)
}

func TestDelayUntilBreachSpansWeekend(t *testing.T) {
	s := moscowSchedule(t)
	// Friday 17:50 + 60 working minutes: 10 min Friday, then 50 min on
	// Monday, so the deadline is Monday 09:50.
	from := time.Date(2025, 3, 7, 17, 50, 0, 0, s.Location)
	delay, err := DelayUntilBreach(from, from, 60, s)
	require.NoError(t, err)

	deadline := time.Date(2025, 3, 10, 9, 50, 0, 0, s.Location)
	require.Equal(t, deadline.Sub(from), delay)
	require.Equal(t, 60, WorkingMinutes(from, from.Add(delay), s))
}

func TestDelayUntilBreachStartsOutsideHours(t *testing.T) {
	s := moscowSchedule(t)
	// Saturday morning: the whole threshold is consumed on Monday.
	from := time.Date(2025, 3, 8, 11, 0, 0, 0, s.Location)
	delay, err := DelayUntilBreach(from, from, 90, s)
	require.NoError(t, err)

	deadline := time.Date(2025, 3, 10, 10, 30, 0, 0, s.Location)
	require.Equal(t, deadline.Sub(from), delay)
}

func TestDelayUntilBreachClampedWhenPastDeadline(t *testing.T) {
	s := moscowSchedule(t)
	from := time.Date(2025, 3, 5, 10, 0, 0, 0, s.Location)
	now := from.Add(2 * time.Hour)
	delay, err := DelayUntilBreach(now, from, 60, s)
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), delay)
}

func TestDelayUntilBreachAlways(t *testing.T) {
	s := moscowSchedule(t)
	s.Always = true
	from := time.Date(2025, 3, 8, 11, 0, 0, 0, s.Location) // Saturday
	delay, err := DelayUntilBreach(from, from, 60, s)
	require.NoError(t, err)
	require.Equal(t, time.Hour, delay)
}

func TestDelayUntilBreachNoWorkingDays(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	s := Schedule{Location: loc, Days: map[int]Window{}, Holidays: map[string]struct{}{}}
	_, err = DelayUntilBreach(time.Now(), time.Now(), 60, s)
	require.ErrorIs(t, err, ErrNoWorkingTime)
}
