// Package workhours maps wall-clock intervals to working minutes under a
// per-chat schedule with holidays. All arithmetic is done on instants; local
// time is only used to find each day's working window, so IANA zone rules
// resolve DST transitions.
package workhours

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNoWorkingTime is returned when no working minute exists within the
// search horizon (e.g. an empty schedule).
var ErrNoWorkingTime = errors.New("no working time within horizon")

// horizonDays bounds the deadline search so a schedule with no working days
// cannot loop forever.
const horizonDays = 740

// Window is a working window in minutes since local midnight.
type Window struct {
	Start int
	End   int
}

// Schedule describes when a chat is considered working. Days is keyed by ISO
// weekday (1 = Monday .. 7 = Sunday). Holidays holds YYYY-MM-DD dates in
// Location.
type Schedule struct {
	Location *time.Location
	Days     map[int]Window
	Holidays map[string]struct{}
	Always   bool // 24x7: working time equals wall-clock time
}

// ParseClock parses an "HH:MM" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in clock %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in clock %q", s)
	}
	return hh*60 + mm, nil
}

// ISOWeekday returns the ISO-8601 weekday of t (1 = Monday .. 7 = Sunday).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return wd
}

// window returns the working window of the calendar day containing date, or
// false for non-working days and holidays.
func (s Schedule) window(date time.Time) (Window, bool) {
	w, ok := s.Days[ISOWeekday(date)]
	if !ok {
		return Window{}, false
	}
	if _, holiday := s.Holidays[date.Format("2006-01-02")]; holiday {
		return Window{}, false
	}
	return w, true
}

// windowBounds converts a window on the given local date to instants. Using
// time.Date keeps the wall clock authoritative across DST shifts.
func windowBounds(date time.Time, w Window, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, w.Start/60, w.Start%60, 0, 0, loc)
	end := time.Date(y, m, d, w.End/60, w.End%60, 0, 0, loc)
	return start, end
}

// WorkingMinutes returns the number of working minutes between from and to.
func WorkingMinutes(from, to time.Time, s Schedule) int {
	if !to.After(from) {
		return 0
	}
	if s.Always {
		return int(to.Sub(from) / time.Minute)
	}

	loc := s.Location
	localFrom := from.In(loc)
	localTo := to.In(loc)

	var total time.Duration
	y, m, d := localFrom.Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, loc); !day.After(localTo); day = day.AddDate(0, 0, 1) {
		w, ok := s.window(day)
		if !ok {
			continue
		}
		ws, we := windowBounds(day, w, loc)
		if ws.Before(from) {
			ws = from
		}
		if we.After(to) {
			we = to
		}
		if we.After(ws) {
			total += we.Sub(ws)
		}
	}

	return int(total / time.Minute)
}

// DelayUntilBreach finds the earliest instant B with
// WorkingMinutes(from, B) >= thresholdMinutes and returns B - now clamped to
// zero. The delay (not the deadline) is what goes to the queue, so deferred
// execution lands on the right working minute even when the wall-clock delay
// spans weekends.
func DelayUntilBreach(now, from time.Time, thresholdMinutes int, s Schedule) (time.Duration, error) {
	if thresholdMinutes <= 0 {
		return 0, nil
	}
	if s.Always {
		return clampDelay(from.Add(time.Duration(thresholdMinutes)*time.Minute), now), nil
	}

	loc := s.Location
	localFrom := from.In(loc)
	remaining := time.Duration(thresholdMinutes) * time.Minute

	y, m, d := localFrom.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	for i := 0; i < horizonDays; i++ {
		if w, ok := s.window(day); ok {
			ws, we := windowBounds(day, w, loc)
			if from.After(ws) {
				ws = from
			}
			if we.After(ws) {
				avail := we.Sub(ws)
				if avail >= remaining {
					return clampDelay(ws.Add(remaining), now), nil
				}
				remaining -= avail
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	return 0, ErrNoWorkingTime
}

func clampDelay(deadline, now time.Time) time.Duration {
	delay := deadline.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}
