package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayOfWeek numbers days Sunday=0 through Saturday=6, matching time.Weekday.
type DayOfWeek int

const (
	Sunday DayOfWeek = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func DayOfWeekFromTime(wd time.Weekday) DayOfWeek {
	return DayOfWeek(wd)
}

func (d DayOfWeek) Valid() bool {
	return d >= Sunday && d <= Saturday
}

func (d DayOfWeek) String() string {
	if !d.Valid() {
		return "invalid(" + strconv.Itoa(int(d)) + ")"
	}
	return time.Weekday(d).String()
}

// WallClockTime is a minute-precision time of day, stored as minutes from
// midnight. It carries no date and no zone; rules pin wall-clock times onto
// concrete dates in the provider's canonical zone.
type WallClockTime int

const minutesPerDay = 24 * 60

// ParseWallClock parses "HH:MM" in 24-hour form.
func ParseWallClock(s string) (WallClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("wall clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("wall clock time %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("wall clock time %q: bad minute", s)
	}
	return WallClockTime(h*60 + m), nil
}

func (t WallClockTime) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t WallClockTime) Minutes() int {
	return int(t)
}

func (t WallClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// OnDate pins the wall-clock time onto the calendar date of day, keeping
// day's location.
func (t WallClockTime) OnDate(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(t)/60, int(t)%60, 0, 0, day.Location())
}
