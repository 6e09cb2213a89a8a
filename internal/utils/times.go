package utils

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// StartOfDay normalizes t to midnight UTC of the same calendar day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59 UTC of the day containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Second)
}

func AddDays(day time.Time, n int) time.Time {
	return StartOfDay(day).AddDate(0, 0, n)
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)).Hours() / 24)
}

func FormatDate(t time.Time) string {
	return StartOfDay(t).Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// LocalDay returns the calendar day of now in loc, expressed as midnight UTC
// so it can be compared with stored tracking dates.
func LocalDay(now time.Time, loc *time.Location) time.Time {
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// HoursLeftInDay counts whole hours until local midnight.
func HoursLeftInDay(now time.Time, loc *time.Location) int {
	l := now.In(loc)
	midnight := time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, loc)
	return int(midnight.Sub(l).Hours())
}

// ClockReached reports whether the local wall time of now is at or past hh:mm.
func ClockReached(now time.Time, loc *time.Location, hhmm string) bool {
	h, m, err := ParseClock(hhmm)
	if err != nil {
		return false
	}
	l := now.In(loc)
	return l.Hour()*60+l.Minute() >= h*60+m
}

// LocalWall returns the wall-clock reading of now in loc as a UTC instant.
// Protection deadlines are stored on the same scale.
func LocalWall(now time.Time, loc *time.Location) time.Time {
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), 0, time.UTC)
}
