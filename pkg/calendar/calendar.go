// Package calendar is the single source of truth for calendar-day decisions in the
// booking locale. Every persisted lesson or availability date is the UTC instant of
// local midnight for its calendar day; nothing outside this package truncates times.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DayLayout is the wire format of a calendar day.
const DayLayout = "2006-01-02"

// Calendar resolves calendar days and times of day in one fixed location.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New loads the IANA timezone and returns a calendar backed by the wall clock.
func New(timezone string) (*Calendar, error) {
	if timezone == "" {
		return nil, fmt.Errorf("timezone required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewWithLocation builds a calendar for an already resolved location.
func NewWithLocation(loc *time.Location, now func() time.Time) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}
}

// WithClock returns a copy using the provided clock.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	clone := *c
	if now != nil {
		clone.now = now
	}
	return &clone
}

// Location exposes the fixed location.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in UTC.
func (c *Calendar) Now() time.Time {
	return c.now().UTC()
}

// Today returns the current calendar day in the fixed location.
func (c *Calendar) Today() string {
	return c.DayOf(c.now())
}

// DayOf returns the calendar day that contains the instant.
func (c *Calendar) DayOf(instant time.Time) string {
	return instant.In(c.loc).Format(DayLayout)
}

// ParseDay validates a calendar day and returns the UTC instant of its local midnight.
func (c *Calendar) ParseDay(day string) (time.Time, error) {
	parsed, err := time.Parse(DayLayout, strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", day)
	}
	year, month, d := parsed.Date()
	return time.Date(year, month, d, 0, 0, 0, 0, c.loc).UTC(), nil
}

// AddDays shifts a calendar day by n days. The arithmetic is on dates, not durations,
// so DST transitions never move the result to a neighbouring day.
func (c *Calendar) AddDays(day string, n int) (string, error) {
	parsed, err := time.Parse(DayLayout, strings.TrimSpace(day))
	if err != nil {
		return "", fmt.Errorf("invalid day %q: expected YYYY-MM-DD", day)
	}
	return parsed.AddDate(0, 0, n).Format(DayLayout), nil
}

// DayBounds returns the half-open UTC range [start, end) covering the calendar day.
func (c *Calendar) DayBounds(day string) (time.Time, time.Time, error) {
	start, err := c.ParseDay(day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	next, _ := c.AddDays(day, 1)
	end, err := c.ParseDay(next)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// RangeBounds returns [start of from, end of to) for an inclusive day range.
func (c *Calendar) RangeBounds(from, to string) (time.Time, time.Time, error) {
	start, _, err := c.DayBounds(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	_, end, err := c.DayBounds(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range end %s is before start %s", to, from)
	}
	return start, end, nil
}

// At returns the UTC instant of a local time of day on the calendar day.
func (c *Calendar) At(day, clock string) (time.Time, error) {
	parsed, err := time.Parse(DayLayout, strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", day)
	}
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	year, month, d := parsed.Date()
	return time.Date(year, month, d, minutes/60, minutes%60, 0, 0, c.loc).UTC(), nil
}

// AtDate is At for a stored date column.
func (c *Calendar) AtDate(date time.Time, clock string) (time.Time, error) {
	return c.At(c.DayOf(date), clock)
}

// HasEnded reports whether the window ending at endTime on the stored date is over.
func (c *Calendar) HasEnded(date time.Time, endTime string) (bool, error) {
	end, err := c.AtDate(date, endTime)
	if err != nil {
		return false, err
	}
	return !c.Now().Before(end), nil
}

// HasStarted reports whether the window starting at startTime on the day has begun.
func (c *Calendar) HasStarted(day, startTime string) (bool, error) {
	start, err := c.At(day, startTime)
	if err != nil {
		return false, err
	}
	return !c.Now().Before(start), nil
}

// IsPastDay reports whether the calendar day is strictly before today.
func (c *Calendar) IsPastDay(day string) (bool, error) {
	if _, err := c.ParseDay(day); err != nil {
		return false, err
	}
	return day < c.Today(), nil
}

// ParseClock converts "HH:MM" (or "H:MM", optionally with ":SS") into minutes after midnight.
func ParseClock(value string) (int, error) {
	raw := strings.TrimSpace(value)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) == 0 || len(parts[0]) > 2 || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || len(parts[2]) != 2 || sec != 0 {
			return 0, fmt.Errorf("invalid time %q: seconds are not supported", value)
		}
	}
	return hour*60 + minute, nil
}

// NormalizeClock returns the canonical zero-padded "HH:MM" form.
func NormalizeClock(value string) (string, error) {
	minutes, err := ParseClock(value)
	if err != nil {
		return "", err
	}
	return FormatClock(minutes), nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// CompareClock returns -1, 0 or 1 ordering two times of day.
func CompareClock(a, b string) (int, error) {
	left, err := ParseClock(a)
	if err != nil {
		return 0, err
	}
	right, err := ParseClock(b)
	if err != nil {
		return 0, err
	}
	switch {
	case left < right:
		return -1, nil
	case left > right:
		return 1, nil
	default:
		return 0, nil
	}
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd string) (bool, error) {
	as, err := ParseClock(aStart)
	if err != nil {
		return false, err
	}
	ae, err := ParseClock(aEnd)
	if err != nil {
		return false, err
	}
	bs, err := ParseClock(bStart)
	if err != nil {
		return false, err
	}
	be, err := ParseClock(bEnd)
	if err != nil {
		return false, err
	}
	return as < be && bs < ae, nil
}
