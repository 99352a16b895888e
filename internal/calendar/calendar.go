// Package calendar implements the exchange session calendar used to gate
// admissions and to schedule the end-of-day forced close.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// IST is the fallback market timezone when the tz database is unavailable.
var IST = time.FixedZone("IST", 5*3600+30*60)

// defaultHolidays are NSE trading holidays; deployments extend them via config.
var defaultHolidays = []string{
	"2025-02-26", "2025-03-14", "2025-03-31", "2025-04-10", "2025-04-14",
	"2025-04-18", "2025-05-01", "2025-08-15", "2025-08-27", "2025-10-02",
	"2025-10-21", "2025-10-22", "2025-11-05", "2025-12-25",
	"2026-01-26",
}

// TimeOfDay is a wall-clock time in the market timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM): %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustTimeOfDay is ParseTimeOfDay for constants.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns the instant t on the calendar day of ref in loc.
func (t TimeOfDay) On(ref time.Time, loc *time.Location) time.Time {
	local := ref.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Within reports whether now falls in [start, end) on its own day in loc.
func Within(now time.Time, loc *time.Location, start, end TimeOfDay) bool {
	return !now.Before(start.On(now, loc)) && now.Before(end.On(now, loc))
}

// AtOrAfter reports whether now has reached t on its own day in loc.
func AtOrAfter(now time.Time, loc *time.Location, t TimeOfDay) bool {
	return !now.Before(t.On(now, loc))
}

// DayStart returns local midnight of now's market day.
func DayStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// LoadLocation resolves a timezone name, falling back to IST.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return IST
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return IST
	}
	return loc
}
