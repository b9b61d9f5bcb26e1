package model

import "time"

// OpeningHours describes when the market stand is open on one weekday.
// There is at most one row per weekday; weekday 0 is Monday.
type OpeningHours struct {
	ID      uint64    // opening_hours.id
	Weekday int       // opening_hours.weekday (0=Monday … 6=Sunday)
	Opens   TimeOfDay // opening_hours.opens_at
	Closes  TimeOfDay // opening_hours.closes_at
	Active  bool      // opening_hours.is_active
}

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// WeekdayName returns the English day name, or "" when out of range.
func WeekdayName(d int) string {
	if d < 0 || d > 6 {
		return ""
	}
	return weekdayNames[d]
}

// MondayWeekday converts time.Weekday (Sunday=0) to the Monday=0 numbering.
func MondayWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Validate enforces the weekday range and closes after opens.
func (o OpeningHours) Validate() error {
	if o.Weekday < 0 || o.Weekday > 6 {
		return ErrInvalidWeekday
	}
	if o.Closes <= o.Opens {
		return ErrClosingBeforeOpening
	}
	return nil
}
