package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time without a date, stored as seconds since
// midnight.  It maps to a MySQL TIME column.  The go-sql-driver returns TIME
// values as "HH:MM:SS" text even with parseTime=true, so Scan accepts both
// []byte and string.
type TimeOfDay int

// Hour is the length of one bookable slot.
const Hour TimeOfDay = 3600

// NewTimeOfDay builds a TimeOfDay from hours and minutes.
func NewTimeOfDay(h, m int) TimeOfDay {
	return TimeOfDay(h*3600 + m*60)
}

// ParseTimeOfDay accepts "15:04" and "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

// Clock returns hours, minutes and seconds.
func (t TimeOfDay) Clock() (h, m, s int) {
	v := int(t)
	return v / 3600, (v % 3600) / 60, v % 60
}

// String renders "HH:MM", the format used in templates and forms.
func (t TimeOfDay) String() string {
	h, m, _ := t.Clock()
	return fmt.Sprintf("%02d:%02d", h, m)
}

// On combines the time of day with the calendar date of d in loc.
func (t TimeOfDay) On(d time.Time, loc *time.Location) time.Time {
	h, m, s := t.Clock()
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, loc)
}

// Of extracts the wall-clock part of an instant.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s), nil
}

// Scan implements sql.Scanner.
func (t *TimeOfDay) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	case time.Time:
		*t = Of(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOf truncates t to its calendar date (midnight UTC).  Slot dates are
// carried as UTC midnights so that equality and ordering ignore zones.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateLayout is the ISO date format used by query parameters and SQL.
const DateLayout = "2006-01-02"

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
