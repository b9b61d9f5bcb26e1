// Package availability derives the read-side state of a time slot:
// remaining places, whether it is full and whether it is already over.
// The calendar, the JSON availability endpoint and the registration
// checks all go through the same Engine so they can never disagree.
package availability

import (
	"time"

	"github.com/iliyamo/market-permanences/internal/model"
)

// Status is the derived state of one slot at one instant.
type Status struct {
	Capacity  int  `json:"capacity"`
	Active    int  `json:"active"`
	Remaining int  `json:"remaining"`
	Full      bool `json:"full"`
	Past      bool `json:"past"`
}

// Engine evaluates slots against a zone-aware clock.  Loc is the service
// time zone in which slot dates and times are interpreted; Now defaults
// to time.Now when nil.
type Engine struct {
	Loc *time.Location
	Now func() time.Time
}

// New returns an Engine for the given zone.  A nil zone means UTC.
func New(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{Loc: loc, Now: time.Now}
}

func (e *Engine) now() time.Time {
	loc := e.Loc
	if loc == nil {
		loc = time.UTC
	}
	if e.Now == nil {
		return time.Now().In(loc)
	}
	return e.Now().In(loc)
}

// Today returns the current date in the service zone as a UTC midnight,
// the same representation slot dates use.
func (e *Engine) Today() time.Time {
	return model.DateOf(e.now())
}

// Remaining is max(0, capacity-active).
func Remaining(capacity, active int) int {
	if r := capacity - active; r > 0 {
		return r
	}
	return 0
}

// IsPast reports whether the slot's end has elapsed: the date is before
// today, or it is today and the end time is not after the current time.
func (e *Engine) IsPast(slot model.TimeSlot) bool {
	now := e.now()
	today := model.DateOf(now)
	date := model.DateOf(slot.Date)
	if date.Before(today) {
		return true
	}
	if date.Equal(today) {
		return slot.End <= model.Of(now)
	}
	return false
}

// EndsIn returns how long until the slot is over, or zero once it is
// past.  Until then Past stays false, so anything derived from Evaluate
// must not be reused beyond this duration.
func (e *Engine) EndsIn(slot model.TimeSlot) time.Duration {
	if e.IsPast(slot) {
		return 0
	}
	now := e.now()
	end := slot.End.On(model.DateOf(slot.Date), now.Location())
	if d := end.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Evaluate combines the slot with its active registration count.
func (e *Engine) Evaluate(slot model.TimeSlot, active int) Status {
	rem := Remaining(slot.MaxOccupancy, active)
	return Status{
		Capacity:  slot.MaxOccupancy,
		Active:    active,
		Remaining: rem,
		Full:      rem <= 0,
		Past:      e.IsPast(slot),
	}
}
