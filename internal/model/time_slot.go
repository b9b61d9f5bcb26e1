package model

import "time"

// DefaultMaxOccupancy is the capacity given to generated slots when the
// administrator does not choose one.
const DefaultMaxOccupancy = 3

// MaxRepeatWeeks bounds one generator run: the first week plus at most
// this many repetitions.
const MaxRepeatWeeks = 52

// TimeSlot is a bookable unit of the permanence calendar.  Slots are
// produced by the slot generator in one-hour steps and are unique per
// (date, start time).  This struct corresponds to a row in the
// `time_slots` table.
//
// Fields:
//  ID           – primary key identifier.
//  Date         – calendar date of the slot (UTC midnight).
//  Start        – start time of day.
//  End          – end time of day, strictly after Start.
//  MaxOccupancy – maximum number of active registrations.
//  Active       – whether the slot is open for signup and shown.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type TimeSlot struct {
	ID           uint64    // time_slots.id
	Date         time.Time // time_slots.slot_date
	Start        TimeOfDay // time_slots.start_time
	End          TimeOfDay // time_slots.end_time
	MaxOccupancy int       // time_slots.max_occupancy
	Active       bool      // time_slots.is_active
	CreatedAt    time.Time // time_slots.created_at
	UpdatedAt    time.Time // time_slots.updated_at
}

// Duration returns the length of the slot.
func (s TimeSlot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Second
}

// Validate checks the row-level invariants: start before end and a
// duration of at least one hour.
func (s TimeSlot) Validate() error {
	if s.Start >= s.End {
		return ErrInvalidTimeRange
	}
	if s.End-s.Start < Hour {
		return ErrSlotTooShort
	}
	if s.MaxOccupancy < 1 {
		return ErrInvalidCapacity
	}
	return nil
}

// SlotState is the locked view of a slot used when deciding whether a
// registration may become active.  Repositories build it inside the
// transaction that performs the write.
type SlotState struct {
	Slot        TimeSlot
	ActiveCount int
	Existing    *Registration // the (user, slot) row if any, active or cancelled
}
