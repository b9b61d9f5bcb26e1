package model

import "time"

// MaxCommentLength matches the registrations.comment column, in characters.
const MaxCommentLength = 1000

// Registration records a user's claim on a time slot.  There is at most
// one row per (user, slot); cancelling flips Cancelled and stamps
// CancelledAt, signing up again clears both on the same row.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – registered user.
//  SlotID      – slot the user signed up for.
//  CreatedAt   – when the registration was first created.
//  Cancelled   – whether the registration is cancelled.
//  CancelledAt – when it was cancelled (nil while active).
//  Comment     – optional free text left by the user or the admin.
type Registration struct {
	ID          uint64     // registrations.id
	UserID      uint64     // registrations.user_id
	SlotID      uint64     // registrations.slot_id
	CreatedAt   time.Time  // registrations.created_at
	Cancelled   bool       // registrations.cancelled
	CancelledAt *time.Time // registrations.cancelled_at (nullable)
	Comment     string     // registrations.comment
}

// Active reports whether the registration counts against capacity.
func (r Registration) Active() bool { return !r.Cancelled }

// RegistrationDetail joins a registration with the display fields of its
// user and slot.  It is what listing queries return.
type RegistrationDetail struct {
	Registration
	Username  string
	FirstName string
	LastName  string
	Slot      TimeSlot
}

// DisplayName prefers the full name and falls back to the username.
func (d RegistrationDetail) DisplayName() string {
	if d.FirstName != "" && d.LastName != "" {
		return d.FirstName + " " + d.LastName
	}
	return d.Username
}

// Transition is the result of a committed registration change.
type Transition struct {
	Registration Registration
	Slot         TimeSlot
	Reactivated  bool // a cancelled row was made active again
}
