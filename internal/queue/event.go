// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the log consumer of those messages.
package queue

import "time"

// EventsQueue is the durable queue every scheduler event is published to.
const EventsQueue = "registrations.events"

// Event types.
const (
	RegistrationCreated     = "registration.created"
	RegistrationReactivated = "registration.reactivated"
	RegistrationCancelled   = "registration.cancelled"
	SlotsGenerated          = "slots.generated"
)

// Event is published after a registration or slot change has been
// committed.  It contains enough information for downstream consumers to
// log, notify or feed analytics without querying the primary database.
// Registration events fill the registration and slot fields; slot
// generation events fill Created and Skipped.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	ActorID        uint64    `json:"actor_id"`
	RegistrationID uint64    `json:"registration_id,omitempty"`
	UserID         uint64    `json:"user_id,omitempty"`
	SlotID         uint64    `json:"slot_id,omitempty"`
	SlotDate       string    `json:"slot_date,omitempty"`
	SlotStart      string    `json:"slot_start,omitempty"`
	SlotEnd        string    `json:"slot_end,omitempty"`
	Created        int       `json:"created,omitempty"`
	Skipped        int       `json:"skipped,omitempty"`
}
