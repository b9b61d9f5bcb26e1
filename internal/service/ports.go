// Package service implements the permanence scheduling use cases on top of
// the repositories: the slot generator, the registration lifecycle, the
// calendar views and login.  Storage, events, metrics and the response
// cache are reached through the small interfaces below so that every
// service can be exercised with in-memory fakes.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/queue"
)

// SlotStore persists time slots.
type SlotStore interface {
	GetByID(ctx context.Context, id uint64) (model.TimeSlot, error)
	ListActiveInRange(ctx context.Context, from, to time.Time) ([]model.TimeSlot, error)
	// CreateBatch inserts the slots in one transaction, skipping any whose
	// (date, start) already exists, and returns how many were created.
	CreateBatch(ctx context.Context, slots []model.TimeSlot) (int, error)
	UpdateSettings(ctx context.Context, id uint64, capacity int, active bool) (model.TimeSlot, error)
}

// RegistrationStore persists registrations.  Activate and Cancel run the
// check inside the transaction that holds the slot row lock, so the
// decision and the write are atomic.
type RegistrationStore interface {
	Activate(ctx context.Context, userID, slotID uint64, comment string, check func(model.SlotState) error) (model.Transition, error)
	Cancel(ctx context.Context, id uint64, at time.Time, check func(model.Registration, model.TimeSlot) error) (model.Transition, error)
	CountActiveBySlots(ctx context.Context, slotIDs []uint64) (map[uint64]int, error)
	ListActiveBySlots(ctx context.Context, slotIDs []uint64) ([]model.RegistrationDetail, error)
	ListForUserInSlots(ctx context.Context, userID uint64, slotIDs []uint64) (map[uint64]model.Registration, error)
	ListActiveByUser(ctx context.Context, userID uint64) ([]model.RegistrationDetail, error)
	CountByUser(ctx context.Context, userID uint64) (active, total int, err error)
}

// UserStore reads and creates user accounts.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	ListActive(ctx context.Context) ([]model.User, error)
	Create(ctx context.Context, u model.User) (uint64, error)
}

// OpeningHoursStore persists the weekly opening hours.
type OpeningHoursStore interface {
	List(ctx context.Context) ([]model.OpeningHours, error)
	Upsert(ctx context.Context, oh model.OpeningHours) error
}

// EventPublisher sends domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Recorder receives business counters.
type Recorder interface {
	RegistrationCommitted(kind string)
	RegistrationRejected(reason string)
	RegistrationCancelled()
	SlotsGenerated(created, skipped int)
}

// Invalidator drops cached read models of a slot after it changed.
type Invalidator interface {
	InvalidateSlot(ctx context.Context, slotID uint64)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.Event) error { return nil }

type noopRecorder struct{}

func (noopRecorder) RegistrationCommitted(string) {}
func (noopRecorder) RegistrationRejected(string)  {}
func (noopRecorder) RegistrationCancelled()       {}
func (noopRecorder) SlotsGenerated(int, int)      {}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateSlot(context.Context, uint64) {}

// Hooks bundles the optional side channels of the write services.  Nil
// members are replaced by no-ops.
type Hooks struct {
	Events  EventPublisher
	Metrics Recorder
	Cache   Invalidator
}

func (h Hooks) withDefaults() Hooks {
	if h.Events == nil {
		h.Events = noopPublisher{}
	}
	if h.Metrics == nil {
		h.Metrics = noopRecorder{}
	}
	if h.Cache == nil {
		h.Cache = noopInvalidator{}
	}
	return h
}
