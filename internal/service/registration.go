package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/availability"
	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/queue"
)

// RegistrationService drives the registration lifecycle:
// none → active, active → cancelled and cancelled → active.  Self-service
// and admin variants share the same checks.
type RegistrationService struct {
	slots  SlotStore
	regs   RegistrationStore
	users  UserStore
	engine *availability.Engine
	hooks  Hooks
}

// NewRegistrationService wires the lifecycle to its stores.
func NewRegistrationService(slots SlotStore, regs RegistrationStore, users UserStore, engine *availability.Engine, hooks Hooks) *RegistrationService {
	return &RegistrationService{slots: slots, regs: regs, users: users, engine: engine, hooks: hooks.withDefaults()}
}

// SignUp registers the actor on a slot.
func (s *RegistrationService) SignUp(ctx context.Context, actor Actor, slotID uint64) (model.Transition, error) {
	return s.register(ctx, actor, actor.UserID, slotID, "")
}

// RegisterUser registers targetUserID on a slot on behalf of an
// administrator.
func (s *RegistrationService) RegisterUser(ctx context.Context, actor Actor, targetUserID, slotID uint64, comment string) (model.Transition, error) {
	return s.register(ctx, actor, targetUserID, slotID, comment)
}

func (s *RegistrationService) register(ctx context.Context, actor Actor, userID, slotID uint64, comment string) (model.Transition, error) {
	if err := Authorize(actor, ActionRegister, userID); err != nil {
		s.reject(err)
		return model.Transition{}, err
	}
	if utf8.RuneCountInString(comment) > model.MaxCommentLength {
		s.reject(model.ErrCommentTooLong)
		return model.Transition{}, model.ErrCommentTooLong
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.reject(err)
		return model.Transition{}, err
	}
	if !u.Active {
		s.reject(model.ErrUserNotFound)
		return model.Transition{}, model.ErrUserNotFound
	}

	tr, err := s.regs.Activate(ctx, userID, slotID, comment, s.checkActivation)
	if err != nil {
		s.reject(err)
		return model.Transition{}, fmt.Errorf("register user %d on slot %d: %w", userID, slotID, err)
	}

	kind, evType := "created", queue.RegistrationCreated
	if tr.Reactivated {
		kind, evType = "reactivated", queue.RegistrationReactivated
	}
	s.hooks.Metrics.RegistrationCommitted(kind)
	s.afterCommit(ctx, actor, evType, tr)
	return tr, nil
}

// checkActivation is evaluated under the slot row lock.  Order matters for
// the message shown: an unknown slot first, then a slot that is over, then
// an existing active registration, then capacity.
func (s *RegistrationService) checkActivation(st model.SlotState) error {
	if !st.Slot.Active {
		return model.ErrSlotNotFound
	}
	status := s.engine.Evaluate(st.Slot, st.ActiveCount)
	if status.Past {
		return model.ErrPastSlot
	}
	if st.Existing != nil && st.Existing.Active() {
		return model.ErrAlreadyRegistered
	}
	if status.Full {
		return model.ErrSlotFull
	}
	return nil
}

// Withdraw cancels one of the actor's own registrations.  A registration
// that belongs to someone else is reported as not found.
func (s *RegistrationService) Withdraw(ctx context.Context, actor Actor, registrationID uint64) (model.Transition, error) {
	return s.cancel(ctx, actor, registrationID, true)
}

// CancelRegistration cancels any registration; the policy limits it to
// superusers and the owner.
func (s *RegistrationService) CancelRegistration(ctx context.Context, actor Actor, registrationID uint64) (model.Transition, error) {
	return s.cancel(ctx, actor, registrationID, false)
}

func (s *RegistrationService) cancel(ctx context.Context, actor Actor, id uint64, ownOnly bool) (model.Transition, error) {
	if !actor.Authenticated() {
		return model.Transition{}, model.ErrForbidden
	}
	at := time.Now().UTC()
	if s.engine.Now != nil {
		at = s.engine.Now().UTC()
	}
	tr, err := s.regs.Cancel(ctx, id, at, func(reg model.Registration, slot model.TimeSlot) error {
		if reg.Cancelled {
			return model.ErrRegistrationNotFound
		}
		if ownOnly && reg.UserID != actor.UserID {
			return model.ErrRegistrationNotFound
		}
		if err := Authorize(actor, ActionCancel, reg.UserID); err != nil {
			return err
		}
		if s.engine.IsPast(slot) {
			return model.ErrPastSlot
		}
		return nil
	})
	if err != nil {
		s.reject(err)
		return model.Transition{}, fmt.Errorf("cancel registration %d: %w", id, err)
	}
	s.hooks.Metrics.RegistrationCancelled()
	s.afterCommit(ctx, actor, queue.RegistrationCancelled, tr)
	return tr, nil
}

// Availability returns the derived state of one slot.
func (s *RegistrationService) Availability(ctx context.Context, slotID uint64) (model.TimeSlot, availability.Status, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return model.TimeSlot{}, availability.Status{}, err
	}
	if !slot.Active {
		return model.TimeSlot{}, availability.Status{}, model.ErrSlotNotFound
	}
	counts, err := s.regs.CountActiveBySlots(ctx, []uint64{slotID})
	if err != nil {
		return model.TimeSlot{}, availability.Status{}, err
	}
	return slot, s.engine.Evaluate(slot, counts[slotID]), nil
}

// EndsIn reports how long the availability of slot stays valid without a
// mutation: past flips once the slot is over.
func (s *RegistrationService) EndsIn(slot model.TimeSlot) time.Duration {
	return s.engine.EndsIn(slot)
}

func (s *RegistrationService) afterCommit(ctx context.Context, actor Actor, evType string, tr model.Transition) {
	s.hooks.Cache.InvalidateSlot(ctx, tr.Slot.ID)
	ev := registrationEvent(evType, actor, tr)
	if err := s.hooks.Events.Publish(ctx, ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"event":           evType,
			"registration_id": tr.Registration.ID,
			"slot_id":         tr.Slot.ID,
		}).WithError(err).Warn("publish registration event failed")
	}
}

func (s *RegistrationService) reject(err error) {
	s.hooks.Metrics.RegistrationRejected(RejectionReason(err))
}

// RejectionReason maps a lifecycle error to a short metric label.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrSlotFull):
		return "full"
	case errors.Is(err, model.ErrPastSlot):
		return "past"
	case errors.Is(err, model.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	}
	return "error"
}

func registrationEvent(evType string, actor Actor, tr model.Transition) queue.Event {
	return queue.Event{
		Type:           evType,
		OccurredAt:     time.Now().UTC(),
		ActorID:        actor.UserID,
		RegistrationID: tr.Registration.ID,
		UserID:         tr.Registration.UserID,
		SlotID:         tr.Slot.ID,
		SlotDate:       tr.Slot.Date.Format(model.DateLayout),
		SlotStart:      tr.Slot.Start.String(),
		SlotEnd:        tr.Slot.End.String(),
	}
}
