package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/queue"
)

// GenerateRequest is the admin input of the slot generator.
type GenerateRequest struct {
	StartDate   time.Time
	Start       model.TimeOfDay
	End         model.TimeOfDay
	RepeatWeeks bool
	RepeatUntil time.Time // inclusive; only read when RepeatWeeks is set
	Capacity    int
	Active      bool
}

// GenerateResult counts the units produced by one generator run.
type GenerateResult struct {
	Created int
	Skipped int
}

// Split expands a request into one-hour units.  Each pass covers one
// date; with RepeatWeeks the date advances by seven days until it passes
// RepeatUntil.  A trailing partial hour is dropped.
func Split(req GenerateRequest) ([]model.TimeSlot, error) {
	if req.Start >= req.End {
		return nil, model.ErrInvalidTimeRange
	}
	if req.End-req.Start < model.Hour {
		return nil, model.ErrSlotTooShort
	}
	if req.Capacity < 1 {
		return nil, model.ErrInvalidCapacity
	}
	first := model.DateOf(req.StartDate)
	last := first
	if req.RepeatWeeks {
		last = model.DateOf(req.RepeatUntil)
		if last.Before(first) {
			return nil, model.ErrInvalidRepeatEnd
		}
		if last.After(first.AddDate(0, 0, 7*model.MaxRepeatWeeks)) {
			return nil, model.ErrRepeatTooLong
		}
	}

	var out []model.TimeSlot
	for d := first; !d.After(last); d = d.AddDate(0, 0, 7) {
		for t := req.Start; t+model.Hour <= req.End; t += model.Hour {
			out = append(out, model.TimeSlot{
				Date:         d,
				Start:        t,
				End:          t + model.Hour,
				MaxOccupancy: req.Capacity,
				Active:       req.Active,
			})
		}
	}
	return out, nil
}

// SlotService is the single slot generator used by both admin entry
// points, plus the per-slot overrides and opening hours management.
type SlotService struct {
	slots  SlotStore
	hours  OpeningHoursStore
	hooks  Hooks
	defCap int
}

// NewSlotService builds the generator.  defaultCapacity is used by the
// opening hours path, which has no capacity input.
func NewSlotService(slots SlotStore, hours OpeningHoursStore, defaultCapacity int, hooks Hooks) *SlotService {
	if defaultCapacity < 1 {
		defaultCapacity = model.DefaultMaxOccupancy
	}
	return &SlotService{slots: slots, hours: hours, hooks: hooks.withDefaults(), defCap: defaultCapacity}
}

// DefaultCapacity returns the capacity offered by the admin forms.
func (s *SlotService) DefaultCapacity() int { return s.defCap }

// Generate runs the generator for a form-level range.
func (s *SlotService) Generate(ctx context.Context, actor Actor, req GenerateRequest) (GenerateResult, error) {
	if err := Authorize(actor, ActionManageSlots, 0); err != nil {
		return GenerateResult{}, err
	}
	units, err := Split(req)
	if err != nil {
		return GenerateResult{}, err
	}
	return s.persist(ctx, actor, units)
}

// GenerateFromOpeningHours creates the one-hour units of every active
// opening-hours row for `weeks` weeks starting at the Monday of weekStart.
func (s *SlotService) GenerateFromOpeningHours(ctx context.Context, actor Actor, weekStart time.Time, weeks int) (GenerateResult, error) {
	if err := Authorize(actor, ActionManageSlots, 0); err != nil {
		return GenerateResult{}, err
	}
	if weeks < 1 {
		return GenerateResult{}, model.Invalid("number of weeks must be at least 1")
	}
	if weeks > model.MaxRepeatWeeks+1 {
		return GenerateResult{}, model.ErrRepeatTooLong
	}
	hours, err := s.hours.List(ctx)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("list opening hours: %w", err)
	}
	monday := MondayOf(weekStart)
	last := monday.AddDate(0, 0, 7*(weeks-1))

	var units []model.TimeSlot
	for _, oh := range hours {
		if !oh.Active {
			continue
		}
		day := monday.AddDate(0, 0, oh.Weekday)
		part, err := Split(GenerateRequest{
			StartDate:   day,
			Start:       oh.Opens,
			End:         oh.Closes,
			RepeatWeeks: true,
			RepeatUntil: last.AddDate(0, 0, oh.Weekday),
			Capacity:    s.defCap,
			Active:      true,
		})
		if err != nil {
			logrus.WithField("weekday", oh.Weekday).WithError(err).Warn("opening hours skipped")
			continue
		}
		units = append(units, part...)
	}
	return s.persist(ctx, actor, units)
}

func (s *SlotService) persist(ctx context.Context, actor Actor, units []model.TimeSlot) (GenerateResult, error) {
	if len(units) == 0 {
		return GenerateResult{}, nil
	}
	created, err := s.slots.CreateBatch(ctx, units)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("create slots: %w", err)
	}
	res := GenerateResult{Created: created, Skipped: len(units) - created}
	s.hooks.Metrics.SlotsGenerated(res.Created, res.Skipped)
	if err := s.hooks.Events.Publish(ctx, queue.Event{
		Type:       queue.SlotsGenerated,
		OccurredAt: time.Now().UTC(),
		ActorID:    actor.UserID,
		Created:    res.Created,
		Skipped:    res.Skipped,
	}); err != nil {
		logrus.WithError(err).Warn("publish slots event failed")
	}
	logrus.WithFields(logrus.Fields{"created": res.Created, "skipped": res.Skipped}).Info("slots generated")
	return res, nil
}

// UpdateSlot overrides the capacity and the active flag of one slot.
func (s *SlotService) UpdateSlot(ctx context.Context, actor Actor, id uint64, capacity int, active bool) (model.TimeSlot, error) {
	if err := Authorize(actor, ActionManageSlots, 0); err != nil {
		return model.TimeSlot{}, err
	}
	if capacity < 1 {
		return model.TimeSlot{}, model.ErrInvalidCapacity
	}
	slot, err := s.slots.UpdateSettings(ctx, id, capacity, active)
	if err != nil {
		return model.TimeSlot{}, err
	}
	s.hooks.Cache.InvalidateSlot(ctx, id)
	return slot, nil
}

// OpeningHours lists the configured weekly hours.
func (s *SlotService) OpeningHours(ctx context.Context) ([]model.OpeningHours, error) {
	return s.hours.List(ctx)
}

// SetOpeningHours creates or replaces the hours of one weekday.
func (s *SlotService) SetOpeningHours(ctx context.Context, actor Actor, oh model.OpeningHours) error {
	if err := Authorize(actor, ActionManageSlots, 0); err != nil {
		return err
	}
	if err := oh.Validate(); err != nil {
		return err
	}
	return s.hours.Upsert(ctx, oh)
}

// MondayOf returns the Monday of the week containing d, as a UTC midnight.
func MondayOf(d time.Time) time.Time {
	d = model.DateOf(d)
	return d.AddDate(0, 0, -model.MondayWeekday(d.Weekday()))
}
