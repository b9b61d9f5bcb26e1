package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/market-permanences/internal/availability"
	"github.com/iliyamo/market-permanences/internal/model"
)

// SlotView is one slot of the calendar annotated for the viewer.
type SlotView struct {
	Slot   model.TimeSlot
	Status availability.Status
	Mine   *model.Registration // the viewer's registration, active or cancelled

	// Admin week view only.
	Registrations []model.RegistrationDetail
	Candidates    []model.User
}

// DayView groups the slots of one date, ordered by start time.
type DayView struct {
	Date  time.Time
	Slots []SlotView
}

// WeekView is the calendar of one week.
type WeekView struct {
	WeekStart time.Time
	WeekEnd   time.Time
	Prev      time.Time
	Next      time.Time
	Today     time.Time
	Days      []DayView
}

// MyRegistrations is the viewer's own listing with the profile counters.
type MyRegistrations struct {
	Active      []model.RegistrationDetail
	Upcoming    []model.RegistrationDetail
	ActiveCount int
	TotalCount  int
}

// CalendarService builds the read models of the calendar pages.
type CalendarService struct {
	slots  SlotStore
	regs   RegistrationStore
	users  UserStore
	engine *availability.Engine
}

func NewCalendarService(slots SlotStore, regs RegistrationStore, users UserStore, engine *availability.Engine) *CalendarService {
	return &CalendarService{slots: slots, regs: regs, users: users, engine: engine}
}

// ParseWeek reads the week query parameter.  A valid ISO date is used as
// the week start as given; anything else falls back to the Monday of the
// current week.
func ParseWeek(param string, today time.Time) time.Time {
	if param != "" {
		if d, err := model.ParseDate(param); err == nil {
			return d
		}
	}
	return MondayOf(today)
}

// Today returns the current date in the service zone.
func (s *CalendarService) Today() time.Time { return s.engine.Today() }

// Week returns the slots from weekStart to weekStart+6 days grouped by date.
func (s *CalendarService) Week(ctx context.Context, viewer Actor, weekStart time.Time) (WeekView, error) {
	view, slots, counts, err := s.load(ctx, weekStart)
	if err != nil {
		return WeekView{}, err
	}
	mine := map[uint64]model.Registration{}
	if viewer.Authenticated() && len(slots) > 0 {
		mine, err = s.regs.ListForUserInSlots(ctx, viewer.UserID, slotIDs(slots))
		if err != nil {
			return WeekView{}, fmt.Errorf("load viewer registrations: %w", err)
		}
	}
	view.Days = group(slots, func(slot model.TimeSlot) SlotView {
		sv := SlotView{Slot: slot, Status: s.engine.Evaluate(slot, counts[slot.ID])}
		if r, ok := mine[slot.ID]; ok {
			r := r
			sv.Mine = &r
		}
		return sv
	})
	return view, nil
}

// AdminWeek is Week plus, per slot, the active registrations and the active
// users not yet registered.
func (s *CalendarService) AdminWeek(ctx context.Context, actor Actor, weekStart time.Time) (WeekView, error) {
	if err := Authorize(actor, ActionViewAdmin, 0); err != nil {
		return WeekView{}, err
	}
	view, slots, counts, err := s.load(ctx, weekStart)
	if err != nil {
		return WeekView{}, err
	}
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return WeekView{}, fmt.Errorf("list users: %w", err)
	}
	bySlot := map[uint64][]model.RegistrationDetail{}
	if len(slots) > 0 {
		regs, err := s.regs.ListActiveBySlots(ctx, slotIDs(slots))
		if err != nil {
			return WeekView{}, fmt.Errorf("list registrations: %w", err)
		}
		for _, r := range regs {
			bySlot[r.SlotID] = append(bySlot[r.SlotID], r)
		}
	}
	view.Days = group(slots, func(slot model.TimeSlot) SlotView {
		regs := bySlot[slot.ID]
		taken := make(map[uint64]bool, len(regs))
		for _, r := range regs {
			taken[r.UserID] = true
		}
		var candidates []model.User
		for _, u := range users {
			if !taken[u.ID] {
				candidates = append(candidates, u)
			}
		}
		return SlotView{
			Slot:          slot,
			Status:        s.engine.Evaluate(slot, counts[slot.ID]),
			Registrations: regs,
			Candidates:    candidates,
		}
	})
	return view, nil
}

// MyRegistrations lists the viewer's active registrations ordered by slot
// date and start time, the subset that is not over yet and the counters.
func (s *CalendarService) MyRegistrations(ctx context.Context, viewer Actor) (MyRegistrations, error) {
	if !viewer.Authenticated() {
		return MyRegistrations{}, model.ErrForbidden
	}
	active, err := s.regs.ListActiveByUser(ctx, viewer.UserID)
	if err != nil {
		return MyRegistrations{}, fmt.Errorf("list registrations: %w", err)
	}
	nActive, nTotal, err := s.regs.CountByUser(ctx, viewer.UserID)
	if err != nil {
		return MyRegistrations{}, fmt.Errorf("count registrations: %w", err)
	}
	out := MyRegistrations{Active: active, ActiveCount: nActive, TotalCount: nTotal}
	for _, r := range active {
		if !s.engine.IsPast(r.Slot) {
			out.Upcoming = append(out.Upcoming, r)
		}
	}
	return out, nil
}

func (s *CalendarService) load(ctx context.Context, weekStart time.Time) (WeekView, []model.TimeSlot, map[uint64]int, error) {
	start := model.DateOf(weekStart)
	end := start.AddDate(0, 0, 6)
	view := WeekView{
		WeekStart: start,
		WeekEnd:   end,
		Prev:      start.AddDate(0, 0, -7),
		Next:      start.AddDate(0, 0, 7),
		Today:     s.engine.Today(),
	}
	slots, err := s.slots.ListActiveInRange(ctx, start, end)
	if err != nil {
		return WeekView{}, nil, nil, fmt.Errorf("list slots: %w", err)
	}
	counts := map[uint64]int{}
	if len(slots) > 0 {
		counts, err = s.regs.CountActiveBySlots(ctx, slotIDs(slots))
		if err != nil {
			return WeekView{}, nil, nil, fmt.Errorf("count registrations: %w", err)
		}
	}
	return view, slots, counts, nil
}

// group keeps the store order (date, then start time) and starts a new day
// whenever the date changes.
func group(slots []model.TimeSlot, annotate func(model.TimeSlot) SlotView) []DayView {
	var days []DayView
	for _, slot := range slots {
		date := model.DateOf(slot.Date)
		if n := len(days); n == 0 || !days[n-1].Date.Equal(date) {
			days = append(days, DayView{Date: date})
		}
		last := &days[len(days)-1]
		last.Slots = append(last.Slots, annotate(slot))
	}
	return days
}

func slotIDs(slots []model.TimeSlot) []uint64 {
	ids := make([]uint64, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return ids
}
