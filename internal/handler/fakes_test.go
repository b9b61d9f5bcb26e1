package handler

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/market-permanences/internal/model"
)

// store is a small in-memory backend for the services under test.
type store struct {
	mu     sync.Mutex
	slots  map[uint64]model.TimeSlot
	regs   map[uint64]model.Registration
	users  map[uint64]model.User
	hours  map[int]model.OpeningHours
	nextID uint64
}

func newStore() *store {
	return &store{
		slots: map[uint64]model.TimeSlot{},
		regs:  map[uint64]model.Registration{},
		users: map[uint64]model.User{},
		hours: map[int]model.OpeningHours{},
	}
}

func (s *store) id() uint64 { s.nextID++; return s.nextID }

func (s *store) addUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID, u.Active = s.id(), true
	s.users[u.ID] = u
	return u
}

func (s *store) addSlot(date string, startHour, capacity int) model.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, _ := model.ParseDate(date)
	sl := model.TimeSlot{
		ID: s.id(), Date: d,
		Start: model.NewTimeOfDay(startHour, 0), End: model.NewTimeOfDay(startHour+1, 0),
		MaxOccupancy: capacity, Active: true,
	}
	s.slots[sl.ID] = sl
	return sl
}

func (s *store) addReg(userID, slotID uint64) model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := model.Registration{ID: s.id(), UserID: userID, SlotID: slotID}
	s.regs[r.ID] = r
	return r
}

func (s *store) active(slotID uint64) int {
	n := 0
	for _, r := range s.regs {
		if r.SlotID == slotID && !r.Cancelled {
			n++
		}
	}
	return n
}

func (s *store) GetByID(_ context.Context, id uint64) (model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[id]; ok {
		return sl, nil
	}
	return model.TimeSlot{}, model.ErrSlotNotFound
}

func (s *store) ListActiveInRange(_ context.Context, from, to time.Time) ([]model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TimeSlot
	for _, sl := range s.slots {
		if sl.Active && !sl.Date.Before(from) && !sl.Date.After(to) {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (s *store) CreateBatch(_ context.Context, slots []model.TimeSlot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
next:
	for _, sl := range slots {
		for _, e := range s.slots {
			if e.Date.Equal(sl.Date) && e.Start == sl.Start {
				continue next
			}
		}
		sl.ID = s.id()
		s.slots[sl.ID] = sl
		created++
	}
	return created, nil
}

func (s *store) UpdateSettings(_ context.Context, id uint64, capacity int, active bool) (model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return model.TimeSlot{}, model.ErrSlotNotFound
	}
	sl.MaxOccupancy, sl.Active = capacity, active
	s.slots[id] = sl
	return sl, nil
}

type regStore struct{ *store }

func (s regStore) Activate(_ context.Context, userID, slotID uint64, comment string, check func(model.SlotState) error) (model.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[slotID]
	if !ok {
		return model.Transition{}, model.ErrSlotNotFound
	}
	st := model.SlotState{Slot: sl, ActiveCount: s.active(slotID)}
	for _, r := range s.regs {
		if r.UserID == userID && r.SlotID == slotID {
			r := r
			st.Existing = &r
		}
	}
	if err := check(st); err != nil {
		return model.Transition{}, err
	}
	if st.Existing != nil {
		r := *st.Existing
		r.Cancelled, r.CancelledAt = false, nil
		s.regs[r.ID] = r
		return model.Transition{Registration: r, Slot: sl, Reactivated: true}, nil
	}
	r := model.Registration{ID: s.id(), UserID: userID, SlotID: slotID, Comment: comment}
	s.regs[r.ID] = r
	return model.Transition{Registration: r, Slot: sl}, nil
}

func (s regStore) Cancel(_ context.Context, id uint64, at time.Time, check func(model.Registration, model.TimeSlot) error) (model.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return model.Transition{}, model.ErrRegistrationNotFound
	}
	sl := s.slots[r.SlotID]
	if err := check(r, sl); err != nil {
		return model.Transition{}, err
	}
	r.Cancelled, r.CancelledAt = true, &at
	s.regs[id] = r
	return model.Transition{Registration: r, Slot: sl}, nil
}

func (s regStore) CountActiveBySlots(_ context.Context, ids []uint64) (map[uint64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uint64]int{}
	for _, id := range ids {
		out[id] = s.active(id)
	}
	return out, nil
}

func (s regStore) list(keep func(model.Registration) bool) []model.RegistrationDetail {
	var out []model.RegistrationDetail
	for _, r := range s.regs {
		if keep(r) {
			u := s.users[r.UserID]
			out = append(out, model.RegistrationDetail{
				Registration: r, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName,
				Slot: s.slots[r.SlotID],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s regStore) ListActiveBySlots(_ context.Context, ids []uint64) ([]model.RegistrationDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return s.list(func(r model.Registration) bool { return want[r.SlotID] && !r.Cancelled }), nil
}

func (s regStore) ListForUserInSlots(_ context.Context, userID uint64, ids []uint64) (map[uint64]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uint64]model.Registration{}
	for _, id := range ids {
		for _, r := range s.regs {
			if r.UserID == userID && r.SlotID == id {
				out[id] = r
			}
		}
	}
	return out, nil
}

func (s regStore) ListActiveByUser(_ context.Context, userID uint64) ([]model.RegistrationDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(r model.Registration) bool { return r.UserID == userID && !r.Cancelled }), nil
}

func (s regStore) CountByUser(_ context.Context, userID uint64) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, total := 0, 0
	for _, r := range s.regs {
		if r.UserID == userID {
			total++
			if !r.Cancelled {
				active++
			}
		}
	}
	return active, total, nil
}

type userStore struct{ *store }

func (s userStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (s userStore) GetByUsername(_ context.Context, name string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == name {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s userStore) ListActive(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s userStore) Create(context.Context, model.User) (uint64, error) { return 0, nil }

type hoursStore struct{ *store }

func (s hoursStore) List(context.Context) ([]model.OpeningHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OpeningHours
	for _, h := range s.hours {
		out = append(out, h)
	}
	return out, nil
}

func (s hoursStore) Upsert(_ context.Context, oh model.OpeningHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours[oh.Weekday] = oh
	return nil
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }
