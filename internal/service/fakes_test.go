package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/queue"
)

// memStore is an in-memory stand-in for the MySQL repositories.  A single
// mutex plays the role of the slot row lock.
type memStore struct {
	mu      sync.Mutex
	slots   map[uint64]model.TimeSlot
	regs    map[uint64]model.Registration
	users   map[uint64]model.User
	hours   map[int]model.OpeningHours
	nextID  uint64
	batches int
}

func newMemStore() *memStore {
	return &memStore{
		slots: map[uint64]model.TimeSlot{},
		regs:  map[uint64]model.Registration{},
		users: map[uint64]model.User{},
		hours: map[int]model.OpeningHours{},
	}
}

func (m *memStore) id() uint64 { m.nextID++; return m.nextID }

func (m *memStore) addUser(name string, superuser bool) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := model.User{ID: m.id(), Username: name, Superuser: superuser, Active: true}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addSlot(date string, start, end, capacity int) model.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, _ := model.ParseDate(date)
	s := model.TimeSlot{
		ID:           m.id(),
		Date:         d,
		Start:        model.NewTimeOfDay(start, 0),
		End:          model.NewTimeOfDay(end, 0),
		MaxOccupancy: capacity,
		Active:       true,
	}
	m.slots[s.ID] = s
	return s
}

func (m *memStore) reg(id uint64) model.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[id]
}

func (m *memStore) activeCount(slotID uint64) int {
	n := 0
	for _, r := range m.regs {
		if r.SlotID == slotID && !r.Cancelled {
			n++
		}
	}
	return n
}

// slotStore

type memSlots struct{ *memStore }

func (m memSlots) GetByID(_ context.Context, id uint64) (model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return model.TimeSlot{}, model.ErrSlotNotFound
	}
	return s, nil
}

func (m memSlots) ListActiveInRange(_ context.Context, from, to time.Time) ([]model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TimeSlot
	for _, s := range m.slots {
		if s.Active && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
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

func (m memSlots) CreateBatch(_ context.Context, slots []model.TimeSlot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	created := 0
	for _, s := range slots {
		dup := false
		for _, e := range m.slots {
			if e.Date.Equal(s.Date) && e.Start == s.Start {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.ID = m.id()
		m.slots[s.ID] = s
		created++
	}
	return created, nil
}

func (m memSlots) UpdateSettings(_ context.Context, id uint64, capacity int, active bool) (model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return model.TimeSlot{}, model.ErrSlotNotFound
	}
	s.MaxOccupancy, s.Active = capacity, active
	m.slots[id] = s
	return s, nil
}

// registrationStore

type memRegs struct{ *memStore }

func (m memRegs) Activate(_ context.Context, userID, slotID uint64, comment string, check func(model.SlotState) error) (model.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok {
		return model.Transition{}, model.ErrSlotNotFound
	}
	st := model.SlotState{Slot: slot, ActiveCount: m.activeCount(slotID)}
	for _, r := range m.regs {
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
		if comment != "" {
			r.Comment = comment
		}
		m.regs[r.ID] = r
		return model.Transition{Registration: r, Slot: slot, Reactivated: true}, nil
	}
	r := model.Registration{ID: m.id(), UserID: userID, SlotID: slotID, Comment: comment, CreatedAt: time.Now().UTC()}
	m.regs[r.ID] = r
	return model.Transition{Registration: r, Slot: slot}, nil
}

func (m memRegs) Cancel(_ context.Context, id uint64, at time.Time, check func(model.Registration, model.TimeSlot) error) (model.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return model.Transition{}, model.ErrRegistrationNotFound
	}
	slot := m.slots[r.SlotID]
	if err := check(r, slot); err != nil {
		return model.Transition{}, err
	}
	r.Cancelled, r.CancelledAt = true, &at
	m.regs[id] = r
	return model.Transition{Registration: r, Slot: slot}, nil
}

func (m memRegs) CountActiveBySlots(_ context.Context, ids []uint64) (map[uint64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uint64]int{}
	for _, id := range ids {
		if n := m.activeCount(id); n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (m memRegs) detail(r model.Registration) model.RegistrationDetail {
	u := m.users[r.UserID]
	return model.RegistrationDetail{Registration: r, Username: u.Username, Slot: m.slots[r.SlotID]}
}

func (m memRegs) ListActiveBySlots(_ context.Context, ids []uint64) ([]model.RegistrationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.RegistrationDetail
	for _, r := range m.regs {
		if want[r.SlotID] && !r.Cancelled {
			out = append(out, m.detail(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memRegs) ListForUserInSlots(_ context.Context, userID uint64, ids []uint64) (map[uint64]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[uint64]model.Registration{}
	for _, r := range m.regs {
		if r.UserID == userID && want[r.SlotID] {
			out[r.SlotID] = r
		}
	}
	return out, nil
}

func (m memRegs) ListActiveByUser(_ context.Context, userID uint64) ([]model.RegistrationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RegistrationDetail
	for _, r := range m.regs {
		if r.UserID == userID && !r.Cancelled {
			out = append(out, m.detail(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Slot, out[j].Slot
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Start < b.Start
	})
	return out, nil
}

func (m memRegs) CountByUser(_ context.Context, userID uint64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, total := 0, 0
	for _, r := range m.regs {
		if r.UserID == userID {
			total++
			if !r.Cancelled {
				active++
			}
		}
	}
	return active, total, nil
}

// userStore

type memUsers struct{ *memStore }

func (m memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (m memUsers) GetByUsername(_ context.Context, name string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == name {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (m memUsers) ListActive(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		if u.Active {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memUsers) Create(_ context.Context, u model.User) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Username == u.Username {
			return 0, &model.DuplicateError{Reason: "username already taken"}
		}
	}
	u.ID = m.id()
	m.users[u.ID] = u
	return u.ID, nil
}

// openingHoursStore

type memHours struct{ *memStore }

func (m memHours) List(_ context.Context) ([]model.OpeningHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OpeningHours
	for _, h := range m.hours {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (m memHours) Upsert(_ context.Context, oh model.OpeningHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours[oh.Weekday] = oh
	return nil
}

// hooks

type recordingHooks struct {
	mu          sync.Mutex
	events      []queue.Event
	committed   []string
	rejected    []string
	cancelled   int
	invalidated []uint64
	generated   [2]int
}

func (h *recordingHooks) Publish(_ context.Context, ev queue.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHooks) RegistrationCommitted(kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.committed = append(h.committed, kind)
}

func (h *recordingHooks) RegistrationRejected(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, reason)
}

func (h *recordingHooks) RegistrationCancelled() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled++
}

func (h *recordingHooks) SlotsGenerated(created, skipped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generated[0] += created
	h.generated[1] += skipped
}

func (h *recordingHooks) InvalidateSlot(_ context.Context, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidated = append(h.invalidated, id)
}

func (h *recordingHooks) hooks() Hooks {
	return Hooks{Events: h, Metrics: h, Cache: h}
}
