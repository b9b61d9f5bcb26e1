package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/market-permanences/internal/model"
)

// RegistrationRepo provides access to the registrations table.  State
// transitions (Activate, Cancel) run in a transaction that first locks the
// slot row with SELECT ... FOR UPDATE; the capacity count and the write
// therefore see a consistent view and concurrent sign-ups on the same slot
// are serialized.  All timestamps are stored in UTC.
type RegistrationRepo struct {
	db *sql.DB
}

// NewRegistrationRepo returns a new RegistrationRepo bound to the given database.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

const registrationColumns = `id, user_id, slot_id, created_at, cancelled, cancelled_at, comment`

func scanRegistration(row scanner) (model.Registration, error) {
	var r model.Registration
	var cancelledAt sql.NullTime
	if err := row.Scan(&r.ID, &r.UserID, &r.SlotID, &r.CreatedAt, &r.Cancelled, &cancelledAt, &r.Comment); err != nil {
		return model.Registration{}, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		r.CancelledAt = &t
	}
	return r, nil
}

// Activate makes the (user, slot) registration active: it inserts a new
// row, or reactivates a cancelled one.  check is called with the locked
// slot, its active count and the existing row; a non-nil result aborts
// the transaction and is returned unchanged.
func (r *RegistrationRepo) Activate(ctx context.Context, userID, slotID uint64, comment string, check func(model.SlotState) error) (model.Transition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Transition{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	slot, err := lockSlotTx(ctx, tx, slotID)
	if err != nil {
		return model.Transition{}, err
	}
	st := model.SlotState{Slot: slot}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE slot_id = ? AND cancelled = 0`, slotID).Scan(&st.ActiveCount); err != nil {
		return model.Transition{}, err
	}
	existing, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE user_id = ? AND slot_id = ? FOR UPDATE`, userID, slotID))
	switch {
	case err == nil:
		st.Existing = &existing
	case !errors.Is(err, sql.ErrNoRows):
		return model.Transition{}, err
	}

	if err := check(st); err != nil {
		return model.Transition{}, err
	}

	var id uint64
	if st.Existing != nil {
		id = existing.ID
		c := existing.Comment
		if comment != "" {
			c = comment
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE registrations SET cancelled = 0, cancelled_at = NULL, comment = ? WHERE id = ?`, c, id); err != nil {
			return model.Transition{}, err
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (user_id, slot_id, comment) VALUES (?, ?, ?)`, userID, slotID, comment)
		if err != nil {
			if isDuplicateKey(err) {
				return model.Transition{}, model.ErrAlreadyRegistered
			}
			return model.Transition{}, err
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return model.Transition{}, err
		}
		id = uint64(lastID)
	}

	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id))
	if err != nil {
		return model.Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Transition{}, err
	}
	committed = true
	return model.Transition{Registration: reg, Slot: slot, Reactivated: st.Existing != nil}, nil
}

// Cancel marks a registration cancelled and stamps cancelled_at.  The
// slot row is locked before the registration row, in the same order as
// Activate.
func (r *RegistrationRepo) Cancel(ctx context.Context, id uint64, at time.Time, check func(model.Registration, model.TimeSlot) error) (model.Transition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Transition{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var slotID uint64
	if err := tx.QueryRowContext(ctx, `SELECT slot_id FROM registrations WHERE id = ?`, id).Scan(&slotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transition{}, model.ErrRegistrationNotFound
		}
		return model.Transition{}, err
	}
	slot, err := lockSlotTx(ctx, tx, slotID)
	if err != nil {
		return model.Transition{}, err
	}
	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transition{}, model.ErrRegistrationNotFound
		}
		return model.Transition{}, err
	}

	if err := check(reg, slot); err != nil {
		return model.Transition{}, err
	}

	at = at.UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE registrations SET cancelled = 1, cancelled_at = ? WHERE id = ?`, at, id); err != nil {
		return model.Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Transition{}, err
	}
	committed = true
	reg.Cancelled = true
	reg.CancelledAt = &at
	return model.Transition{Registration: reg, Slot: slot}, nil
}

func lockSlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) (model.TimeSlot, error) {
	slot, err := scanSlot(tx.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM time_slots WHERE id = ? FOR UPDATE`, slotID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeSlot{}, model.ErrSlotNotFound
	}
	return slot, err
}

// CountActiveBySlots returns the number of active registrations per slot.
// Slots without any are absent from the map.
func (r *RegistrationRepo) CountActiveBySlots(ctx context.Context, slotIDs []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	in, args := inClause(slotIDs)
	rows, err := r.db.QueryContext(ctx,
		`SELECT slot_id, COUNT(*) FROM registrations WHERE cancelled = 0 AND slot_id IN (`+in+`) GROUP BY slot_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// ListForUserInSlots returns the user's registrations, active or
// cancelled, keyed by slot id.
func (r *RegistrationRepo) ListForUserInSlots(ctx context.Context, userID uint64, slotIDs []uint64) (map[uint64]model.Registration, error) {
	out := make(map[uint64]model.Registration)
	if len(slotIDs) == 0 {
		return out, nil
	}
	in, args := inClause(slotIDs)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE user_id = ? AND slot_id IN (`+in+`)`,
		append([]any{userID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out[reg.SlotID] = reg
	}
	return out, rows.Err()
}

const detailSelect = `SELECT r.id, r.user_id, r.slot_id, r.created_at, r.cancelled, r.cancelled_at, r.comment,
                             u.username, u.first_name, u.last_name,
                             s.id, s.slot_date, s.start_time, s.end_time, s.max_occupancy, s.is_active, s.created_at, s.updated_at
                      FROM registrations r
                      JOIN users u ON u.id = r.user_id
                      JOIN time_slots s ON s.id = r.slot_id`

func (r *RegistrationRepo) listDetails(ctx context.Context, q string, args ...any) ([]model.RegistrationDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RegistrationDetail
	for rows.Next() {
		var d model.RegistrationDetail
		var cancelledAt sql.NullTime
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.SlotID, &d.CreatedAt, &d.Cancelled, &cancelledAt, &d.Comment,
			&d.Username, &d.FirstName, &d.LastName,
			&d.Slot.ID, &d.Slot.Date, &d.Slot.Start, &d.Slot.End, &d.Slot.MaxOccupancy, &d.Slot.Active, &d.Slot.CreatedAt, &d.Slot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if cancelledAt.Valid {
			t := cancelledAt.Time.UTC()
			d.CancelledAt = &t
		}
		d.Slot.Date = model.DateOf(d.Slot.Date)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListActiveBySlots returns the active registrations of the given slots
// with user and slot details, ordered by slot then sign-up time.
func (r *RegistrationRepo) ListActiveBySlots(ctx context.Context, slotIDs []uint64) ([]model.RegistrationDetail, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(slotIDs)
	return r.listDetails(ctx, detailSelect+`
        WHERE r.cancelled = 0 AND r.slot_id IN (`+in+`)
        ORDER BY s.slot_date, s.start_time, r.created_at`, args...)
}

// ListActiveByUser returns the user's active registrations ordered by
// slot date and start time.
func (r *RegistrationRepo) ListActiveByUser(ctx context.Context, userID uint64) ([]model.RegistrationDetail, error) {
	return r.listDetails(ctx, detailSelect+`
        WHERE r.user_id = ? AND r.cancelled = 0
        ORDER BY s.slot_date, s.start_time`, userID)
}

// CountByUser returns the number of active and of all registrations of a user.
func (r *RegistrationRepo) CountByUser(ctx context.Context, userID uint64) (active, total int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cancelled = 0), 0), COUNT(*) FROM registrations WHERE user_id = ?`, userID).Scan(&active, &total)
	return active, total, err
}
