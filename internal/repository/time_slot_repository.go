package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/market-permanences/internal/model"
)

// SlotRepo provides access to the time_slots table.  Dates are bound as
// "YYYY-MM-DD" strings and times of day through model.TimeOfDay so that no
// session time zone can shift them.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotColumns = `id, slot_date, start_time, end_time, max_occupancy, is_active, created_at, updated_at`

func scanSlot(row scanner) (model.TimeSlot, error) {
	var s model.TimeSlot
	err := row.Scan(&s.ID, &s.Date, &s.Start, &s.End, &s.MaxOccupancy, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.TimeSlot{}, err
	}
	s.Date = model.DateOf(s.Date)
	return s, nil
}

// GetByID fetches a slot by id regardless of its active flag.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (model.TimeSlot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeSlot{}, model.ErrSlotNotFound
	}
	return s, err
}

// ListActiveInRange returns the active slots whose date lies in [from, to],
// ordered by date then start time.
func (r *SlotRepo) ListActiveInRange(ctx context.Context, from, to time.Time) ([]model.TimeSlot, error) {
	const q = `SELECT ` + slotColumns + ` FROM time_slots
               WHERE is_active = 1 AND slot_date BETWEEN ? AND ?
               ORDER BY slot_date, start_time`
	rows, err := r.db.QueryContext(ctx, q, from.Format(model.DateLayout), to.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateBatch inserts the given slots in one transaction.  Rows whose
// (slot_date, start_time) already exist are skipped by INSERT IGNORE; the
// number of rows actually inserted is returned.
func (r *SlotRepo) CreateBatch(ctx context.Context, slots []model.TimeSlot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT IGNORE INTO time_slots (slot_date, start_time, end_time, max_occupancy, is_active) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	created := 0
	for _, s := range slots {
		res, err := stmt.ExecContext(ctx, s.Date.Format(model.DateLayout), s.Start, s.End, s.MaxOccupancy, s.Active)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		created += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return created, nil
}

// UpdateSettings overrides capacity and the active flag, then returns the
// stored row.
func (r *SlotRepo) UpdateSettings(ctx context.Context, id uint64, capacity int, active bool) (model.TimeSlot, error) {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE time_slots SET max_occupancy = ?, is_active = ? WHERE id = ?`, capacity, active, id); err != nil {
		return model.TimeSlot{}, err
	}
	return r.GetByID(ctx, id)
}
