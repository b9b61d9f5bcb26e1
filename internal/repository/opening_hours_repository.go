package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/market-permanences/internal/model"
)

// OpeningHoursRepo provides access to the opening_hours table, which holds
// at most one row per weekday.
type OpeningHoursRepo struct {
	db *sql.DB
}

// NewOpeningHoursRepo returns a new OpeningHoursRepo bound to the given database.
func NewOpeningHoursRepo(db *sql.DB) *OpeningHoursRepo { return &OpeningHoursRepo{db: db} }

// List returns all rows ordered by weekday, Monday first.
func (r *OpeningHoursRepo) List(ctx context.Context) ([]model.OpeningHours, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, weekday, opens_at, closes_at, is_active FROM opening_hours ORDER BY weekday`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OpeningHours
	for rows.Next() {
		var oh model.OpeningHours
		if err := rows.Scan(&oh.ID, &oh.Weekday, &oh.Opens, &oh.Closes, &oh.Active); err != nil {
			return nil, err
		}
		out = append(out, oh)
	}
	return out, rows.Err()
}

// Upsert creates the weekday's row or replaces its hours and flag.
func (r *OpeningHoursRepo) Upsert(ctx context.Context, oh model.OpeningHours) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO opening_hours (weekday, opens_at, closes_at, is_active) VALUES (?, ?, ?, ?)
         ON DUPLICATE KEY UPDATE opens_at = VALUES(opens_at), closes_at = VALUES(closes_at), is_active = VALUES(is_active)`,
		oh.Weekday, oh.Opens, oh.Closes, oh.Active)
	return err
}
