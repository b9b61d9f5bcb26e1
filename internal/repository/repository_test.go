package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/market-permanences/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var created = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func slotRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "slot_date", "start_time", "end_time", "max_occupancy", "is_active", "created_at", "updated_at"})
}

func regRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "slot_id", "created_at", "cancelled", "cancelled_at", "comment"})
}

func TestSlotRepoGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM time_slots WHERE id = \?`).WithArgs(7).WillReturnRows(slotRows())

	_, err := NewSlotRepo(db).GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepoListActiveInRange(t *testing.T) {
	db, mock := newMock(t)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM time_slots\s+WHERE is_active = 1 AND slot_date BETWEEN \? AND \?\s+ORDER BY slot_date, start_time`).
		WithArgs("2024-01-01", "2024-01-07").
		WillReturnRows(slotRows().
			AddRow(1, d, "09:00:00", "10:00:00", 3, true, created, created).
			AddRow(2, d, "10:00:00", "11:00:00", 2, true, created, created))

	got, err := NewSlotRepo(db).ListActiveInRange(context.Background(), d, d.AddDate(0, 0, 6))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.NewTimeOfDay(9, 0), got[0].Start)
	assert.Equal(t, model.NewTimeOfDay(11, 0), got[1].End)
	assert.Equal(t, 2, got[1].MaxOccupancy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepoCreateBatchCountsInsertedRows(t *testing.T) {
	db, mock := newMock(t)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{
		{Date: d, Start: model.NewTimeOfDay(9, 0), End: model.NewTimeOfDay(10, 0), MaxOccupancy: 3, Active: true},
		{Date: d, Start: model.NewTimeOfDay(10, 0), End: model.NewTimeOfDay(11, 0), MaxOccupancy: 3, Active: true},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT IGNORE INTO time_slots`)
	prep.ExpectExec().WithArgs("2024-01-01", "09:00:00", "10:00:00", 3, true).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("2024-01-01", "10:00:00", "11:00:00", 3, true).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := NewSlotRepo(db).CreateBatch(context.Background(), slots)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoActivateInserts(t *testing.T) {
	db, mock := newMock(t)
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM time_slots WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(slotRows().AddRow(5, d, "09:00:00", "10:00:00", 3, true, created, created))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM registrations WHERE slot_id = \? AND cancelled = 0`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE user_id = \? AND slot_id = \? FOR UPDATE`).WithArgs(9, 5).
		WillReturnRows(regRows())
	mock.ExpectExec(`INSERT INTO registrations \(user_id, slot_id, comment\)`).WithArgs(9, 5, "").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE id = \?`).WithArgs(11).
		WillReturnRows(regRows().AddRow(11, 9, 5, created, false, nil, ""))
	mock.ExpectCommit()

	var seen model.SlotState
	tr, err := NewRegistrationRepo(db).Activate(context.Background(), 9, 5, "", func(st model.SlotState) error {
		seen = st
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen.ActiveCount)
	assert.Nil(t, seen.Existing)
	assert.Equal(t, uint64(11), tr.Registration.ID)
	assert.False(t, tr.Reactivated)
	assert.Equal(t, uint64(5), tr.Slot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoActivateReactivates(t *testing.T) {
	db, mock := newMock(t)
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cancelledAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM time_slots WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(slotRows().AddRow(5, d, "09:00:00", "10:00:00", 3, true, created, created))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM registrations`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM registrations WHERE user_id = \? AND slot_id = \? FOR UPDATE`).WithArgs(9, 5).
		WillReturnRows(regRows().AddRow(11, 9, 5, created, true, cancelledAt, "old note"))
	mock.ExpectExec(`UPDATE registrations SET cancelled = 0, cancelled_at = NULL, comment = \? WHERE id = \?`).
		WithArgs("old note", 11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM registrations WHERE id = \?`).WithArgs(11).
		WillReturnRows(regRows().AddRow(11, 9, 5, created, false, nil, "old note"))
	mock.ExpectCommit()

	var seen model.SlotState
	tr, err := NewRegistrationRepo(db).Activate(context.Background(), 9, 5, "", func(st model.SlotState) error {
		seen = st
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen.Existing)
	assert.True(t, seen.Existing.Cancelled)
	assert.True(t, tr.Reactivated)
	assert.False(t, tr.Registration.Cancelled)
	assert.Nil(t, tr.Registration.CancelledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoActivateCheckFailureRollsBack(t *testing.T) {
	db, mock := newMock(t)
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM time_slots WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(slotRows().AddRow(5, d, "09:00:00", "10:00:00", 3, true, created, created))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM registrations`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`FROM registrations WHERE user_id = \? AND slot_id = \? FOR UPDATE`).WithArgs(9, 5).
		WillReturnRows(regRows())
	mock.ExpectRollback()

	_, err := NewRegistrationRepo(db).Activate(context.Background(), 9, 5, "", func(st model.SlotState) error {
		return model.ErrSlotFull
	})
	assert.ErrorIs(t, err, model.ErrSlotFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoActivateUnknownSlot(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM time_slots WHERE id = \? FOR UPDATE`).WithArgs(5).WillReturnRows(slotRows())
	mock.ExpectRollback()

	_, err := NewRegistrationRepo(db).Activate(context.Background(), 9, 5, "", func(model.SlotState) error { return nil })
	assert.ErrorIs(t, err, model.ErrSlotNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoCancel(t *testing.T) {
	db, mock := newMock(t)
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT slot_id FROM registrations WHERE id = \?`).WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow(5))
	mock.ExpectQuery(`FROM time_slots WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(slotRows().AddRow(5, d, "09:00:00", "10:00:00", 3, true, created, created))
	mock.ExpectQuery(`FROM registrations WHERE id = \? FOR UPDATE`).WithArgs(11).
		WillReturnRows(regRows().AddRow(11, 9, 5, created, false, nil, ""))
	mock.ExpectExec(`UPDATE registrations SET cancelled = 1, cancelled_at = \? WHERE id = \?`).
		WithArgs(at, 11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr, err := NewRegistrationRepo(db).Cancel(context.Background(), 11, at, func(model.Registration, model.TimeSlot) error { return nil })
	require.NoError(t, err)
	assert.True(t, tr.Registration.Cancelled)
	require.NotNil(t, tr.Registration.CancelledAt)
	assert.Equal(t, at, *tr.Registration.CancelledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoCancelUnknown(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT slot_id FROM registrations WHERE id = \?`).WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}))
	mock.ExpectRollback()

	_, err := NewRegistrationRepo(db).Cancel(context.Background(), 11, time.Now(), func(model.Registration, model.TimeSlot) error { return nil })
	assert.ErrorIs(t, err, model.ErrRegistrationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoCountActiveBySlots(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT slot_id, COUNT\(\*\) FROM registrations WHERE cancelled = 0 AND slot_id IN \(\?,\?,\?\) GROUP BY slot_id`).
		WithArgs(1, 2, 3).
		WillReturnRows(sqlmock.NewRows([]string{"slot_id", "count"}).AddRow(1, 3).AddRow(3, 1))

	got, err := NewRegistrationRepo(db).CountActiveBySlots(context.Background(), []uint64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]int{1: 3, 3: 1}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepoCountByUser(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(cancelled = 0\), 0\), COUNT\(\*\) FROM registrations WHERE user_id = \?`).
		WithArgs(9).WillReturnRows(sqlmock.NewRows([]string{"active", "total"}).AddRow(2, 5))

	active, total, err := NewRegistrationRepo(db).CountByUser(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
	assert.Equal(t, 5, total)
}

func TestUserRepoCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice'"})

	_, err := NewUserRepo(db).Create(context.Background(), model.User{Username: "alice", PasswordHash: "x", Active: true})
	assert.ErrorIs(t, err, model.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoGetByUsernameNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM users WHERE username=\?`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewUserRepo(db).GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOpeningHoursRepoUpsert(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO opening_hours (.+) ON DUPLICATE KEY UPDATE`).
		WithArgs(2, "09:00:00", "12:00:00", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewOpeningHoursRepo(db).Upsert(context.Background(), model.OpeningHours{
		Weekday: 2, Opens: model.NewTimeOfDay(9, 0), Closes: model.NewTimeOfDay(12, 0), Active: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
