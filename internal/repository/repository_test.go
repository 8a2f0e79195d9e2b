package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pill-dispenser/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func duplicate(key string) error {
	return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key '" + key + "'"}
}

func TestMapDuplicate(t *testing.T) {
	assert.ErrorIs(t, mapDuplicate(duplicate("users.uq_users_username")), ErrUsernameExists)
	assert.ErrorIs(t, mapDuplicate(duplicate("dispensers.uq_dispensers_owner_name")), ErrDuplicateName)
	assert.ErrorIs(t, mapDuplicate(duplicate("PRIMARY")), ErrConflict)

	other := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	assert.Same(t, other, mapDuplicate(other))
}

func TestUserRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	joined := time.Date(2025, 5, 24, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(q("INSERT INTO users (email, username, phone_number, password_hash, is_active, is_staff)")).
		WithArgs("ann@example.com", "ann", sqlmock.AnyArg(), "hash", true, false).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(q("SELECT date_joined FROM users WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"date_joined"}).AddRow(joined))

	u := &model.User{Email: "ann@example.com", Username: "ann", PasswordHash: "hash", IsActive: true}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, uint64(7), u.ID)
	assert.Equal(t, joined, u.DateJoined)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(q("INSERT INTO users")).WillReturnError(duplicate("users.uq_users_email"))

	err := repo.Create(context.Background(), &model.User{Email: "ann@example.com", Username: "ann"})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	cols := []string{"id", "email", "username", "phone_number", "password_hash", "is_active", "is_staff", "date_joined"}

	mock.ExpectQuery(q("FROM users WHERE email=?")).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "ann@example.com", "ann", nil, "hash", true, true, time.Now()))
	mock.ExpectQuery(q("FROM users WHERE email=?")).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := repo.GetByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Nil(t, u.PhoneNumber)
	assert.Equal(t, model.RoleStaff, u.Role())

	_, err = repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_EmailExists(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(q("SELECT 1 FROM users WHERE email=?")).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT 1 FROM users WHERE email=?")).
		WithArgs("bob@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err := repo.EmailExists(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.EmailExists(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_FindAndRevoke(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	cols := []string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}
	now := time.Now().UTC()

	mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("live").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 3, "live", now.Add(time.Hour), nil, now))
	mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("revoked").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(2, 3, "revoked", now.Add(time.Hour), now, now))
	mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL")).
		WithArgs(uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tok, err := repo.FindRefresh(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tok.UserID)
	assert.True(t, tok.Usable(now))

	tok, err = repo.FindRefresh(context.Background(), "revoked")
	require.NoError(t, err)
	assert.NotNil(t, tok.RevokedAt)
	assert.False(t, tok.Usable(now))

	_, err = repo.FindRefresh(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, repo.RevokeAllForUser(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)
	created := time.Date(2025, 5, 24, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT username FROM users WHERE id = ? FOR UPDATE")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("ann"))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM dispensers WHERE owner_id = ?")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectExec(q("INSERT INTO dispensers (owner_id, name, serial_id, size)")).
		WithArgs(uint64(1), "Kitchen", "S-20250524-0001", "S").
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(q("SELECT created_at FROM dispensers WHERE id = ?")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec(q("INSERT INTO containers (dispenser_id, slot_number, pill_name) VALUES (?,?,?),(?,?,?),(?,?,?),(?,?,?)")).
		WithArgs(uint64(10), 1, "Empty Slot 1", uint64(10), 2, "Empty Slot 2", uint64(10), 3, "Empty Slot 3", uint64(10), 4, "Empty Slot 4").
		WillReturnResult(sqlmock.NewResult(100, 4))
	mock.ExpectQuery(q("SELECT id, slot_number FROM containers WHERE dispenser_id = ?")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slot_number"}).
			AddRow(100, 1).AddRow(101, 2).AddRow(102, 3).AddRow(103, 4))
	mock.ExpectCommit()

	d := &model.Dispenser{OwnerID: 1, Name: "Kitchen", SerialID: "S-20250524-0001", Size: model.SizeSmall}
	d.Containers = d.InitialContainers()
	require.NoError(t, repo.Create(context.Background(), d, model.MaxDispensersPerOwner))

	assert.Equal(t, uint64(10), d.ID)
	assert.Equal(t, "ann", d.OwnerUsername)
	assert.Equal(t, created, d.CreatedAt)
	require.Len(t, d.Containers, 4)
	assert.Equal(t, uint64(103), d.Containers[3].ID)
	assert.Equal(t, uint64(10), d.Containers[3].DispenserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_CreateQuotaExceeded(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("ann"))
	mock.ExpectQuery(q("SELECT COUNT(*)")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(5))
	mock.ExpectRollback()

	d := &model.Dispenser{OwnerID: 1, Name: "Sixth", SerialID: "M-20250524-0006", Size: model.SizeMedium}
	err := repo.Create(context.Background(), d, model.MaxDispensersPerOwner)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_CreateDuplicateSerial(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("ann"))
	mock.ExpectQuery(q("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(q("INSERT INTO dispensers")).
		WillReturnError(duplicate("dispensers.uq_dispensers_serial"))
	mock.ExpectRollback()

	d := &model.Dispenser{OwnerID: 1, Name: "Kitchen", SerialID: "S-20250524-0001", Size: model.SizeSmall}
	err := repo.Create(context.Background(), d, model.MaxDispensersPerOwner)
	assert.ErrorIs(t, err, ErrDuplicateSerial)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_GetByOwnerAndName(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)
	dcols := []string{"id", "owner_id", "username", "name", "serial_id", "size", "created_at"}

	mock.ExpectQuery(q("WHERE d.owner_id = ? AND d.name = ?")).
		WithArgs(uint64(1), "Kitchen").
		WillReturnRows(sqlmock.NewRows(dcols).AddRow(10, 1, "ann", "Kitchen", "S-20250524-0001", "S", time.Now()))
	mock.ExpectQuery(q("FROM containers WHERE dispenser_id = ? ORDER BY slot_number")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dispenser_id", "slot_number", "pill_name"}).
			AddRow(100, 10, 1, "Aspirin").AddRow(101, 10, 2, "Empty Slot 2"))
	mock.ExpectQuery(q("FROM schedules s JOIN containers c")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "container_id", "weekday", "time_of_day"}).
			AddRow(1, 100, 0, "08:00:00").AddRow(2, 100, 6, "20:30:00.000000"))

	d, err := repo.GetByOwnerAndName(context.Background(), 1, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, model.SizeSmall, d.Size)
	require.Len(t, d.Containers, 2)
	require.Len(t, d.Containers[0].Schedules, 2)
	assert.Equal(t, model.Sunday, d.Containers[0].Schedules[1].Weekday)
	assert.Equal(t, "20:30:00", d.Containers[0].Schedules[1].Time.String())
	assert.Empty(t, d.Containers[1].Schedules)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_GetByOwnerAndNameNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)

	mock.ExpectQuery(q("WHERE d.owner_id = ? AND d.name = ?")).
		WithArgs(uint64(2), "Kitchen").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByOwnerAndName(context.Background(), 2, "Kitchen")
	assert.ErrorIs(t, err, ErrDispenserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_Rename(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)

	mock.ExpectExec(q("UPDATE dispensers SET name = ? WHERE id = ? AND owner_id = ?")).
		WithArgs("Bedroom", uint64(10), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE dispensers SET name = ?")).
		WithArgs("Bedroom", uint64(10), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("UPDATE dispensers SET name = ?")).
		WithArgs("Office", uint64(10), uint64(1)).
		WillReturnError(duplicate("dispensers.uq_dispensers_owner_name"))

	assert.NoError(t, repo.Rename(context.Background(), 10, 1, "Bedroom"))
	assert.ErrorIs(t, repo.Rename(context.Background(), 10, 2, "Bedroom"), ErrDispenserNotFound)
	assert.ErrorIs(t, repo.Rename(context.Background(), 10, 1, "Office"), ErrDuplicateName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_DeleteByOwnerAndName(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM dispensers WHERE owner_id = ? AND name = ? FOR UPDATE")).
		WithArgs(uint64(1), "Kitchen").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectExec(q("DELETE s FROM schedules s")).WithArgs(uint64(10)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q("DELETE FROM containers WHERE dispenser_id = ?")).WithArgs(uint64(10)).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(q("DELETE FROM dispensers WHERE id = ?")).WithArgs(uint64(10)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.DeleteByOwnerAndName(context.Background(), 1, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenserRepo_DeleteNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDispenserRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(uint64(2), "Kitchen").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.DeleteByOwnerAndName(context.Background(), 2, "Kitchen")
	assert.ErrorIs(t, err, ErrDispenserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainerRepo_ReplaceSchedules(t *testing.T) {
	db, mock := newMock(t)
	repo := NewContainerRepo(db)
	pill := "Ibuprofen"

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM containers WHERE id = ? FOR UPDATE")).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(q("UPDATE containers SET pill_name = ? WHERE id = ?")).
		WithArgs("Ibuprofen", uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM schedules WHERE container_id = ?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("INSERT INTO schedules (container_id, weekday, time_of_day) VALUES (?,?,?),(?,?,?)")).
		WithArgs(uint64(5), 0, "08:00:00", uint64(5), 6, "20:30:00").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	entries := []model.ScheduleEntry{
		{Weekday: model.Monday, Time: 8 * 3600},
		{Weekday: model.Sunday, Time: 20*3600 + 30*60},
	}
	require.NoError(t, repo.ReplaceSchedules(context.Background(), 5, &pill, entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainerRepo_ReplaceSchedulesEmptyClears(t *testing.T) {
	db, mock := newMock(t)
	repo := NewContainerRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(q("DELETE FROM schedules WHERE container_id = ?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceSchedules(context.Background(), 5, nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainerRepo_ReplaceSchedulesRollsBackOnInsertFailure(t *testing.T) {
	lost := errors.New("connection lost")
	cases := []struct {
		name    string
		insert  error
		wantErr error
	}{
		{"driver error", lost, lost},
		{"duplicate entry", duplicate("schedules.uq_schedules_container_weekday_time"), ErrDuplicateSchedule},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewContainerRepo(db)

			mock.ExpectBegin()
			mock.ExpectQuery(q("SELECT id FROM containers WHERE id = ? FOR UPDATE")).
				WithArgs(uint64(5)).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
			mock.ExpectExec(q("DELETE FROM schedules WHERE container_id = ?")).
				WithArgs(uint64(5)).
				WillReturnResult(sqlmock.NewResult(0, 2))
			mock.ExpectExec(q("INSERT INTO schedules")).WillReturnError(tc.insert)
			mock.ExpectRollback()

			entries := []model.ScheduleEntry{{Weekday: model.Tuesday, Time: 9 * 3600}}
			err := repo.ReplaceSchedules(context.Background(), 5, nil, entries)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestContainerRepo_GetBySlotNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewContainerRepo(db)

	mock.ExpectQuery(q("FROM containers WHERE dispenser_id = ? AND slot_number = ?")).
		WithArgs(uint64(10), 9).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBySlot(context.Background(), 10, 9)
	assert.ErrorIs(t, err, ErrContainerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
