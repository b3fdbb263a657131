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

	"github.com/iliyamo/campaign-links/internal/model"
)

var (
	lockSlot   = regexp.QuoteMeta(`SELECT capacity, label FROM slots WHERE id = ? AND event_id = ? FOR UPDATE`)
	sumTaken   = regexp.QuoteMeta(`SELECT CAST(COALESCE(SUM(party_size), 0) AS UNSIGNED) FROM reservations WHERE slot_id = ? AND cancelled_at IS NULL`)
	findByKey  = `FROM reservations WHERE slot_id = \? AND idempotency_key = \?`
	insertRes  = `INSERT INTO reservations \(id, event_id, slot_id`
	resColumns = []string{"id", "event_id", "slot_id", "party_size", "contact_name", "contact_email",
		"contact_phone", "contact_address", "idempotency_key", "token_hash", "submitted_at", "cancelled_at"}
)

func newReservation(party uint32) *model.Reservation {
	return &model.Reservation{
		ID: "01HZX3J7Q8W5V6K2M9N4P0R1ST", EventID: 7, SlotID: 3, PartySize: party,
		Name: "Ada", Email: "ada@example.com", TokenHash: "deadbeef",
	}
}

func TestReservationRepo_CommitInsertsWhenItFits(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(3, 7).WillReturnRows(sqlmock.NewRows([]string{"capacity", "label"}).AddRow(10, "Saturday 10:00"))
	mock.ExpectQuery(sumTaken).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"s"}).AddRow(8))
	mock.ExpectExec(insertRes).
		WithArgs("01HZX3J7Q8W5V6K2M9N4P0R1ST", 7, 3, 2, "Ada", "ada@example.com", "", "", nil, "deadbeef", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := repo.Commit(context.Background(), newReservation(2))
	require.NoError(t, err)
	assert.Equal(t, CommitCommitted, out.Outcome)
	assert.EqualValues(t, 10, out.SeatsTaken)
	assert.EqualValues(t, 10, out.Capacity)
	assert.False(t, out.Reservation.SubmittedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_CommitSoldOutWritesNothing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(3, 7).WillReturnRows(sqlmock.NewRows([]string{"capacity", "label"}).AddRow(10, "Saturday 10:00"))
	mock.ExpectQuery(sumTaken).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"s"}).AddRow(8))
	mock.ExpectRollback()

	out, err := repo.Commit(context.Background(), newReservation(3))
	require.NoError(t, err)
	assert.Equal(t, CommitSoldOut, out.Outcome)
	assert.EqualValues(t, 8, out.SeatsTaken)
	assert.Nil(t, out.Reservation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_CommitUnknownSlot(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(3, 7).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), newReservation(1))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_CommitReplaysIdempotencyKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	submitted := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(3, 7).WillReturnRows(sqlmock.NewRows([]string{"capacity", "label"}).AddRow(2, "Saturday 10:00"))
	mock.ExpectQuery(findByKey).WithArgs(3, "key-1").
		WillReturnRows(sqlmock.NewRows(resColumns).
			AddRow("01ORIGINAL00000000000000000", 7, 3, 2, "Ada", "ada@example.com", "", "", "key-1", "cafe", submitted, nil))
	mock.ExpectRollback()

	res := newReservation(2)
	key := "key-1"
	res.IdempotencyKey = &key
	out, err := repo.Commit(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, CommitReplayed, out.Outcome)
	assert.Equal(t, "01ORIGINAL00000000000000000", out.Reservation.ID)
	require.NotNil(t, out.Reservation.IdempotencyKey)
	assert.Equal(t, "key-1", *out.Reservation.IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_CommitDuplicateToken(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(3, 7).WillReturnRows(sqlmock.NewRows([]string{"capacity", "label"}).AddRow(10, "Saturday 10:00"))
	mock.ExpectQuery(sumTaken).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"s"}).AddRow(0))
	mock.ExpectExec(insertRes).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'deadbeef' for key 'reservations.uq_reservations_token'"})
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), newReservation(1))
	assert.ErrorIs(t, err, ErrDuplicateToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_CommitBackendFailure(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlot).WithArgs(3, 7).WillReturnRows(sqlmock.NewRows([]string{"capacity", "label"}).AddRow(10, "Saturday 10:00"))
	mock.ExpectQuery(sumTaken).WithArgs(3).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), newReservation(1))
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_ListBySlot(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM reservations WHERE slot_id = \? AND cancelled_at IS NULL ORDER BY submitted_at, id`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(resColumns).
			AddRow("01A", 7, 3, 2, "Ada", "ada@example.com", "", "", nil, "h1", now, nil))

	list, err := repo.ListBySlot(context.Background(), 3, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].IdempotencyKey)
	assert.Nil(t, list[0].CancelledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_FindByIdempotencyKeyMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectQuery(findByKey).WithArgs(3, "nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByIdempotencyKey(context.Background(), 3, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
