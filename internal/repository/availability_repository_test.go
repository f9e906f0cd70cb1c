package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

var availabilityRowColumns = []string{"id", "teacher_id", "date", "start_time", "end_time", "is_available", "created_at"}

func TestAvailabilityRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	day := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO availabilities").
		WithArgs(sqlmock.AnyArg(), "t-1", day, "10:00", "10:45", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slot := &models.Availability{TeacherID: "t-1", Date: day, StartTime: "10:00", EndTime: "10:45", IsAvailable: true}
	require.NoError(t, repo.Create(context.Background(), nil, slot))
	assert.NotEmpty(t, slot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryFindByIDForUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	day := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM availabilities WHERE id = \\$1 FOR UPDATE").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows(availabilityRowColumns).AddRow("a-1", "t-1", day, "10:00", "10:45", true, time.Now()))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	slot, err := repo.FindByIDForUpdate(context.Background(), tx, "a-1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, "t-1", slot.TeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryListOpen(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	from := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery("FROM availabilities\\s+WHERE teacher_id = \\$1 AND is_available = TRUE AND date >= \\$2 AND date < \\$3").
		WithArgs("t-1", from, to).
		WillReturnRows(sqlmock.NewRows(availabilityRowColumns).
			AddRow("a-1", "t-1", from, "10:00", "10:45", true, time.Now()).
			AddRow("a-2", "t-1", from, "11:00", "11:45", true, time.Now()))

	slots, err := repo.ListOpen(context.Background(), "t-1", from, to)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryDeleteAlreadyGone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM availabilities WHERE id = $1")).
		WithArgs("a-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), nil, "a-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryDeleteOwnedIgnoresForeignRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM availabilities WHERE id = $1 AND teacher_id = $2 AND is_available = TRUE")).
		WithArgs("a-1", "t-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteOwned(context.Background(), "a-1", "t-2")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryRestore(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	day := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO availabilities .*\\s+WHERE NOT EXISTS").
		WithArgs(sqlmock.AnyArg(), "t-1", day, "10:00", "10:45", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO availabilities .*\\s+WHERE NOT EXISTS").
		WithArgs(sqlmock.AnyArg(), "t-1", day, "10:00", "10:45", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.Restore(context.Background(), nil, &models.Availability{TeacherID: "t-1", Date: day, StartTime: "10:00", EndTime: "10:45"})
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.Restore(context.Background(), nil, &models.Availability{TeacherID: "t-1", Date: day, StartTime: "10:00", EndTime: "10:45"})
	require.NoError(t, err)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}
