package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "email", "full_name", "role", "created_at", "updated_at"}

func TestUserRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, full_name, role, created_at, updated_at FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("u-1", "dana@example.com", "Dana", string(models.RoleTeacher), now, now))

	user, err := repo.FindByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepositoryListByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM users WHERE role = \\$1 ORDER BY full_name ASC").
		WithArgs(string(models.RoleAdmin)).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("a-1", "ops@example.com", "Ops", string(models.RoleAdmin), now, now).
			AddRow("a-2", "root@example.com", "Root", string(models.RoleAdmin), now, now))

	users, err := repo.ListByRole(context.Background(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateRoleNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("missing", string(models.RoleTeacher), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRole(context.Background(), nil, "missing", models.RoleTeacher)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
