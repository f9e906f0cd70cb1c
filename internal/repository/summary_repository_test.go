package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

func TestSummaryRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSummaryRepository(db)

	mock.ExpectExec("INSERT INTO lesson_summaries").
		WithArgs(sqlmock.AnyArg(), "l-1", "t-1", "fractions", "steady", nil, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM lesson_summaries WHERE lesson_id = \\$1").
		WithArgs("l-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lesson_id", "teacher_id", "topics", "progress", "homework", "notes", "next_steps", "pdf_url", "created_at"}).
			AddRow("sum-1", "l-1", "t-1", "fractions", "steady", nil, nil, nil, nil, time.Now()))

	summary := &models.LessonSummary{LessonID: "l-1", TeacherID: "t-1", Topics: "fractions", Progress: "steady"}
	require.NoError(t, repo.Create(context.Background(), nil, summary))
	assert.NotEmpty(t, summary.ID)

	stored, err := repo.FindByLessonID(context.Background(), "l-1")
	require.NoError(t, err)
	assert.Equal(t, "fractions", stored.Topics)
	assert.Nil(t, stored.PDFURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryRepositorySetPDFURL(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSummaryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lesson_summaries SET pdf_url = $2 WHERE lesson_id = $1")).
		WithArgs("l-1", "http://localhost/public/reports/tok").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetPDFURL(context.Background(), "l-1", "http://localhost/public/reports/tok"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
