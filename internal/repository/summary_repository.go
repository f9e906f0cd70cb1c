package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

// SummaryRepository persists lesson completion reports.
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository constructs the repository.
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

func (r *SummaryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts the summary of a lesson. The lesson_id unique key rejects a second report.
func (r *SummaryRepository) Create(ctx context.Context, exec sqlx.ExtContext, summary *models.LessonSummary) error {
	if summary == nil {
		return fmt.Errorf("summary payload is nil")
	}
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO lesson_summaries (id, lesson_id, teacher_id, topics, progress, homework, notes, next_steps, pdf_url, created_at)
VALUES (:id, :lesson_id, :teacher_id, :topics, :progress, :homework, :notes, :next_steps, :pdf_url, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, summary); err != nil {
		return fmt.Errorf("insert lesson summary: %w", err)
	}
	return nil
}

// FindByLessonID loads the summary of a lesson.
func (r *SummaryRepository) FindByLessonID(ctx context.Context, lessonID string) (*models.LessonSummary, error) {
	const query = `SELECT id, lesson_id, teacher_id, topics, progress, homework, notes, next_steps, pdf_url, created_at
FROM lesson_summaries WHERE lesson_id = $1`
	var summary models.LessonSummary
	if err := r.db.GetContext(ctx, &summary, query, lessonID); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SetPDFURL stores the public link of the rendered report.
func (r *SummaryRepository) SetPDFURL(ctx context.Context, lessonID, url string) error {
	const query = `UPDATE lesson_summaries SET pdf_url = $2 WHERE lesson_id = $1`
	if _, err := r.db.ExecContext(ctx, query, lessonID, url); err != nil {
		return fmt.Errorf("set lesson summary pdf url: %w", err)
	}
	return nil
}
