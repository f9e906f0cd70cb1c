package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

const lessonColumns = `id, teacher_id, student_id, booked_by, date, start_time, end_time, status, approval_expires_at,
approved_by_teacher_at, approved_by_admin_at, report_completed, follow_up_completed_at, question_from_student,
created_at, updated_at`

// exportLimit caps unpaginated listings used by exports.
const exportLimit = 5000

// LessonRepository persists lessons and their lifecycle transitions.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

func (r *LessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockTeacher serialises booking transactions of one teacher until the transaction ends.
func (r *LessonRepository) LockTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, teacherID); err != nil {
		return fmt.Errorf("lock teacher schedule: %w", err)
	}
	return nil
}

// HasActiveAt reports whether a non-canceled lesson of the teacher starts at the slot.
func (r *LessonRepository) HasActiveAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, startTime string) (bool, error) {
	const query = `SELECT EXISTS (
    SELECT 1 FROM lessons WHERE teacher_id = $1 AND date = $2 AND start_time = $3 AND status <> 'canceled'
)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, teacherID, date, startTime); err != nil {
		return false, fmt.Errorf("check active lesson: %w", err)
	}
	return exists, nil
}

// ActiveSlotKeys returns the (date, start) pairs held by active lessons of the teacher in [from, to).
func (r *LessonRepository) ActiveSlotKeys(ctx context.Context, teacherID string, from, to time.Time) ([]models.SlotKey, error) {
	const query = `SELECT date, start_time FROM lessons
WHERE teacher_id = $1 AND date >= $2 AND date < $3 AND status <> 'canceled'`
	var keys []models.SlotKey
	if err := r.db.SelectContext(ctx, &keys, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list active slot keys: %w", err)
	}
	return keys, nil
}

// Create inserts a lesson.
func (r *LessonRepository) Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	if lesson == nil {
		return fmt.Errorf("lesson payload is nil")
	}
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	const query = `
INSERT INTO lessons (id, teacher_id, student_id, booked_by, date, start_time, end_time, status, approval_expires_at,
approved_by_teacher_at, approved_by_admin_at, report_completed, follow_up_completed_at, question_from_student, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :booked_by, :date, :start_time, :end_time, :status, :approval_expires_at,
:approved_by_teacher_at, :approved_by_admin_at, :report_completed, :follow_up_completed_at, :question_from_student, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, lesson); err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

// FindByID loads a lesson by identifier.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindByIDForUpdate loads and row-locks a lesson inside the caller's transaction.
func (r *LessonRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1 FOR UPDATE`
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// MarkScheduled moves a pending lesson to scheduled and records the approvals given.
func (r *LessonRepository) MarkScheduled(ctx context.Context, exec sqlx.ExtContext, id string, teacherAt, adminAt *time.Time) error {
	const query = `UPDATE lessons SET status = 'scheduled', approval_expires_at = NULL,
approved_by_teacher_at = COALESCE($2, approved_by_teacher_at), approved_by_admin_at = COALESCE($3, approved_by_admin_at),
updated_at = $4 WHERE id = $1 AND status = 'pending_approval'`
	return r.expectOne(r.exec(exec).ExecContext(ctx, query, id, teacherAt, adminAt, time.Now().UTC()))
}

// MarkCanceled cancels a pending lesson.
func (r *LessonRepository) MarkCanceled(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE lessons SET status = 'canceled', approval_expires_at = NULL, updated_at = $2
WHERE id = $1 AND status = 'pending_approval'`
	return r.expectOne(r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()))
}

// MarkCompleted completes a scheduled lesson and flags its report as captured.
func (r *LessonRepository) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE lessons SET status = 'completed', report_completed = TRUE, updated_at = $2
WHERE id = $1 AND status = 'scheduled'`
	return r.expectOne(r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()))
}

// MarkFollowUp stamps the screening follow-up of a completed lesson once.
func (r *LessonRepository) MarkFollowUp(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE lessons SET follow_up_completed_at = $2, updated_at = $2
WHERE id = $1 AND status = 'completed' AND follow_up_completed_at IS NULL`
	return r.expectOne(r.exec(exec).ExecContext(ctx, query, id, at))
}

// expectOne turns a zero-row conditional update into sql.ErrNoRows.
func (r *LessonRepository) expectOne(result sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("lesson rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListExpiredPending returns pending lessons whose approval window closed at or before now.
func (r *LessonRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons
WHERE status = 'pending_approval' AND approval_expires_at IS NOT NULL AND approval_expires_at <= $1
ORDER BY approval_expires_at ASC LIMIT $2`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, now, limit); err != nil {
		return nil, fmt.Errorf("list expired pending lessons: %w", err)
	}
	return lessons, nil
}

// List returns lessons matching the filter with the total count.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	baseQuery, args := lessonFilterClause(filter)

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY date %s, start_time %s LIMIT %d OFFSET %d", lessonColumns, baseQuery, sortOrder, sortOrder, pageSize, offset)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list lessons: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lessons: %w", err)
	}
	return lessons, total, nil
}

// ListAll returns every lesson matching the filter in chronological order, capped for exports.
func (r *LessonRepository) ListAll(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	baseQuery, args := lessonFilterClause(filter)
	query := fmt.Sprintf("SELECT %s %s ORDER BY date ASC, start_time ASC LIMIT %d", lessonColumns, baseQuery, exportLimit)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, fmt.Errorf("list all lessons: %w", err)
	}
	return lessons, nil
}

func lessonFilterClause(filter models.LessonFilter) (string, []interface{}) {
	baseQuery := `FROM lessons WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.StudentIDs != nil {
		conditions = append(conditions, fmt.Sprintf("student_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.StudentIDs))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(statuses))
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("date < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}
	return baseQuery, args
}
