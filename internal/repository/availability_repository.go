package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

const availabilityColumns = `id, teacher_id, date, start_time, end_time, is_available, created_at`

// AvailabilityRepository persists teacher-declared open windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an open window.
func (r *AvailabilityRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.Availability) error {
	if slot == nil {
		return fmt.Errorf("availability payload is nil")
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO availabilities (id, teacher_id, date, start_time, end_time, is_available, created_at)
VALUES (:id, :teacher_id, :date, :start_time, :end_time, :is_available, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

// FindByID loads a window by identifier.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE id = $1`
	var slot models.Availability
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindByIDForUpdate loads and row-locks a window inside the caller's transaction.
func (r *AvailabilityRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE id = $1 FOR UPDATE`
	var slot models.Availability
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListOpen returns open windows of a teacher whose date lies in [from, to).
func (r *AvailabilityRepository) ListOpen(ctx context.Context, teacherID string, from, to time.Time) ([]models.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities
WHERE teacher_id = $1 AND is_available = TRUE AND date >= $2 AND date < $3
ORDER BY date ASC, start_time ASC`
	var slots []models.Availability
	if err := r.db.SelectContext(ctx, &slots, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return slots, nil
}

// ListOnDate returns every open window of the teacher on a stored date.
func (r *AvailabilityRepository) ListOnDate(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time) ([]models.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities
WHERE teacher_id = $1 AND date = $2 AND is_available = TRUE ORDER BY start_time ASC`
	var slots []models.Availability
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, teacherID, date); err != nil {
		return nil, fmt.Errorf("list availability on date: %w", err)
	}
	return slots, nil
}

// Delete removes a window. sql.ErrNoRows signals it was already gone.
func (r *AvailabilityRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM availabilities WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("availability rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOwned removes an open window only when it belongs to the teacher.
func (r *AvailabilityRepository) DeleteOwned(ctx context.Context, id, teacherID string) (bool, error) {
	const query = `DELETE FROM availabilities WHERE id = $1 AND teacher_id = $2 AND is_available = TRUE`
	result, err := r.db.ExecContext(ctx, query, id, teacherID)
	if err != nil {
		return false, fmt.Errorf("delete owned availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("availability rows affected: %w", err)
	}
	return affected > 0, nil
}

// Restore inserts a fresh open window unless an identical open one already exists.
// It reports whether a row was written.
func (r *AvailabilityRepository) Restore(ctx context.Context, exec sqlx.ExtContext, slot *models.Availability) (bool, error) {
	if slot == nil {
		return false, fmt.Errorf("availability payload is nil")
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	slot.IsAvailable = true
	const query = `
INSERT INTO availabilities (id, teacher_id, date, start_time, end_time, is_available, created_at)
SELECT $1, $2, $3, $4, $5, TRUE, $6
WHERE NOT EXISTS (
    SELECT 1 FROM availabilities
    WHERE teacher_id = $2 AND date = $3 AND start_time = $4 AND end_time = $5 AND is_available = TRUE
)`
	result, err := r.exec(exec).ExecContext(ctx, query, slot.ID, slot.TeacherID, slot.Date, slot.StartTime, slot.EndTime, slot.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("restore availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("restore availability rows affected: %w", err)
	}
	return affected > 0, nil
}
