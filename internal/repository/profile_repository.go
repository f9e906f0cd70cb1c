package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

// ProfileRepository persists the teacher and student profile extensions of accounts.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindTeacherProfile loads the profile of a teacher.
func (r *ProfileRepository) FindTeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	const query = `SELECT user_id, display_name, bio, specialties, created_at, updated_at FROM teacher_profiles WHERE user_id = $1`
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher profile: %w", err)
	}
	return &profile, nil
}

// EnsureTeacherProfile creates an empty profile when none exists.
func (r *ProfileRepository) EnsureTeacherProfile(ctx context.Context, exec sqlx.ExtContext, userID, displayName string) error {
	const query = `INSERT INTO teacher_profiles (user_id, display_name, specialties, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, userID, displayName, pq.StringArray{}, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensure teacher profile: %w", err)
	}
	return nil
}

// UpsertTeacherProfile writes the editable profile fields.
func (r *ProfileRepository) UpsertTeacherProfile(ctx context.Context, profile *models.TeacherProfile) error {
	if profile == nil {
		return fmt.Errorf("teacher profile payload is nil")
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	if profile.Specialties == nil {
		profile.Specialties = pq.StringArray{}
	}
	const query = `
INSERT INTO teacher_profiles (user_id, display_name, bio, specialties, created_at, updated_at)
VALUES (:user_id, :display_name, :bio, :specialties, :created_at, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, bio = EXCLUDED.bio,
specialties = EXCLUDED.specialties, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert teacher profile: %w", err)
	}
	return nil
}

// ListTeachers returns teacher accounts joined with their optional profiles.
func (r *ProfileRepository) ListTeachers(ctx context.Context) ([]models.TeacherListing, error) {
	const query = `
SELECT u.id, u.email, u.full_name, tp.display_name, tp.bio, COALESCE(tp.specialties, '{}') AS specialties
FROM users u
LEFT JOIN teacher_profiles tp ON tp.user_id = u.id
WHERE u.role = 'teacher'
ORDER BY u.full_name ASC`
	var teachers []models.TeacherListing
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

const studentProfileColumns = `user_id, parent_id, parent_name, parent_email, parent_phone, screening_topic, screening_date, created_at, updated_at`

// FindStudentProfile loads the profile of a student.
func (r *ProfileRepository) FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	query := `SELECT ` + studentProfileColumns + ` FROM student_profiles WHERE user_id = $1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// UpsertStudentProfile creates or replaces the profile of a student.
func (r *ProfileRepository) UpsertStudentProfile(ctx context.Context, profile *models.StudentProfile) error {
	if profile == nil {
		return fmt.Errorf("student profile payload is nil")
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `
INSERT INTO student_profiles (user_id, parent_id, parent_name, parent_email, parent_phone, screening_topic, screening_date, created_at, updated_at)
VALUES (:user_id, :parent_id, :parent_name, :parent_email, :parent_phone, :screening_topic, :screening_date, :created_at, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET parent_id = EXCLUDED.parent_id, parent_name = EXCLUDED.parent_name,
parent_email = EXCLUDED.parent_email, parent_phone = EXCLUDED.parent_phone,
screening_topic = EXCLUDED.screening_topic, screening_date = EXCLUDED.screening_date, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert student profile: %w", err)
	}
	return nil
}

// ListChildIDs returns the students linked to a parent account.
func (r *ProfileRepository) ListChildIDs(ctx context.Context, parentID string) ([]string, error) {
	const query = `SELECT user_id FROM student_profiles WHERE parent_id = $1 ORDER BY user_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, parentID); err != nil {
		return nil, fmt.Errorf("list child ids: %w", err)
	}
	return ids, nil
}
