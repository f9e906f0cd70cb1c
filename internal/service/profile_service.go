package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

type profileStore interface {
	FindTeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error)
	EnsureTeacherProfile(ctx context.Context, exec sqlx.ExtContext, userID, displayName string) error
	UpsertTeacherProfile(ctx context.Context, profile *models.TeacherProfile) error
	ListTeachers(ctx context.Context) ([]models.TeacherListing, error)
	FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	UpsertStudentProfile(ctx context.Context, profile *models.StudentProfile) error
}

// ProfileService manages teacher and student profiles. Profiles are created on first access.
type ProfileService struct {
	profiles  profileStore
	users     userReader
	clock     *calendar.Calendar
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs the profile service.
func NewProfileService(profiles profileStore, users userReader, clock *calendar.Calendar, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{profiles: profiles, users: users, clock: clock, validator: validate, logger: logger}
}

// ListTeachers returns the teacher directory.
func (s *ProfileService) ListTeachers(ctx context.Context) ([]models.TeacherListing, error) {
	teachers, err := s.profiles.ListTeachers(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list teachers")
	}
	if teachers == nil {
		teachers = []models.TeacherListing{}
	}
	return teachers, nil
}

// GetTeacherProfile returns the caller's teacher profile, creating an empty one when missing.
func (s *ProfileService) GetTeacherProfile(ctx context.Context, actor models.Actor) (*models.TeacherProfile, error) {
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher profile requires the teacher role")
	}
	profile, err := s.profiles.FindTeacherProfile(ctx, actor.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load teacher profile")
	}

	displayName := actor.Email
	if user, uerr := s.users.FindByID(ctx, actor.UserID); uerr == nil && user.FullName != "" {
		displayName = user.FullName
	}
	if err := s.profiles.EnsureTeacherProfile(ctx, nil, actor.UserID, displayName); err != nil {
		return nil, appErrors.Internal(err, "failed to create teacher profile")
	}
	profile, err = s.profiles.FindTeacherProfile(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teacher profile")
	}
	return profile, nil
}

// UpdateTeacherProfile replaces the caller's editable teacher profile fields.
func (s *ProfileService) UpdateTeacherProfile(ctx context.Context, actor models.Actor, req dto.UpdateTeacherProfileRequest) (*models.TeacherProfile, error) {
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher profile requires the teacher role")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher profile")
	}
	specialties := make(pq.StringArray, 0, len(req.Specialties))
	for _, specialty := range req.Specialties {
		if trimmed := strings.TrimSpace(specialty); trimmed != "" {
			specialties = append(specialties, trimmed)
		}
	}
	profile := &models.TeacherProfile{
		UserID:      actor.UserID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Bio:         req.Bio,
		Specialties: specialties,
	}
	if existing, err := s.profiles.FindTeacherProfile(ctx, actor.UserID); err == nil {
		profile.CreatedAt = existing.CreatedAt
	}
	if err := s.profiles.UpsertTeacherProfile(ctx, profile); err != nil {
		return nil, appErrors.Internal(err, "failed to save teacher profile")
	}
	return profile, nil
}

// GetStudentProfile returns the caller's student profile, creating an empty one on first access.
func (s *ProfileService) GetStudentProfile(ctx context.Context, actor models.Actor) (*models.StudentProfile, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student profile requires the student role")
	}
	profile, err := s.profiles.FindStudentProfile(ctx, actor.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load student profile")
	}
	profile = &models.StudentProfile{UserID: actor.UserID}
	if err := s.profiles.UpsertStudentProfile(ctx, profile); err != nil {
		return nil, appErrors.Internal(err, "failed to create student profile")
	}
	s.logger.Info("student profile created", zap.String("user_id", actor.UserID))
	return profile, nil
}

// UpdateStudentProfile replaces the caller's screening and parent details. A parent link must
// reference an account holding the parent role.
func (s *ProfileService) UpdateStudentProfile(ctx context.Context, actor models.Actor, req dto.UpdateStudentProfileRequest) (*models.StudentProfile, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student profile requires the student role")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student profile")
	}

	profile := &models.StudentProfile{
		UserID:         actor.UserID,
		ParentName:     req.ParentName,
		ParentEmail:    req.ParentEmail,
		ParentPhone:    req.ParentPhone,
		ScreeningTopic: req.ScreeningTopic,
	}
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		parentID := strings.TrimSpace(*req.ParentID)
		parent, err := s.users.FindByID(ctx, parentID)
		if err != nil {
			if noSuchRow(err) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "parent account does not exist")
			}
			return nil, appErrors.Internal(err, "failed to load parent account")
		}
		if parent.Role != models.RoleParent {
			return nil, appErrors.Clone(appErrors.ErrValidation, "linked account is not a parent")
		}
		profile.ParentID = &parentID
	}
	if req.ScreeningDate != nil && *req.ScreeningDate != "" {
		date, err := s.clock.ParseDay(*req.ScreeningDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid screening date")
		}
		profile.ScreeningDate = &date
	}
	if existing, err := s.profiles.FindStudentProfile(ctx, actor.UserID); err == nil {
		profile.CreatedAt = existing.CreatedAt
	}
	if err := s.profiles.UpsertStudentProfile(ctx, profile); err != nil {
		return nil, appErrors.Internal(err, "failed to save student profile")
	}
	return profile, nil
}
