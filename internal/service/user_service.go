package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, exec sqlx.ExtContext, id string, role models.UserRole) error
}

type teacherProfileEnsurer interface {
	EnsureTeacherProfile(ctx context.Context, exec sqlx.ExtContext, userID, displayName string) error
}

// UserService handles admin role management.
type UserService struct {
	tx        txProvider
	repo      userRepository
	profiles  teacherProfileEnsurer
	policy    *AdminPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(tx txProvider, repo userRepository, profiles teacherProfileEnsurer, policy *AdminPolicy, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = dto.NewValidator()
	}
	return &UserService{tx: tx, repo: repo, profiles: profiles, policy: policy, validator: validate, logger: logger}
}

// ChangeRole moves a user to a new role. Promotion to teacher creates the teacher profile in
// the same transaction.
func (s *UserService) ChangeRole(ctx context.Context, actor models.Actor, userID string, req dto.ChangeRoleRequest) (user *models.User, err error) {
	if !s.policy.IsAdmin(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change roles")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role")
	}
	if userID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admins cannot change their own role")
	}

	user, err = s.repo.FindByID(ctx, userID)
	if err != nil {
		if noSuchRow(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if user.Role == req.Role {
		return user, nil
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start role transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.UpdateRole(ctx, tx, user.ID, req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "user not found")
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to update role")
	}
	if req.Role == models.RoleTeacher {
		if err = s.profiles.EnsureTeacherProfile(ctx, tx, user.ID, user.FullName); err != nil {
			return nil, appErrors.Internal(err, "failed to create teacher profile")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit role change")
	}

	s.logger.Info("user role changed",
		zap.String("user_id", user.ID),
		zap.String("from", string(user.Role)),
		zap.String("to", string(req.Role)),
		zap.String("actor_id", actor.UserID),
	)
	user.Role = req.Role
	return user, nil
}
