package service

import (
	"context"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

type childLister interface {
	ListChildIDs(ctx context.Context, parentID string) ([]string, error)
}

// lessonAccess resolves which lessons an actor may see.
type lessonAccess struct {
	children childLister
	policy   *AdminPolicy
}

// scope narrows a filter to the lessons visible to the actor.
func (a lessonAccess) scope(ctx context.Context, actor models.Actor, filter *models.LessonFilter) error {
	if a.policy.IsAdmin(actor) {
		return nil
	}
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.UserID
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	case models.RoleParent:
		ids, err := a.children.ListChildIDs(ctx, actor.UserID)
		if err != nil {
			return appErrors.Internal(err, "failed to resolve linked students")
		}
		if ids == nil {
			ids = []string{}
		}
		filter.StudentIDs = ids
	default:
		return appErrors.ErrForbidden
	}
	return nil
}

// canView reports whether the actor participates in the lesson or is an admin.
func (a lessonAccess) canView(ctx context.Context, actor models.Actor, lesson *models.Lesson) (bool, error) {
	if a.policy.IsAdmin(actor) {
		return true, nil
	}
	switch actor.Role {
	case models.RoleTeacher:
		return lesson.TeacherID == actor.UserID, nil
	case models.RoleStudent:
		return lesson.StudentID == actor.UserID, nil
	case models.RoleParent:
		if lesson.BookedBy == actor.UserID {
			return true, nil
		}
		ids, err := a.children.ListChildIDs(ctx, actor.UserID)
		if err != nil {
			return false, appErrors.Internal(err, "failed to resolve linked students")
		}
		for _, id := range ids {
			if id == lesson.StudentID {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}
