package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

type adminPolicy interface {
	IsAdmin(actor models.Actor) bool
}

// RequireRoles admits actors holding one of the roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.Role]; ok {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireAdmin admits actors with admin capability, which includes alias teachers.
func RequireAdmin(policy adminPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !policy.IsAdmin(actor) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin capability required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
