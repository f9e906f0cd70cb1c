package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
	"github.com/noah-isme/tutoring-booking-api/pkg/logger"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

// ContextActorKey is the gin context key storing the authenticated models.Actor.
const ContextActorKey = "currentActor"

type tokenValidator interface {
	ValidateToken(token string) (*models.SessionClaims, error)
}

// JWT protects routes by requiring a valid session token.
func JWT(sessions tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := sessions.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, claims.Actor())
		c.Set(logger.ActorKey, claims.UserID)
		c.Next()
	}
}

// ActorFromContext returns the actor stored by JWT.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := value.(models.Actor)
	return actor, ok
}
