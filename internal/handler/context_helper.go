package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-booking-api/internal/middleware"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

// actorFromContext returns the authenticated caller or writes 401 and reports false.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
