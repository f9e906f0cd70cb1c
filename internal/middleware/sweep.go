package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
	"github.com/noah-isme/tutoring-booking-api/pkg/response"
)

// SweepTokenHeader carries the shared secret of the external sweep scheduler.
const SweepTokenHeader = "X-Sweep-Token"

// SweepToken guards the internal sweep trigger. An empty token disables the route.
func SweepToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "sweep trigger disabled"))
			c.Abort()
			return
		}
		presented := c.GetHeader(SweepTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid sweep token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
