package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"classroll/internal/logging"
)

// ScopedLogger stores log in the request context, tagged with the request id
// when RequestID ran first.
func ScopedLogger(log logr.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped := log
		if id := c.GetString(RequestIDKey); id != "" {
			scoped = log.WithValues("requestID", id)
		}
		c.Request = c.Request.WithContext(logging.IntoContext(c.Request.Context(), scoped))
		c.Next()
	}
}
