// Package middleware provides the Gin middleware stack used by the HTTP
// server: panic recovery, request IDs, CORS, and request logging.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/logger"
)

// Recovery converts a handler panic into a 500 carrying the standard error
// envelope. The stack is logged, never sent to the client.
func Recovery() gin.HandlerFunc {
	log := logger.WithComponent("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic in handler", map[string]interface{}{
					logger.FieldError: fmt.Sprintf("%v", r),
					logger.FieldPath:  c.Request.URL.Path,
					"method":          c.Request.Method,
					"request_id":      c.GetString(RequestIDKey),
					"stack":           string(debug.Stack()),
				})
				appErr := apperrors.Internal(fmt.Errorf("panic: %v", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToResponse())
			}
		}()
		c.Next()
	}
}
