package middleware

import (
	"github.com/gin-gonic/gin"

	"privchat/pkg/errors"
	"privchat/pkg/logger"
)

// ErrorHandler renders the last error attached with c.Error when the
// handler did not write a response itself.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		statusCode := errors.HTTPStatusFromError(err.Err)
		if statusCode >= 500 {
			log.Error("Request failed", "path", c.Request.URL.Path, "error", err.Err)
		}

		c.JSON(statusCode, gin.H{
			"error": err.Error(),
		})
	}
}
