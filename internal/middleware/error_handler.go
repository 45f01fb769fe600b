package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/logger"
)

// ErrorHandler renders the last error attached by a handler
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		appErr := apperrors.FromError(err)
		if appErr.HTTPCode >= 500 {
			logger.Errorf(c.Request.Context(), "[HTTP] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		} else {
			logger.Warnf(c.Request.Context(), "[HTTP] %s %s rejected: %v", c.Request.Method, c.FullPath(), err)
		}
		c.JSON(appErr.HTTPCode, gin.H{
			"success": false,
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
	}
}
