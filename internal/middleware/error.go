package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/pathology-report-api/internal/handler"
	apperrors "github.com/jwalitptl/pathology-report-api/pkg/errors"
)

// ErrorHandler renders errors attached with c.Error when the handler did not
// write a response itself.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		c.JSON(apperrors.StatusOf(lastErr), handler.NewErrorResponse(lastErr.Error()))
	}
}
