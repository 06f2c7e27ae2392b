package middleware

import (
	"errors"
	"net/http"

	"matchmate-chat/internal/transport/httpdto"
	matchmate_errors "matchmate-chat/pkg/errors"
	"matchmate-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error attached with c.Error. Handlers only
// attach the error; status and code come from the sentinel it wraps.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code := StatusFor(err)
		if l != nil && status >= http.StatusInternalServerError {
			l.Errorf("request error: %s", err.Error())
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
	}
}

// StatusFor maps an error to its HTTP status and response code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, matchmate_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, matchmate_errors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, matchmate_errors.ErrForbidden), errors.Is(err, matchmate_errors.ErrBlocked):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, matchmate_errors.ErrInvalidInput), errors.Is(err, matchmate_errors.ErrNotUploaded):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, matchmate_errors.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "TOO_LARGE"
	case errors.Is(err, matchmate_errors.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, matchmate_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
