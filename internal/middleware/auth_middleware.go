package middleware

import (
	"context"
	"net/http"

	"matchmate-chat/internal/auth"
	"matchmate-chat/internal/transport/httpdto"
	"matchmate-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware verifies the bearer token and stores the subject on the
// request context under logger.UserIdKey.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.Parse(secret, auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, claims.UserID())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(logger.UserIdKey).(string)
	return userID, ok && userID != ""
}
