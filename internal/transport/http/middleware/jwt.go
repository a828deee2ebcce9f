package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qingyin-guild/internal/app"
	"qingyin-guild/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

func AuthJWT(authService *app.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			return
		}

		claims, err := authService.Authenticate(strings.TrimPrefix(authHeader, prefix))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// RequireAdmin must run after AuthJWT. The admin flag is read from the
// database on every request, not from the token.
func RequireAdmin(authService *app.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in token")
			return
		}

		if _, err := authService.RequireAdmin(c.Request.Context(), userID); err != nil {
			switch {
			case errors.Is(err, app.ErrForbidden):
				response.Abort(c, http.StatusForbidden, response.CodeForbidden, err.Error())
			case errors.Is(err, app.ErrNotFound):
				response.Abort(c, http.StatusNotFound, response.CodeNotFound, err.Error())
			default:
				_ = c.Error(err)
				response.Abort(c, http.StatusInternalServerError, response.CodeInternalServer, "check admin failed")
			}
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := raw.(uint)
	return userID, ok && userID != 0
}
