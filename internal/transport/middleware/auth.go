package middleware

import (
	"net/http"
	"strings"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/ds124wfegd/travel-booking/pkg/auth"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "userId"
	ContextUserRole = "userRole"
)

type TokenParser interface {
	ParseToken(tokenStr string) (*auth.Claims, error)
}

// Auth requires a valid Bearer token and stores the caller in the context.
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header missing")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid Authorization header")
			return
		}

		claims, err := parser.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, strings.ToUpper(claims.Role))
		c.Next()
	}
}

// AdminOnly must run after Auth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Actor(c).IsAdmin() {
			abort(c, http.StatusForbidden, string(entity.KindForbidden), entity.ErrAdminOnly.Error())
			return
		}
		c.Next()
	}
}

// Actor returns the authenticated caller set by Auth.
func Actor(c *gin.Context) entity.Actor {
	return entity.Actor{
		UserID: c.GetString(ContextUserID),
		Role:   entity.Role(c.GetString(ContextUserRole)),
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
