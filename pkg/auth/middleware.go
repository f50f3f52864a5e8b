package auth

import (
	"strings"

	apperrors "lms/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// Authenticate requires a valid bearer token and stores the caller's id and
// role on the gin context.
func Authenticate(tokens *TokenService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abort(c, apperrors.New(apperrors.CodeUnauthorized, "missing or malformed authorization header", ""))
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			logger.Debug("Rejected token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			abort(c, apperrors.New(apperrors.CodeUnauthorized, err.Error(), ""))
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, apperrors.New(apperrors.CodeForbidden, "insufficient permissions", "Role: "+role))
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func HasRole(c *gin.Context, role string) bool {
	return c.GetString(ContextRole) == role
}

func abort(c *gin.Context, err *apperrors.StandardError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), err)
}
