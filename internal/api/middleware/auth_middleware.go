package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cohortflow/internal/access"
	"cohortflow/internal/auth"
)

const (
	sessionKey            = "session"
	mustChangePasswordKey = "mustChangePassword"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "kind": "unauthenticated"})
}

// AuthMiddleware 校验访问令牌并将会话注入上下文。
func AuthMiddleware(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c)
			return
		}

		claims, err := issuer.Parse(rawToken, auth.TokenTypeAccess)
		if err != nil {
			LoggerFromContext(c).Debug("access token rejected", "error", err)
			abortUnauthorized(c)
			return
		}

		c.Set(sessionKey, claims.Session())
		c.Set(mustChangePasswordKey, claims.MustChangePassword)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	if strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

// SessionFromContext 返回 AuthMiddleware 注入的会话，未登录时为 nil。
func SessionFromContext(c *gin.Context) *access.Session {
	if value, ok := c.Get(sessionKey); ok {
		if sess, ok := value.(*access.Session); ok {
			return sess
		}
	}
	return nil
}
