package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const metricsTokenHeader = "X-Metrics-Token"

// MetricsTokenMiddleware 保护 /metrics；token 为空时不做校验。
func MetricsTokenMiddleware(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		// 抓取方必须通过 Header 传递密钥，避免 query 泄露到日志。
		got := strings.TrimSpace(c.GetHeader(metricsTokenHeader))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
