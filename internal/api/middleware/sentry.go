package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware 为每个请求克隆 Hub，上报 panic 与 5xx 响应。
// 未初始化 Sentry 时 Hub 没有 client，上报为空操作。
func SentryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		hub.Scope().SetTag("correlation_id", GetCorrelationID(c))
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		defer func() {
			if rec := recover(); rec != nil {
				hub.RecoverWithContext(c.Request.Context(), rec)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			hub.WithScope(func(scope *sentry.Scope) {
				if userID, ok := c.Get(ContextUserID); ok {
					scope.SetUser(sentry.User{ID: fmt.Sprint(userID)})
				}
				scope.SetTag("route", c.FullPath())
				if len(c.Errors) > 0 {
					hub.CaptureException(c.Errors.Last().Err)
					return
				}
				hub.CaptureMessage(fmt.Sprintf("%s %s returned %d", c.Request.Method, c.FullPath(), status))
			})
		}
	}
}
