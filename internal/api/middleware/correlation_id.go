package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader 请求与响应中携带关联 ID 的头。
const CorrelationIDHeader = "X-Correlation-ID"

const correlationIDKey = "correlationID"

// 客户端传入的 ID 只接受 1 到 64 位字母、数字、下划线或连字符。
var validCorrelationID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// CorrelationIDMiddleware 沿用客户端传入的合法 ID，否则生成新的 UUID。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if !validCorrelationID.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(correlationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// GetCorrelationID 返回当前请求的关联 ID，未经过中间件时为空。
func GetCorrelationID(c *gin.Context) string {
	id, _ := c.Get(correlationIDKey)
	s, _ := id.(string)
	return s
}
