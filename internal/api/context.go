package api

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"careerHub/internal/api/middleware"
)

var errInvalidID = errors.New("invalid id")

// userIDFromContext 读取鉴权中间件注入的用户 ID，匿名请求返回 false。
func userIDFromContext(c *gin.Context) (uint, bool) {
	id, ok := c.Value(middleware.ContextUserID).(uint)
	return id, ok && id > 0
}

// parseIDParam 解析路径中的正整数 ID。
func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 0)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}

// loggerFrom 优先使用请求级 logger，其次是处理器自身的 logger。
func loggerFrom(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if l := middleware.LoggerFromContext(c); l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
