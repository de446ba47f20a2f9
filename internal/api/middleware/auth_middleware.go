package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"careerHub/internal/auth"
	"careerHub/internal/database"
)

// gin.Context 中的鉴权信息键。
const (
	ContextUserID             = "userID"
	ContextRole               = "role"
	ContextMustChangePassword = "mustChangePassword"
)

// TokenValidator 校验访问令牌。
type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将 userID 注入上下文。
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := accessClaims(c, validator)
		if !ok {
			abortUnauthorized(c)
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware 有合法令牌时注入身份，没有时按匿名访问继续。
func OptionalAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := accessClaims(c, validator); ok {
			setIdentity(c, claims)
		}
		c.Next()
	}
}

// RequireAdmin 仅允许管理员访问，需放在 AuthMiddleware 之后。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(ContextRole); role != database.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// RequirePasswordChanged 拒绝令牌中仍带 must_change_password 的账号，需放在鉴权中间件之后。
func RequirePasswordChanged() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextMustChangePassword) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "password change required"})
			return
		}
		c.Next()
	}
}

func accessClaims(c *gin.Context, validator TokenValidator) (*auth.TokenClaims, bool) {
	scheme, rawToken, found := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	rawToken = strings.TrimSpace(rawToken)
	if !found || !strings.EqualFold(scheme, "Bearer") || rawToken == "" {
		return nil, false
	}

	claims, err := validator.ValidateToken(rawToken)
	if err != nil || claims.TokenType != auth.TokenTypeAccess {
		return nil, false
	}
	return claims, true
}

func setIdentity(c *gin.Context, claims *auth.TokenClaims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
	c.Set(ContextMustChangePassword, claims.MustChangePassword)
}
