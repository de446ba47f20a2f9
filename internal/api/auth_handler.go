package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"careerHub/internal/auth"
	"careerHub/internal/config"
	"careerHub/internal/database"
	"careerHub/internal/errcode"
)

const registerRedirect = "/register"

var (
	errEmailTaken  = errors.New("email already registered")
	errMobileTaken = errors.New("mobile number already registered")
)

// AuthHandler 处理注册、登录、令牌刷新、退出与改密。
type AuthHandler struct {
	db           *gorm.DB
	authService  *auth.AuthService
	guard        *loginGuard
	revocations  refreshRevocations
	logger       *slog.Logger
	cookieDomain string
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, authCfg config.AuthConfig, cookieDomain string) *AuthHandler {
	return &AuthHandler{
		db:           db,
		authService:  authService,
		guard:        newLoginGuard(redisClient, authCfg.LoginRateLimitPerHour, authCfg.LoginLockThreshold, authCfg.LoginLockTTL),
		revocations:  refreshRevocations{redis: redisClient, defaultTTL: authService.RefreshTokenTTL()},
		logger:       logger,
		cookieDomain: cookieDomain,
	}
}

type registerRequest struct {
	Name     string `form:"name" json:"name" binding:"required,max=150"`
	Email    string `form:"email" json:"email" binding:"required,email,max=254"`
	Password string `form:"password" json:"password" binding:"required"`
	Mobile   string `form:"mobile" json:"mobile" binding:"omitempty,max=15"`
	Status   string `form:"status" json:"status" binding:"omitempty,max=20"`
}

// Register 创建账号及其资料并直接登录。邮箱或手机号已存在时返回 409。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		Fail(c, http.StatusBadRequest, errcode.InvalidInput, err.Error(), registerRedirect)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	mobile := strings.TrimSpace(req.Mobile)

	if err := auth.ValidatePassword(req.Password); err != nil {
		Fail(c, http.StatusBadRequest, errcode.InvalidInput, err.Error(), registerRedirect)
		return
	}

	log := loggerFrom(c, h.logger).With(slog.String("email", email))

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Email:        email,
		FirstName:    strings.TrimSpace(req.Name),
		PasswordHash: hashed,
		Role:         database.RoleUser,
	}
	account := database.Profile{
		FullName:   user.FirstName,
		Email:      email,
		WorkStatus: strings.TrimSpace(req.Status),
	}
	if mobile != "" {
		account.Mobile = &mobile
	}

	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if taken, err := exists(tx, &database.User{}, "email = ?", email); err != nil || taken {
			return firstErr(err, errEmailTaken)
		}
		if mobile != "" {
			if taken, err := exists(tx, &database.Profile{}, "mobile = ?", mobile); err != nil || taken {
				return firstErr(err, errMobileTaken)
			}
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		account.UserID = user.ID
		return tx.Create(&account).Error
	})
	switch {
	case errors.Is(err, errEmailTaken):
		log.Info("register conflict: email already exists")
		Fail(c, http.StatusConflict, errcode.DuplicateEmail, err.Error(), registerRedirect)
		return
	case errors.Is(err, errMobileTaken):
		log.Info("register conflict: mobile already exists")
		Fail(c, http.StatusConflict, errcode.DuplicateMobile, err.Error(), registerRedirect)
		return
	case err != nil:
		log.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	log.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	h.issueTokens(c, user, http.StatusCreated)
}

func exists(tx *gorm.DB, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := tx.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

type loginRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Login 校验口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx := c.Request.Context()
	log := loggerFrom(c, h.logger).With(slog.String("email", email))

	if !h.guard.allow(ctx, c.ClientIP(), email) {
		Error(c, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if h.guard.locked(ctx, email) {
		Error(c, http.StatusTooManyRequests, "account temporarily locked")
		return
	}

	var user database.User
	err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Info("login failed: user not found")
		_ = h.guard.recordFailure(ctx, email)
		Error(c, http.StatusUnauthorized, "invalid email or password")
		return
	case err != nil:
		log.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		log.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		_ = h.guard.recordFailure(ctx, email)
		Error(c, http.StatusUnauthorized, "invalid email or password")
		return
	}

	h.guard.reset(ctx, email)
	h.issueTokens(c, user, http.StatusOK)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshClaims 读取并校验请求携带的刷新令牌，失败时已写入 401。
func (h *AuthHandler) refreshClaims(c *gin.Context, log *slog.Logger) (*auth.TokenClaims, bool) {
	token := h.extractRefreshToken(c)
	if token == "" {
		Unauthorized(c)
		return nil, false
	}
	claims, err := h.authService.ValidateToken(token)
	switch {
	case err != nil:
		log.Info("refresh token invalid", slog.Any("error", err))
	case claims.TokenType != auth.TokenTypeRefresh:
		log.Info("refresh token wrong type", slog.String("token_type", claims.TokenType))
	case claims.ID == "":
		log.Info("refresh token missing jti")
	default:
		return claims, true
	}
	Unauthorized(c)
	return nil, false
}

// Refresh 校验刷新令牌并颁发新的令牌对，旧令牌随即作废。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	log := loggerFrom(c, h.logger)

	claims, ok := h.refreshClaims(c, log)
	if !ok {
		return
	}

	revoked, err := h.revocations.isRevoked(ctx, claims.ID)
	if err != nil {
		log.Error("refresh token revocation lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if revoked {
		log.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		log.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	if err := h.revocations.revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		log.Error("revoke rotated refresh token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issueTokens(c, user, http.StatusOK)
}

// Logout 作废刷新令牌并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	log := loggerFrom(c, h.logger)

	claims, ok := h.refreshClaims(c, log)
	if !ok {
		return
	}
	if err := h.revocations.revoke(c.Request.Context(), claims.ID, claims.ExpiresAt); err != nil {
		log.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	writeCookie(c, refreshTokenCookieName, "", -1, h.cookieDomain)
	c.Status(http.StatusOK)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,max=72"`
	NewPassword     string `json:"new_password" binding:"required,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required,max=72"`
}

// ChangePassword 校验当前密码后更新密码并解除强制改密标记。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	switch {
	case req.NewPassword != req.ConfirmPassword:
		BadRequest(c, "password confirmation does not match")
		return
	case strings.TrimSpace(req.NewPassword) == strings.TrimSpace(req.CurrentPassword):
		BadRequest(c, "new password must be different from current password")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	log := loggerFrom(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		log.Info("change password: user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		log.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		log.Error("change password: hash failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		log.Error("change password: update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	user.MustChangePassword = false

	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		if claims, err := h.authService.ValidateToken(token); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			if err := h.revocations.revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
				log.Error("change password: revoke refresh failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}
	}

	log.Info("password changed")
	h.issueTokens(c, user, http.StatusOK)
}

// issueTokens 签发令牌对，刷新令牌写入 Cookie，访问令牌放在响应体。
func (h *AuthHandler) issueTokens(c *gin.Context, user database.User, status int) {
	pair, err := h.authService.GenerateTokenPair(auth.Identity{
		UserID:             user.ID,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	})
	if err != nil {
		loggerFrom(c, h.logger).Error("generate token pair failed", slog.Uint64("user_id", uint64(user.ID)), slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	writeCookie(c, refreshTokenCookieName, pair.RefreshToken, h.authService.RefreshTokenTTL(), h.cookieDomain)
	c.JSON(status, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: user.MustChangePassword,
	})
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}
