package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"cohortflow/internal/api/middleware"
	"cohortflow/internal/auth"
	"cohortflow/internal/config"
	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/store"
)

const refreshTokenCookieName = "refresh_token"
const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

// AuthHandler 处理注册、登录、刷新、改密与退出。
type AuthHandler struct {
	users                 store.UserStore
	issuer                *auth.Issuer
	cache                 authCache
	logger                *slog.Logger
	loginRateLimitPerHour int
	loginLockThreshold    int
	loginLockTTL          time.Duration
	cookieDomain          string
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(users store.UserStore, issuer *auth.Issuer, cache authCache, logger *slog.Logger, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		users:                 users,
		issuer:                issuer,
		cache:                 cache,
		logger:                logger,
		loginRateLimitPerHour: cfg.LoginRateLimitPerHour,
		loginLockThreshold:    cfg.LoginLockThreshold,
		loginLockTTL:          cfg.LoginLockTTL,
		cookieDomain:          cfg.CookieDomain,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,max=72"`
}

type userResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// Register 创建申请人账号；员工账号只能通过 cmd/admin 创建。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := h.loggerFromContext(c).With(slog.String("email", email))

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}

	user := database.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         domain.RoleApplicant,
		PasswordHash: hashed,
	}
	if err := h.users.Create(ctx, &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Info("register conflict: email already registered")
			Conflict(c, "email already registered")
			return
		}
		RespondError(c, errcode.NewInternal(err))
		return
	}

	logger.Info("user registered", slog.String("user_id", user.ID))
	c.JSON(http.StatusCreated, userResponse{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string      `json:"access_token"`
	TokenType          string      `json:"token_type"`
	ExpiresIn          int64       `json:"expires_in"`
	MustChangePassword bool        `json:"must_change_password"`
	Role               domain.Role `json:"role"`
}

// Login 校验口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := h.loggerFromContext(c).With(slog.String("email", email))

	// 速率限制：每 IP+邮箱 每小时 N 次
	rateKey := "rate:login:" + c.ClientIP() + ":" + email + ":" + time.Now().UTC().Format("2006010215")
	count, err := incrWithTTL(ctx, h.cache, rateKey, time.Hour)
	if err != nil {
		count = 0
	}
	if h.loginRateLimitPerHour > 0 && count > int64(h.loginRateLimitPerHour) {
		TooManyRequests(c, "rate limit exceeded")
		return
	}

	// 锁定检查
	if ttl, _ := h.cache.TTL(ctx, "lock:login:"+email).Result(); ttl > 0 {
		TooManyRequests(c, "account temporarily locked")
		return
	}

	user, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("login failed: user not found")
			_ = h.incrementLoginFail(ctx, email)
			Unauthorized(c)
			return
		}
		RespondError(c, errcode.NewInternal(err))
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.String("user_id", user.ID))
		_ = h.incrementLoginFail(ctx, email)
		Unauthorized(c)
		return
	}

	// 登录成功：清理失败计数
	_ = h.cache.Del(ctx, "lock:login:fail:"+email).Err()

	h.issueAndReply(c, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair；角色与改密标记以库中为准。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	claims, ok := h.verifyRefreshToken(c, logger)
	if !ok {
		return
	}

	user, err := h.users.Get(ctx, claims.Subject)
	if err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	// 旋转旧刷新令牌，防止重复使用。
	if err := h.revokeRefreshToken(ctx, claims.ID, claims.ExpiresAt); err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}

	h.issueAndReply(c, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,max=72"`
	NewPassword     string `json:"new_password" binding:"required,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required,max=72"`
}

// ChangePassword 校验当前密码并更新为新密码，同时清除强制改密标记。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}
	if err := auth.ValidatePasswordStrength(req.NewPassword); err != nil {
		BadRequest(c, err.Error())
		return
	}

	sess := middleware.SessionFromContext(c)
	if sess == nil {
		Unauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("user_id", sess.UserID))

	user, err := h.users.Get(ctx, sess.UserID)
	if err != nil {
		logger.Info("change password: user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		logger.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}
	if req.NewPassword == req.CurrentPassword {
		BadRequest(c, "new password must be different from current password")
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}
	if err := h.users.UpdateCredentials(ctx, user.ID, hashed, false); err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}
	user.MustChangePassword = false

	if refreshToken, err := c.Cookie(refreshTokenCookieName); err == nil && refreshToken != "" {
		if claims, err := h.issuer.Parse(refreshToken, auth.TokenTypeRefresh); err == nil && claims.ID != "" {
			if err := h.revokeRefreshToken(ctx, claims.ID, claims.ExpiresAt); err != nil {
				RespondError(c, errcode.NewInternal(err))
				return
			}
		}
	}

	logger.Info("password changed")
	h.issueAndReply(c, user)
}

// Logout 将刷新令牌加入黑名单，防止继续使用。
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	claims, ok := h.verifyRefreshToken(c, logger)
	if !ok {
		return
	}
	if err := h.revokeRefreshToken(ctx, claims.ID, claims.ExpiresAt); err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}

	// 清除 Cookie。
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
	})
	c.Status(http.StatusNoContent)
}

// verifyRefreshToken 解析刷新令牌并检查黑名单；失败时已写出响应。
func (h *AuthHandler) verifyRefreshToken(c *gin.Context, logger *slog.Logger) (*auth.Claims, bool) {
	refreshToken := extractRefreshToken(c)
	if refreshToken == "" {
		Unauthorized(c)
		return nil, false
	}

	claims, err := h.issuer.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		logger.Info("refresh token invalid", slog.Any("error", err))
		Unauthorized(c)
		return nil, false
	}
	if claims.ID == "" {
		logger.Info("refresh token missing jti")
		Unauthorized(c)
		return nil, false
	}

	revoked, err := h.cache.Exists(c.Request.Context(), refreshTokenBlacklistKeyPrefix+claims.ID).Result()
	if err != nil {
		RespondError(c, errcode.NewInternal(err))
		return nil, false
	}
	if revoked > 0 {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) issueAndReply(c *gin.Context, user *database.User) {
	pair, err := h.issuer.Issue(auth.Identity{
		UserID:             user.ID,
		Name:               user.Name,
		Email:              user.Email,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	})
	if err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          pair.ExpiresIn,
		MustChangePassword: user.MustChangePassword,
		Role:               user.Role,
	})
}

func extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	ttl := h.issuer.RefreshTokenTTL()
	if ttl <= 0 {
		ttl = time.Hour
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    refreshToken,
		MaxAge:   int(ttl.Seconds()),
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
		Expires:  time.Now().Add(ttl),
	})
}

func (h *AuthHandler) revokeRefreshToken(ctx context.Context, jti string, expiresAt *jwt.NumericDate) error {
	ttl := h.issuer.RefreshTokenTTL()
	if expiresAt != nil {
		ttl = time.Until(expiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return h.cache.Set(ctx, refreshTokenBlacklistKeyPrefix+jti, "revoked", ttl).Err()
}

func (h *AuthHandler) incrementLoginFail(ctx context.Context, email string) error {
	failKey := "lock:login:fail:" + email
	count, err := incrWithTTL(ctx, h.cache, failKey, h.loginLockTTL)
	if err != nil {
		return err
	}
	if h.loginLockThreshold > 0 && count >= int64(h.loginLockThreshold) {
		_ = h.cache.Set(ctx, "lock:login:"+email, "1", h.loginLockTTL).Err()
	}
	return nil
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return middleware.LoggerOr(c, h.logger)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request == nil {
		return false
	}
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}
