package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/geocoder89/parcelhub/internal/auth"
	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/domain/user"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/repo/postgres"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/geocoder89/parcelhub/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

const refreshCookieName = "refresh_token"

type AuthUsers interface {
	Create(ctx context.Context, in user.NewUser) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdatePasswordTx(ctx context.Context, tx pgx.Tx, id, hash string) error
}

type RefreshTokenStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error
}

type AuthHandler struct {
	users        AuthUsers
	jwt          *auth.Manager
	refreshStore RefreshTokenStore
	sessions     *middlewares.Sessions
	sanitizer    *security.Sanitizer
	cfg          config.Config
	log          *slog.Logger
}

func NewAuthHandler(
	users AuthUsers,
	jwtManager *auth.Manager,
	refreshStore RefreshTokenStore,
	sessions *middlewares.Sessions,
	sanitizer *security.Sanitizer,
	cfg config.Config,
	log *slog.Logger,
) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		users:        users,
		jwt:          jwtManager,
		refreshStore: refreshStore,
		sessions:     sessions,
		sanitizer:    sanitizer,
		cfg:          cfg,
		log:          log,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPair struct {
	access       string
	refresh      string
	refreshUntil time.Time
}

// respondHashError reports a password bcrypt cannot take as a field error.
func respondHashError(ctx *gin.Context, field string, err error, fallback string) {
	if errors.Is(err, security.ErrPasswordTooLong) {
		respondFieldErrors(ctx, FieldError{Field: field, Rule: "max", Param: "72", Message: "must be at most 72 bytes"})
		return
	}
	RespondInternal(ctx, fallback)
}

// cleanName strips markup from a display name. A name that was mostly markup
// fails the same length rule the binding applies.
func cleanName(ctx *gin.Context, s *security.Sanitizer, raw string) (string, bool) {
	name := s.Text(raw)
	if utf8.RuneCountInString(name) < 2 {
		respondFieldErrors(ctx, FieldError{Field: "name", Rule: "min", Param: "2", Message: ruleMessage("min", "2")})
		return "", false
	}
	return name, true
}

func subjectFor(u user.User) auth.Subject {
	return auth.Subject{
		UserID:  u.ID,
		Email:   u.Email,
		Role:    u.Role.String(),
		Station: u.StationCode(),
	}
}

// POST /auth/signup
func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req user.SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	name, ok := cleanName(ctx, h.sanitizer, req.Name)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		respondHashError(ctx, "password", err, "Could not create user")
		return
	}

	// self-service accounts are always plain users
	u, err := h.users.Create(cctx, user.NewUser{
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         role.User,
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondConflict(ctx, "email_taken", "Email is already in use.")
			return
		}
		RespondInternal(ctx, "Could not create user")
		return
	}

	pair, err := h.issueTokens(cctx, u)
	if err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.setRefreshCookie(ctx, pair.refresh, pair.refreshUntil)

	ctx.JSON(http.StatusCreated, gin.H{
		"accessToken":  pair.access,
		"refreshToken": pair.refresh,
		"user":         u,
	})
}

// POST /auth/login
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	found, err := h.users.GetByEmail(cctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		security.BurnCompare(req.Password)
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	if err := security.CheckPassword(found.PasswordHash, req.Password); err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	if !found.Active {
		RespondForbidden(ctx, "account_inactive", "This account has been deactivated.")
		return
	}

	pair, err := h.issueTokens(cctx, found)
	if err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	if h.sessions != nil {
		if err := h.openSession(ctx, found, pair); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "open login session", "user_id", found.ID, "err", err)
		}
	}

	h.setRefreshCookie(ctx, pair.refresh, pair.refreshUntil)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.access,
		"refreshToken": pair.refresh,
		"user":         found,
		"redirectTo":   found.Role.DefaultLanding(),
	})
}

func (h *AuthHandler) openSession(ctx *gin.Context, u user.User, pair tokenPair) error {
	store, err := h.sessions.Start(ctx, u.ID)
	if err != nil {
		return err
	}

	id := session.FromUser(u)
	if err := store.Set(ctx.Request.Context(), &id); err != nil {
		return err
	}
	return store.SetTokens(ctx.Request.Context(), pair.access, pair.refresh)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw := h.presentedRefreshToken(ctx)
	if raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	// rotation under a row lock
	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	row, err := h.refreshStore.GetForUpdate(cctx, tx, claims.ID)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if row.RevokedAt != nil {
		// a rotated-out token coming back means it leaked; end every session
		if row.ReplacedBy != nil && row.TokenHash == h.jwt.HashRefreshToken(raw) {
			if err := h.refreshStore.RevokeAllForUser(cctx, tx, row.UserID); err == nil {
				_ = tx.Commit(cctx)
			}
			h.log.WarnContext(ctx.Request.Context(), "refresh token reuse", "user_id", row.UserID, "jti", row.ID)
			RespondUnAuthorized(ctx, "refresh_reused", "Refresh token was already used. Please sign in again.")
			return
		}
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}
	if !row.Usable(time.Now().UTC()) {
		RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	}

	// prevents token substitution
	if row.TokenHash != h.jwt.HashRefreshToken(raw) {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token.")
		return
	}

	// role or station may have changed since the token was issued
	u, err := h.users.GetByID(cctx, row.UserID)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token.")
		return
	}
	if !u.Active {
		RespondForbidden(ctx, "account_inactive", "This account has been deactivated.")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(subjectFor(u))
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := h.refreshStore.Revoke(cctx, tx, row.ID, &newJTI); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	err = h.refreshStore.Create(cctx, tx, postgres.RefreshTokenRow{
		ID:        newJTI,
		UserID:    row.UserID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "store rotated refresh token", "err", err)
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "commit refresh rotation", "err", err)
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(subjectFor(u))
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	if store, ok := middlewares.SessionFromContext(ctx); ok && store.Authenticated() {
		_ = store.SetTokens(ctx.Request.Context(), accessToken, newRaw)
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken":  accessToken,
		"refreshToken": newRaw,
	})
}

// POST /auth/logout
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw := h.presentedRefreshToken(ctx)

	store, hasSession := middlewares.SessionFromContext(ctx)
	if raw == "" && hasSession {
		_, raw = store.Tokens()
	}

	if raw != "" {
		h.revoke(ctx, raw)
	}

	if hasSession {
		if err := store.Logout(ctx.Request.Context()); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "clear session", "err", err)
		}
	}
	if h.sessions != nil {
		h.sessions.End(ctx)
	}

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// revoke drops one refresh token. Logout succeeds even when it cannot.
func (h *AuthHandler) revoke(ctx *gin.Context, raw string) {
	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	// idempotent
	_ = h.refreshStore.Revoke(cctx, tx, claims.ID, nil)
	_ = tx.Commit(cctx)
}

// PUT /auth/change-password/
func (h *AuthHandler) ChangePassword(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req user.ChangePasswordRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		respondDomainError(ctx, err, "Could not change password")
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.CurrentPassword); err != nil {
		RespondBadRequest(ctx, "Current password is incorrect", gin.H{
			"fields": []FieldError{{Field: "currentPassword", Rule: "match", Message: "is incorrect"}},
		})
		return
	}

	hash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		respondHashError(ctx, "newPassword", err, "Could not change password")
		return
	}

	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	if err := h.users.UpdatePasswordTx(cctx, tx, u.ID, hash); err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	// every other device has to sign in again
	if err := h.refreshStore.RevokeAllForUser(cctx, tx, u.ID); err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if h.sessions != nil {
		if err := h.sessions.EndAll(ctx.Request.Context(), u.ID); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "end sessions after password change", "user_id", u.ID, "err", err)
		}
		h.sessions.End(ctx)
	}

	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) issueTokens(ctx context.Context, u user.User) (tokenPair, error) {
	access, err := h.jwt.GenerateAccessToken(subjectFor(u))
	if err != nil {
		return tokenPair{}, err
	}

	raw, jti, expiresAt, err := h.jwt.GenerateRefreshToken(subjectFor(u))
	if err != nil {
		return tokenPair{}, err
	}

	if err := h.storeRefreshToken(ctx, u.ID, jti, raw, expiresAt); err != nil {
		return tokenPair{}, err
	}

	return tokenPair{access: access, refresh: raw, refreshUntil: expiresAt}, nil
}

func (h *AuthHandler) storeRefreshToken(ctx context.Context, userID, jti, raw string, expiresAt time.Time) error {
	tx, err := h.refreshStore.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.refreshStore.Create(ctx, tx, row); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// presentedRefreshToken prefers the cookie and falls back to the JSON body.
func (h *AuthHandler) presentedRefreshToken(ctx *gin.Context) string {
	if raw, err := ctx.Cookie(refreshCookieName); err == nil && raw != "" {
		return raw
	}

	if ctx.Request.ContentLength == 0 {
		return ""
	}

	var body RefreshRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.RefreshToken)
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, raw, maxAge, "/auth", "", secure, true)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, "/auth", "", secure, true)
}
