package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/domain/user"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/geocoder89/parcelhub/internal/session"
	"github.com/gin-gonic/gin"
)

type ProfileRepo interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type ProfileHandler struct {
	repo      ProfileRepo
	sanitizer *security.Sanitizer
	sessions  *middlewares.Sessions
}

func NewProfileHandler(repo ProfileRepo, sanitizer *security.Sanitizer, sessions *middlewares.Sessions) *ProfileHandler {
	return &ProfileHandler{repo: repo, sanitizer: sanitizer, sessions: sessions}
}

// GET /profile/
func (h *ProfileHandler) Get(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.repo.GetByID(cctx, userID)
	if err != nil {
		respondDomainError(ctx, err, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

// PATCH /profile/
func (h *ProfileHandler) Update(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	var req user.UpdateProfileRequest
	if !BindJSON(ctx, &req) {
		return
	}

	req.Name = h.sanitizer.TextPtr(req.Name)
	req.Phone = h.sanitizer.TextPtr(req.Phone)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.repo.UpdateProfile(cctx, userID, req)
	if err != nil {
		respondDomainError(ctx, err, "Could not update profile")
		return
	}

	// keep the persisted session copy in step with the account
	if store, ok := middlewares.SessionFromContext(ctx); ok {
		if cur := store.Current(); cur != nil && cur.ID == u.ID {
			id := session.FromUser(u)
			_ = store.Set(ctx.Request.Context(), &id)
		}
	}

	ctx.JSON(http.StatusOK, u)
}

// DELETE /profile/
func (h *ProfileHandler) Delete(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.repo.Delete(cctx, userID); err != nil {
		respondDomainError(ctx, err, "Could not delete account")
		return
	}

	if store, ok := middlewares.SessionFromContext(ctx); ok {
		_ = store.Logout(ctx.Request.Context())
	}
	if h.sessions != nil {
		_ = h.sessions.EndAll(cctx, userID)
		h.sessions.End(ctx)
	}

	ctx.Status(http.StatusNoContent)
}
