package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/display"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/geocoder89/parcelhub/internal/domain/user"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type UsersRepo interface {
	Create(ctx context.Context, in user.NewUser) (user.User, error)
	SetActive(ctx context.Context, id string, active bool) (user.User, error)
	ListCursor(ctx context.Context, f user.ListFilter, after *utils.Cursor) ([]user.User, *string, error)
}

type UsersHandler struct {
	repo      UsersRepo
	sanitizer *security.Sanitizer
	sessions  *middlewares.Sessions
}

func NewUsersHandler(repo UsersRepo, sanitizer *security.Sanitizer, sessions *middlewares.Sessions) *UsersHandler {
	return &UsersHandler{repo: repo, sanitizer: sanitizer, sessions: sessions}
}

type UserResponse struct {
	user.User
	Display display.ActiveView `json:"display"`
}

func toUserResponse(u user.User) UserResponse {
	return UserResponse{User: u, Display: display.ForUser(u)}
}

// GET /users/?role=&active=&q=&limit=&cursor=
func (h *UsersHandler) List(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)

	limit, after, ok := pageParams(ctx)
	if !ok {
		return
	}

	active, ok := parseBoolQuery(ctx, "active")
	if !ok {
		RespondBadRequest(ctx, "active must be true or false", gin.H{"field": "active"})
		return
	}

	f := user.ListFilter{Active: active, Query: optionalString(ctx, "q"), Limit: limit}

	if raw := ctx.Query("role"); raw != "" {
		r, err := role.Parse(raw)
		if err != nil {
			RespondBadRequest(ctx, "role is invalid", gin.H{"field": "role"})
			return
		}
		f.Role = &r
	}

	// admins only manage customers
	if p.Role == role.Admin {
		if f.Role != nil && *f.Role != role.User {
			RespondForbidden(ctx, "forbidden", "Admins can only list user accounts")
			return
		}
		u := role.User
		f.Role = &u
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, next, err := h.repo.ListCursor(cctx, f, after)
	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	out := make([]UserResponse, 0, len(items))
	for _, u := range items {
		out = append(out, toUserResponse(u))
	}

	RespondWithETag(ctx, http.StatusOK, pageResponse(out, len(out), limit, next))
}

// POST /users/
func (h *UsersHandler) Create(ctx *gin.Context) {
	var req user.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if req.Station != nil {
		code := station.NormalizeCode(*req.Station)
		req.Station = &code
	}
	if err := req.Validate(); err != nil {
		respondFieldErrors(ctx, FieldError{Field: "station", Rule: "required", Message: "is required for admin accounts"})
		return
	}

	name, ok := cleanName(ctx, h.sanitizer, req.Name)
	if !ok {
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		respondHashError(ctx, "password", err, "Could not create user")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.repo.Create(cctx, user.NewUser{
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         req.Role,
		Station:      req.Station,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			RespondConflict(ctx, "email_taken", "Email is already in use.")
		case errors.Is(err, station.ErrNotFound):
			RespondBadRequest(ctx, "Station does not exist", gin.H{"field": "station"})
		default:
			RespondInternal(ctx, "Could not create user")
		}
		return
	}

	ctx.JSON(http.StatusCreated, toUserResponse(u))
}

// PATCH /users/:id/activate/
func (h *UsersHandler) Activate(ctx *gin.Context) {
	h.setActive(ctx, true)
}

// PATCH /users/:id/deactivate/
func (h *UsersHandler) Deactivate(ctx *gin.Context) {
	h.setActive(ctx, false)
}

func (h *UsersHandler) setActive(ctx *gin.Context, active bool) {
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondNotFound(ctx, "User not found")
		return
	}

	if !active {
		if self, _ := middlewares.UserIDFromContext(ctx); self == id {
			RespondConflict(ctx, "cannot_deactivate_self", "You cannot deactivate your own account")
			return
		}
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.repo.SetActive(cctx, id, active)
	if err != nil {
		respondDomainError(ctx, err, "Could not update user")
		return
	}

	// a deactivated account is signed out everywhere
	if !active && h.sessions != nil {
		if err := h.sessions.EndAll(cctx, u.ID); err != nil {
			RespondInternal(ctx, "Could not end the user's sessions")
			return
		}
	}

	ctx.JSON(http.StatusOK, toUserResponse(u))
}
