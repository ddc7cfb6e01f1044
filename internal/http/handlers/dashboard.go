package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/cache"
	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/repo/postgres"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type DashboardRepo interface {
	AdminSummary(ctx context.Context, station string) (postgres.AdminSummary, error)
	SuperadminSummary(ctx context.Context) (postgres.SuperadminSummary, error)
}

type DashboardHandler struct {
	repo  DashboardRepo
	cache *cache.Cache
}

func NewDashboardHandler(repo DashboardRepo, c *cache.Cache) *DashboardHandler {
	return &DashboardHandler{repo: repo, cache: c}
}

func (h *DashboardHandler) adminSummary(ctx context.Context, station string) (postgres.AdminSummary, bool, error) {
	load := func() (postgres.AdminSummary, error) {
		cctx, cancel := config.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return h.repo.AdminSummary(cctx, station)
	}
	if h.cache == nil {
		s, err := load()
		return s, false, err
	}
	return cache.GetOrLoad(h.cache, utils.BuildAdminDashboardCacheKey(station), load)
}

func (h *DashboardHandler) superadminSummary(ctx context.Context) (postgres.SuperadminSummary, bool, error) {
	load := func() (postgres.SuperadminSummary, error) {
		cctx, cancel := config.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return h.repo.SuperadminSummary(cctx)
	}
	if h.cache == nil {
		s, err := load()
		return s, false, err
	}
	return cache.GetOrLoad(h.cache, utils.BuildSuperadminDashboardCacheKey(), load)
}

func setCacheHeader(ctx *gin.Context, hit bool) {
	if hit {
		ctx.Header("X-Cache", "HIT")
		return
	}
	ctx.Header("X-Cache", "MISS")
}

// GET /dashboard/admin/
func (h *DashboardHandler) Admin(ctx *gin.Context) {
	station, ok := middlewares.StationFromContext(ctx)
	if !ok {
		RespondForbidden(ctx, "forbidden", "Admin account is not bound to a station")
		return
	}

	s, hit, err := h.adminSummary(ctx.Request.Context(), station)
	if err != nil {
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	setCacheHeader(ctx, hit)
	RespondWithETag(ctx, http.StatusOK, s)
}

// GET /dashboard/superadmin/
func (h *DashboardHandler) Superadmin(ctx *gin.Context) {
	s, hit, err := h.superadminSummary(ctx.Request.Context())
	if err != nil {
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	setCacheHeader(ctx, hit)
	RespondWithETag(ctx, http.StatusOK, s)
}
