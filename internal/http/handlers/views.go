package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/display"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/session"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type ParcelLister interface {
	ListCursor(ctx context.Context, f parcel.ListFilter, after *utils.Cursor) ([]parcel.Parcel, *string, error)
}

// ViewsHandler serves the session-cookie navigation routes. Each returns the
// view model a client renders; access is decided by middlewares.RequireView.
type ViewsHandler struct {
	dashboards *DashboardHandler
	parcels    ParcelLister
}

func NewViewsHandler(dashboards *DashboardHandler, parcels ParcelLister) *ViewsHandler {
	return &ViewsHandler{dashboards: dashboards, parcels: parcels}
}

type viewer struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	Role    role.Role     `json:"role"`
	Station string        `json:"station,omitempty"`
	Badge   display.Badge `json:"badge"`
}

func toViewer(id *session.Identity) viewer {
	return viewer{
		ID:      id.ID,
		Name:    id.Name,
		Email:   id.Email,
		Role:    id.Role,
		Station: id.StationCode(),
		Badge:   display.UserActiveBadge(id.Active),
	}
}

// GET /login
func (h *ViewsHandler) Login(ctx *gin.Context) {
	if store, ok := middlewares.SessionFromContext(ctx); ok {
		if id := store.Current(); id != nil {
			ctx.Redirect(http.StatusFound, id.Role.DefaultLanding())
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"view": "login"})
}

// GET /admin/dashboard
func (h *ViewsHandler) AdminDashboard(ctx *gin.Context) {
	id, _ := middlewares.ViewerFromContext(ctx)

	summary, _, err := h.dashboards.adminSummary(ctx.Request.Context(), id.StationCode())
	if err != nil {
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"view":    "admin_dashboard",
		"viewer":  toViewer(id),
		"summary": summary,
	})
}

// GET /superadmin/dashboard
func (h *ViewsHandler) SuperadminDashboard(ctx *gin.Context) {
	id, _ := middlewares.ViewerFromContext(ctx)

	summary, _, err := h.dashboards.superadminSummary(ctx.Request.Context())
	if err != nil {
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"view":    "superadmin_dashboard",
		"viewer":  toViewer(id),
		"summary": summary,
	})
}

// GET /my-deliveries
func (h *ViewsHandler) MyDeliveries(ctx *gin.Context) {
	id, _ := middlewares.ViewerFromContext(ctx)

	f := parcel.ListFilter{Limit: defaultPageSize}
	switch id.Role {
	case role.User:
		uid := id.ID
		f.SenderUserID = &uid
	case role.Admin:
		st := id.StationCode()
		f.Station = &st
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, next, err := h.parcels.ListCursor(cctx, f, nil)
	if err != nil {
		RespondInternal(ctx, "Could not load deliveries")
		return
	}

	out := make([]ParcelResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toParcelResponse(it))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"view":       "my_deliveries",
		"viewer":     toViewer(id),
		"parcels":    out,
		"nextCursor": next,
	})
}
