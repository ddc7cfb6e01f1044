package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/cache"
	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/display"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/ids"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type ParcelsRepo interface {
	Create(ctx context.Context, p parcel.Parcel) (parcel.Parcel, error)
	GetByID(ctx context.Context, id string) (parcel.Parcel, error)
	GetByTrackingCode(ctx context.Context, code string) (parcel.Parcel, error)
	ListCursor(ctx context.Context, f parcel.ListFilter, after *utils.Cursor) ([]parcel.Parcel, *string, error)
	Stats(ctx context.Context, station *string) (parcel.Stats, error)
	Advance(ctx context.Context, id string) (parcel.Parcel, error)
	Fail(ctx context.Context, id, reason string) (parcel.Parcel, error)
}

type ParcelsHandler struct {
	repo      ParcelsRepo
	cache     *cache.Cache
	sanitizer *security.Sanitizer
}

func NewParcelsHandler(repo ParcelsRepo, c *cache.Cache, sanitizer *security.Sanitizer) *ParcelsHandler {
	return &ParcelsHandler{repo: repo, cache: c, sanitizer: sanitizer}
}

// ParcelResponse is a parcel with its display block.
type ParcelResponse struct {
	parcel.Parcel
	Display display.ParcelView `json:"display"`
}

type TrackingResponse struct {
	parcel.Tracking
	Display display.ParcelView `json:"display"`
}

func toParcelResponse(p parcel.Parcel) ParcelResponse {
	return ParcelResponse{Parcel: p, Display: display.ForParcel(p)}
}

// canSee applies the read scope: users see what they sent, admins what
// passes through their station, superadmins everything.
func canSee(p middlewares.Principal, pc parcel.Parcel) bool {
	switch p.Role {
	case role.Superadmin:
		return true
	case role.Admin:
		return pc.TouchesStation(p.Station)
	case role.User:
		return pc.SenderUserID != nil && *pc.SenderUserID == p.UserID
	}
	return false
}

// invalidate drops every cached aggregate a parcel write can change.
func (h *ParcelsHandler) invalidate() {
	if h.cache == nil {
		return
	}
	h.cache.DeletePrefix("parcels:stats:")
	h.cache.DeletePrefix("dashboard:")
}

// respondRepoError reports an unknown station on a parcel write as a bad
// request rather than a missing resource.
func (h *ParcelsHandler) respondRepoError(ctx *gin.Context, err error, fallback string) {
	if errors.Is(err, station.ErrNotFound) {
		RespondBadRequest(ctx, "Station does not exist", nil)
		return
	}
	respondDomainError(ctx, err, fallback)
}

// POST /parcels/
func (h *ParcelsHandler) Create(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)

	var req parcel.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	req.OriginStation = station.NormalizeCode(req.OriginStation)
	req.DestinationStation = station.NormalizeCode(req.DestinationStation)

	switch p.Role {
	case role.Admin:
		// admins register parcels at their own counter
		req.OriginStation = p.Station
	case role.User:
		uid := p.UserID
		req.SenderUserID = &uid
	}

	if req.OriginStation == "" {
		respondFieldErrors(ctx, FieldError{Field: "originStation", Rule: "required", Message: "is required"})
		return
	}
	if req.OriginStation == req.DestinationStation {
		respondFieldErrors(ctx, FieldError{Field: "destinationStation", Rule: "nefield", Param: "originStation", Message: "must differ from originStation"})
		return
	}

	req.Sender.Name = h.sanitizer.Text(req.Sender.Name)
	req.Recipient.Name = h.sanitizer.Text(req.Recipient.Name)
	req.Description = h.sanitizer.Text(req.Description)
	req.CreatedBy = p.UserID

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	created, err := h.repo.Create(cctx, parcel.NewFromCreateRequest(req))
	if err != nil {
		h.respondRepoError(ctx, err, "Could not create parcel")
		return
	}

	h.invalidate()
	ctx.JSON(http.StatusCreated, toParcelResponse(created))
}

// GET /parcels/?status=&paymentStatus=&limit=&cursor=
func (h *ParcelsHandler) List(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)

	limit, after, ok := pageParams(ctx)
	if !ok {
		return
	}

	f := parcel.ListFilter{Limit: limit}

	if raw := ctx.Query("status"); raw != "" {
		s, err := parcel.ParseStatus(raw)
		if err != nil {
			RespondBadRequest(ctx, "status is invalid", gin.H{"field": "status"})
			return
		}
		f.Status = &s
	}
	if raw := ctx.Query("paymentStatus"); raw != "" {
		ps := parcel.PaymentStatus(raw)
		if !ps.Valid() {
			RespondBadRequest(ctx, "paymentStatus is invalid", gin.H{"field": "paymentStatus"})
			return
		}
		f.PaymentStatus = &ps
	}

	switch p.Role {
	case role.Admin:
		st := p.Station
		f.Station = &st
	case role.User:
		uid := p.UserID
		f.SenderUserID = &uid
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, next, err := h.repo.ListCursor(cctx, f, after)
	if err != nil {
		RespondInternal(ctx, "Could not list parcels")
		return
	}

	out := make([]ParcelResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toParcelResponse(it))
	}

	RespondWithETag(ctx, http.StatusOK, pageResponse(out, len(out), limit, next))
}

// GET /parcels/:id/
func (h *ParcelsHandler) Get(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)

	id := ctx.Param("id")
	if !isUUID(id) {
		RespondNotFound(ctx, "Parcel not found")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	pc, err := h.repo.GetByID(cctx, id)
	if err != nil {
		h.respondRepoError(ctx, err, "Could not fetch parcel")
		return
	}

	// out-of-scope parcels are reported as missing
	if !canSee(p, pc) {
		RespondNotFound(ctx, "Parcel not found")
		return
	}

	respondVersioned(ctx, pc.ID, pc.UpdatedAt, toParcelResponse(pc))
}

// GET /parcels/track/:trackingCode/
func (h *ParcelsHandler) Track(ctx *gin.Context) {
	code := ids.NormalizeTrackingCode(ctx.Param("trackingCode"))
	if code == "" {
		RespondNotFound(ctx, "Parcel not found")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	pc, err := h.repo.GetByTrackingCode(cctx, code)
	if err != nil {
		h.respondRepoError(ctx, err, "Could not track parcel")
		return
	}

	respondVersioned(ctx, pc.TrackingCode, pc.UpdatedAt, TrackingResponse{Tracking: pc.Tracking(), Display: display.ForParcel(pc)})
}

// POST /parcels/:id/advance/
func (h *ParcelsHandler) Advance(ctx *gin.Context) {
	h.transition(ctx, func(cctx context.Context, id string) (parcel.Parcel, error) {
		return h.repo.Advance(cctx, id)
	})
}

// POST /parcels/:id/fail/
func (h *ParcelsHandler) Fail(ctx *gin.Context) {
	var req parcel.FailRequest
	if !BindJSON(ctx, &req) {
		return
	}
	reason := h.sanitizer.Text(req.Reason)

	h.transition(ctx, func(cctx context.Context, id string) (parcel.Parcel, error) {
		return h.repo.Fail(cctx, id, reason)
	})
}

func (h *ParcelsHandler) transition(ctx *gin.Context, apply func(context.Context, string) (parcel.Parcel, error)) {
	p, _ := middlewares.PrincipalFromContext(ctx)
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondNotFound(ctx, "Parcel not found")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	cur, err := h.repo.GetByID(cctx, id)
	if err != nil {
		h.respondRepoError(ctx, err, "Could not update parcel")
		return
	}
	if !canSee(p, cur) {
		RespondNotFound(ctx, "Parcel not found")
		return
	}

	updated, err := apply(cctx, id)
	if err != nil {
		h.respondRepoError(ctx, err, "Could not update parcel")
		return
	}

	h.invalidate()
	ctx.JSON(http.StatusOK, toParcelResponse(updated))
}

// GET /parcels/stats/
func (h *ParcelsHandler) Stats(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)

	var scope *string
	if p.Role == role.Admin {
		st := p.Station
		scope = &st
	} else if raw := ctx.Query("station"); raw != "" {
		st := station.NormalizeCode(raw)
		scope = &st
	}

	key := utils.BuildParcelStatsCacheKey("")
	if scope != nil {
		key = utils.BuildParcelStatsCacheKey(*scope)
	}

	load := func() (parcel.Stats, error) {
		cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		return h.repo.Stats(cctx, scope)
	}

	var (
		stats parcel.Stats
		hit   bool
		err   error
	)
	if h.cache != nil {
		stats, hit, err = cache.GetOrLoad(h.cache, key, load)
	} else {
		stats, err = load()
	}
	if err != nil {
		RespondInternal(ctx, "Could not load parcel stats")
		return
	}

	if hit {
		ctx.Header("X-Cache", "HIT")
	} else {
		ctx.Header("X-Cache", "MISS")
	}

	RespondWithETag(ctx, http.StatusOK, stats)
}
