package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/cache"
	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/display"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/payment"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type PaymentsRepo interface {
	Create(ctx context.Context, p payment.Payment) (payment.Payment, error)
	GetByID(ctx context.Context, id string) (payment.Payment, error)
	ListCursor(ctx context.Context, f payment.ListFilter, after *utils.Cursor) ([]payment.Payment, *string, error)
	Transition(ctx context.Context, id string, to payment.Status) (payment.Payment, error)
}

type ParcelLookup interface {
	GetByID(ctx context.Context, id string) (parcel.Parcel, error)
}

type PaymentsHandler struct {
	repo    PaymentsRepo
	parcels ParcelLookup
	cache   *cache.Cache
}

func NewPaymentsHandler(repo PaymentsRepo, parcels ParcelLookup, c *cache.Cache) *PaymentsHandler {
	return &PaymentsHandler{repo: repo, parcels: parcels, cache: c}
}

type PaymentResponse struct {
	payment.Payment
	StatusBadge display.Badge `json:"statusBadge"`
}

func toPaymentResponse(p payment.Payment) PaymentResponse {
	return PaymentResponse{Payment: p, StatusBadge: display.PaymentStatusBadge(string(p.Status))}
}

// inScope loads the payment's parcel and checks the caller may act on it.
func (h *PaymentsHandler) inScope(ctx context.Context, p middlewares.Principal, parcelID string) (bool, error) {
	if p.Role == role.Superadmin {
		return true, nil
	}

	pc, err := h.parcels.GetByID(ctx, parcelID)
	if err != nil {
		return false, err
	}
	return p.Role == role.Admin && pc.TouchesStation(p.Station), nil
}

func (h *PaymentsHandler) invalidate() {
	if h.cache == nil {
		return
	}
	h.cache.DeletePrefix("parcels:stats:")
	h.cache.DeletePrefix("dashboard:")
}

// POST /payments/
func (h *PaymentsHandler) Create(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)

	var req payment.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}
	req.RecordedBy = p.UserID

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	ok, err := h.inScope(cctx, p, req.ParcelID)
	if err != nil {
		respondDomainError(ctx, err, "Could not record payment")
		return
	}
	if !ok {
		RespondNotFound(ctx, "Parcel not found")
		return
	}

	created, err := h.repo.Create(cctx, payment.NewFromCreateRequest(req))
	if err != nil {
		respondDomainError(ctx, err, "Could not record payment")
		return
	}

	h.invalidate()
	ctx.JSON(http.StatusCreated, toPaymentResponse(created))
}

// GET /payments/?status=&method=&parcelId=&limit=&cursor=
func (h *PaymentsHandler) List(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)

	limit, after, ok := pageParams(ctx)
	if !ok {
		return
	}

	f := payment.ListFilter{Limit: limit}

	if raw := ctx.Query("status"); raw != "" {
		s := payment.Status(raw)
		if !s.Valid() {
			RespondBadRequest(ctx, "status is invalid", gin.H{"field": "status"})
			return
		}
		f.Status = &s
	}
	if raw := ctx.Query("method"); raw != "" {
		m := payment.Method(raw)
		if !m.Valid() {
			RespondBadRequest(ctx, "method is invalid", gin.H{"field": "method"})
			return
		}
		f.Method = &m
	}
	if raw := ctx.Query("parcelId"); raw != "" {
		if !isUUID(raw) {
			RespondBadRequest(ctx, "parcelId is invalid", gin.H{"field": "parcelId"})
			return
		}
		f.ParcelID = &raw
	}

	if p.Role == role.Admin {
		st := p.Station
		f.Station = &st
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, next, err := h.repo.ListCursor(cctx, f, after)
	if err != nil {
		RespondInternal(ctx, "Could not list payments")
		return
	}

	out := make([]PaymentResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toPaymentResponse(it))
	}

	RespondWithETag(ctx, http.StatusOK, pageResponse(out, len(out), limit, next))
}

// GET /payments/:id/
func (h *PaymentsHandler) Get(ctx *gin.Context) {
	p, _ := middlewares.PrincipalFromContext(ctx)
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondNotFound(ctx, "Payment not found")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	pm, err := h.repo.GetByID(cctx, id)
	if err != nil {
		respondDomainError(ctx, err, "Could not fetch payment")
		return
	}

	ok, err := h.inScope(cctx, p, pm.ParcelID)
	if err != nil {
		respondDomainError(ctx, err, "Could not fetch payment")
		return
	}
	if !ok {
		RespondNotFound(ctx, "Payment not found")
		return
	}

	respondVersioned(ctx, pm.ID, pm.UpdatedAt, toPaymentResponse(pm))
}

// POST /payments/:id/complete/
func (h *PaymentsHandler) Complete(ctx *gin.Context) { h.transition(ctx, payment.StatusCompleted) }

// POST /payments/:id/refund/
func (h *PaymentsHandler) Refund(ctx *gin.Context) { h.transition(ctx, payment.StatusRefunded) }

// POST /payments/:id/fail/
func (h *PaymentsHandler) Fail(ctx *gin.Context) { h.transition(ctx, payment.StatusFailed) }

func (h *PaymentsHandler) transition(ctx *gin.Context, to payment.Status) {
	p, _ := middlewares.PrincipalFromContext(ctx)
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondNotFound(ctx, "Payment not found")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	cur, err := h.repo.GetByID(cctx, id)
	if err != nil {
		respondDomainError(ctx, err, "Could not update payment")
		return
	}

	ok, err := h.inScope(cctx, p, cur.ParcelID)
	if err != nil {
		respondDomainError(ctx, err, "Could not update payment")
		return
	}
	if !ok {
		RespondNotFound(ctx, "Payment not found")
		return
	}

	updated, err := h.repo.Transition(cctx, id, to)
	if err != nil {
		respondDomainError(ctx, err, "Could not update payment")
		return
	}

	h.invalidate()
	ctx.JSON(http.StatusOK, toPaymentResponse(updated))
}
