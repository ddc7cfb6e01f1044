package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/display"
	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/gin-gonic/gin"
)

type StationsRepo interface {
	Create(ctx context.Context, s station.Station) (station.Station, error)
	GetByCode(ctx context.Context, code string) (station.Station, error)
	List(ctx context.Context, active *bool) ([]station.Station, error)
	Update(ctx context.Context, code string, req station.UpdateRequest) (station.Station, error)
	ToggleActive(ctx context.Context, code string) (station.Station, error)
}

type StationsHandler struct {
	repo      StationsRepo
	sanitizer *security.Sanitizer
}

func NewStationsHandler(repo StationsRepo, sanitizer *security.Sanitizer) *StationsHandler {
	return &StationsHandler{repo: repo, sanitizer: sanitizer}
}

type StationResponse struct {
	station.Station
	Display display.ActiveView `json:"display"`
}

func toStationResponse(s station.Station) StationResponse {
	return StationResponse{Station: s, Display: display.ForStation(s)}
}

// GET /stations/?active=
func (h *StationsHandler) List(ctx *gin.Context) {
	active, ok := parseBoolQuery(ctx, "active")
	if !ok {
		RespondBadRequest(ctx, "active must be true or false", gin.H{"field": "active"})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, err := h.repo.List(cctx, active)
	if err != nil {
		RespondInternal(ctx, "Could not list stations")
		return
	}

	out := make([]StationResponse, 0, len(items))
	for _, st := range items {
		out = append(out, toStationResponse(st))
	}

	RespondWithETag(ctx, http.StatusOK, gin.H{"items": out, "count": len(out)})
}

// GET /stations/:code/
func (h *StationsHandler) Get(ctx *gin.Context) {
	code := station.NormalizeCode(ctx.Param("code"))

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	s, err := h.repo.GetByCode(cctx, code)
	if err != nil {
		respondDomainError(ctx, err, "Could not fetch station")
		return
	}

	RespondWithETag(ctx, http.StatusOK, toStationResponse(s))
}

// POST /stations/
func (h *StationsHandler) Create(ctx *gin.Context) {
	var req station.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	req.Name = h.sanitizer.Text(req.Name)
	req.Address = h.sanitizer.Text(req.Address)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	s, err := h.repo.Create(cctx, station.NewFromCreateRequest(req))
	if err != nil {
		respondDomainError(ctx, err, "Could not create station")
		return
	}

	ctx.JSON(http.StatusCreated, toStationResponse(s))
}

// PATCH /stations/:code/
func (h *StationsHandler) Update(ctx *gin.Context) {
	code := station.NormalizeCode(ctx.Param("code"))

	var req station.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	req.Name = h.sanitizer.TextPtr(req.Name)
	req.Address = h.sanitizer.TextPtr(req.Address)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	s, err := h.repo.Update(cctx, code, req)
	if err != nil {
		respondDomainError(ctx, err, "Could not update station")
		return
	}

	ctx.JSON(http.StatusOK, toStationResponse(s))
}

// PATCH /stations/:code/toggle-active/
func (h *StationsHandler) ToggleActive(ctx *gin.Context) {
	code := station.NormalizeCode(ctx.Param("code"))

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	s, err := h.repo.ToggleActive(cctx, code)
	if err != nil {
		respondDomainError(ctx, err, "Could not update station")
		return
	}

	ctx.JSON(http.StatusOK, toStationResponse(s))
}
