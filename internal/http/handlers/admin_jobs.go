package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/domain/job"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type AdminJobsRepo interface {
	ListCursor(ctx context.Context, status *job.Status, limit int, after *utils.Cursor) ([]job.Job, *string, error)
	GetByID(ctx context.Context, id string) (job.Job, error)
	Retry(ctx context.Context, id string) error
	RetryManyFailed(ctx context.Context, limit int) (int64, error)
	CountByStatus(ctx context.Context) (map[job.Status]int, error)
}

type AdminJobsHandler struct {
	repo AdminJobsRepo
}

func NewAdminJobsHandler(repo AdminJobsRepo) *AdminJobsHandler {
	return &AdminJobsHandler{
		repo: repo,
	}
}

// GET /admin/jobs?status=failed&limit=50&cursor=
func (h *AdminJobsHandler) List(ctx *gin.Context) {
	limit, after, ok := pageParams(ctx)
	if !ok {
		return
	}

	var statusPtr *job.Status
	if s := ctx.Query("status"); s != "" {
		st := job.Status(s)
		if !st.Valid() {
			RespondBadRequest(ctx, "status is invalid", gin.H{"field": "status"})
			return
		}
		statusPtr = &st
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, next, err := h.repo.ListCursor(cctx, statusPtr, limit, after)
	if err != nil {
		RespondInternal(ctx, "Could not list jobs")
		return
	}

	RespondWithETag(ctx, http.StatusOK, pageResponse(items, len(items), limit, next))
}

// GET /admin/jobs/stats
func (h *AdminJobsHandler) Stats(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	counts, err := h.repo.CountByStatus(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not count jobs")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"byStatus": counts})
}

// GET /admin/jobs/:id
func (h *AdminJobsHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	j, err := h.repo.GetByID(cctx, id)
	if err != nil {
		respondDomainError(ctx, err, "Could not fetch job")
		return
	}

	RespondWithETag(ctx, http.StatusOK, j)
}

// POST /admin/jobs/:id/retry
func (h *AdminJobsHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Retry(cctx, id); err != nil {
		respondDomainError(ctx, err, "Could not retry job")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"jobId":  id,
		"status": job.StatusPending,
	})
}

// POST /admin/jobs/reprocess-dead?limit=50
func (h *AdminJobsHandler) ReprocessDead(ctx *gin.Context) {
	limit := 50

	if limitStr := ctx.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > 500 {
			RespondBadRequest(ctx, "limit must be a number between 1 and 500", gin.H{"field": "limit"})
			return
		}
		limit = n
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	n, err := h.repo.RetryManyFailed(cctx, limit)
	if err != nil {
		RespondInternal(ctx, "Could not reprocess dead jobs")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"requeued": n,
	})
}
