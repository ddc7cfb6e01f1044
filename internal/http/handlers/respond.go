package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/parcelhub/internal/domain/job"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/payment"
	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/geocoder89/parcelhub/internal/domain/user"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// APIError is the body of every error response, under the "error" key.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

// domainErrors maps repository and domain errors to responses. An empty
// message means the error's own text is shown.
var domainErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{parcel.ErrNotFound, http.StatusNotFound, "not_found", "Parcel not found"},
	{parcel.ErrNoNextStatus, http.StatusConflict, "no_next_status", "Parcel has no next status"},
	{parcel.ErrTerminal, http.StatusConflict, "parcel_terminal", "Parcel is already delivered or failed"},
	{payment.ErrNotFound, http.StatusNotFound, "not_found", "Payment not found"},
	{payment.ErrParcelSettled, http.StatusConflict, "parcel_settled", "Parcel already has an open or completed payment"},
	{payment.ErrInvalidTransition, http.StatusConflict, "invalid_transition", ""},
	{station.ErrNotFound, http.StatusNotFound, "not_found", "Station not found"},
	{station.ErrCodeExists, http.StatusConflict, "station_exists", "A station with this code already exists"},
	{user.ErrNotFound, http.StatusNotFound, "not_found", "User not found"},
	{user.ErrEmailTaken, http.StatusConflict, "email_taken", "Email is already in use."},
	{job.ErrJobNotFound, http.StatusNotFound, "not_found", "Job not found"},
	{job.ErrJobNotFailed, http.StatusConflict, "job_not_failed", "Only failed jobs can be retried"},
}

// respondDomainError answers with the mapped response for err, or a 500
// carrying fallback. Unmapped errors are attached for the request log.
func respondDomainError(ctx *gin.Context, err error, fallback string) {
	for _, d := range domainErrors {
		if errors.Is(err, d.target) {
			msg := d.message
			if msg == "" {
				msg = err.Error()
			}
			RespondError(ctx, d.status, d.code, msg, nil)
			return
		}
	}

	_ = ctx.Error(err)
	RespondInternal(ctx, fallback)
}

func requestIDFrom(ctx *gin.Context) string {
	if id := ctx.GetString(middlewares.CtxRequestID); id != "" {
		return id
	}
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.JSON(status, errorEnvelope{Error: APIError{
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(ctx),
		Details:   details,
	}})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusForbidden, code, message, nil)
}
