package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/api/middleware"
	"github.com/fitfield/tryon-backend/api/responses"
	"github.com/fitfield/tryon-backend/api/validators"
	rendersvc "github.com/fitfield/tryon-backend/internal/renders"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

type requestRenderPayload struct {
	GarmentID uuid.UUID `json:"garment_id" validate:"required"`
}

type requestRenderResponse struct {
	RenderID uuid.UUID `json:"render_id"`
}

// RequestRender submits a try-on job for the authenticated user.
func RequestRender(svc rendersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "render service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var payload requestRenderPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		renderID, err := svc.RequestRender(r.Context(), userID, payload.GarmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, requestRenderResponse{RenderID: renderID})
	}
}

// RenderStatus reports the polled state of one render job.
func RenderStatus(svc rendersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "render service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		renderID, err := uuid.Parse(chi.URLParam(r, "renderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid render id"))
			return
		}

		status, err := svc.GetRenderStatus(r.Context(), userID, renderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}
