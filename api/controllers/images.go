package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/api/middleware"
	"github.com/fitfield/tryon-backend/api/responses"
	"github.com/fitfield/tryon-backend/internal/garments"
	rendersvc "github.com/fitfield/tryon-backend/internal/renders"
	"github.com/fitfield/tryon-backend/pkg/enums"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
	"github.com/fitfield/tryon-backend/pkg/storage/local"
)

// RenderImage streams a completed render result to its owner.
func RenderImage(repo rendersvc.Repository, store *local.Storage, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		job, err := repo.FindByID(r.Context(), renderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load render job"))
			return
		}
		if job == nil || job.UserID != userID || job.Status != enums.RenderStatusCompleted || job.ResultPath == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRenderNotFound, "render not found"))
			return
		}

		serveImage(w, r, store, *job.ResultPath, logg)
	}
}

// UserImage streams a garment or body-photo asset owned by the caller.
func UserImage(repo garments.Repository, store *local.Storage, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		imageID, err := uuid.Parse(chi.URLParam(r, "imageId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid image id"))
			return
		}

		if garment, err := repo.FindOwnedGarment(r.Context(), userID, imageID); err == nil && garment != nil {
			serveImage(w, r, store, garment.ImagePath, logg)
			return
		}

		photo, err := repo.FindBodyPhoto(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load body photo"))
			return
		}
		if photo == nil || photo.ID != imageID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "image not found"))
			return
		}

		serveImage(w, r, store, photo.ImagePath, logg)
	}
}

func serveImage(w http.ResponseWriter, r *http.Request, store *local.Storage, relativePath string, logg *logger.Logger) {
	data, err := store.ReadFile(relativePath)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "image not found"))
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
