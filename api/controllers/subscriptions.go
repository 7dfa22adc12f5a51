package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/api/middleware"
	"github.com/fitfield/tryon-backend/api/responses"
	"github.com/fitfield/tryon-backend/api/validators"
	subscriptionsvc "github.com/fitfield/tryon-backend/internal/subscriptions"
	applesvc "github.com/fitfield/tryon-backend/internal/webhooks/apple"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

// SubscriptionStatus reports the caller's derived entitlement.
func SubscriptionStatus(svc subscriptionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		entitlement, err := svc.Status(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entitlement)
	}
}

type verifyPurchasePayload struct {
	SignedTransaction string `json:"signed_transaction" validate:"required"`
}

// SubscriptionVerify applies a client-submitted App Store transaction.
func SubscriptionVerify(svc applesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var payload verifyPurchasePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entitlement, err := svc.VerifyPurchase(r.Context(), userID, payload.SignedTransaction)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entitlement)
	}
}
