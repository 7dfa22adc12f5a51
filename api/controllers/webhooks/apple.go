package webhooks

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fitfield/tryon-backend/api/responses"
	applewebhook "github.com/fitfield/tryon-backend/internal/webhooks/apple"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

// AppleWebhook handles App Store Server Notifications V2.
func AppleWebhook(svc applewebhook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var payload applewebhook.RequestBody
		if err := json.Unmarshal(body, &payload); err != nil || payload.SignedPayload == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "malformed notification body"))
			return
		}

		if err := svc.HandleNotification(ctx, payload.SignedPayload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
