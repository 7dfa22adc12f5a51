package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fitfield/tryon-backend/api/responses"
	providerwebhook "github.com/fitfield/tryon-backend/internal/webhooks/provider"
	"github.com/fitfield/tryon-backend/pkg/config"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

// ProviderWebhook handles render completion callbacks. Signature verification
// needs the exact raw bytes, so the body is read before any parsing, with a
// hard size ceiling enforced first.
func ProviderWebhook(svc providerwebhook.Service, cfg config.ProviderWebhookConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodePayloadTooLarge, "webhook body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		headers := providerwebhook.Headers{
			RequestID:      r.Header.Get(providerwebhook.HeaderRequestID),
			ExternalUserID: r.Header.Get(providerwebhook.HeaderUserID),
			Timestamp:      r.Header.Get(providerwebhook.HeaderTimestamp),
			Signature:      r.Header.Get(providerwebhook.HeaderSignature),
		}
		if err := svc.Authenticate(ctx, headers, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload providerwebhook.Payload
		if err := json.Unmarshal(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body"))
			return
		}

		if err := svc.Process(ctx, payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
