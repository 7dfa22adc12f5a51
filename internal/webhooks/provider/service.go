package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fitfield/tryon-backend/internal/renders"
	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/enums"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
	"github.com/fitfield/tryon-backend/pkg/metrics"
)

// Headers carries the four signature headers every delivery must present.
type Headers struct {
	RequestID      string
	ExternalUserID string
	Timestamp      string
	Signature      string
}

// Payload is the provider's completion callback body.
type Payload struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	Error     string `json:"error"`
}

const (
	payloadStatusCompleted = "completed"

	webhookSource = "provider"
)

// Service authenticates and applies render completion callbacks.
type Service interface {
	Authenticate(ctx context.Context, hdr Headers, body []byte) error
	Process(ctx context.Context, payload Payload) error
}

// ServiceParams collects the reconciler's collaborators.
type ServiceParams struct {
	Renders renders.Service
	Repo    renders.Repository
	Keys    *KeyCache
	Metrics *metrics.RenderMetrics
	Logger  *logger.Logger
	Config  config.ProviderWebhookConfig

	// MaxAssetBytes caps result downloads, independent of the webhook body cap.
	MaxAssetBytes int64
}

type service struct {
	ServiceParams
	httpClient *http.Client
	now        func() time.Time
}

// NewService validates the collaborators and wires the reconciler.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Renders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "renders service required")
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "renders repository required")
	case params.Keys == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook key cache required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	case params.Config.MediaDomain == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "media domain required")
	}
	if params.MaxAssetBytes <= 0 {
		params.MaxAssetBytes = 20 << 20
	}
	return &service{
		ServiceParams: params,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		now:           time.Now,
	}, nil
}

// Authenticate runs the transport gates in order: header presence, timestamp
// freshness, then the detached signature against the cached key set. The
// timestamp check runs first so stale replays are rejected without touching
// any cryptography.
func (s *service) Authenticate(ctx context.Context, hdr Headers, body []byte) error {
	if hdr.RequestID == "" || hdr.ExternalUserID == "" || hdr.Timestamp == "" || hdr.Signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature headers")
	}

	unix, err := strconv.ParseInt(hdr.Timestamp, 10, 64)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed webhook timestamp")
	}
	drift := s.now().Sub(time.Unix(unix, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > s.Config.TimestampTolerance {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook timestamp outside tolerance")
	}

	signature, err := base64.StdEncoding.DecodeString(hdr.Signature)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed webhook signature")
	}

	keys, err := s.Keys.Keys(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook keys")
	}

	message := SignedMessage(hdr.RequestID, hdr.ExternalUserID, hdr.Timestamp, body)
	if !VerifySignature(keys, message, signature) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// Process applies an authenticated delivery. Business failures fail the job
// and return nil so the transport acknowledges with 200 and the provider
// stops retrying.
func (s *service) Process(ctx context.Context, payload Payload) error {
	if payload.JobID == "" {
		s.Logger.Warn(ctx, "webhook delivery without a job id")
		s.Metrics.IncWebhook(webhookSource, "ignored")
		return nil
	}

	job, err := s.Repo.FindByProviderJobID(ctx, payload.JobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load render job")
	}
	if job == nil {
		// Could be stale or foreign; acknowledging avoids a retry storm.
		s.Logger.Warn(ctx, "webhook delivery for unknown job "+payload.JobID)
		s.Metrics.IncWebhook(webhookSource, "unknown_job")
		return nil
	}

	ctx = s.Logger.WithRenderID(ctx, job.ID.String())
	if job.Status.IsTerminal() {
		s.Metrics.IncWebhook(webhookSource, "duplicate")
		return nil
	}

	if payload.Status != payloadStatusCompleted {
		s.Logger.Warn(ctx, "provider reported render failure: "+payload.Error)
		s.Metrics.IncWebhook(webhookSource, "provider_failure")
		return s.Renders.FailJob(ctx, job.ID, enums.RenderErrorCodeFailed)
	}

	if !s.allowedAssetURL(payload.ResultURL) {
		s.Logger.Warn(ctx, "webhook asset url rejected: "+payload.ResultURL)
		s.Metrics.IncWebhook(webhookSource, "blocked_url")
		return s.Renders.FailJob(ctx, job.ID, enums.RenderErrorCodeFailed)
	}

	data, mimeType, err := renders.FetchAsset(ctx, s.httpClient, payload.ResultURL, s.MaxAssetBytes)
	if err != nil {
		s.Logger.Error(ctx, "download webhook asset", err)
		s.Metrics.IncWebhook(webhookSource, "download_failed")
		return s.Renders.FailJob(ctx, job.ID, enums.RenderErrorCodeFailed)
	}

	if err := s.Renders.CompleteWithAsset(ctx, job, data, mimeType); err != nil {
		appErr := pkgerrors.As(err)
		if appErr != nil && appErr.Code() == pkgerrors.CodeInsufficientCredits {
			// CompleteWithAsset already failed the job.
			s.Metrics.IncWebhook(webhookSource, "insufficient_credits")
			return nil
		}
		s.Logger.Error(ctx, "finalize render from webhook", err)
		s.Metrics.IncWebhook(webhookSource, "finalize_failed")
		return s.Renders.FailJob(ctx, job.ID, enums.RenderErrorCodeFailed)
	}

	s.Metrics.IncWebhook(webhookSource, "completed")
	return nil
}

// allowedAssetURL enforces the outbound fetch allow-list: https only, host
// anchored to the provider's media domain. Anything else is never fetched.
func (s *service) allowedAssetURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	domain := strings.ToLower(s.Config.MediaDomain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
