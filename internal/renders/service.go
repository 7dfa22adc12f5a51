package renders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/fitfield/tryon-backend/internal/credits"
	"github.com/fitfield/tryon-backend/internal/garments"
	"github.com/fitfield/tryon-backend/internal/providers"
	"github.com/fitfield/tryon-backend/internal/subscriptions"
	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
	"github.com/fitfield/tryon-backend/pkg/metrics"
	"github.com/fitfield/tryon-backend/pkg/storage/local"
)

// TxRunner executes fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StatusResponse is the poll result for one render job.
type StatusResponse struct {
	RenderID        uuid.UUID          `json:"render_id"`
	Status          enums.RenderStatus `json:"status"`
	ResultImageURL  *string            `json:"result_image_url"`
	ErrorCode       *string            `json:"error_code"`
	GarmentID       uuid.UUID          `json:"garment_id"`
	PersonImageURL  string             `json:"person_image_url"`
	GarmentImageURL string             `json:"garment_image_url"`
}

// Service orchestrates the render-job lifecycle.
type Service interface {
	RequestRender(ctx context.Context, userID, garmentID uuid.UUID) (uuid.UUID, error)
	GetRenderStatus(ctx context.Context, userID, renderID uuid.UUID) (*StatusResponse, error)
	CompleteWithAsset(ctx context.Context, job *models.RenderJob, data []byte, mimeType string) error
	FailJob(ctx context.Context, renderID uuid.UUID, code enums.RenderErrorCode) error
}

// ServiceParams collects the orchestrator's collaborators.
type ServiceParams struct {
	Tx            TxRunner
	Repo          Repository
	Garments      garments.Repository
	Credits       credits.Repository
	Subscriptions subscriptions.Service
	Providers     *providers.Registry
	Storage       *local.Storage
	Metrics       *metrics.RenderMetrics
	Logger        *logger.Logger
	Config        config.RenderConfig
}

type service struct {
	ServiceParams
	httpClient *http.Client
	now        func() time.Time
}

// NewService validates the collaborators and wires the orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "renders repository required")
	case params.Garments == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "garments repository required")
	case params.Credits == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits repository required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	case params.Providers == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider registry required")
	case params.Storage == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storage required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Config.JobTimeout <= 0 {
		params.Config.JobTimeout = 30 * time.Second
	}
	return &service{
		ServiceParams: params,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		now:           time.Now,
	}, nil
}

// RequestRender validates preconditions, records a pending job, and submits it
// to the configured provider. Completion is asynchronous; the returned id is
// polled via GetRenderStatus.
func (s *service) RequestRender(ctx context.Context, userID, garmentID uuid.UUID) (uuid.UUID, error) {
	if userID == uuid.Nil || garmentID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and garment id are required")
	}

	photo, err := s.Garments.FindBodyPhoto(ctx, userID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load body photo")
	}
	if photo == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNoBodyPhoto, "a body photo is required before rendering")
	}

	garment, err := s.Garments.FindOwnedGarment(ctx, userID, garmentID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load garment")
	}
	if garment == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeGarmentNotFound, "garment not found")
	}

	personPath, err := s.Storage.GetAbsolutePath(photo.ImagePath)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve body photo path")
	}
	garmentPath, err := s.Storage.GetAbsolutePath(garment.SubmissionPath())
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve garment path")
	}

	provider := s.Providers.Default()
	job := &models.RenderJob{
		ID:        uuid.New(),
		UserID:    userID,
		GarmentID: garment.ID,
		Provider:  provider.Name(),
		Status:    enums.RenderStatusPending,
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create render job")
	}

	ctx = s.Logger.WithRenderID(ctx, job.ID.String())
	submission, err := s.submitWithRetry(ctx, provider, personPath, garmentPath, garment.Category)
	if err != nil {
		s.Metrics.IncSubmission(provider.Name().String(), "failed")
		if _, failErr := s.Repo.Fail(ctx, job.ID, enums.RenderErrorCodeFailed); failErr != nil {
			s.Logger.Error(ctx, "mark render failed", failErr)
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeRenderFailed, err, "submit render")
	}

	if err := s.Repo.MarkProcessing(ctx, job.ID, submission.JobID); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark render processing")
	}
	s.Metrics.IncSubmission(provider.Name().String(), "accepted")
	s.Logger.Info(ctx, "render submitted")
	return job.ID, nil
}

// submitWithRetry calls the provider, retrying exactly once when the failure
// is server-side. Client-side rejections fail on the first attempt.
func (s *service) submitWithRetry(ctx context.Context, provider providers.Provider, personPath, garmentPath string, category enums.GarmentCategory) (*providers.Submission, error) {
	opts := providers.SubmitOptions{
		Category:    category,
		CallbackURL: s.Config.CallbackURL,
	}
	person := providers.Image{Path: personPath}
	garment := providers.Image{Path: garmentPath}

	var submission *providers.Submission
	backoff := retry.WithMaxRetries(1, retry.NewConstant(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, submitErr := provider.SubmitRender(ctx, person, garment, opts)
		if submitErr != nil {
			var provErr *providers.Error
			if errors.As(submitErr, &provErr) && provErr.Retriable() {
				return retry.RetryableError(submitErr)
			}
			return submitErr
		}
		submission = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// GetRenderStatus returns the ownership-checked job state. Jobs stuck past the
// configured timeout are flipped to failed on this read; jobs whose provider
// already holds a finished result are finalized inline.
func (s *service) GetRenderStatus(ctx context.Context, userID, renderID uuid.UUID) (*StatusResponse, error) {
	job, err := s.Repo.FindByID(ctx, renderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load render job")
	}
	// Cross-user lookups report not-found so render ids do not leak.
	if job == nil || job.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeRenderNotFound, "render not found")
	}

	if !job.Status.IsTerminal() {
		job = s.reconcileOpenJob(ctx, job)
	}

	return s.buildStatus(ctx, job)
}

// reconcileOpenJob applies the passive timeout and claims any result the
// provider already finished. Reconciliation failures leave the job as-is.
func (s *service) reconcileOpenJob(ctx context.Context, job *models.RenderJob) *models.RenderJob {
	ctx = s.Logger.WithRenderID(ctx, job.ID.String())

	if s.now().Sub(job.CreatedAt) > s.Config.JobTimeout {
		if _, err := s.Repo.Fail(ctx, job.ID, enums.RenderErrorCodeTimeout); err != nil {
			s.Logger.Error(ctx, "mark render timed out", err)
			return job
		}
		job.Status = enums.RenderStatusFailed
		code := enums.RenderErrorCodeTimeout.String()
		job.ErrorCode = &code
		return job
	}

	if job.ProviderJobID == nil {
		return job
	}

	provider, err := s.Providers.Get(job.Provider)
	if err != nil {
		s.Logger.Error(ctx, "resolve render provider", err)
		return job
	}

	result, err := provider.GetResult(ctx, *job.ProviderJobID)
	if err != nil {
		var provErr *providers.Error
		if errors.As(err, &provErr) && !provErr.Retriable() {
			s.failOpenJob(ctx, job, enums.RenderErrorCodeFailed)
		} else {
			s.Logger.Error(ctx, "poll provider result", err)
		}
		return job
	}
	if result == nil {
		return job
	}

	data, mimeType := result.Data, result.MimeType
	if len(data) == 0 {
		data, mimeType, err = FetchAsset(ctx, s.httpClient, result.ImageURL, s.Config.MaxResultBytes)
		if err != nil {
			s.Logger.Error(ctx, "download render result", err)
			s.failOpenJob(ctx, job, enums.RenderErrorCodeFailed)
			return job
		}
	}

	if err := s.CompleteWithAsset(ctx, job, data, mimeType); err != nil {
		s.Logger.Error(ctx, "finalize render", err)
	}

	refreshed, err := s.Repo.FindByID(ctx, job.ID)
	if err != nil || refreshed == nil {
		return job
	}
	return refreshed
}

func (s *service) failOpenJob(ctx context.Context, job *models.RenderJob, code enums.RenderErrorCode) {
	if _, err := s.Repo.Fail(ctx, job.ID, code); err != nil {
		s.Logger.Error(ctx, "mark render failed", err)
		return
	}
	job.Status = enums.RenderStatusFailed
	value := code.String()
	job.ErrorCode = &value
}

// CompleteWithAsset persists the result image and finalizes the job in one
// transaction with the credit charge. Exactly one of the subscription or the
// ledger pays: unlimited subscribers complete without touching credits, and a
// failed charge rolls the completion back and fails the job instead. A job
// that is already terminal is left untouched.
func (s *service) CompleteWithAsset(ctx context.Context, job *models.RenderJob, data []byte, mimeType string) error {
	unlimited, err := s.Subscriptions.IsUnlimited(ctx, job.UserID)
	if err != nil {
		return err
	}

	relativePath, err := s.Storage.SaveRenderResult(job.UserID, job.ID, data, mimeType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save render result")
	}

	var completed bool
	txErr := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		completed, err = s.Repo.WithTx(tx).Complete(ctx, job.ID, relativePath, !unlimited)
		if err != nil {
			return err
		}
		if !completed || unlimited {
			return nil
		}
		consumed, consumeErr := s.Credits.WithTx(tx).ConsumeOne(ctx, job.UserID)
		if consumeErr != nil {
			return consumeErr
		}
		if !consumed {
			return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "no credits remaining at completion")
		}
		return nil
	})
	if txErr != nil {
		if appErr := pkgerrors.As(txErr); appErr != nil && appErr.Code() == pkgerrors.CodeInsufficientCredits {
			if _, failErr := s.Repo.Fail(ctx, job.ID, enums.RenderErrorCodeFailed); failErr != nil {
				s.Logger.Error(ctx, "mark render failed", failErr)
			}
		}
		return txErr
	}
	if !completed {
		// Already terminal: a duplicate delivery, nothing to do.
		return nil
	}

	if !unlimited {
		s.Metrics.IncCreditConsumed()
	}
	s.Metrics.ObserveRenderDuration(job.Provider.String(), s.now().Sub(job.CreatedAt))
	s.Logger.Info(s.Logger.WithRenderID(ctx, job.ID.String()), "render completed")
	return nil
}

// FailJob flips a non-terminal job to failed with the given code.
func (s *service) FailJob(ctx context.Context, renderID uuid.UUID, code enums.RenderErrorCode) error {
	if _, err := s.Repo.Fail(ctx, renderID, code); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark render failed")
	}
	return nil
}

func (s *service) buildStatus(ctx context.Context, job *models.RenderJob) (*StatusResponse, error) {
	response := &StatusResponse{
		RenderID:  job.ID,
		Status:    job.Status,
		ErrorCode: job.ErrorCode,
		GarmentID: job.GarmentID,
	}

	if job.Status == enums.RenderStatusCompleted {
		url := fmt.Sprintf("/api/images/render/%s", job.ID)
		response.ResultImageURL = &url
	}

	photo, err := s.Garments.FindBodyPhoto(ctx, job.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load body photo")
	}
	if photo != nil {
		response.PersonImageURL = fmt.Sprintf("/api/images/%s", photo.ID)
	}
	response.GarmentImageURL = fmt.Sprintf("/api/images/%s", job.GarmentID)
	return response, nil
}
