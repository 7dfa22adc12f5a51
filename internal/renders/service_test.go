package renders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitfield/tryon-backend/internal/credits"
	"github.com/fitfield/tryon-backend/internal/providers"
	"github.com/fitfield/tryon-backend/internal/subscriptions"
	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
	"github.com/fitfield/tryon-backend/pkg/storage/local"
)

// fakeTxRunner snapshots the job store so a failing transaction rolls back.
type fakeTxRunner struct {
	repo *fakeRenderRepo
}

func (r fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	snapshot := r.repo.snapshot()
	if err := fn(nil); err != nil {
		r.repo.restore(snapshot)
		return err
	}
	return nil
}

type fakeRenderRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.RenderJob
}

func newFakeRenderRepo() *fakeRenderRepo {
	return &fakeRenderRepo{jobs: make(map[uuid.UUID]*models.RenderJob)}
}

func (f *fakeRenderRepo) WithTx(_ *gorm.DB) Repository { return f }

func (f *fakeRenderRepo) snapshot() map[uuid.UUID]models.RenderJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]models.RenderJob, len(f.jobs))
	for id, job := range f.jobs {
		out[id] = *job
	}
	return out
}

func (f *fakeRenderRepo) restore(snapshot map[uuid.UUID]models.RenderJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = make(map[uuid.UUID]*models.RenderJob, len(snapshot))
	for id, job := range snapshot {
		clone := job
		f.jobs[id] = &clone
	}
}

func (f *fakeRenderRepo) Create(_ context.Context, job *models.RenderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *job
	// Mirror gorm's autoCreateTime, which stamps CreatedAt on insert.
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeRenderRepo) FindByID(_ context.Context, renderID uuid.UUID) (*models.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[renderID]
	if !ok {
		return nil, nil
	}
	clone := *job
	return &clone, nil
}

func (f *fakeRenderRepo) FindByProviderJobID(_ context.Context, providerJobID string) (*models.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ProviderJobID != nil && *job.ProviderJobID == providerJobID {
			clone := *job
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeRenderRepo) MarkProcessing(_ context.Context, renderID uuid.UUID, providerJobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[renderID]
	if job != nil && job.Status == enums.RenderStatusPending {
		job.Status = enums.RenderStatusProcessing
		job.ProviderJobID = &providerJobID
	}
	return nil
}

func (f *fakeRenderRepo) Complete(_ context.Context, renderID uuid.UUID, resultPath string, creditConsumed bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[renderID]
	if job == nil || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = enums.RenderStatusCompleted
	job.ResultPath = &resultPath
	job.CreditConsumed = creditConsumed
	return true, nil
}

func (f *fakeRenderRepo) Fail(_ context.Context, renderID uuid.UUID, errorCode enums.RenderErrorCode) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[renderID]
	if job == nil || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = enums.RenderStatusFailed
	code := errorCode.String()
	job.ErrorCode = &code
	return true, nil
}

type fakeGarmentsRepo struct {
	photo   *models.BodyPhoto
	garment *models.Garment
}

func (f *fakeGarmentsRepo) FindOwnedGarment(_ context.Context, userID, garmentID uuid.UUID) (*models.Garment, error) {
	if f.garment != nil && f.garment.ID == garmentID && f.garment.UserID == userID {
		return f.garment, nil
	}
	return nil, nil
}

func (f *fakeGarmentsRepo) FindBodyPhoto(_ context.Context, userID uuid.UUID) (*models.BodyPhoto, error) {
	if f.photo != nil && f.photo.UserID == userID {
		return f.photo, nil
	}
	return nil, nil
}

type fakeCreditsRepo struct {
	consumed int
	allow    bool
}

func (f *fakeCreditsRepo) WithTx(_ *gorm.DB) credits.Repository { return f }

func (f *fakeCreditsRepo) FindByUser(_ context.Context, _ uuid.UUID) (*models.CreditBalance, error) {
	return nil, nil
}

func (f *fakeCreditsRepo) GrantInitial(_ context.Context, _ uuid.UUID, _ int) (bool, error) {
	return false, nil
}

func (f *fakeCreditsRepo) ConsumeOne(_ context.Context, _ uuid.UUID) (bool, error) {
	if !f.allow {
		return false, nil
	}
	f.consumed++
	return true, nil
}

func (f *fakeCreditsRepo) RefundOne(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

type fakeSubscriptions struct {
	unlimited bool
}

func (f *fakeSubscriptions) Status(_ context.Context, _ uuid.UUID) (*subscriptions.Entitlement, error) {
	return &subscriptions.Entitlement{IsUnlimited: f.unlimited}, nil
}

func (f *fakeSubscriptions) IsUnlimited(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.unlimited, nil
}

// scriptedProvider fails with the queued errors before succeeding.
type scriptedProvider struct {
	attempts int
	errs     []error
	jobID    string
	result   *providers.Result
}

func (p *scriptedProvider) Name() enums.ProviderName { return enums.ProviderNameFashn }

func (p *scriptedProvider) SupportedCategories() []enums.GarmentCategory {
	return []enums.GarmentCategory{enums.GarmentCategoryTops}
}

func (p *scriptedProvider) SubmitRender(_ context.Context, _, _ providers.Image, _ providers.SubmitOptions) (*providers.Submission, error) {
	p.attempts++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &providers.Submission{JobID: p.jobID}, nil
}

func (p *scriptedProvider) GetResult(_ context.Context, _ string) (*providers.Result, error) {
	return p.result, nil
}

type fixture struct {
	svc      Service
	repo     *fakeRenderRepo
	provider *scriptedProvider
	credits  *fakeCreditsRepo
	subs     *fakeSubscriptions
	userID   uuid.UUID
	garment  *models.Garment
	now      *time.Time
}

func newFixture(t *testing.T, withPhoto bool) *fixture {
	t.Helper()

	userID := uuid.New()
	garment := &models.Garment{
		ID:        uuid.New(),
		UserID:    userID,
		Category:  enums.GarmentCategoryTops,
		ImagePath: "garments/shirt.jpg",
	}

	garmentsRepo := &fakeGarmentsRepo{garment: garment}
	if withPhoto {
		garmentsRepo.photo = &models.BodyPhoto{ID: uuid.New(), UserID: userID, ImagePath: "people/me.jpg"}
	}

	storage, err := local.New(t.TempDir())
	require.NoError(t, err)

	provider := &scriptedProvider{jobID: "prov-1"}
	registry, err := providers.NewRegistry(enums.ProviderNameFashn, provider)
	require.NoError(t, err)

	creditsRepo := &fakeCreditsRepo{allow: true}
	subs := &fakeSubscriptions{}
	repo := newFakeRenderRepo()

	svc, err := NewService(ServiceParams{
		Tx:            fakeTxRunner{repo: repo},
		Repo:          repo,
		Garments:      garmentsRepo,
		Credits:       creditsRepo,
		Subscriptions: subs,
		Providers:     registry,
		Storage:       storage,
		Logger:        logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		Config: config.RenderConfig{
			JobTimeout:     30 * time.Second,
			MaxResultBytes: 1 << 20,
			CallbackURL:    "https://api.example.com/webhooks/render",
		},
	})
	require.NoError(t, err)

	now := time.Now()
	svc.(*service).now = func() time.Time { return now }

	return &fixture{
		svc:      svc,
		repo:     repo,
		provider: provider,
		credits:  creditsRepo,
		subs:     subs,
		userID:   userID,
		garment:  garment,
		now:      &now,
	}
}

func TestRequestRenderWithoutBodyPhoto(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNoBodyPhoto, appErr.Code())
	assert.Zero(t, f.provider.attempts)
}

func TestRequestRenderUnknownGarment(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.RequestRender(context.Background(), f.userID, uuid.New())
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeGarmentNotFound, appErr.Code())
}

func TestRequestRenderRetriesServerFailureOnce(t *testing.T) {
	f := newFixture(t, true)
	f.provider.errs = []error{&providers.Error{Provider: enums.ProviderNameFashn, StatusCode: 502, Message: "bad gateway"}}

	renderID, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.attempts)

	job, err := f.repo.FindByID(context.Background(), renderID)
	require.NoError(t, err)
	assert.Equal(t, enums.RenderStatusProcessing, job.Status)
	require.NotNil(t, job.ProviderJobID)
	assert.Equal(t, "prov-1", *job.ProviderJobID)
}

func TestRequestRenderClientFailureDoesNotRetry(t *testing.T) {
	f := newFixture(t, true)
	f.provider.errs = []error{&providers.Error{Provider: enums.ProviderNameFashn, StatusCode: 422, Message: "bad input"}}

	_, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeRenderFailed, appErr.Code())
	assert.Equal(t, 1, f.provider.attempts)

	var failed *models.RenderJob
	for id := range f.repo.jobs {
		failed = f.repo.jobs[id]
	}
	require.NotNil(t, failed)
	assert.Equal(t, enums.RenderStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, enums.RenderErrorCodeFailed.String(), *failed.ErrorCode)
}

func TestRequestRenderRetryExhaustionFails(t *testing.T) {
	f := newFixture(t, true)
	f.provider.errs = []error{
		&providers.Error{StatusCode: 503, Message: "down"},
		&providers.Error{StatusCode: 503, Message: "still down"},
	}

	_, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.Error(t, err)
	assert.Equal(t, 2, f.provider.attempts)
}

func TestGetRenderStatusMasksCrossUserLookups(t *testing.T) {
	f := newFixture(t, true)

	renderID, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.NoError(t, err)

	_, err = f.svc.GetRenderStatus(context.Background(), uuid.New(), renderID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeRenderNotFound, appErr.Code())
}

func TestGetRenderStatusTimesOutStuckJob(t *testing.T) {
	f := newFixture(t, true)

	renderID, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.NoError(t, err)

	*f.now = f.now.Add(35 * time.Second)

	status, err := f.svc.GetRenderStatus(context.Background(), f.userID, renderID)
	require.NoError(t, err)
	assert.Equal(t, enums.RenderStatusFailed, status.Status)
	require.NotNil(t, status.ErrorCode)
	assert.Equal(t, enums.RenderErrorCodeTimeout.String(), *status.ErrorCode)
	assert.Nil(t, status.ResultImageURL)
}

func TestGetRenderStatusClaimsInlineResult(t *testing.T) {
	f := newFixture(t, true)

	renderID, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.NoError(t, err)

	f.provider.result = &providers.Result{Data: []byte("render-bytes"), MimeType: "image/png"}

	status, err := f.svc.GetRenderStatus(context.Background(), f.userID, renderID)
	require.NoError(t, err)
	assert.Equal(t, enums.RenderStatusCompleted, status.Status)
	require.NotNil(t, status.ResultImageURL)
	assert.Equal(t, "/api/images/render/"+renderID.String(), *status.ResultImageURL)
	assert.Equal(t, 1, f.credits.consumed)
}

func TestCompleteWithAssetChargesOnce(t *testing.T) {
	f := newFixture(t, true)

	renderID, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.NoError(t, err)
	job, err := f.repo.FindByID(context.Background(), renderID)
	require.NoError(t, err)

	require.NoError(t, f.svc.CompleteWithAsset(context.Background(), job, []byte("img"), "image/jpeg"))
	require.NoError(t, f.svc.CompleteWithAsset(context.Background(), job, []byte("img"), "image/jpeg"))

	assert.Equal(t, 1, f.credits.consumed)
	final, err := f.repo.FindByID(context.Background(), renderID)
	require.NoError(t, err)
	assert.Equal(t, enums.RenderStatusCompleted, final.Status)
	assert.True(t, final.CreditConsumed)
}

func TestCompleteWithAssetSubscriberSkipsLedger(t *testing.T) {
	f := newFixture(t, true)
	f.subs.unlimited = true

	renderID, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.NoError(t, err)
	job, err := f.repo.FindByID(context.Background(), renderID)
	require.NoError(t, err)

	require.NoError(t, f.svc.CompleteWithAsset(context.Background(), job, []byte("img"), "image/jpeg"))

	assert.Zero(t, f.credits.consumed)
	final, err := f.repo.FindByID(context.Background(), renderID)
	require.NoError(t, err)
	assert.Equal(t, enums.RenderStatusCompleted, final.Status)
	assert.False(t, final.CreditConsumed)
}

func TestCompleteWithAssetInsufficientCreditsFailsJob(t *testing.T) {
	f := newFixture(t, true)
	f.credits.allow = false

	renderID, err := f.svc.RequestRender(context.Background(), f.userID, f.garment.ID)
	require.NoError(t, err)
	job, err := f.repo.FindByID(context.Background(), renderID)
	require.NoError(t, err)

	err = f.svc.CompleteWithAsset(context.Background(), job, []byte("img"), "image/jpeg")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInsufficientCredits, appErr.Code())

	final, err := f.repo.FindByID(context.Background(), renderID)
	require.NoError(t, err)
	assert.Equal(t, enums.RenderStatusFailed, final.Status)
}
