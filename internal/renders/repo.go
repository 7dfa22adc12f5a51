package renders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
)

// Repository persists render jobs. The terminal transitions are expressed as
// conditional updates so that completed/failed rows can never be written twice,
// even under concurrent webhook deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.RenderJob) error
	FindByID(ctx context.Context, renderID uuid.UUID) (*models.RenderJob, error)
	FindByProviderJobID(ctx context.Context, providerJobID string) (*models.RenderJob, error)
	MarkProcessing(ctx context.Context, renderID uuid.UUID, providerJobID string) error
	Complete(ctx context.Context, renderID uuid.UUID, resultPath string, creditConsumed bool) (bool, error)
	Fail(ctx context.Context, renderID uuid.UUID, errorCode enums.RenderErrorCode) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	return &gormRepository{db: tx}
}

func (r *gormRepository) Create(ctx context.Context, job *models.RenderJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// FindByID returns nil, nil when the render does not exist.
func (r *gormRepository) FindByID(ctx context.Context, renderID uuid.UUID) (*models.RenderJob, error) {
	var job models.RenderJob
	err := r.db.WithContext(ctx).
		Where("id = ?", renderID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindByProviderJobID returns nil, nil when no job carries that provider id.
func (r *gormRepository) FindByProviderJobID(ctx context.Context, providerJobID string) (*models.RenderJob, error) {
	var job models.RenderJob
	err := r.db.WithContext(ctx).
		Where("provider_job_id = ?", providerJobID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing records the provider's acceptance of a pending job.
func (r *gormRepository) MarkProcessing(ctx context.Context, renderID uuid.UUID, providerJobID string) error {
	return r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ? AND status = ?", renderID, enums.RenderStatusPending).
		Updates(map[string]any{
			"status":          enums.RenderStatusProcessing,
			"provider_job_id": providerJobID,
		}).Error
}

// Complete flips a non-terminal job to completed. Returns false when the job
// was already terminal, which callers treat as a duplicate delivery.
func (r *gormRepository) Complete(ctx context.Context, renderID uuid.UUID, resultPath string, creditConsumed bool) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ? AND status NOT IN ?", renderID, []enums.RenderStatus{
			enums.RenderStatusCompleted,
			enums.RenderStatusFailed,
		}).
		Updates(map[string]any{
			"status":          enums.RenderStatusCompleted,
			"result_path":     resultPath,
			"credit_consumed": creditConsumed,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Fail flips a non-terminal job to failed with the given error code.
func (r *gormRepository) Fail(ctx context.Context, renderID uuid.UUID, errorCode enums.RenderErrorCode) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ? AND status NOT IN ?", renderID, []enums.RenderStatus{
			enums.RenderStatusCompleted,
			enums.RenderStatusFailed,
		}).
		Updates(map[string]any{
			"status":     enums.RenderStatusFailed,
			"error_code": errorCode.String(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
