package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/pkg/enums"
)

// RenderJob tracks one try-on request from submission through provider completion.
// Once the status is terminal the row is never mutated again.
type RenderJob struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	GarmentID      uuid.UUID          `gorm:"column:garment_id;type:uuid;not null"`
	Provider       enums.ProviderName `gorm:"column:provider;not null"`
	Status         enums.RenderStatus `gorm:"column:status;not null;default:'pending'"`
	ProviderJobID  *string            `gorm:"column:provider_job_id;index"`
	ResultPath     *string            `gorm:"column:result_path"`
	ErrorCode      *string            `gorm:"column:error_code"`
	CreditConsumed bool               `gorm:"column:credit_consumed;not null;default:false"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
