package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/pkg/enums"
)

// Subscription persists the latest Apple-reported billing state per user.
// Rows are written only through idempotent upserts keyed by user id.
type Subscription struct {
	ID                         uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                     uuid.UUID                `gorm:"column:user_id;type:uuid;not null;unique"`
	Status                     enums.SubscriptionStatus `gorm:"column:status;not null"`
	ExpiresAt                  *time.Time               `gorm:"column:expires_at"`
	AppleTransactionID         *string                  `gorm:"column:apple_transaction_id"`
	AppleOriginalTransactionID *string                  `gorm:"column:apple_original_transaction_id"`
	ProductID                  *string                  `gorm:"column:product_id"`
	CreatedAt                  time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                  time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
