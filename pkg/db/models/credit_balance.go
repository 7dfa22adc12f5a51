package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditBalance holds the per-user counter pair gating metered renders.
// Invariant: 0 <= TotalConsumed <= TotalGranted.
type CreditBalance struct {
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	TotalGranted  int       `gorm:"column:total_granted;not null;default:0"`
	TotalConsumed int       `gorm:"column:total_consumed;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Remaining returns the spendable credit count.
func (b CreditBalance) Remaining() int {
	return b.TotalGranted - b.TotalConsumed
}
