package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/pkg/enums"
)

// Garment is a user-uploaded clothing item. CutoutPath is set once background
// removal has produced a clean asset; renders prefer it over the original.
type Garment struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Category   enums.GarmentCategory `gorm:"column:category;not null"`
	ImagePath  string                `gorm:"column:image_path;not null"`
	CutoutPath *string               `gorm:"column:cutout_path"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// SubmissionPath returns the asset a provider submission should use.
func (g Garment) SubmissionPath() string {
	if g.CutoutPath != nil && *g.CutoutPath != "" {
		return *g.CutoutPath
	}
	return g.ImagePath
}
