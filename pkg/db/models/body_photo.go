package models

import (
	"time"

	"github.com/google/uuid"
)

// BodyPhoto is the single full-body reference photo a user keeps on file.
type BodyPhoto struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;unique"`
	ImagePath string    `gorm:"column:image_path;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
