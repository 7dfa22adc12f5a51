package garments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fitfield/tryon-backend/pkg/db/models"
)

// Repository reads the garment and body-photo rows render preconditions depend on.
type Repository interface {
	FindOwnedGarment(ctx context.Context, userID, garmentID uuid.UUID) (*models.Garment, error)
	FindBodyPhoto(ctx context.Context, userID uuid.UUID) (*models.BodyPhoto, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a garments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindOwnedGarment returns the garment only when it belongs to userID; nil otherwise.
func (r *repository) FindOwnedGarment(ctx context.Context, userID, garmentID uuid.UUID) (*models.Garment, error) {
	var garment models.Garment
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", garmentID, userID).
		First(&garment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &garment, nil
}

// FindBodyPhoto returns the user's body photo, or nil when none exists.
func (r *repository) FindBodyPhoto(ctx context.Context, userID uuid.UUID) (*models.BodyPhoto, error) {
	var photo models.BodyPhoto
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&photo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &photo, nil
}
