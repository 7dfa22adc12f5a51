package credits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fitfield/tryon-backend/pkg/db/models"
)

// Repository manages persistence for per-user credit counters. Consume and
// refund are single conditional updates so the 0 <= consumed <= granted
// invariant holds under concurrent writers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	GrantInitial(ctx context.Context, userID uuid.UUID, amount int) (bool, error)
	ConsumeOne(ctx context.Context, userID uuid.UUID) (bool, error)
	RefundOne(ctx context.Context, userID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// GrantInitial creates the balance row with the starting grant. A row that
// already exists is left untouched; the return reports whether one was created.
func (r *repository) GrantInitial(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	balance := models.CreditBalance{
		UserID:       userID,
		TotalGranted: amount,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&balance)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ConsumeOne charges a single credit iff the user is still under the cap.
func (r *repository) ConsumeOne(ctx context.Context, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CreditBalance{}).
		Where("user_id = ? AND total_consumed < total_granted", userID).
		Update("total_consumed", gorm.Expr("total_consumed + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RefundOne returns a single consumed credit, never dropping below zero.
func (r *repository) RefundOne(ctx context.Context, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CreditBalance{}).
		Where("user_id = ? AND total_consumed > 0", userID).
		Update("total_consumed", gorm.Expr("total_consumed - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
